package models

import "time"

// Machine is a provisioned vending machine. Provisioning happens out of band;
// this service only reads the identity columns and writes liveness and telemetry.
type Machine struct {
	ID              string     `json:"id"`
	HardwareAddress string     `json:"hardware_address"`
	LogicalCode     string     `json:"logical_code"`
	Name            string     `json:"name"`
	Online          bool       `json:"online"`
	LastContactAt   *time.Time `json:"last_contact_at,omitempty"`
	FirmwareVersion *string    `json:"firmware_version,omitempty"`
	WifiRSSI        *int       `json:"wifi_rssi,omitempty"`
	FreeHeap        *int64     `json:"free_heap,omitempty"`
	UptimeSeconds   *int64     `json:"uptime_seconds,omitempty"`
	StockLevel      *int       `json:"stock_level,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TelemetryUpdate carries the telemetry a device reported on one contact.
// A nil field was not reported and must leave the stored value unchanged.
type TelemetryUpdate struct {
	FirmwareVersion *string
	WifiRSSI        *int
	FreeHeap        *int64
	UptimeSeconds   *int64
	StockLevel      *int
}

// IsEmpty reports whether no telemetry field was provided.
func (u TelemetryUpdate) IsEmpty() bool {
	return u.FirmwareVersion == nil && u.WifiRSSI == nil && u.FreeHeap == nil &&
		u.UptimeSeconds == nil && u.StockLevel == nil
}
