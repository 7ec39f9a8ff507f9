package models

import "time"

// Poll status strings understood by machine firmware.
const (
	PollStatusNoPending = "No pending payments"
	PollStatusSuccess   = "success"
)

// PollQuery is the query string a machine sends on every poll.
type PollQuery struct {
	MAC      string `query:"mac" validate:"required,max=64"`
	Firmware string `query:"firmware" validate:"omitempty,max=64"`
}

// NoPendingResponse is the benign reply for both an unknown device and an empty queue.
type NoPendingResponse struct {
	Status string `json:"status"`
}

// PollProduct is the product block of a dispense instruction.
type PollProduct struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PollItem is one line of a dispense instruction.
type PollItem struct {
	Product  PollProduct `json:"product"`
	Quantity int         `json:"quantity"`
	Price    float64     `json:"price"`
}

// DispenseInstruction tells a machine what to dispense for a claimed order.
type DispenseInstruction struct {
	Status           string     `json:"status"`
	MAC              string     `json:"mac"`
	MachineID        string     `json:"machineId"`
	MachineName      string     `json:"machineName"`
	TransactionID    string     `json:"transactionId"`
	GatewayOrderID   string     `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string     `json:"gatewayPaymentId,omitempty"`
	Amount           float64    `json:"amount"`
	Products         []PollItem `json:"products"`
	Timestamp        time.Time  `json:"timestamp"`
}

// HeartbeatRequest is the telemetry body a machine posts periodically.
// Every field except MachineID is optional.
type HeartbeatRequest struct {
	MachineID       string  `json:"machine_id"`
	FirmwareVersion *string `json:"firmware_version,omitempty"`
	WifiRSSI        *int    `json:"wifi_rssi,omitempty"`
	FreeHeap        *int64  `json:"free_heap,omitempty"`
	Uptime          *int64  `json:"uptime,omitempty"`
	StockLevel      *int    `json:"stock_level,omitempty"`
}

// Telemetry converts the request into a registry update.
func (r HeartbeatRequest) Telemetry() TelemetryUpdate {
	return TelemetryUpdate{
		FirmwareVersion: r.FirmwareVersion,
		WifiRSSI:        r.WifiRSSI,
		FreeHeap:        r.FreeHeap,
		UptimeSeconds:   r.Uptime,
		StockLevel:      r.StockLevel,
	}
}

// HeartbeatResponse is always returned with Success set.
type HeartbeatResponse struct {
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	// Ignored lists fields that were present but could not be parsed.
	Ignored []string `json:"ignored,omitempty"`
}

// AckRequest confirms that a machine physically dispensed a claimed order.
type AckRequest struct {
	MAC           string `json:"mac" validate:"required,max=64"`
	TransactionID string `json:"transactionId" validate:"required"`
}

// AckResponse reports whether the acknowledgment changed anything.
type AckResponse struct {
	Success      bool `json:"success"`
	Acknowledged bool `json:"acknowledged"`
}

// CoinSaleItem is one product paid for with coins.
type CoinSaleItem struct {
	ProductID string  `json:"product_id" validate:"required"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	Price     float64 `json:"price" validate:"gte=0"`
}

// CoinSaleRequest records a sale the machine already settled and dispensed locally.
type CoinSaleRequest struct {
	MachineID string         `json:"machine_id" validate:"required"`
	Amount    float64        `json:"amount" validate:"gte=0"`
	Items     []CoinSaleItem `json:"items" validate:"required,min=1,dive"`
}

// CoinSaleResponse echoes the id assigned to a recorded coin sale.
type CoinSaleResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
}
