package machines

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"vending-dispatch/internal/models"
)

// parseHeartbeat decodes a heartbeat body leniently. Numbers may arrive as JSON
// numbers or numeric strings; a field that cannot be parsed is dropped and
// named in the returned slice instead of failing the whole report.
func parseHeartbeat(body []byte) (models.HeartbeatRequest, []string) {
	var req models.HeartbeatRequest
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return req, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return req, []string{"body"}
	}

	var ignored []string
	if v, ok := raw["machine_id"]; ok {
		if s, ok := rawString(v); ok {
			req.MachineID = s
		} else {
			ignored = append(ignored, "machine_id")
		}
	}
	if v, ok := raw["firmware_version"]; ok {
		if s, ok := rawString(v); ok && s != "" {
			req.FirmwareVersion = &s
		} else if !isNull(v) {
			ignored = append(ignored, "firmware_version")
		}
	}

	// Bounds follow the column types: INTEGER for rssi and stock, BIGINT otherwise.
	ints := []struct {
		key      string
		min, max int64
		set      func(int64)
	}{
		{"wifi_rssi", math.MinInt32, math.MaxInt32, func(n int64) { i := int(n); req.WifiRSSI = &i }},
		{"free_heap", math.MinInt64, math.MaxInt64, func(n int64) { req.FreeHeap = &n }},
		{"uptime", math.MinInt64, math.MaxInt64, func(n int64) { req.Uptime = &n }},
		{"stock_level", math.MinInt32, math.MaxInt32, func(n int64) { i := int(n); req.StockLevel = &i }},
	}
	for _, f := range ints {
		v, ok := raw[f.key]
		if !ok || isNull(v) {
			continue
		}
		n, ok := rawInt(v)
		if !ok || n < f.min || n > f.max {
			ignored = append(ignored, f.key)
			continue
		}
		f.set(n)
	}
	return req, ignored
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}

func rawString(v json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s), true
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func rawInt(v json.RawMessage) (int64, bool) {
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, false
		}
		n = json.Number(strings.TrimSpace(s))
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.IsNaN(f) || f < -(1<<63) || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}
