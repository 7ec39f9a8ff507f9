package models

import "time"

// Payment status values. Only the payment-confirmation path writes them.
const (
	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
	PaymentFailed = "failed"
)

// Payment methods an order can be settled with.
const (
	PaymentMethodOnline = "online"
	PaymentMethodCoin   = "coin"
)

// UnknownProductName is shown to a machine when a line item's product row is missing.
const UnknownProductName = "Unknown product"

// Order represents a purchase made against a vending machine.
type Order struct {
	ID               string     `json:"id"`
	MachineID        string     `json:"machine_id"`
	PaymentStatus    string     `json:"payment_status"`
	PaymentMethod    string     `json:"payment_method"`
	Amount           float64    `json:"amount"`
	GatewayOrderID   *string    `json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string    `json:"gateway_payment_id,omitempty"`
	Dispensed        bool       `json:"dispensed"`
	DispensedAt      *time.Time `json:"dispensed_at,omitempty"`
	DispenseAckedAt  *time.Time `json:"dispense_acked_at,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// IsPending reports whether the order is paid and still waiting for its machine.
func (o *Order) IsPending() bool {
	return o.PaymentStatus == PaymentPaid && !o.Dispensed
}

// LineItem is one immutable row of an order.
type LineItem struct {
	Position  int     `json:"position"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// ResolvedItem is a line item joined with the product metadata a machine
// needs to know what to dispense.
type ResolvedItem struct {
	ProductID   string  `json:"product_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	// Resolved is false when the product row could not be found.
	Resolved bool `json:"resolved"`
}

// ClaimedOrder is an order this caller has irrevocably marked as dispensed.
type ClaimedOrder struct {
	Order Order          `json:"order"`
	Items []ResolvedItem `json:"items"`
	// Partial is set when some or all item metadata could not be loaded.
	Partial bool `json:"partial"`
}
