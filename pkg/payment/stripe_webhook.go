// Package payment turns payment-gateway notifications into gateway-neutral events.
package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

// Event types the order confirmation path reacts to.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("payment: invalid webhook signature")

// Event is a verified gateway notification. Type is empty for events that
// carry no payment outcome.
type Event struct {
	ID               string
	Type             string
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Amount           float64
}

// VerifierInterface verifies and decodes a raw webhook request.
type VerifierInterface interface {
	ParseWebhook(payload []byte, signatureHeader string) (Event, error)
}

// StripeVerifier checks Stripe-Signature headers against an endpoint secret.
type StripeVerifier struct {
	secret string
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

// ParseWebhook maps payment_intent.succeeded and payment_intent.payment_failed
// onto Event. The order id travels in the intent's metadata under "order_id".
func (v *StripeVerifier) ParseWebhook(payload []byte, signatureHeader string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := Event{ID: ev.ID}
	switch string(ev.Type) {
	case "payment_intent.succeeded":
		out.Type = EventPaymentSucceeded
	case "payment_intent.payment_failed":
		out.Type = EventPaymentFailed
	default:
		return out, nil
	}
	if ev.Data == nil {
		return Event{}, fmt.Errorf("payment: event %s has no data", ev.ID)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return Event{}, fmt.Errorf("payment: decode payment intent: %w", err)
	}
	out.OrderID = pi.Metadata["order_id"]
	out.GatewayOrderID = pi.ID
	if pi.LatestCharge != nil {
		out.GatewayPaymentID = pi.LatestCharge.ID
	}
	out.Amount = float64(pi.Amount) / 100
	return out, nil
}
