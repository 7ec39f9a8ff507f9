package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func sign(payload string, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

const succeededPayload = `{
  "id": "evt_1",
  "object": "event",
  "api_version": "2022-11-15",
  "type": "payment_intent.succeeded",
  "data": {"object": {
    "id": "pi_123",
    "object": "payment_intent",
    "amount": 5000,
    "currency": "inr",
    "latest_charge": "ch_456",
    "metadata": {"order_id": "tx1"}
  }}
}`

func TestParseWebhookSucceeded(t *testing.T) {
	v := NewStripeVerifier(testSecret)

	ev, err := v.ParseWebhook([]byte(succeededPayload), sign(succeededPayload, testSecret))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, EventPaymentSucceeded, ev.Type)
	assert.Equal(t, "tx1", ev.OrderID)
	assert.Equal(t, "pi_123", ev.GatewayOrderID)
	assert.Equal(t, "ch_456", ev.GatewayPaymentID)
	assert.Equal(t, 50.0, ev.Amount)
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	v := NewStripeVerifier(testSecret)

	_, err := v.ParseWebhook([]byte(succeededPayload), sign(succeededPayload, "whsec_other"))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestParseWebhookIgnoresOtherEvents(t *testing.T) {
	payload := `{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`
	v := NewStripeVerifier(testSecret)

	ev, err := v.ParseWebhook([]byte(payload), sign(payload, testSecret))
	require.NoError(t, err)
	assert.Empty(t, ev.Type)
	assert.Equal(t, "evt_2", ev.ID)
}
