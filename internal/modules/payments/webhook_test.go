package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"vending-dispatch/internal/http/middleware"
	"vending-dispatch/pkg/payment"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderState struct {
	status           string
	dispensed        bool
	gatewayPaymentID string
}

type fakeRepo struct {
	mu     sync.Mutex
	orders map[string]*orderState
	err    error
}

func (f *fakeRepo) MarkPaid(ctx context.Context, orderID, gatewayOrderID, gatewayPaymentID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	o, ok := f.orders[orderID]
	if !ok || o.status != "unpaid" {
		return false, nil
	}
	o.status = "paid"
	o.gatewayPaymentID = gatewayPaymentID
	return true, nil
}

func (f *fakeRepo) MarkFailed(ctx context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	o, ok := f.orders[orderID]
	if !ok || o.status != "unpaid" {
		return false, nil
	}
	o.status = "failed"
	return true, nil
}

type stubVerifier struct {
	ev  payment.Event
	err error
}

func (s stubVerifier) ParseWebhook(payload []byte, sig string) (payment.Event, error) {
	return s.ev, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func succeeded(orderID string) payment.Event {
	return payment.Event{
		ID:               "evt_1",
		Type:             payment.EventPaymentSucceeded,
		OrderID:          orderID,
		GatewayOrderID:   "pi_1",
		GatewayPaymentID: "ch_1",
		Amount:           50,
	}
}

func TestHandleMarksPaidOnce(t *testing.T) {
	repo := &fakeRepo{orders: map[string]*orderState{"tx1": {status: "unpaid"}}}
	svc := NewService(repo, discardLogger())

	changed, err := svc.Handle(context.Background(), succeeded("tx1"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "paid", repo.orders["tx1"].status)
	assert.Equal(t, "ch_1", repo.orders["tx1"].gatewayPaymentID)
	assert.False(t, repo.orders["tx1"].dispensed)

	changed, err = svc.Handle(context.Background(), succeeded("tx1"))
	require.NoError(t, err)
	assert.False(t, changed, "replayed event must be a no-op")
}

func TestHandleFailedDoesNotOverridePaid(t *testing.T) {
	repo := &fakeRepo{orders: map[string]*orderState{"tx1": {status: "paid"}}}
	svc := NewService(repo, discardLogger())

	changed, err := svc.Handle(context.Background(), payment.Event{ID: "evt_2", Type: payment.EventPaymentFailed, OrderID: "tx1"})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "paid", repo.orders["tx1"].status)
}

func TestHandleIgnoresEventsWithoutOrder(t *testing.T) {
	repo := &fakeRepo{orders: map[string]*orderState{}}
	svc := NewService(repo, discardLogger())

	changed, err := svc.Handle(context.Background(), payment.Event{ID: "evt_3", Type: payment.EventPaymentSucceeded})
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = svc.Handle(context.Background(), payment.Event{ID: "evt_4"})
	require.NoError(t, err)
	assert.False(t, changed)
}

func newWebhookServer(svc ServiceInterface, v payment.VerifierInterface) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(discardLogger())
	NewHandler(svc, v).RegisterRoutes(e.Group("/api/webhooks"))
	return e
}

func postWebhook(e *echo.Echo) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=00")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookHandler(t *testing.T) {
	t.Run("applies verified event", func(t *testing.T) {
		repo := &fakeRepo{orders: map[string]*orderState{"tx1": {status: "unpaid"}}}
		e := newWebhookServer(NewService(repo, discardLogger()), stubVerifier{ev: succeeded("tx1")})

		rec := postWebhook(e)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true,"applied":true}`, rec.Body.String())
	})

	t.Run("bad signature is rejected", func(t *testing.T) {
		repo := &fakeRepo{orders: map[string]*orderState{}}
		e := newWebhookServer(NewService(repo, discardLogger()), stubVerifier{err: payment.ErrInvalidSignature})

		rec := postWebhook(e)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_SIGNATURE")
	})

	t.Run("store failure asks the gateway to retry", func(t *testing.T) {
		repo := &fakeRepo{orders: map[string]*orderState{}, err: errors.New("connection reset")}
		e := newWebhookServer(NewService(repo, discardLogger()), stubVerifier{ev: succeeded("tx1")})

		rec := postWebhook(e)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection reset")
	})
}
