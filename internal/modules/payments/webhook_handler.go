package payments

import (
	"errors"
	"io"
	"net/http"

	"vending-dispatch/internal/shared/apperr"
	"vending-dispatch/pkg/payment"

	"github.com/labstack/echo/v4"
)

// maxWebhookBody caps how much of a webhook body is read.
const maxWebhookBody = 64 << 10

type Handler struct {
	svc      ServiceInterface
	verifier payment.VerifierInterface
}

func NewHandler(svc ServiceInterface, verifier payment.VerifierInterface) *Handler {
	return &Handler{svc: svc, verifier: verifier}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/stripe", h.Stripe)
}

// Stripe answers 200 only once the event is applied; the gateway redelivers
// on any other status.
func (h *Handler) Stripe(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return apperr.InvalidErr("INVALID_BODY", "unable to read request body")
	}

	ev, err := h.verifier.ParseWebhook(payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			return apperr.InvalidErr("INVALID_SIGNATURE", "webhook signature verification failed")
		}
		return apperr.InvalidErr("INVALID_EVENT", "malformed webhook event")
	}

	changed, err := h.svc.Handle(c.Request().Context(), ev)
	if err != nil {
		return apperr.Wrap(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"received": true, "applied": changed})
}
