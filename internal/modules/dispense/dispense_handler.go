package dispense

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"vending-dispatch/internal/models"
	"vending-dispatch/internal/shared/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Handler serves the device-facing dispense protocol.
type Handler struct {
	svc      ServiceInterface
	validate *validator.Validate
	ackGrace time.Duration
}

func NewHandler(svc ServiceInterface, ackGrace time.Duration) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
		ackGrace: ackGrace,
	}
}

// RegisterRoutes mounts device routes on device and operator routes on admin.
func (h *Handler) RegisterRoutes(device *echo.Group, admin *echo.Group) {
	device.GET("/poll", h.Poll)
	device.POST("/dispense/ack", h.Acknowledge)
	device.POST("/coin-sale", h.RecordCoinSale)
	if admin != nil {
		admin.GET("/dispense/unacknowledged", h.ListUnacknowledged)
	}
}

var noPending = models.NoPendingResponse{Status: models.PollStatusNoPending}

// Poll answers a device poll with either a dispense instruction or the
// benign "no pending payments" body. Unknown devices get the benign body too.
func (h *Handler) Poll(c echo.Context) error {
	var q models.PollQuery
	if err := c.Bind(&q); err != nil {
		return apperr.InvalidErr("INVALID_QUERY", "invalid query parameters")
	}
	q.MAC = strings.TrimSpace(q.MAC)
	if err := h.validate.Struct(q); err != nil {
		return pollQueryError(err)
	}

	out, err := h.svc.Poll(c.Request().Context(), q)
	if err != nil {
		return apperr.UnavailableErr("STORE_UNAVAILABLE", "dispense store unavailable", err)
	}
	if out.Claim == nil {
		return c.JSON(http.StatusOK, noPending)
	}
	return c.JSON(http.StatusOK, newDispenseInstruction(q.MAC, out.Machine, out.Claim))
}

func pollQueryError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "MAC" && fe.Tag() == "max" {
				return apperr.InvalidErr("INVALID_MAC", "mac must be at most 64 characters")
			}
		}
	}
	return apperr.InvalidErr("MISSING_MAC", "mac query parameter is required")
}

func newDispenseInstruction(mac string, m *models.Machine, claim *models.ClaimedOrder) models.DispenseInstruction {
	products := make([]models.PollItem, 0, len(claim.Items))
	for _, it := range claim.Items {
		products = append(products, models.PollItem{
			Product: models.PollProduct{
				ID:          it.ProductID,
				Name:        it.Name,
				Description: it.Description,
			},
			Quantity: it.Quantity,
			Price:    it.UnitPrice,
		})
	}

	o := claim.Order
	instr := models.DispenseInstruction{
		Status:        models.PollStatusSuccess,
		MAC:           mac,
		MachineID:     m.LogicalCode,
		MachineName:   m.Name,
		TransactionID: o.ID,
		Amount:        o.Amount,
		Products:      products,
		Timestamp:     o.CreatedAt.UTC(),
	}
	if o.GatewayOrderID != nil {
		instr.GatewayOrderID = *o.GatewayOrderID
	}
	if o.GatewayPaymentID != nil {
		instr.GatewayPaymentID = *o.GatewayPaymentID
	}
	return instr
}

// Acknowledge lets a device confirm that it physically dispensed an order.
func (h *Handler) Acknowledge(c echo.Context) error {
	var req models.AckRequest
	if err := c.Bind(&req); err != nil {
		return apperr.InvalidErr("INVALID_BODY", "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return apperr.InvalidErr("VALIDATION_FAILED", "mac and transactionId are required")
	}

	ok, err := h.svc.Acknowledge(c.Request().Context(), req)
	if err != nil {
		return apperr.UnavailableErr("STORE_UNAVAILABLE", "failed to record acknowledgment", err)
	}
	return c.JSON(http.StatusOK, models.AckResponse{Success: true, Acknowledged: ok})
}

// RecordCoinSale stores a cash sale the machine already completed.
func (h *Handler) RecordCoinSale(c echo.Context) error {
	var req models.CoinSaleRequest
	if err := c.Bind(&req); err != nil {
		return apperr.InvalidErr("INVALID_BODY", "invalid request body")
	}
	req.MachineID = strings.TrimSpace(req.MachineID)
	if err := h.validate.Struct(req); err != nil {
		return apperr.InvalidErr("VALIDATION_FAILED", "Validation failed: "+err.Error())
	}

	order, err := h.svc.RecordCoinSale(c.Request().Context(), req)
	if err != nil {
		return coinSaleError(err)
	}
	return c.JSON(http.StatusCreated, models.CoinSaleResponse{Success: true, TransactionID: order.ID})
}

func coinSaleError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return apperr.InvalidErr("INVALID_MACHINE_ID", "machine_id is required")
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrConflict):
		return apperr.NotFoundErr("MACHINE_NOT_FOUND", "machine not found")
	}
	return apperr.UnavailableErr("STORE_UNAVAILABLE", "failed to record sale", err)
}

// ListUnacknowledged returns claims no device confirmed within the grace
// period, or within ?older_than= when given.
func (h *Handler) ListUnacknowledged(c echo.Context) error {
	grace := h.ackGrace
	if s := c.QueryParam("older_than"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			return apperr.InvalidErr("INVALID_DURATION", "older_than must be a duration such as 5m")
		}
		grace = d
	}

	orders, err := h.svc.ListUnacknowledged(c.Request().Context(), grace)
	if err != nil {
		return apperr.UnavailableErr("STORE_UNAVAILABLE", "failed to list unacknowledged orders", err)
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"orders": orders, "total": len(orders)})
}
