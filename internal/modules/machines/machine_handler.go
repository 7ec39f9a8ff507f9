package machines

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"vending-dispatch/internal/models"
	"vending-dispatch/internal/shared/apperr"

	"github.com/labstack/echo/v4"
)

// maxHeartbeatBody caps how much of a heartbeat body is read.
const maxHeartbeatBody = 16 << 10

// Handler serves the telemetry endpoint and the admin fleet listing.
type Handler struct {
	svc    ServiceInterface
	logger *slog.Logger
	now    func() time.Time
}

func NewHandler(svc ServiceInterface, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger, now: time.Now}
}

// RegisterRoutes mounts device routes on device and operator routes on admin.
func (h *Handler) RegisterRoutes(device *echo.Group, admin *echo.Group) {
	device.POST("/heartbeat", h.Heartbeat)
	if admin != nil {
		admin.GET("/machines", h.ListMachines)
	}
}

// Heartbeat records telemetry. It answers success whatever happens so that
// firmware never has to branch on the outcome.
func (h *Handler) Heartbeat(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxHeartbeatBody))
	if err != nil {
		h.logger.WarnContext(ctx, "heartbeat body unreadable", "err", err)
	}
	req, ignored := parseHeartbeat(body)
	if len(ignored) > 0 {
		h.logger.DebugContext(ctx, "heartbeat fields ignored", "machine_code", req.MachineID, "fields", ignored)
	}

	if _, err := h.svc.ReportTelemetry(ctx, req); err != nil {
		h.logger.WarnContext(ctx, "heartbeat update failed", "machine_code", req.MachineID, "err", err)
	}

	return c.JSON(http.StatusOK, models.HeartbeatResponse{
		Success:   true,
		Timestamp: h.now().UTC(),
		Ignored:   ignored,
	})
}

// ListMachines returns every machine with its liveness and last telemetry.
func (h *Handler) ListMachines(c echo.Context) error {
	machines, err := h.svc.ListMachines(c.Request().Context())
	if err != nil {
		return apperr.UnavailableErr("STORE_UNAVAILABLE", "failed to list machines", err)
	}
	if machines == nil {
		machines = []*models.Machine{}
	}
	return c.JSON(http.StatusOK, machines)
}
