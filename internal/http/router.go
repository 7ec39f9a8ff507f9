// Package apphttp assembles the echo server: middleware, device routes,
// operator routes and gateway webhooks.
package apphttp

import (
	"log/slog"
	"net/http"
	"time"

	"vending-dispatch/internal/http/middleware"
	"vending-dispatch/internal/modules/dispense"
	"vending-dispatch/internal/modules/machines"
	"vending-dispatch/internal/modules/payments"
	"vending-dispatch/pkg/payment"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// Deps are the services the router mounts. Verifier and JWTSecret are
// optional: without them the webhook and admin groups are not registered.
type Deps struct {
	Logger    *slog.Logger
	Machines  machines.ServiceInterface
	Dispense  dispense.ServiceInterface
	Payments  payments.ServiceInterface
	Verifier  payment.VerifierInterface
	JWTSecret string
	AckGrace  time.Duration
}

func NewRouter(d Deps) *echo.Echo {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(d.Logger)

	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(d.Logger))
	e.Use(echomw.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api")
	device := api.Group("/device")

	var admin *echo.Group
	if d.JWTSecret != "" {
		admin = api.Group("/admin", middleware.RequireAdmin(d.JWTSecret)...)
	} else {
		d.Logger.Warn("JWT_SECRET not set; admin routes disabled")
	}

	machines.NewHandler(d.Machines, d.Logger).RegisterRoutes(device, admin)
	dispense.NewHandler(d.Dispense, d.AckGrace).RegisterRoutes(device, admin)

	if d.Verifier != nil && d.Payments != nil {
		payments.NewHandler(d.Payments, d.Verifier).RegisterRoutes(api.Group("/webhooks"))
	} else {
		d.Logger.Warn("STRIPE_WEBHOOK_SECRET not set; payment webhook disabled")
	}

	return e
}
