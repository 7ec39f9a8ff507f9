package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// DevicePathPrefix marks routes hit by polling machines every few seconds.
const DevicePathPrefix = "/api/device/"

// RequestID returns the id set by echo's RequestID middleware.
func RequestID(c echo.Context) string {
	if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
		return rid
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}

// Logger writes one http_request record per request. Successful device
// traffic is logged at debug so that steady-state polling stays quiet.
func Logger(l *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			status := res.Status

			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			case strings.HasPrefix(req.URL.Path, DevicePathPrefix):
				level = slog.LevelDebug
			}

			path := req.URL.Path
			if q := req.URL.RawQuery; q != "" {
				path = path + "?" + q
			}

			l.LogAttrs(req.Context(), level, "http_request",
				slog.String("request_id", RequestID(c)),
				slog.String("method", req.Method),
				slog.String("path", path),
				slog.Int("status", status),
				slog.Duration("latency", time.Since(start)),
				slog.Int64("bytes", res.Size),
				slog.String("client_ip", c.RealIP()),
			)
			return nil
		}
	}
}
