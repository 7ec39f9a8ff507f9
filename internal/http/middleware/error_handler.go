package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"vending-dispatch/internal/models"
	"vending-dispatch/internal/shared/apperr"

	"github.com/labstack/echo/v4"
)

// ErrorHandler renders every handler error as the {"success":false,"error":{...}}
// envelope and logs it with the request id.
func ErrorHandler(l *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := renderError(err)

		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		l.LogAttrs(c.Request().Context(), level, "request_failed",
			slog.String("request_id", RequestID(c)),
			slog.String("path", c.Request().URL.Path),
			slog.Int("status", status),
			slog.String("code", body.Error.Code),
			slog.Any("err", err),
		)

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func renderError(err error) (int, models.ErrorResponse) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		} else if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		code := strings.ToUpper(strings.ReplaceAll(http.StatusText(he.Code), " ", "_"))
		return he.Code, models.NewErrorResponse(msg, code)
	}
	return apperr.HTTPStatus(err), models.NewErrorResponse(apperr.PublicMessage(err), apperr.Code(err))
}
