// Package handler exposes the HTTP endpoints of the table service.  Every
// handler converts service errors into the {"error": "..."} JSON shape
// through respondError.
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/service"
)

// Messages sent instead of error details for server side failures.
const (
	msgInternal = "internal error"
	msgExternal = "upstream service error, please retry"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(k service.Kind) int {
	switch k {
	case service.KindValidation, service.KindConflict, service.KindSignature:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// respondError writes err as JSON.  Caller-facing kinds echo their
// message; external and internal failures are logged and replaced by a
// generic message.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return c.JSON(he.Code, echo.Map{"error": msg})
	}

	kind := service.KindOf(err)
	status := statusFor(kind)
	if status < http.StatusInternalServerError {
		var se *service.Error
		msg := err.Error()
		if errors.As(err, &se) && se.Msg != "" {
			msg = se.Msg
		}
		return c.JSON(status, echo.Map{"error": msg})
	}

	log.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Stringer("kind", kind),
		zap.Error(err))
	msg := msgInternal
	if kind == service.KindExternal {
		msg = msgExternal
	}
	return c.JSON(status, echo.Map{"error": msg})
}

// ErrorHandler replaces echo's default handler so routing errors and
// recovered panics leave in the same JSON shape as handler errors.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if werr := respondError(c, log, err); werr != nil {
			log.Warn("write error response", zap.Error(werr))
		}
	}
}
