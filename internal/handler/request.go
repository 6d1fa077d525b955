package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/supdinner/tables/internal/middleware"
	"github.com/supdinner/tables/internal/service"
)

// tableRequest is the body shared by the signup and waitlist endpoints.
// UserID may be omitted; it then defaults to the token subject.
type tableRequest struct {
	TableID uint64 `json:"tableId"`
	UserID  uint64 `json:"userId"`
}

var success = echo.Map{"success": true}

// bind decodes the JSON body into v.
func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return service.Invalid("invalid request body")
	}
	return nil
}

// actingUser returns the user a request acts for.  Only admins may name
// a user other than the token subject.
func actingUser(c echo.Context, requested uint64) (uint64, error) {
	sub, ok := middleware.UserID(c)
	if !ok {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	switch {
	case requested == 0 || requested == sub:
		return sub, nil
	case middleware.IsAdmin(c):
		return requested, nil
	}
	return 0, service.ErrForbidden
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, service.Invalid("invalid %s", name)
	}
	return id, nil
}
