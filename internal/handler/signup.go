package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/service"
)

// SignupHandler serves the join, leave and waitlist endpoints.
type SignupHandler struct {
	ledger   *service.Ledger
	waitlist *service.Waitlist
	log      *zap.Logger
}

// NewSignupHandler wires the capacity ledger and the waitlist.
func NewSignupHandler(ledger *service.Ledger, waitlist *service.Waitlist, log *zap.Logger) *SignupHandler {
	if ledger == nil || waitlist == nil {
		panic("nil service passed to NewSignupHandler")
	}
	return &SignupHandler{ledger: ledger, waitlist: waitlist, log: log}
}

type tableAction func(c echo.Context, tableID, userID uint64) error

// run binds a tableRequest, resolves the acting user and applies fn.
func (h *SignupHandler) run(c echo.Context, fn tableAction) error {
	var req tableRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	uid, err := actingUser(c, req.UserID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := fn(c, req.TableID, uid); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, success)
}

// Join handles POST /v1/join.
func (h *SignupHandler) Join(c echo.Context) error {
	return h.run(c, func(c echo.Context, tableID, userID uint64) error {
		return h.ledger.Join(c.Request().Context(), tableID, userID)
	})
}

// Leave handles POST /v1/leave.  Promotion of the next waitlisted user
// is dispatched before the response is written.
func (h *SignupHandler) Leave(c echo.Context) error {
	return h.run(c, func(c echo.Context, tableID, userID uint64) error {
		return h.ledger.Leave(c.Request().Context(), tableID, userID)
	})
}

// JoinWaitlist handles POST /v1/join-waitlist.
func (h *SignupHandler) JoinWaitlist(c echo.Context) error {
	return h.run(c, func(c echo.Context, tableID, userID uint64) error {
		return h.waitlist.Join(c.Request().Context(), tableID, userID)
	})
}

// LeaveWaitlist handles POST /v1/leave-waitlist.
func (h *SignupHandler) LeaveWaitlist(c echo.Context) error {
	return h.run(c, func(c echo.Context, tableID, userID uint64) error {
		return h.waitlist.Leave(c.Request().Context(), tableID, userID)
	})
}
