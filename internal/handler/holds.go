package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/gateway"
	"github.com/supdinner/tables/internal/middleware"
	"github.com/supdinner/tables/internal/service"
)

// HoldHandler serves the collateral endpoints: customer provisioning,
// hold and setup creation, day-of placement, cancellation and the
// post-confirmation join.
type HoldHandler struct {
	holds *service.HoldManager
	recon *service.Reconciler
	log   *zap.Logger
}

// NewHoldHandler wires the hold manager and the reconciler.
func NewHoldHandler(holds *service.HoldManager, recon *service.Reconciler, log *zap.Logger) *HoldHandler {
	if holds == nil || recon == nil {
		panic("nil service passed to NewHoldHandler")
	}
	return &HoldHandler{holds: holds, recon: recon, log: log}
}

type holdRequest struct {
	UserID          uint64 `json:"userId"`
	TableID         uint64 `json:"tableId"`
	CollateralCents int64  `json:"collateral_cents"`
}

// input binds a holdRequest for the acting user.
func (h *HoldHandler) input(c echo.Context) (service.HoldInput, error) {
	var req holdRequest
	if err := bind(c, &req); err != nil {
		return service.HoldInput{}, err
	}
	uid, err := actingUser(c, req.UserID)
	if err != nil {
		return service.HoldInput{}, err
	}
	return service.HoldInput{UserID: uid, TableID: req.TableID, CollateralCents: req.CollateralCents}, nil
}

// Customer handles POST /v1/customers and returns the caller's gateway
// customer id, creating it on first use.
func (h *HoldHandler) Customer(c echo.Context) error {
	var req struct {
		UserID uint64 `json:"userId"`
	}
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	uid, err := actingUser(c, req.UserID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	id, err := h.holds.EnsureCustomer(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"customerId": id})
}

// CreateHold handles POST /v1/create-hold.
func (h *HoldHandler) CreateHold(c echo.Context) error {
	in, err := h.input(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	secret, err := h.holds.CreateImmediateHold(c.Request().Context(), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"client_secret": secret})
}

// CreateDeferredSetup handles POST /v1/create-deferred-setup.
func (h *HoldHandler) CreateDeferredSetup(c echo.Context) error {
	in, err := h.input(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	secret, err := h.holds.CreateDeferredSetup(c.Request().Context(), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"client_secret": secret})
}

// PlaceDayOfHold handles POST /v1/place-day-of-hold.
func (h *HoldHandler) PlaceDayOfHold(c echo.Context) error {
	in, err := h.input(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	res, err := h.holds.PlaceDeferredHold(c.Request().Context(), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// CancelHold handles POST /v1/cancel-hold.
func (h *HoldHandler) CancelHold(c echo.Context) error {
	var req tableRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	uid, err := actingUser(c, req.UserID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.holds.CancelHold(c.Request().Context(), req.TableID, uid); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, success)
}

type confirmRequest struct {
	UserID          uint64 `json:"userId"`
	TableID         uint64 `json:"tableId"`
	IntentType      string `json:"intentType"`
	IntentID        string `json:"intentId"`
	PaymentMethodID string `json:"paymentMethodId"`
	ClientSecret    string `json:"clientSecret"`
}

// JoinAfterConfirm handles POST /v1/join-after-confirm.  The user and
// table may be omitted; they are then resolved from the intent.
func (h *HoldHandler) JoinAfterConfirm(c echo.Context) error {
	var req confirmRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	actor, ok := middleware.UserID(c)
	if !ok {
		return respondError(c, h.log, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized"))
	}
	res, err := h.recon.Confirm(c.Request().Context(), service.ConfirmRequest{
		UserID:          req.UserID,
		TableID:         req.TableID,
		IntentType:      gateway.IntentType(req.IntentType),
		IntentID:        req.IntentID,
		PaymentMethodID: req.PaymentMethodID,
		ClientSecret:    req.ClientSecret,
		ActorID:         actor,
		ActorAdmin:      middleware.IsAdmin(c),
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "mode": res.Mode, "userId": res.UserID, "tableId": res.TableID})
}
