package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/model"
	"github.com/supdinner/tables/internal/service"
)

// MaintenanceRunner runs one sweep.  It reports false when another
// instance holds the sweep lock.
type MaintenanceRunner interface {
	RunOnce(ctx context.Context) (service.Summary, bool)
}

// AdminHandler serves the ADMIN routes.
type AdminHandler struct {
	tables *TableHandler
	maint  MaintenanceRunner
	log    *zap.Logger
}

// NewAdminHandler shares the table views of th.
func NewAdminHandler(th *TableHandler, maint MaintenanceRunner, log *zap.Logger) *AdminHandler {
	if th == nil || maint == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{tables: th, maint: maint, log: log}
}

type createTableRequest struct {
	Title      string    `json:"title"`
	TotalSpots uint32    `json:"total_spots"`
	MinSpots   *uint32   `json:"min_spots"`
	EventTime  time.Time `json:"event_time"`
}

// CreateTable handles POST /v1/admin/tables.
func (h *AdminHandler) CreateTable(c echo.Context) error {
	var req createTableRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	t, err := h.tables.catalog.Create(c.Request().Context(), service.NewTable{
		Title:      req.Title,
		TotalSpots: req.TotalSpots,
		MinSpots:   req.MinSpots,
		EventTime:  req.EventTime,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, h.tables.view(t))
}

type holdView struct {
	ID              uint64           `json:"id"`
	Strategy        model.Strategy   `json:"strategy"`
	Status          model.HoldStatus `json:"status"`
	CollateralCents int64            `json:"collateral_cents"`
	PaymentIntentID string           `json:"payment_intent_id,omitempty"`
	SetupIntentID   string           `json:"setup_intent_id,omitempty"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type guestView struct {
	UserID     uint64       `json:"user_id"`
	SignedUpAt time.Time    `json:"signed_up_at"`
	Profile    *ProfileView `json:"profile,omitempty"`
	Hold       *holdView    `json:"hold,omitempty"`
}

type waitingView struct {
	UserID   uint64    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Guests handles GET /v1/admin/tables/:id/guests: the signups with each
// guest's latest hold, and the waitlist in promotion order.
func (h *AdminHandler) Guests(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	guests, waitlist, err := h.tables.catalog.Guests(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	gv := make([]guestView, 0, len(guests))
	for _, g := range guests {
		v := guestView{UserID: g.Signup.UserID, SignedUpAt: g.Signup.CreatedAt}
		if g.User != nil {
			p := profileView(*g.User)
			v.Profile = &p
		}
		if g.Hold != nil {
			v.Hold = &holdView{
				ID:              g.Hold.ID,
				Strategy:        g.Hold.Strategy,
				Status:          g.Hold.Status,
				CollateralCents: g.Hold.CollateralCents,
				PaymentIntentID: g.Hold.PaymentIntentID,
				SetupIntentID:   g.Hold.SetupIntentID,
				ErrorMessage:    g.Hold.ErrorMessage,
				UpdatedAt:       g.Hold.UpdatedAt,
			}
		}
		gv = append(gv, v)
	}
	wv := make([]waitingView, 0, len(waitlist))
	for _, w := range waitlist {
		wv = append(wv, waitingView{UserID: w.UserID, JoinedAt: w.CreatedAt})
	}
	return c.JSON(http.StatusOK, echo.Map{"tableId": id, "guests": gv, "waitlist": wv})
}

// RunMaintenance handles POST /v1/admin/maintenance/run.
func (h *AdminHandler) RunMaintenance(c echo.Context) error {
	sum, ran := h.maint.RunOnce(c.Request().Context())
	if !ran {
		return c.JSON(http.StatusConflict, echo.Map{"error": "maintenance already running"})
	}
	return c.JSON(http.StatusOK, sum)
}
