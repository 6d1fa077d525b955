package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/model"
	"github.com/supdinner/tables/internal/service"
)

// TableHandler serves table reads and the caller's profile.
type TableHandler struct {
	catalog *service.Catalog
	log     *zap.Logger
}

// NewTableHandler wires the catalog.
func NewTableHandler(catalog *service.Catalog, log *zap.Logger) *TableHandler {
	if catalog == nil {
		panic("nil catalog passed to NewTableHandler")
	}
	return &TableHandler{catalog: catalog, log: log}
}

// TableView is the client representation of a table.  Strategy tells the
// client which collateral flow a signup made now must use.
type TableView struct {
	ID          uint64         `json:"id"`
	Title       string         `json:"title"`
	TotalSpots  uint32         `json:"total_spots"`
	MinSpots    uint32         `json:"min_spots"`
	SpotsFilled uint32         `json:"spots_filled"`
	IsLocked    bool           `json:"is_locked"`
	IsCancelled bool           `json:"is_cancelled"`
	EventTime   time.Time      `json:"event_time"`
	Strategy    model.Strategy `json:"strategy"`
}

func (h *TableHandler) view(t model.Table) TableView {
	return TableView{
		ID:          t.ID,
		Title:       t.Title,
		TotalSpots:  t.TotalSpots,
		MinSpots:    t.RequiredSpots(),
		SpotsFilled: t.SpotsFilled,
		IsLocked:    t.IsLocked,
		IsCancelled: t.IsCancelled,
		EventTime:   t.EventTime,
		Strategy:    h.catalog.StrategyFor(t),
	}
}

// List handles GET /v1/tables.  Unlocked tables come first; ?limit caps
// the result.
func (h *TableHandler) List(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return respondError(c, h.log, service.Invalid("invalid limit"))
		}
		limit = n
	}
	tables, err := h.catalog.Upcoming(c.Request().Context(), limit)
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := make([]TableView, 0, len(tables))
	for _, t := range tables {
		out = append(out, h.view(t))
	}
	return c.JSON(http.StatusOK, echo.Map{"tables": out})
}

// Get handles GET /v1/tables/:id.
func (h *TableHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	t, err := h.catalog.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, h.view(t))
}

type profileRequest struct {
	FirstName   string `json:"first_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

// ProfileView is the caller's stored profile.
type ProfileView struct {
	ID          uint64 `json:"id"`
	FirstName   string `json:"first_name"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Email       string `json:"email,omitempty"`
	IsSuspended bool   `json:"is_suspended"`
}

func profileView(u model.User) ProfileView {
	return ProfileView{ID: u.ID, FirstName: u.FirstName, PhoneNumber: u.PhoneNumber, Email: u.Email, IsSuspended: u.IsSuspended}
}

// UpdateProfile handles PUT /v1/me.
func (h *TableHandler) UpdateProfile(c echo.Context) error {
	var req profileRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	uid, err := actingUser(c, 0)
	if err != nil {
		return respondError(c, h.log, err)
	}
	u, err := h.catalog.UpdateProfile(c.Request().Context(), model.User{
		ID:          uid,
		FirstName:   req.FirstName,
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, profileView(u))
}
