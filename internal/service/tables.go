package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/config"
	"github.com/supdinner/tables/internal/model"
	"github.com/supdinner/tables/internal/repository"
)

// Catalog serves table reads, table creation and guest lists.
type Catalog struct {
	stores  Stores
	windows config.Windows
	log     *zap.Logger
	now     func() time.Time
}

func NewCatalog(stores Stores, windows config.Windows, log *zap.Logger) *Catalog {
	return &Catalog{stores: stores, windows: windows, log: log, now: time.Now}
}

// Now returns the catalog clock.
func (c *Catalog) Now() time.Time { return c.now() }

// StrategyFor returns the collateral strategy a signup must use now.
func (c *Catalog) StrategyFor(t model.Table) model.Strategy {
	return t.Strategy(c.now(), c.windows.SetupLead)
}

// Upcoming lists tables with an event in the future, unlocked ones first.
func (c *Catalog) Upcoming(ctx context.Context, limit int) ([]model.Table, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	tables, err := c.stores.Tables.ListUpcomingTables(ctx, c.now(), limit)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tables, func(i, j int) bool { return !tables[i].IsLocked && tables[j].IsLocked })
	return tables, nil
}

// Get returns a single table.
func (c *Catalog) Get(ctx context.Context, id uint64) (model.Table, error) {
	t, err := c.stores.Tables.GetTable(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Table{}, ErrTableNotFound
	}
	return t, err
}

// NewTable is the input of Create.
type NewTable struct {
	Title      string
	TotalSpots uint32
	MinSpots   *uint32
	EventTime  time.Time
}

// Create validates and stores a new table.  A missing minimum defaults to
// the capacity.
func (c *Catalog) Create(ctx context.Context, in NewTable) (model.Table, error) {
	if in.EventTime.IsZero() {
		return model.Table{}, Invalid("missing event_time")
	}
	if !in.EventTime.After(c.now()) {
		return model.Table{}, Invalid("event_time must be in the future")
	}
	if in.MinSpots != nil && *in.MinSpots > in.TotalSpots {
		return model.Table{}, Invalid("min_spots must not exceed total_spots")
	}
	t := model.Table{
		Title:      strings.TrimSpace(in.Title),
		TotalSpots: in.TotalSpots,
		MinSpots:   in.MinSpots,
		EventTime:  in.EventTime.UTC(),
	}
	if t.MinSpots == nil {
		total := in.TotalSpots
		t.MinSpots = &total
	}
	id, err := c.stores.Tables.CreateTable(ctx, t)
	if err != nil {
		return model.Table{}, err
	}
	c.log.Info("table created", zap.Uint64("table_id", id), zap.Time("event_time", t.EventTime))
	c.stores.tablesChanged(ctx, c.log)
	return c.Get(ctx, id)
}

// Guest is a signed up user together with their latest hold.
type Guest struct {
	Signup model.Signup
	User   *model.User
	Hold   *model.CollateralHold
}

// Guests lists the table's signups and its waitlist.
func (c *Catalog) Guests(ctx context.Context, tableID uint64) ([]Guest, []model.WaitlistEntry, error) {
	if _, err := c.Get(ctx, tableID); err != nil {
		return nil, nil, err
	}
	signups, err := c.stores.Signups.SignupsForTable(ctx, tableID)
	if err != nil {
		return nil, nil, err
	}
	guests := make([]Guest, 0, len(signups))
	for _, s := range signups {
		g := Guest{Signup: s}
		if u, err := c.stores.Users.GetUser(ctx, s.UserID); err == nil {
			g.User = &u
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, nil, err
		}
		if h, err := c.stores.Holds.LatestHold(ctx, s.UserID, tableID); err == nil {
			g.Hold = &h
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, nil, err
		}
		guests = append(guests, g)
	}
	waitlist, err := c.stores.Waitlists.WaitlistForTable(ctx, tableID)
	if err != nil {
		return nil, nil, err
	}
	return guests, waitlist, nil
}

// UpdateProfile creates or updates the caller's profile.
func (c *Catalog) UpdateProfile(ctx context.Context, u model.User) (model.User, error) {
	u.FirstName = strings.TrimSpace(u.FirstName)
	u.PhoneNumber = strings.TrimSpace(u.PhoneNumber)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.ID == 0 {
		return model.User{}, Invalid("missing user id")
	}
	if u.FirstName == "" {
		return model.User{}, Invalid("first_name is required")
	}
	if u.Email != "" && !strings.Contains(u.Email, "@") {
		return model.User{}, Invalid("invalid email")
	}
	if err := c.stores.Users.UpsertProfile(ctx, u); err != nil {
		return model.User{}, err
	}
	return c.stores.Users.GetUser(ctx, u.ID)
}
