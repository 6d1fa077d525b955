package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/config"
	"github.com/supdinner/tables/internal/model"
	"github.com/supdinner/tables/internal/repository"
)

// Summary is the result of one maintenance sweep.
type Summary struct {
	LockedUpdated  int    `json:"locked_updated"`
	HoldsPlaced    int    `json:"holds_placed"`
	CleanupMessage string `json:"cleanup_message"`
}

// Maintenance runs the periodic sweep: lock tables close to their event,
// place deferred day-of holds and purge finished tables.  Every pass is
// best effort; a failing table or signup is logged and skipped.
type Maintenance struct {
	stores  Stores
	holds   *HoldManager
	windows config.Windows
	metrics *Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewMaintenance(stores Stores, holds *HoldManager, windows config.Windows, metrics *Metrics, log *zap.Logger) *Maintenance {
	return &Maintenance{stores: stores, holds: holds, windows: windows, metrics: metrics, log: log, now: time.Now}
}

// Run executes the three passes in order.
func (m *Maintenance) Run(ctx context.Context) Summary {
	start := time.Now()
	now := m.now()
	s := Summary{
		LockedUpdated: m.lockPass(ctx, now),
		HoldsPlaced:   m.dayOfPass(ctx, now),
	}
	s.CleanupMessage = m.purgePass(ctx, now)

	m.metrics.MaintenanceTiming.Observe(time.Since(start).Seconds())
	m.metrics.MaintenanceRuns.WithLabelValues("completed").Inc()
	m.log.Info("maintenance finished",
		zap.Int("locked_updated", s.LockedUpdated),
		zap.Int("holds_placed", s.HoldsPlaced),
		zap.String("cleanup", s.CleanupMessage))
	return s
}

// lockPass locks every unlocked table whose event falls inside the lock
// window and cancels those below their minimum.
func (m *Maintenance) lockPass(ctx context.Context, now time.Time) int {
	tables, err := m.stores.Tables.LockCandidates(ctx, now, now.Add(m.windows.Lock))
	if err != nil {
		m.log.Error("lock pass: list tables", zap.Error(err))
		return 0
	}
	updated := 0
	for _, t := range tables {
		cancelled := t.SpotsFilled < t.RequiredSpots()
		ok, err := m.stores.Tables.SetLockState(ctx, t.ID, cancelled)
		if err != nil {
			m.log.Error("lock pass: update table", zap.Uint64("table_id", t.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		updated++
		outcome := "confirmed"
		if cancelled {
			outcome = "cancelled"
		}
		m.metrics.TablesLocked.WithLabelValues(outcome).Inc()
		m.log.Info("table locked",
			zap.Uint64("table_id", t.ID),
			zap.Uint32("spots_filled", t.SpotsFilled),
			zap.Uint32("required", t.RequiredSpots()),
			zap.Bool("cancelled", cancelled))
	}
	if updated > 0 {
		m.stores.tablesChanged(ctx, m.log)
	}
	return updated
}

// dayOfPass places the deferred holds of every signup on confirmed tables
// inside the day-of window.  It returns the number of holds that became
// active.
func (m *Maintenance) dayOfPass(ctx context.Context, now time.Time) int {
	tables, err := m.stores.Tables.DayOfTables(ctx, now, now.Add(m.windows.DayOf))
	if err != nil {
		m.log.Error("day-of pass: list tables", zap.Error(err))
		return 0
	}
	placed := 0
	for _, t := range tables {
		signups, err := m.stores.Signups.SignupsForTable(ctx, t.ID)
		if err != nil {
			m.log.Error("day-of pass: list signups", zap.Uint64("table_id", t.ID), zap.Error(err))
			continue
		}
		for _, s := range signups {
			if m.placeForSignup(ctx, s) {
				placed++
			}
		}
	}
	return placed
}

func (m *Maintenance) placeForSignup(ctx context.Context, s model.Signup) bool {
	log := m.log.With(zap.Uint64("user_id", s.UserID), zap.Uint64("table_id", s.TableID))
	prior, err := m.stores.Holds.LatestHold(ctx, s.UserID, s.TableID)
	if errors.Is(err, repository.ErrNotFound) {
		return false
	}
	if err != nil {
		log.Error("day-of pass: load hold", zap.Error(err))
		return false
	}
	if !deferrable(prior) {
		return false
	}
	res, err := m.holds.placeFromPrior(ctx, prior, prior.CollateralCents)
	if err != nil {
		log.Warn("day-of pass: hold not placed", zap.Uint64("hold_id", prior.ID), zap.Error(err))
		return false
	}
	if res.HoldStatus != model.HoldActive {
		log.Warn("day-of pass: hold requires action", zap.String("payment_intent_id", res.PaymentIntentID))
		return false
	}
	return true
}

// purgePass deletes every record of tables whose event ended more than
// the retention window ago.  Stages run in dependency order; a failed
// stage is logged and the next one still runs.
func (m *Maintenance) purgePass(ctx context.Context, now time.Time) string {
	ids, err := m.stores.Tables.ExpiredTableIDs(ctx, now.Add(-m.windows.Retention))
	if err != nil {
		m.log.Error("purge pass: list tables", zap.Error(err))
		return "cleanup skipped: " + err.Error()
	}
	if len(ids) == 0 {
		return "no expired tables"
	}

	stages := []struct {
		name string
		fn   func(context.Context, []uint64) (int64, error)
	}{
		{"signups", m.stores.Signups.DeleteSignupsForTables},
		{"waitlists", m.stores.Waitlists.DeleteWaitlistsForTables},
		{"holds", m.stores.Holds.DeleteHoldsForTables},
		{"promotion_tasks", m.stores.Waitlists.DeletePromotionTasksForTables},
		{"tables", m.stores.Tables.DeleteTables},
	}
	var (
		counts = make([]int64, len(stages))
		failed []string
	)
	for i, st := range stages {
		n, err := st.fn(ctx, ids)
		if err != nil {
			m.log.Error("purge pass: stage failed", zap.String("stage", st.name), zap.Error(err))
			failed = append(failed, st.name)
			continue
		}
		counts[i] = n
	}
	if counts[4] > 0 {
		m.stores.tablesChanged(ctx, m.log)
	}
	msg := fmt.Sprintf("purged %d tables, %d signups, %d waitlist entries, %d holds",
		counts[4], counts[0], counts[1], counts[2])
	if len(failed) > 0 {
		msg += fmt.Sprintf(" (failed stages: %v)", failed)
	}
	return msg
}
