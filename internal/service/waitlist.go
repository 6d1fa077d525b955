package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/model"
	"github.com/supdinner/tables/internal/repository"
)

// Waitlist is the per-table FIFO queue of users waiting for a spot.
type Waitlist struct {
	stores   Stores
	dispatch Dispatcher
	metrics  *Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewWaitlist(stores Stores, dispatch Dispatcher, metrics *Metrics, log *zap.Logger) *Waitlist {
	return &Waitlist{stores: stores, dispatch: dispatch, metrics: metrics, log: log, now: time.Now}
}

// Join queues the user.  Only full tables accept waitlist entries.
func (w *Waitlist) Join(ctx context.Context, tableID, userID uint64) error {
	if err := validIDs(tableID, userID); err != nil {
		return err
	}
	if err := w.stores.Waitlists.AddWaitlistEntry(ctx, userID, tableID); err != nil {
		return capacityError(err)
	}
	w.log.Info("waitlist joined", zap.Uint64("user_id", userID), zap.Uint64("table_id", tableID))
	return nil
}

// Leave removes the user's entry.  Leaving a waitlist one is not on is a
// no-op.
func (w *Waitlist) Leave(ctx context.Context, tableID, userID uint64) error {
	if err := validIDs(tableID, userID); err != nil {
		return err
	}
	return w.stores.Waitlists.RemoveWaitlistEntry(ctx, userID, tableID)
}

// Entries returns the table's queue, oldest first.
func (w *Waitlist) Entries(ctx context.Context, tableID uint64) ([]model.WaitlistEntry, error) {
	return w.stores.Waitlists.WaitlistForTable(ctx, tableID)
}

// PromoteNext moves the oldest waiting user into a signup on tableID.
// taskID makes the call idempotent: a task that was already applied
// returns an empty result.  An empty taskID generates a fresh one.
// Promotion does not cascade into a table the promoted user vacated.
func (w *Waitlist) PromoteNext(ctx context.Context, taskID string, tableID uint64) (repository.PromotionResult, error) {
	if taskID == "" {
		taskID = uuid.NewString()
	}
	res, err := w.stores.Waitlists.Promote(ctx, taskID, tableID)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		w.log.Info("promotion task already applied", zap.String("task_id", taskID), zap.Uint64("table_id", tableID))
		return repository.PromotionResult{}, nil
	case errors.Is(err, repository.ErrNotFound):
		return repository.PromotionResult{}, ErrTableNotFound
	case err != nil:
		return repository.PromotionResult{}, err
	}
	if !res.Promoted {
		w.log.Debug("nothing to promote", zap.Uint64("table_id", tableID))
		return res, nil
	}

	w.metrics.Promotions.Inc()
	fields := []zap.Field{zap.String("task_id", taskID), zap.Uint64("table_id", tableID), zap.Uint64("user_id", res.UserID)}
	if res.VacatedTableID != 0 {
		fields = append(fields, zap.Uint64("vacated_table_id", res.VacatedTableID))
	}
	w.log.Info("waitlist promotion", fields...)
	w.stores.tablesChanged(ctx, w.log)
	notifySignup(ctx, w.dispatch, w.metrics, w.log, model.SignupEvent{
		UserID: res.UserID, TableID: tableID, Source: model.SourcePromotion, CreatedAt: w.now().UTC(),
	})
	return res, nil
}
