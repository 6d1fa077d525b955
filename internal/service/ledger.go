package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/model"
	"github.com/supdinner/tables/internal/repository"
)

// Ledger is the table capacity ledger: joins and leaves against
// spots_filled.  Capacity checks happen inside the store transaction, so a
// table locked between a read and the join is still rejected.
type Ledger struct {
	stores   Stores
	dispatch Dispatcher
	metrics  *Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewLedger(stores Stores, dispatch Dispatcher, metrics *Metrics, log *zap.Logger) *Ledger {
	return &Ledger{stores: stores, dispatch: dispatch, metrics: metrics, log: log, now: time.Now}
}

func validIDs(tableID, userID uint64) error {
	if tableID == 0 || userID == 0 {
		return Invalid("missing tableId or userId")
	}
	return nil
}

// Join signs the user up for the table and takes one spot.
func (l *Ledger) Join(ctx context.Context, tableID, userID uint64) error {
	if err := validIDs(tableID, userID); err != nil {
		return err
	}
	u, err := l.stores.Users.GetUser(ctx, userID)
	switch {
	case err == nil:
		if u.SuspendedAt(l.now()) {
			return ErrUserSuspended
		}
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("load user %d: %w", userID, err)
	}

	if err := l.stores.Signups.AddSignup(ctx, userID, tableID); err != nil {
		return capacityError(err)
	}
	l.log.Info("signup created", zap.Uint64("user_id", userID), zap.Uint64("table_id", tableID))
	l.stores.tablesChanged(ctx, l.log)
	notifySignup(ctx, l.dispatch, l.metrics, l.log, model.SignupEvent{
		UserID: userID, TableID: tableID, Source: model.SourceJoin, CreatedAt: l.now().UTC(),
	})
	return nil
}

// Leave removes the user's signup, frees the spot and queues a promotion
// for the table.  A failed dispatch is logged and does not fail the leave.
func (l *Ledger) Leave(ctx context.Context, tableID, userID uint64) error {
	if err := validIDs(tableID, userID); err != nil {
		return err
	}
	if err := l.stores.Signups.RemoveSignup(ctx, userID, tableID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSignupNotFound
		}
		return capacityError(err)
	}
	l.log.Info("signup removed", zap.Uint64("user_id", userID), zap.Uint64("table_id", tableID))
	l.stores.tablesChanged(ctx, l.log)
	if err := l.dispatch.DispatchPromotion(ctx, tableID); err != nil {
		l.log.Warn("promotion dispatch failed", zap.Uint64("table_id", tableID), zap.Error(err))
	}
	return nil
}

// capacityError maps repository sentinels to domain errors.
func capacityError(err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return ErrAlreadySignedUp
	case errors.Is(err, repository.ErrTableLocked):
		return ErrTableLocked
	case errors.Is(err, repository.ErrTableFull):
		return ErrTableFull
	case errors.Is(err, repository.ErrTableNotFull):
		return ErrTableNotFull
	case errors.Is(err, repository.ErrWaitlisted):
		return ErrAlreadyWaitlisted
	case errors.Is(err, repository.ErrNotFound):
		return ErrTableNotFound
	}
	return err
}

func notifySignup(ctx context.Context, d Dispatcher, m *Metrics, log *zap.Logger, ev model.SignupEvent) {
	m.Signups.WithLabelValues(ev.Source).Inc()
	if err := d.PublishSignup(ctx, ev); err != nil {
		log.Warn("signup notification not published",
			zap.Uint64("user_id", ev.UserID), zap.Uint64("table_id", ev.TableID), zap.Error(err))
	}
}
