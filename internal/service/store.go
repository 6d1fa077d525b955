package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/model"
	"github.com/supdinner/tables/internal/repository"
)

// TableStore persists tables.  Implemented by repository.TableRepo.
type TableStore interface {
	GetTable(ctx context.Context, id uint64) (model.Table, error)
	CreateTable(ctx context.Context, t model.Table) (uint64, error)
	ListUpcomingTables(ctx context.Context, now time.Time, limit int) ([]model.Table, error)
	LockCandidates(ctx context.Context, from, to time.Time) ([]model.Table, error)
	SetLockState(ctx context.Context, id uint64, cancelled bool) (bool, error)
	DayOfTables(ctx context.Context, from, to time.Time) ([]model.Table, error)
	ExpiredTableIDs(ctx context.Context, before time.Time) ([]uint64, error)
	DeleteTables(ctx context.Context, ids []uint64) (int64, error)
}

// SignupStore persists signups together with the capacity counter.
type SignupStore interface {
	SignupForUser(ctx context.Context, userID uint64) (model.Signup, error)
	AddSignup(ctx context.Context, userID, tableID uint64) error
	RemoveSignup(ctx context.Context, userID, tableID uint64) error
	UpsertSignup(ctx context.Context, userID, tableID uint64) (bool, error)
	SignupsForTable(ctx context.Context, tableID uint64) ([]model.Signup, error)
	DeleteSignupsForTables(ctx context.Context, ids []uint64) (int64, error)
}

// WaitlistStore persists waitlist queues and runs promotions.
type WaitlistStore interface {
	AddWaitlistEntry(ctx context.Context, userID, tableID uint64) error
	RemoveWaitlistEntry(ctx context.Context, userID, tableID uint64) error
	WaitlistForTable(ctx context.Context, tableID uint64) ([]model.WaitlistEntry, error)
	Promote(ctx context.Context, taskID string, tableID uint64) (repository.PromotionResult, error)
	DeleteWaitlistsForTables(ctx context.Context, ids []uint64) (int64, error)
	DeletePromotionTasksForTables(ctx context.Context, ids []uint64) (int64, error)
}

// HoldStore persists collateral holds.
type HoldStore interface {
	CreateHold(ctx context.Context, h model.CollateralHold) (uint64, error)
	LatestHold(ctx context.Context, userID, tableID uint64) (model.CollateralHold, error)
	HoldByPaymentIntent(ctx context.Context, intentID string) (model.CollateralHold, error)
	HoldBySetupIntent(ctx context.Context, intentID string) (model.CollateralHold, error)
	UpdateHold(ctx context.Context, id uint64, from model.HoldStatus, upd model.HoldUpdate) (bool, error)
	DeleteHoldsForTables(ctx context.Context, ids []uint64) (int64, error)
}

// UserStore persists user profiles and their gateway customer reference.
type UserStore interface {
	GetUser(ctx context.Context, id uint64) (model.User, error)
	SetGatewayCustomer(ctx context.Context, userID uint64, customerID string) (string, error)
	UpsertProfile(ctx context.Context, u model.User) error
}

// Dispatcher hands work to background consumers.  Implementations must
// not block on the work itself.
type Dispatcher interface {
	DispatchPromotion(ctx context.Context, tableID uint64) error
	PublishSignup(ctx context.Context, ev model.SignupEvent) error
	PublishTableRequest(ctx context.Context, req model.TableRequest) error
}

// CacheInvalidator drops cached table reads.  Implemented by
// middleware.CacheInvalidator.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Stores groups every store a service may need.  Cache is optional.
type Stores struct {
	Tables    TableStore
	Signups   SignupStore
	Waitlists WaitlistStore
	Holds     HoldStore
	Users     UserStore
	Cache     CacheInvalidator
}

// tablesChanged drops cached table reads after spots_filled or lock state
// changed.  A failure leaves reads stale until the cache TTL expires.
func (s Stores) tablesChanged(ctx context.Context, log *zap.Logger) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx); err != nil {
		log.Warn("table cache invalidation failed", zap.Error(err))
	}
}

// NewStores wires the MySQL repositories.
func NewStores(tables *repository.TableRepo, signups *repository.SignupRepo, waitlists *repository.WaitlistRepo,
	holds *repository.HoldRepo, users *repository.UserRepo) Stores {
	return Stores{Tables: tables, Signups: signups, Waitlists: waitlists, Holds: holds, Users: users}
}
