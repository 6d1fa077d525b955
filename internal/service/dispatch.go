package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/model"
)

// LocalDispatcher runs promotions in background goroutines of the current
// process.  It serves deployments without a message broker; Wait blocks
// until dispatched work has finished.
type LocalDispatcher struct {
	waitlist *Waitlist
	timeout  time.Duration
	log      *zap.Logger
	wg       sync.WaitGroup
}

func NewLocalDispatcher(log *zap.Logger) *LocalDispatcher {
	return &LocalDispatcher{timeout: 30 * time.Second, log: log}
}

// Bind sets the waitlist promotions run against.  The waitlist itself
// needs a dispatcher, so the two are wired after construction.
func (d *LocalDispatcher) Bind(w *Waitlist) { d.waitlist = w }

func (d *LocalDispatcher) DispatchPromotion(_ context.Context, tableID uint64) error {
	taskID := uuid.NewString()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if _, err := d.waitlist.PromoteNext(ctx, taskID, tableID); err != nil {
			d.log.Error("promotion failed", zap.String("task_id", taskID), zap.Uint64("table_id", tableID), zap.Error(err))
		}
	}()
	return nil
}

func (d *LocalDispatcher) PublishSignup(_ context.Context, ev model.SignupEvent) error {
	d.log.Info("signup notification",
		zap.Uint64("user_id", ev.UserID), zap.Uint64("table_id", ev.TableID), zap.String("source", ev.Source))
	return nil
}

func (d *LocalDispatcher) PublishTableRequest(_ context.Context, req model.TableRequest) error {
	d.log.Info("table request",
		zap.Uint64("user_id", req.UserID), zap.String("name", req.Name), zap.String("phone", req.Phone),
		zap.String("day", req.Day), zap.String("time", req.Time), zap.String("neighborhood", req.Neighborhood))
	return nil
}

// Wait blocks until all dispatched promotions have returned.
func (d *LocalDispatcher) Wait() { d.wg.Wait() }
