package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/model"
)

// TableRequests forwards requests for new tables to the admins through
// the dispatcher.
type TableRequests struct {
	dispatch Dispatcher
	log      *zap.Logger
	now      func() time.Time
}

func NewTableRequests(dispatch Dispatcher, log *zap.Logger) *TableRequests {
	return &TableRequests{dispatch: dispatch, log: log, now: time.Now}
}

// Submit validates the request and publishes it.  Theme, neighborhood and
// age range are optional.
func (r *TableRequests) Submit(ctx context.Context, req model.TableRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Day = strings.TrimSpace(req.Day)
	req.Time = strings.TrimSpace(req.Time)
	req.Neighborhood = strings.TrimSpace(req.Neighborhood)
	req.AgeRange = strings.TrimSpace(req.AgeRange)
	req.Theme = strings.TrimSpace(req.Theme)

	switch {
	case req.UserID == 0:
		return Invalid("missing userId")
	case req.Name == "" || req.Phone == "":
		return Invalid("name and phone are required")
	case req.Day == "" || req.Time == "":
		return Invalid("preferred day and time are required")
	}
	req.RequestedAt = r.now().UTC()

	if err := r.dispatch.PublishTableRequest(ctx, req); err != nil {
		return wrap(ErrNotification, err)
	}
	r.log.Info("table request submitted", zap.Uint64("user_id", req.UserID), zap.String("day", req.Day))
	return nil
}
