package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/model"
	"github.com/supdinner/tables/internal/repository"
)

// Promoter runs a waitlist promotion.  Implemented by service.Waitlist.
type Promoter interface {
	PromoteNext(ctx context.Context, taskID string, tableID uint64) (repository.PromotionResult, error)
}

// PromotionHandler decodes PromotionTask messages and runs them.
func PromotionHandler(p Promoter) Handler {
	return func(ctx context.Context, body []byte) error {
		var task PromotionTask
		if err := json.Unmarshal(body, &task); err != nil {
			return fmt.Errorf("%w: unmarshal: %v", ErrPoison, err)
		}
		if task.TaskID == "" || task.TableID == 0 {
			return fmt.Errorf("%w: promotion task without task_id or table_id", ErrPoison)
		}
		_, err := p.PromoteNext(ctx, task.TaskID, task.TableID)
		return err
	}
}

// Mailer delivers signup notifications and table requests.
type Mailer interface {
	SignupCreated(ctx context.Context, ev model.SignupEvent) error
	TableRequested(ctx context.Context, req model.TableRequest) error
}

// LogMailer writes each notification as a structured log line.
type LogMailer struct {
	Log *zap.Logger
}

func (m LogMailer) SignupCreated(_ context.Context, ev model.SignupEvent) error {
	m.Log.Info("signup confirmed",
		zap.Uint64("user_id", ev.UserID),
		zap.Uint64("table_id", ev.TableID),
		zap.String("source", ev.Source),
		zap.Time("created_at", ev.CreatedAt))
	return nil
}

func (m LogMailer) TableRequested(_ context.Context, req model.TableRequest) error {
	m.Log.Info("new table request",
		zap.Uint64("user_id", req.UserID),
		zap.String("name", req.Name),
		zap.String("phone", req.Phone),
		zap.String("day", req.Day),
		zap.String("time", req.Time),
		zap.String("neighborhood", req.Neighborhood),
		zap.String("age_range", req.AgeRange),
		zap.String("theme", req.Theme))
	return nil
}

// TableRequestHandler decodes table requests and passes them to the mailer.
func TableRequestHandler(m Mailer) Handler {
	return func(ctx context.Context, body []byte) error {
		var req model.TableRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return fmt.Errorf("%w: unmarshal: %v", ErrPoison, err)
		}
		return m.TableRequested(ctx, req)
	}
}

// SignupHandler decodes signup events and passes them to the mailer.
func SignupHandler(m Mailer) Handler {
	return func(ctx context.Context, body []byte) error {
		var ev model.SignupEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("%w: unmarshal: %v", ErrPoison, err)
		}
		return m.SignupCreated(ctx, ev)
	}
}
