package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Locker is a cross-instance mutual exclusion primitive.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLocker implements Locker with SET NX.  Each instance writes its own
// token and only deletes the key while it still holds that token.
type RedisLocker struct {
	client *redis.Client
	token  string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, token: uuid.NewString()}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, "lock:"+key, l.token, ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, l.client, []string{"lock:" + key}, l.token).Err()
}

// MaintenanceLockKey guards the sweep across instances.
const MaintenanceLockKey = "cron:maintenance"

// Scheduler runs the maintenance sweep on a cron schedule.  When a locker
// is configured only one instance sweeps at a time.
type Scheduler struct {
	cron    *cron.Cron
	maint   *Maintenance
	locker  Locker
	lockTTL time.Duration
	log     *zap.Logger
}

// NewScheduler builds a scheduler.  locker may be nil for single-instance
// deployments.
func NewScheduler(maint *Maintenance, locker Locker, lockTTL time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{cron: cron.New(), maint: maint, locker: locker, lockTTL: lockTTL, log: log}
}

// Start registers the sweep on the given cron schedule and starts the cron loop.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("maintenance scheduler started", zap.String("schedule", schedule))
	return nil
}

// Stop stops the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("maintenance scheduler stopped")
}

// RunOnce runs a single sweep under the lock.  It reports false when
// another instance holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, bool) {
	if s.locker != nil {
		ok, err := s.locker.Acquire(ctx, MaintenanceLockKey, s.lockTTL)
		if err != nil {
			s.log.Warn("maintenance lock unavailable", zap.Error(err))
			return Summary{}, false
		}
		if !ok {
			s.log.Debug("maintenance already running elsewhere")
			s.maint.metrics.MaintenanceRuns.WithLabelValues("skipped").Inc()
			return Summary{}, false
		}
		defer func() {
			if err := s.locker.Release(context.Background(), MaintenanceLockKey); err != nil {
				s.log.Warn("maintenance lock release", zap.Error(err))
			}
		}()
	}
	return s.maint.Run(ctx), true
}
