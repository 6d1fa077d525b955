package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/config"
	"github.com/supdinner/tables/internal/database"
	"github.com/supdinner/tables/internal/gateway"
	"github.com/supdinner/tables/internal/logger"
	"github.com/supdinner/tables/internal/middleware"
	"github.com/supdinner/tables/internal/queue"
	"github.com/supdinner/tables/internal/repository"
	"github.com/supdinner/tables/internal/service"
)

// maintenanceLockTTL bounds how long a crashed sweeper keeps the lock.
const maintenanceLockTTL = 10 * time.Minute

// app holds the process-wide dependencies shared by the commands.
type app struct {
	cfg   config.Config
	log   *zap.Logger
	db    *sql.DB
	rdb   *redis.Client
	cache config.CacheConfig
	reg   *prometheus.Registry

	metrics *service.Metrics
	stores  service.Stores
	gw      gateway.Gateway

	closers []func()
}

// newApp loads the configuration and opens the database.  Redis is
// optional: without it the sweep runs unlocked and the rate limiter and
// cache are disabled.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func() { _ = db.Close() })

	rc, err := config.LoadRedisConfig()
	if err != nil {
		a.close()
		return nil, err
	}
	if a.rdb = config.NewRedisClient(rc); a.rdb == nil {
		log.Warn("redis unreachable, running without sweep lock, rate limit and cache", zap.String("addr", rc.Address()))
	} else {
		rdb := a.rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}

	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = service.NewMetrics(a.reg)
	a.stores = service.NewStores(
		repository.NewTableRepo(db),
		repository.NewSignupRepo(db),
		repository.NewWaitlistRepo(db),
		repository.NewHoldRepo(db),
		repository.NewUserRepo(db),
	)
	if a.cache, err = config.LoadCacheConfig(); err != nil {
		a.close()
		return nil, err
	}
	if a.rdb != nil && a.cache.Enabled {
		a.stores.Cache = middleware.NewCacheInvalidator(a.cache, a.rdb)
	}
	a.gw = gateway.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.Currency, nil)
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// services is the wired domain layer.
type services struct {
	ledger    *service.Ledger
	waitlist  *service.Waitlist
	holds     *service.HoldManager
	recon     *service.Reconciler
	catalog   *service.Catalog
	requests  *service.TableRequests
	scheduler *service.Scheduler

	local *service.LocalDispatcher // set when no broker is configured
}

// buildServices wires the services against RabbitMQ when a broker URL is
// configured and against in-process promotion otherwise.
func (a *app) buildServices() *services {
	var (
		dispatch service.Dispatcher
		local    *service.LocalDispatcher
	)
	if a.cfg.RabbitMQURL != "" {
		pub := queue.NewPublisher(a.cfg.RabbitMQURL, a.log.Named("publisher"))
		a.closers = append(a.closers, func() { _ = pub.Close() })
		dispatch = pub
	} else {
		local = service.NewLocalDispatcher(a.log.Named("dispatch"))
		dispatch = local
	}

	s := &services{local: local}
	s.ledger = service.NewLedger(a.stores, dispatch, a.metrics, a.log.Named("ledger"))
	s.waitlist = service.NewWaitlist(a.stores, dispatch, a.metrics, a.log.Named("waitlist"))
	s.holds = service.NewHoldManager(a.stores, a.gw, a.cfg.Windows, a.metrics, a.log.Named("holds"))
	s.recon = service.NewReconciler(a.stores, a.gw, dispatch, a.metrics, a.log.Named("reconciler"))
	s.catalog = service.NewCatalog(a.stores, a.cfg.Windows, a.log.Named("catalog"))
	s.requests = service.NewTableRequests(dispatch, a.log.Named("requests"))

	maint := service.NewMaintenance(a.stores, s.holds, a.cfg.Windows, a.metrics, a.log.Named("maintenance"))
	var locker service.Locker
	if a.rdb != nil {
		locker = service.NewRedisLocker(a.rdb)
	}
	s.scheduler = service.NewScheduler(maint, locker, maintenanceLockTTL, a.log.Named("scheduler"))

	if local != nil {
		local.Bind(s.waitlist)
	}
	return s
}
