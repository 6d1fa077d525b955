package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/config"
	"github.com/supdinner/tables/internal/handler"
	"github.com/supdinner/tables/internal/middleware"
	"github.com/supdinner/tables/internal/router"
)

func serveCmd() *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the maintenance scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run the periodic maintenance sweep in this process")
	return cmd
}

func runServe(noScheduler bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log

	rl, err := config.LoadRateLimitConfig()
	if err != nil {
		return err
	}

	svc := a.buildServices()
	if !noScheduler {
		if err := svc.scheduler.Start(a.cfg.MaintenanceSchedule); err != nil {
			return err
		}
		defer svc.scheduler.Stop()
	}
	if svc.local != nil {
		defer svc.local.Wait()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log.Named("http")))

	tables := handler.NewTableHandler(svc.catalog, log)
	router.Register(e, router.Handlers{
		Signups:  handler.NewSignupHandler(svc.ledger, svc.waitlist, log),
		Holds:    handler.NewHoldHandler(svc.holds, svc.recon, log),
		Tables:   tables,
		Requests: handler.NewRequestHandler(svc.requests, log),
		Admin:    handler.NewAdminHandler(tables, svc.scheduler, log),
		Webhook:  handler.NewWebhookHandler(svc.recon, log),
	}, router.Options{
		JWTSecret:   a.cfg.JWTSecret,
		CORSOrigins: a.cfg.CORSAllowedOrigins,
		RateLimit:   middleware.RateLimit(rl, a.rdb, log.Named("ratelimit")),
		Cache:       middleware.Cache(a.cache, a.rdb, log.Named("cache")),
		Metrics:     promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", ":"+a.cfg.Port), zap.String("env", a.cfg.Env))
		if err := e.Start(":" + a.cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
