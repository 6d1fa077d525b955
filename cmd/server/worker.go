package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/queue"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume waitlist promotions and admin notifications from RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

func runWorker() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	if a.cfg.RabbitMQURL == "" {
		return errors.New("worker needs RABBITMQ_URL")
	}
	svc := a.buildServices()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mailer := queue.LogMailer{Log: a.log.Named("mailer")}
	consumers := []*queue.Consumer{
		queue.NewConsumer(a.cfg.RabbitMQURL, queue.PromotionQueue, queue.PromotionHandler(svc.waitlist), a.log.Named("promotion")),
		queue.NewConsumer(a.cfg.RabbitMQURL, queue.SignupQueue, queue.SignupHandler(mailer), a.log.Named("signup")),
		queue.NewConsumer(a.cfg.RabbitMQURL, queue.TableRequestQueue, queue.TableRequestHandler(mailer), a.log.Named("table-request")),
	}
	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func(c *queue.Consumer) {
			defer wg.Done()
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("consumer stopped", zap.Error(err))
				stop()
			}
		}(c)
	}
	a.log.Info("worker started")
	wg.Wait()
	return nil
}
