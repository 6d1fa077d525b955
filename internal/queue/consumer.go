package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one message body.  A returned error requeues the
// message unless it wraps ErrPoison.
type Handler func(ctx context.Context, body []byte) error

// ErrPoison marks a message that can never be handled, such as an
// undecodable body.  Poison messages are dropped instead of requeued.
var ErrPoison = errors.New("poison message")

// Consumer reads one durable queue and hands each delivery to a Handler.
type Consumer struct {
	url      string
	queue    string
	handler  Handler
	prefetch int
	log      *zap.Logger
}

func NewConsumer(url, queue string, handler Handler, log *zap.Logger) *Consumer {
	return &Consumer{url: url, queue: queue, handler: handler, prefetch: 50, log: log.With(zap.String("queue", queue))}
}

// nextBackoff doubles d up to a 30s ceiling.
func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Run connects, consumes and reconnects with exponential backoff until ctx
// is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.log.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	c.log.Info("consuming")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

// acknowledger is the part of amqp.Delivery used to settle a message.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	c.settle(ctx, d.Body, &d)
}

func (c *Consumer) settle(ctx context.Context, body []byte, ack acknowledger) {
	if err := c.handler(ctx, body); err != nil {
		requeue := !errors.Is(err, ErrPoison)
		c.log.Error("handle message failed", zap.Error(err), zap.Bool("requeue", requeue))
		_ = ack.Nack(false, requeue)
		return
	}
	_ = ack.Ack(false)
}
