package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/model"
)

// Publisher publishes persistent JSON messages.  The connection is opened
// lazily and reopened after the broker drops it.
type Publisher struct {
	url string
	log *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("dial broker: %w", err)
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	for _, q := range []string{PromotionQueue, SignupQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("queue declare %s: %w", q, err)
		}
	}
	p.ch = ch
	return ch, nil
}

// Publish marshals v and sends it to queue.
func (p *Publisher) Publish(ctx context.Context, queue string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", queue, err)
	}
	return nil
}

// DispatchPromotion queues a promotion for the table under a fresh task id.
func (p *Publisher) DispatchPromotion(ctx context.Context, tableID uint64) error {
	task := PromotionTask{TaskID: uuid.NewString(), TableID: tableID, RequestedAt: time.Now().UTC()}
	if err := p.Publish(ctx, PromotionQueue, task); err != nil {
		return err
	}
	p.log.Debug("promotion dispatched", zap.String("task_id", task.TaskID), zap.Uint64("table_id", tableID))
	return nil
}

// PublishSignup announces a new signup.
func (p *Publisher) PublishSignup(ctx context.Context, ev model.SignupEvent) error {
	return p.Publish(ctx, SignupQueue, ev)
}

// PublishTableRequest forwards a request for a new table to the admins.
func (p *Publisher) PublishTableRequest(ctx context.Context, req model.TableRequest) error {
	return p.Publish(ctx, TableRequestQueue, req)
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
