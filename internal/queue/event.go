// Package queue carries background work over RabbitMQ: waitlist
// promotions dispatched after a leave and the admin notifications.
package queue

import "time"

// Queue names.  All are durable and use the default exchange.
const (
	PromotionQueue    = "table.promotion"
	SignupQueue       = "signup.created"
	TableRequestQueue = "table.requested"
)

// PromotionTask asks a worker to promote the head of a table's waitlist.
// TaskID is recorded with the promotion so redeliveries are ignored.
type PromotionTask struct {
	TaskID      string    `json:"task_id"`
	TableID     uint64    `json:"table_id"`
	RequestedAt time.Time `json:"requested_at"`
}
