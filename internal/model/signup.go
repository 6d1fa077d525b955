package model

import "time"

// Signup is a user's seat at a table.  A user holds at most one
// signup at a time; the signups table enforces this with a unique
// key on user_id.
type Signup struct {
	ID        uint64    // signups.id
	UserID    uint64    // signups.user_id
	TableID   uint64    // signups.table_id
	CreatedAt time.Time // signups.created_at
}

// WaitlistEntry queues a user for a full table.  Entries are served
// oldest first; ties on CreatedAt fall back to the insertion order (ID).
type WaitlistEntry struct {
	ID        uint64    // waitlists.id
	UserID    uint64    // waitlists.user_id
	TableID   uint64    // waitlists.table_id
	CreatedAt time.Time // waitlists.created_at
}

// SignupEvent announces a newly created signup to background consumers.
type SignupEvent struct {
	UserID    uint64    `json:"user_id"`
	TableID   uint64    `json:"table_id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Signup sources carried by SignupEvent.
const (
	SourceJoin      = "join"
	SourcePromotion = "promotion"
	SourceWebhook   = "webhook"
	SourceConfirm   = "confirm"
)
