package model

import "time"

// TableRequest asks the organisers to open a new table.  It is forwarded
// to the admins and never stored.
type TableRequest struct {
	UserID       uint64    `json:"user_id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Day          string    `json:"day"`
	Time         string    `json:"time"`
	Neighborhood string    `json:"neighborhood"`
	AgeRange     string    `json:"age_range"`
	Theme        string    `json:"theme,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
}
