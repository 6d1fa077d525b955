package model

import "time"

// Table represents a scheduled group dinner with a fixed number of
// seats.  Capacity is tracked through SpotsFilled which is only
// changed by the capacity ledger (join/leave), by explicit waitlist
// promotion and by the maintenance sweep.
//
// Fields:
//
//	ID          – primary key identifier.
//	Title       – display name (neighborhood, restaurant, ...).
//	TotalSpots  – capacity of the table.
//	MinSpots    – minimum signups needed to confirm; nil means TotalSpots.
//	SpotsFilled – number of seats counted as taken.
//	IsLocked    – true once the table entered the lock window.
//	IsCancelled – true when the table was locked while under its minimum.
//	EventTime   – when the dinner starts.
//	CreatedAt   – creation timestamp.
type Table struct {
	ID          uint64    // tables.id
	Title       string    // tables.title
	TotalSpots  uint32    // tables.total_spots
	MinSpots    *uint32   // tables.min_spots (nullable)
	SpotsFilled uint32    // tables.spots_filled
	IsLocked    bool      // tables.is_locked
	IsCancelled bool      // tables.is_cancelled
	EventTime   time.Time // tables.event_time
	CreatedAt   time.Time // tables.created_at
}

// RequiredSpots returns the number of signups a table needs to go
// ahead.  A missing minimum requires a full table.
func (t Table) RequiredSpots() uint32 {
	if t.MinSpots != nil {
		return *t.MinSpots
	}
	return t.TotalSpots
}

// IsFull reports whether every seat is counted as filled.
func (t Table) IsFull() bool { return t.SpotsFilled >= t.TotalSpots }

// Strategy returns the collateral strategy a signup made at now must
// use: a hold placed right away when the event is within lead, a
// stored payment method and a later hold otherwise.
func (t Table) Strategy(now time.Time, lead time.Duration) Strategy {
	if t.EventTime.Sub(now) > lead {
		return StrategySetupThenHold
	}
	return StrategyManualHold
}
