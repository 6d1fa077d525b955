package model

import "time"

// Strategy selects how collateral is collected for a signup.
type Strategy string

const (
	// StrategyManualHold places a manually captured hold at signup time.
	StrategyManualHold Strategy = "manual_hold"
	// StrategySetupThenHold stores a payment method now and places the
	// hold close to the event.
	StrategySetupThenHold Strategy = "setup_then_hold"
)

// HoldStatus is the lifecycle state of a collateral hold.
type HoldStatus string

const (
	HoldNone           HoldStatus = "none"
	HoldPending        HoldStatus = "hold_pending"
	HoldAuthorized     HoldStatus = "hold_authorized"
	HoldCaptured       HoldStatus = "captured"
	HoldFailed         HoldStatus = "hold_failed"
	HoldReleased       HoldStatus = "released"
	HoldCancelled      HoldStatus = "hold_released"
	HoldRefunded       HoldStatus = "refunded"
	HoldSetupConfirmed HoldStatus = "setup_confirmed"
	HoldActive         HoldStatus = "hold_active"
)

// holdTransitions lists the statuses reachable from each status.
// Writing the current status again is always allowed so that
// redelivered gateway events stay harmless.  A failed hold can still be
// authorized when the user retries the same intent with another card.
var holdTransitions = map[HoldStatus][]HoldStatus{
	HoldNone:           {HoldPending, HoldSetupConfirmed, HoldActive, HoldFailed},
	HoldPending:        {HoldAuthorized, HoldFailed, HoldReleased, HoldCancelled},
	HoldAuthorized:     {HoldCaptured, HoldReleased, HoldCancelled, HoldRefunded},
	HoldSetupConfirmed: {HoldActive, HoldFailed},
	HoldActive:         {HoldAuthorized, HoldCaptured, HoldFailed, HoldReleased, HoldCancelled, HoldRefunded},
	HoldCaptured:       {HoldRefunded},
	HoldFailed:         {HoldAuthorized, HoldActive, HoldReleased, HoldCancelled},
	HoldCancelled:      {HoldReleased},
}

// CanTransition reports whether a hold may move from one status to another.
func CanTransition(from, to HoldStatus) bool {
	if from == to {
		return true
	}
	for _, s := range holdTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CollateralHold records collateral requested from a user for a table.
// Several rows may exist for the same user and table; only the row
// with the highest ID is authoritative, older rows are history.
//
// Fields:
//
//	ID               – primary key, defines creation order.
//	UserID           – user the collateral belongs to.
//	TableID          – table the collateral guarantees.
//	CollateralCents  – amount in cents, always positive.
//	Strategy         – manual_hold or setup_then_hold.
//	Status           – lifecycle state.
//	PaymentIntentID  – gateway hold reference (nullable).
//	SetupIntentID    – gateway setup reference (nullable).
//	PaymentMethodRef – payment method used for the hold (nullable).
//	ErrorMessage     – last failure reported by the gateway (nullable).
type CollateralHold struct {
	ID               uint64     // collateral_holds.id
	UserID           uint64     // collateral_holds.user_id
	TableID          uint64     // collateral_holds.table_id
	CollateralCents  int64      // collateral_holds.collateral_cents
	Strategy         Strategy   // collateral_holds.strategy
	Status           HoldStatus // collateral_holds.status
	PaymentIntentID  string     // collateral_holds.payment_intent_id
	SetupIntentID    string     // collateral_holds.setup_intent_id
	PaymentMethodRef string     // collateral_holds.payment_method_ref
	ErrorMessage     string     // collateral_holds.error_message
	CreatedAt        time.Time  // collateral_holds.created_at
	UpdatedAt        time.Time  // collateral_holds.updated_at
}

// HoldUpdate is a status overwrite applied to an existing hold.  Empty
// optional fields leave the stored value untouched.
type HoldUpdate struct {
	Status           HoldStatus
	PaymentMethodRef string
	ErrorMessage     string
}
