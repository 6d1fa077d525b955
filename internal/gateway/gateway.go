// Package gateway is the payment gateway capability used by the collateral
// services.  Services depend on the Gateway interface; Stripe is the
// production implementation.
package gateway

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/supdinner/tables/internal/model"
)

// ErrInvalidSignature is returned by ParseWebhook when the payload was not
// signed with the configured secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Metadata keys attached to every intent so that confirmations can be
// resolved without a hold lookup.
const (
	MetaUserID   = "userId"
	MetaTableID  = "tableId"
	MetaStrategy = "strategy"
)

// Intent status values reported by the gateway.
const (
	StatusRequiresAction = "requires_action"
	StatusCanceled       = "canceled"
	StatusSucceeded      = "succeeded"
)

// IntentType distinguishes payment intents (holds) from setup intents.
type IntentType string

const (
	IntentPayment IntentType = "payment"
	IntentSetup   IntentType = "setup"
)

// IntentTypeFromID infers the intent type from the id prefix.
func IntentTypeFromID(id string) IntentType {
	switch {
	case strings.HasPrefix(id, "pi_"):
		return IntentPayment
	case strings.HasPrefix(id, "si_"), strings.HasPrefix(id, "seti_"):
		return IntentSetup
	}
	return ""
}

// IntentIDFromSecret extracts the intent id from a client secret of the
// form "<id>_secret_<random>".
func IntentIDFromSecret(secret string) string {
	if i := strings.Index(secret, "_secret_"); i > 0 {
		return secret[:i]
	}
	return ""
}

// Intent is the gateway view of a payment or setup intent.
type Intent struct {
	ID              string
	ClientSecret    string
	Status          string
	PaymentMethodID string
	Metadata        map[string]string
}

// RequiresAction reports whether the customer has to authenticate before
// the hold can be placed.
func (i Intent) RequiresAction() bool { return i.Status == StatusRequiresAction }

// MetaID parses a numeric metadata value, returning 0 if absent.
func (i Intent) MetaID(key string) uint64 {
	v, err := strconv.ParseUint(i.Metadata[key], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// CustomerRequest describes a gateway customer to create.
type CustomerRequest struct {
	UserID uint64
	Name   string
	Phone  string
	Email  string
}

// HoldRequest describes a manually captured hold.
type HoldRequest struct {
	CustomerID      string
	AmountCents     int64
	UserID          uint64
	TableID         uint64
	Strategy        model.Strategy
	PaymentMethodID string // required when OffSession is set
	OffSession      bool
	IdempotencyKey  string
}

// SetupRequest describes a setup intent storing a card for later holds.
type SetupRequest struct {
	CustomerID     string
	UserID         uint64
	TableID        uint64
	IdempotencyKey string
}

// EventKind classifies webhook events the reconciler acts on.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventSetupSucceeded
	EventHoldCapturable
	EventCaptureSucceeded
	EventHoldCanceled
	EventHoldFailed
	EventRefunded
)

// Event is a verified webhook event reduced to what reconciliation needs.
type Event struct {
	ID              string
	Type            string
	Kind            EventKind
	IntentID        string
	PaymentMethodID string
	FailureMessage  string
}

// Gateway is the payment processor capability.
type Gateway interface {
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	DeleteCustomer(ctx context.Context, customerID string) error
	// DefaultPaymentMethod returns "" when the customer has none stored.
	DefaultPaymentMethod(ctx context.Context, customerID string) (string, error)
	CreateHold(ctx context.Context, req HoldRequest) (Intent, error)
	CreateSetup(ctx context.Context, req SetupRequest) (Intent, error)
	CancelHold(ctx context.Context, intentID string) error
	GetPaymentIntent(ctx context.Context, intentID string) (Intent, error)
	GetSetupIntent(ctx context.Context, intentID string) (Intent, error)
	ParseWebhook(payload []byte, signature string) (Event, error)
}
