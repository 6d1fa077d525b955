package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/gateway"
	"github.com/supdinner/tables/internal/model"
	"github.com/supdinner/tables/internal/repository"
)

// Reconciler applies verified payment gateway events to holds and
// signups.  Every effect is a status overwrite or an ignore-duplicate
// insert, so redelivered events leave the same final state.
type Reconciler struct {
	stores   Stores
	gw       gateway.Gateway
	dispatch Dispatcher
	metrics  *Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewReconciler(stores Stores, gw gateway.Gateway, dispatch Dispatcher, metrics *Metrics, log *zap.Logger) *Reconciler {
	return &Reconciler{stores: stores, gw: gw, dispatch: dispatch, metrics: metrics, log: log, now: time.Now}
}

type eventEffect struct {
	status  model.HoldStatus
	setup   bool // look the hold up by setup intent
	signup  bool // upsert the signup once the status is applied
	failure bool // record the gateway failure message
}

var effects = map[gateway.EventKind]eventEffect{
	gateway.EventSetupSucceeded:   {status: model.HoldSetupConfirmed, setup: true, signup: true},
	gateway.EventHoldCapturable:   {status: model.HoldAuthorized, signup: true},
	gateway.EventCaptureSucceeded: {status: model.HoldCaptured},
	gateway.EventHoldCanceled:     {status: model.HoldReleased},
	gateway.EventHoldFailed:       {status: model.HoldFailed, failure: true},
	gateway.EventRefunded:         {status: model.HoldRefunded},
}

// HandleWebhook verifies the payload signature and applies the event.
// Nothing is touched when the signature does not verify.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := r.gw.ParseWebhook(payload, signature)
	if err != nil {
		r.metrics.WebhookEvents.WithLabelValues("unverified", "rejected").Inc()
		if errors.Is(err, gateway.ErrInvalidSignature) {
			return wrap(ErrInvalidSignature, err)
		}
		return err
	}
	return r.Apply(ctx, ev)
}

// Apply reconciles a verified event.  Unknown event types and events for
// holds that were never recorded are logged and dropped.
func (r *Reconciler) Apply(ctx context.Context, ev gateway.Event) error {
	log := r.log.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type), zap.String("intent_id", ev.IntentID))
	eff, ok := effects[ev.Kind]
	if !ok || ev.IntentID == "" {
		r.metrics.WebhookEvents.WithLabelValues(ev.Type, "ignored").Inc()
		log.Info("unhandled webhook event")
		return nil
	}

	var (
		h   model.CollateralHold
		err error
	)
	if eff.setup {
		h, err = r.stores.Holds.HoldBySetupIntent(ctx, ev.IntentID)
	} else {
		h, err = r.stores.Holds.HoldByPaymentIntent(ctx, ev.IntentID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		r.metrics.WebhookEvents.WithLabelValues(ev.Type, "unknown_hold").Inc()
		log.Warn("no hold for webhook intent")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup hold: %w", err)
	}

	upd := model.HoldUpdate{Status: eff.status, PaymentMethodRef: ev.PaymentMethodID}
	if eff.failure {
		upd.ErrorMessage = ev.FailureMessage
	}
	applied, err := applyTransition(ctx, r.stores.Holds, r.metrics, h, upd)
	if err != nil {
		return err
	}
	if !applied {
		r.metrics.WebhookEvents.WithLabelValues(ev.Type, "skipped").Inc()
		log.Warn("webhook transition not allowed",
			zap.Uint64("hold_id", h.ID), zap.String("from", string(h.Status)), zap.String("to", string(eff.status)))
		return nil
	}

	if eff.signup {
		if err := r.upsertSignup(ctx, h.UserID, h.TableID, model.SourceWebhook); err != nil {
			return err
		}
	}
	r.metrics.WebhookEvents.WithLabelValues(ev.Type, "applied").Inc()
	log.Info("webhook applied", zap.Uint64("hold_id", h.ID), zap.String("status", string(eff.status)))
	return nil
}

// applyTransition overwrites the hold status when the state machine
// allows it.  Rewriting the current status is allowed so replays succeed.
func applyTransition(ctx context.Context, holds HoldStore, m *Metrics, h model.CollateralHold, upd model.HoldUpdate) (bool, error) {
	if h.Status != upd.Status && !model.CanTransition(h.Status, upd.Status) {
		return false, nil
	}
	ok, err := holds.UpdateHold(ctx, h.ID, h.Status, upd)
	if err != nil {
		return false, fmt.Errorf("update hold %d: %w", h.ID, err)
	}
	if !ok {
		return false, fmt.Errorf("hold %d changed concurrently", h.ID)
	}
	if h.Status != upd.Status {
		m.HoldTransitions.WithLabelValues(string(upd.Status)).Inc()
	}
	return true, nil
}

// upsertSignup inserts the signup unless the user already has one.  A
// table that filled up in the meantime is logged, not retried.
func (r *Reconciler) upsertSignup(ctx context.Context, userID, tableID uint64, source string) error {
	inserted, err := r.stores.Signups.UpsertSignup(ctx, userID, tableID)
	switch {
	case errors.Is(err, repository.ErrTableFull):
		r.log.Warn("paid signup found table full", zap.Uint64("user_id", userID), zap.Uint64("table_id", tableID))
		return nil
	case errors.Is(err, repository.ErrNotFound):
		r.log.Warn("paid signup for missing table", zap.Uint64("user_id", userID), zap.Uint64("table_id", tableID))
		return nil
	case err != nil:
		return fmt.Errorf("upsert signup: %w", err)
	}
	if inserted {
		r.stores.tablesChanged(ctx, r.log)
		notifySignup(ctx, r.dispatch, r.metrics, r.log, model.SignupEvent{
			UserID: userID, TableID: tableID, Source: source, CreatedAt: r.now().UTC(),
		})
	}
	return nil
}
