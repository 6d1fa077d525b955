package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/gateway"
	"github.com/supdinner/tables/internal/model"
	"github.com/supdinner/tables/internal/repository"
)

// ConfirmRequest is sent by the client after it confirmed an intent.  Any
// field may be missing; Confirm resolves the rest.
type ConfirmRequest struct {
	UserID          uint64
	TableID         uint64
	IntentType      gateway.IntentType
	IntentID        string
	PaymentMethodID string
	ClientSecret    string

	// ActorID is the authenticated caller.  Non-admin callers may only
	// confirm their own signups.
	ActorID    uint64
	ActorAdmin bool
}

// ConfirmResult reports what Confirm resolved and applied.
type ConfirmResult struct {
	Mode    gateway.IntentType `json:"mode"`
	UserID  uint64             `json:"userId"`
	TableID uint64             `json:"tableId"`
}

// Confirm resolves a client-side confirmation into a signup and a hold
// status.  The intent id comes from the request, else from the client
// secret.  The type comes from the request, else from the id prefix.
// Missing user and table ids come from the intent metadata, else from the
// hold row referencing the intent.
func (r *Reconciler) Confirm(ctx context.Context, req ConfirmRequest) (ConfirmResult, error) {
	id := req.IntentID
	if id == "" {
		id = gateway.IntentIDFromSecret(req.ClientSecret)
	}
	typ := req.IntentType
	if typ == "" {
		typ = gateway.IntentTypeFromID(id)
	}
	if id == "" || (typ != gateway.IntentPayment && typ != gateway.IntentSetup) {
		return ConfirmResult{}, Invalid("unable to resolve intent from request, provide clientSecret or intentId")
	}

	var (
		intent gateway.Intent
		err    error
	)
	if typ == gateway.IntentPayment {
		intent, err = r.gw.GetPaymentIntent(ctx, id)
		if err == nil && intent.Status == gateway.StatusCanceled {
			return ConfirmResult{}, ErrIntentNotUsable
		}
	} else {
		intent, err = r.gw.GetSetupIntent(ctx, id)
		if err == nil && intent.Status != gateway.StatusSucceeded {
			return ConfirmResult{}, ErrIntentNotUsable
		}
	}
	if err != nil {
		return ConfirmResult{}, wrap(ErrGateway, err)
	}
	pm := req.PaymentMethodID
	if pm == "" {
		pm = intent.PaymentMethodID
	}

	userID, tableID := req.UserID, req.TableID
	if userID == 0 {
		userID = intent.MetaID(gateway.MetaUserID)
	}
	if tableID == 0 {
		tableID = intent.MetaID(gateway.MetaTableID)
	}

	hold, holdErr := r.holdForIntent(ctx, typ, id)
	if holdErr != nil && !errors.Is(holdErr, repository.ErrNotFound) {
		return ConfirmResult{}, holdErr
	}
	if holdErr == nil {
		if userID == 0 {
			userID = hold.UserID
		}
		if tableID == 0 {
			tableID = hold.TableID
		}
	}
	if userID == 0 || tableID == 0 {
		return ConfirmResult{}, Invalid("could not resolve userId/tableId from request, metadata, or stored holds")
	}
	if !req.ActorAdmin && userID != req.ActorID {
		return ConfirmResult{}, ErrForbidden
	}

	inserted, err := r.stores.Signups.UpsertSignup(ctx, userID, tableID)
	switch {
	case errors.Is(err, repository.ErrTableFull):
		return ConfirmResult{}, ErrTableFull
	case errors.Is(err, repository.ErrNotFound):
		return ConfirmResult{}, ErrTableNotFound
	case err != nil:
		return ConfirmResult{}, err
	}
	if inserted {
		r.stores.tablesChanged(ctx, r.log)
		notifySignup(ctx, r.dispatch, r.metrics, r.log, model.SignupEvent{
			UserID: userID, TableID: tableID, Source: model.SourceConfirm, CreatedAt: r.now().UTC(),
		})
	}

	if holdErr == nil {
		target := model.HoldAuthorized
		if typ == gateway.IntentSetup {
			target = model.HoldSetupConfirmed
		}
		applied, err := applyTransition(ctx, r.stores.Holds, r.metrics, hold, model.HoldUpdate{Status: target, PaymentMethodRef: pm})
		if err != nil {
			return ConfirmResult{}, err
		}
		if !applied {
			r.log.Info("confirmation left hold status unchanged",
				zap.Uint64("hold_id", hold.ID), zap.String("status", string(hold.Status)))
		}
	}
	return ConfirmResult{Mode: typ, UserID: userID, TableID: tableID}, nil
}

func (r *Reconciler) holdForIntent(ctx context.Context, typ gateway.IntentType, id string) (model.CollateralHold, error) {
	if typ == gateway.IntentSetup {
		return r.stores.Holds.HoldBySetupIntent(ctx, id)
	}
	return r.stores.Holds.HoldByPaymentIntent(ctx, id)
}
