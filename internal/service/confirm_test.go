package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supdinner/tables/internal/gateway"
	"github.com/supdinner/tables/internal/model"
)

func TestConfirmFromClientSecretAndMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.table(4, 0, nil, 48*time.Hour)
	pendingHold(f, 3, tid, "pi_1")
	f.gw.SetIntent(gateway.Intent{ID: "pi_1", Status: "requires_capture", PaymentMethodID: "pm_1",
		Metadata: map[string]string{gateway.MetaUserID: "3", gateway.MetaTableID: "1"}})

	res, err := f.recon.Confirm(ctx, ConfirmRequest{ClientSecret: "pi_1_secret_abc", ActorID: 3})
	require.NoError(t, err)
	assert.Equal(t, gateway.IntentPayment, res.Mode)
	assert.Equal(t, uint64(3), res.UserID)
	assert.Equal(t, uint64(1), res.TableID)

	h := f.store.Holds()[0]
	assert.Equal(t, model.HoldAuthorized, h.Status)
	assert.Equal(t, "pm_1", h.PaymentMethodRef)
	require.Len(t, f.store.Signups(), 1)

	// Replaying the confirmation changes nothing.
	_, err = f.recon.Confirm(ctx, ConfirmRequest{ClientSecret: "pi_1_secret_abc", ActorID: 3})
	require.NoError(t, err)
	assert.Len(t, f.store.Signups(), 1)
	assert.Equal(t, uint32(1), f.store.Table(tid).SpotsFilled)
	assert.Len(t, f.disp.SignupEvents(), 1)
}

func TestConfirmFallsBackToHoldLookup(t *testing.T) {
	f := newFixture(t)
	tid := f.table(4, 0, nil, 10*24*time.Hour)
	f.store.PutHold(model.CollateralHold{UserID: 4, TableID: tid, CollateralCents: 100,
		Strategy: model.StrategySetupThenHold, Status: model.HoldNone, SetupIntentID: "si_7"})
	f.gw.SetIntent(gateway.Intent{ID: "si_7", Status: gateway.StatusSucceeded, PaymentMethodID: "pm_7"})

	res, err := f.recon.Confirm(context.Background(), ConfirmRequest{IntentID: "si_7", ActorID: 4})
	require.NoError(t, err)
	assert.Equal(t, gateway.IntentSetup, res.Mode)
	assert.Equal(t, uint64(4), res.UserID)
	assert.Equal(t, tid, res.TableID)
	assert.Equal(t, model.HoldSetupConfirmed, f.store.Holds()[0].Status)
}

func TestConfirmExplicitFieldsWin(t *testing.T) {
	f := newFixture(t)
	a := f.table(4, 0, nil, 48*time.Hour)
	b := f.table(4, 0, nil, 48*time.Hour)
	f.gw.SetIntent(gateway.Intent{ID: "pi_2", Status: "requires_capture",
		Metadata: map[string]string{gateway.MetaUserID: "5", gateway.MetaTableID: "1"}})

	res, err := f.recon.Confirm(context.Background(), ConfirmRequest{
		IntentType: gateway.IntentPayment, IntentID: "pi_2", TableID: b, ActorID: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, b, res.TableID)
	assert.NotEqual(t, a, res.TableID)
}

func TestConfirmRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.table(4, 0, nil, 48*time.Hour)
	f.gw.SetIntent(gateway.Intent{ID: "pi_c", Status: gateway.StatusCanceled})
	f.gw.SetIntent(gateway.Intent{ID: "si_p", Status: "requires_payment_method"})
	f.gw.SetIntent(gateway.Intent{ID: "pi_x", Status: "requires_capture"})
	f.gw.SetIntent(gateway.Intent{ID: "pi_o", Status: "requires_capture",
		Metadata: map[string]string{gateway.MetaUserID: "8", gateway.MetaTableID: "1"}})

	_, err := f.recon.Confirm(ctx, ConfirmRequest{ActorID: 1})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = f.recon.Confirm(ctx, ConfirmRequest{IntentID: "pi_c", ActorID: 1})
	assert.ErrorIs(t, err, ErrIntentNotUsable)

	_, err = f.recon.Confirm(ctx, ConfirmRequest{IntentID: "si_p", ActorID: 1})
	assert.ErrorIs(t, err, ErrIntentNotUsable)

	_, err = f.recon.Confirm(ctx, ConfirmRequest{IntentID: "pi_x", ActorID: 1})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = f.recon.Confirm(ctx, ConfirmRequest{IntentID: "pi_o", ActorID: 1})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.recon.Confirm(ctx, ConfirmRequest{IntentID: "pi_o", ActorID: 1, ActorAdmin: true})
	assert.NoError(t, err)
	assert.Equal(t, uint32(1), f.store.Table(tid).SpotsFilled)
}
