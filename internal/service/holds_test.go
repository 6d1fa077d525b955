package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supdinner/tables/internal/model"
)

func TestEnsureCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutUser(model.User{ID: 1, FirstName: "Ada"})
	f.store.PutUser(model.User{ID: 2, GatewayCustomerID: "cus_existing"})

	id, err := f.holds.EnsureCustomer(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, id, f.store.User(1).GatewayCustomerID)

	again, err := f.holds.EnsureCustomer(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Len(t, f.gw.Customers, 1)

	existing, err := f.holds.EnsureCustomer(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "cus_existing", existing)
	assert.Len(t, f.gw.Customers, 1)

	_, err = f.holds.EnsureCustomer(ctx, 99)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreateImmediateHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.table(4, 0, nil, 48*time.Hour)
	f.store.PutUser(model.User{ID: 1})

	secret, err := f.holds.CreateImmediateHold(ctx, HoldInput{UserID: 1, TableID: tid, CollateralCents: 2500})
	require.NoError(t, err)
	assert.Contains(t, secret, "_secret_")

	holds := f.store.Holds()
	require.Len(t, holds, 1)
	assert.Equal(t, model.StrategyManualHold, holds[0].Strategy)
	assert.Equal(t, model.HoldPending, holds[0].Status)
	assert.Equal(t, int64(2500), holds[0].CollateralCents)
	assert.NotEmpty(t, holds[0].PaymentIntentID)

	require.Len(t, f.gw.Holds, 1)
	assert.False(t, f.gw.Holds[0].OffSession)
	assert.Equal(t, f.store.User(1).GatewayCustomerID, f.gw.Holds[0].CustomerID)
}

func TestCreateImmediateHoldCustomerFailure(t *testing.T) {
	f := newFixture(t)
	tid := f.table(4, 0, nil, 48*time.Hour)
	f.store.PutUser(model.User{ID: 1})
	f.gw.Err["CreateCustomer"] = errors.New("gateway down")

	_, err := f.holds.CreateImmediateHold(context.Background(), HoldInput{UserID: 1, TableID: tid, CollateralCents: 2500})
	assert.ErrorIs(t, err, ErrCustomerSetupFailed)
	assert.Equal(t, KindExternal, KindOf(err))
	assert.Empty(t, f.store.Holds())
	assert.False(t, f.gw.Called("CreateHold"))
}

func TestCreateHoldValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.holds.CreateImmediateHold(context.Background(), HoldInput{UserID: 1, TableID: 1})
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = f.holds.CreateDeferredSetup(context.Background(), HoldInput{TableID: 1, CollateralCents: 10})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestCreateDeferredSetup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	far := f.table(4, 0, nil, 10*24*time.Hour)
	near := f.table(4, 0, nil, 3*24*time.Hour)
	f.store.PutUser(model.User{ID: 1})

	_, err := f.holds.CreateDeferredSetup(ctx, HoldInput{UserID: 1, TableID: near, CollateralCents: 2000})
	assert.ErrorIs(t, err, ErrSetupTooLate)

	secret, err := f.holds.CreateDeferredSetup(ctx, HoldInput{UserID: 1, TableID: far, CollateralCents: 2000})
	require.NoError(t, err)
	assert.Contains(t, secret, "_secret_")

	holds := f.store.Holds()
	require.Len(t, holds, 1)
	assert.Equal(t, model.StrategySetupThenHold, holds[0].Strategy)
	assert.Equal(t, model.HoldNone, holds[0].Status)
	assert.NotEmpty(t, holds[0].SetupIntentID)
	assert.Empty(t, holds[0].PaymentIntentID)
}

func deferredHold(f *fixture, userID, tableID uint64, status model.HoldStatus) uint64 {
	return f.store.PutHold(model.CollateralHold{
		UserID: userID, TableID: tableID, CollateralCents: 3000,
		Strategy: model.StrategySetupThenHold, Status: status, SetupIntentID: "si_prior",
	})
}

func TestPlaceDeferredHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.table(4, 2, nil, 12*time.Hour)
	f.store.PutUser(model.User{ID: 1, GatewayCustomerID: "cus_1"})
	f.gw.PaymentMethods["cus_1"] = "pm_1"
	deferredHold(f, 1, tid, model.HoldSetupConfirmed)

	res, err := f.holds.PlaceDeferredHold(ctx, HoldInput{UserID: 1, TableID: tid, CollateralCents: 3000})
	require.NoError(t, err)
	assert.False(t, res.RequiresAction)
	assert.NotEmpty(t, res.PaymentIntentID)

	holds := f.store.Holds()
	require.Len(t, holds, 2)
	assert.Equal(t, model.HoldActive, holds[1].Status)
	assert.Equal(t, "pm_1", holds[1].PaymentMethodRef)
	assert.Equal(t, res.PaymentIntentID, holds[1].PaymentIntentID)
	require.Len(t, f.gw.Holds, 1)
	assert.True(t, f.gw.Holds[0].OffSession)

	// The latest row is now active, so a second placement is refused.
	_, err = f.holds.PlaceDeferredHold(ctx, HoldInput{UserID: 1, TableID: tid, CollateralCents: 3000})
	assert.ErrorIs(t, err, ErrHoldNotDeferrable)
}

func TestPlaceDeferredHoldRequiresAction(t *testing.T) {
	f := newFixture(t)
	tid := f.table(4, 2, nil, 12*time.Hour)
	f.store.PutUser(model.User{ID: 1, GatewayCustomerID: "cus_1"})
	f.gw.PaymentMethods["cus_1"] = "pm_1"
	f.gw.HoldStatus = "requires_action"
	deferredHold(f, 1, tid, model.HoldNone)

	res, err := f.holds.PlaceDeferredHold(context.Background(), HoldInput{UserID: 1, TableID: tid, CollateralCents: 3000})
	require.NoError(t, err)
	assert.True(t, res.RequiresAction)
	assert.Equal(t, "requires_action", res.Status)
	assert.Equal(t, model.HoldFailed, f.store.Holds()[1].Status)
}

func TestPlaceDeferredHoldWithoutPaymentMethod(t *testing.T) {
	f := newFixture(t)
	tid := f.table(4, 2, nil, 12*time.Hour)
	f.store.PutUser(model.User{ID: 1, GatewayCustomerID: "cus_1"})
	deferredHold(f, 1, tid, model.HoldSetupConfirmed)

	_, err := f.holds.PlaceDeferredHold(context.Background(), HoldInput{UserID: 1, TableID: tid, CollateralCents: 3000})
	assert.ErrorIs(t, err, ErrNoPaymentMethod)

	holds := f.store.Holds()
	require.Len(t, holds, 1)
	assert.Equal(t, model.HoldFailed, holds[0].Status)
	assert.NotEmpty(t, holds[0].ErrorMessage)
	assert.False(t, f.gw.Called("CreateHold"))
}

func TestPlaceDeferredHoldWithoutSetup(t *testing.T) {
	f := newFixture(t)
	_, err := f.holds.PlaceDeferredHold(context.Background(), HoldInput{UserID: 1, TableID: 2, CollateralCents: 3000})
	assert.ErrorIs(t, err, ErrNoSetupFound)
}

func TestCancelHoldWithoutHold(t *testing.T) {
	f := newFixture(t)
	err := f.holds.CancelHold(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrNoHoldFound)
	assert.False(t, f.gw.Called("CancelHold"))
}

func TestCancelHoldWithoutIntent(t *testing.T) {
	f := newFixture(t)
	deferredHold(f, 1, 1, model.HoldNone)
	err := f.holds.CancelHold(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrNoHoldFound)
	assert.False(t, f.gw.Called("CancelHold"))
}

func TestCancelHoldUsesLatestHold(t *testing.T) {
	f := newFixture(t)
	f.store.PutHold(model.CollateralHold{UserID: 1, TableID: 1, CollateralCents: 100, Strategy: model.StrategyManualHold, Status: model.HoldFailed, PaymentIntentID: "pi_old"})
	f.store.PutHold(model.CollateralHold{UserID: 1, TableID: 1, CollateralCents: 100, Strategy: model.StrategyManualHold, Status: model.HoldAuthorized, PaymentIntentID: "pi_new"})

	require.NoError(t, f.holds.CancelHold(context.Background(), 1, 1))
	assert.Equal(t, []string{"pi_new"}, f.gw.Cancelled)
	holds := f.store.Holds()
	assert.Equal(t, model.HoldFailed, holds[0].Status)
	assert.Equal(t, model.HoldCancelled, holds[1].Status)
}

func TestCancelHoldGatewayFailureKeepsStatus(t *testing.T) {
	f := newFixture(t)
	f.store.PutHold(model.CollateralHold{UserID: 1, TableID: 1, CollateralCents: 100, Strategy: model.StrategyManualHold, Status: model.HoldAuthorized, PaymentIntentID: "pi_1"})
	f.gw.Err["CancelHold"] = errors.New("timeout")

	err := f.holds.CancelHold(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrGateway)
	assert.Equal(t, model.HoldAuthorized, f.store.Holds()[0].Status)
}
