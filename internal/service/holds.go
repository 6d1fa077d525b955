package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/config"
	"github.com/supdinner/tables/internal/gateway"
	"github.com/supdinner/tables/internal/model"
	"github.com/supdinner/tables/internal/repository"
)

// HoldManager creates and transitions collateral holds through the
// payment gateway.
type HoldManager struct {
	stores  Stores
	gw      gateway.Gateway
	windows config.Windows
	metrics *Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewHoldManager(stores Stores, gw gateway.Gateway, windows config.Windows, metrics *Metrics, log *zap.Logger) *HoldManager {
	return &HoldManager{stores: stores, gw: gw, windows: windows, metrics: metrics, log: log, now: time.Now}
}

// HoldInput identifies the hold being requested.
type HoldInput struct {
	UserID          uint64
	TableID         uint64
	CollateralCents int64
}

func (in HoldInput) validate() error {
	if in.UserID == 0 || in.TableID == 0 || in.CollateralCents <= 0 {
		return Invalid("missing userId, tableId or collateral_cents")
	}
	return nil
}

// DayOfResult reports the outcome of a deferred hold placement.
type DayOfResult struct {
	PaymentIntentID string           `json:"payment_intent_id"`
	Status          string           `json:"status"`
	RequiresAction  bool             `json:"requires_action"`
	HoldStatus      model.HoldStatus `json:"-"`
}

// EnsureCustomer returns the user's gateway customer id, creating and
// caching one when absent.  When a concurrent caller stored a different
// customer first, the surplus one is deleted and the stored id returned.
func (m *HoldManager) EnsureCustomer(ctx context.Context, userID uint64) (string, error) {
	u, err := m.stores.Users.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load user %d: %w", userID, err)
	}
	if u.GatewayCustomerID != "" {
		return u.GatewayCustomerID, nil
	}

	created, err := m.gw.CreateCustomer(ctx, gateway.CustomerRequest{
		UserID: u.ID, Name: u.FirstName, Phone: u.PhoneNumber, Email: u.Email,
	})
	if err != nil {
		return "", wrap(ErrCustomerSetupFailed, err)
	}
	stored, err := m.stores.Users.SetGatewayCustomer(ctx, userID, created)
	if err != nil {
		m.discardCustomer(ctx, created)
		return "", wrap(ErrCustomerSetupFailed, err)
	}
	if stored != created {
		m.discardCustomer(ctx, created)
	}
	return stored, nil
}

func (m *HoldManager) discardCustomer(ctx context.Context, id string) {
	if err := m.gw.DeleteCustomer(ctx, id); err != nil {
		m.log.Warn("orphaned gateway customer", zap.String("customer_id", id), zap.Error(err))
	}
}

func (m *HoldManager) resolveCustomer(ctx context.Context, userID uint64) (string, error) {
	id, err := m.EnsureCustomer(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrCustomerSetupFailed) {
			return "", err
		}
		return "", wrap(ErrCustomerSetupFailed, err)
	}
	return id, nil
}

func (m *HoldManager) table(ctx context.Context, id uint64) (model.Table, error) {
	t, err := m.stores.Tables.GetTable(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Table{}, ErrTableNotFound
	}
	return t, err
}

// CreateImmediateHold opens a manually captured hold the client confirms
// with the returned secret.  The row starts in hold_pending; the webhook
// moves it on.
func (m *HoldManager) CreateImmediateHold(ctx context.Context, in HoldInput) (string, error) {
	if err := in.validate(); err != nil {
		return "", err
	}
	if _, err := m.table(ctx, in.TableID); err != nil {
		return "", err
	}
	customer, err := m.resolveCustomer(ctx, in.UserID)
	if err != nil {
		return "", err
	}
	intent, err := m.gw.CreateHold(ctx, gateway.HoldRequest{
		CustomerID:     customer,
		AmountCents:    in.CollateralCents,
		UserID:         in.UserID,
		TableID:        in.TableID,
		Strategy:       model.StrategyManualHold,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return "", wrap(ErrGateway, err)
	}
	if err := m.record(ctx, model.CollateralHold{
		UserID:          in.UserID,
		TableID:         in.TableID,
		CollateralCents: in.CollateralCents,
		Strategy:        model.StrategyManualHold,
		Status:          model.HoldPending,
		PaymentIntentID: intent.ID,
	}); err != nil {
		return "", err
	}
	return intent.ClientSecret, nil
}

// CreateDeferredSetup stores a card for a hold placed later by the
// maintenance sweep.  Only events further out than the setup lead qualify.
func (m *HoldManager) CreateDeferredSetup(ctx context.Context, in HoldInput) (string, error) {
	if err := in.validate(); err != nil {
		return "", err
	}
	t, err := m.table(ctx, in.TableID)
	if err != nil {
		return "", err
	}
	if t.Strategy(m.now(), m.windows.SetupLead) != model.StrategySetupThenHold {
		return "", ErrSetupTooLate
	}
	customer, err := m.resolveCustomer(ctx, in.UserID)
	if err != nil {
		return "", err
	}
	intent, err := m.gw.CreateSetup(ctx, gateway.SetupRequest{
		CustomerID:     customer,
		UserID:         in.UserID,
		TableID:        in.TableID,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return "", wrap(ErrGateway, err)
	}
	if err := m.record(ctx, model.CollateralHold{
		UserID:          in.UserID,
		TableID:         in.TableID,
		CollateralCents: in.CollateralCents,
		Strategy:        model.StrategySetupThenHold,
		Status:          model.HoldNone,
		SetupIntentID:   intent.ID,
	}); err != nil {
		return "", err
	}
	return intent.ClientSecret, nil
}

// PlaceDeferredHold places the day-of hold for the latest deferred row of
// (user, table).
func (m *HoldManager) PlaceDeferredHold(ctx context.Context, in HoldInput) (DayOfResult, error) {
	if err := in.validate(); err != nil {
		return DayOfResult{}, err
	}
	prior, err := m.stores.Holds.LatestHold(ctx, in.UserID, in.TableID)
	if errors.Is(err, repository.ErrNotFound) {
		return DayOfResult{}, ErrNoSetupFound
	}
	if err != nil {
		return DayOfResult{}, err
	}
	return m.placeFromPrior(ctx, prior, in.CollateralCents)
}

// deferrable reports whether h is a deferred hold still waiting for its
// day-of placement.
func deferrable(h model.CollateralHold) bool {
	return h.Strategy == model.StrategySetupThenHold &&
		(h.Status == model.HoldNone || h.Status == model.HoldSetupConfirmed)
}

// placeFromPrior requests an off-session hold on the customer's default
// payment method.  A success inserts a new hold_active row (hold_failed
// when the customer must authenticate).  Missing customer or payment
// method and gateway errors mark the prior row hold_failed.
func (m *HoldManager) placeFromPrior(ctx context.Context, prior model.CollateralHold, cents int64) (DayOfResult, error) {
	if !deferrable(prior) {
		return DayOfResult{}, ErrHoldNotDeferrable
	}
	u, err := m.stores.Users.GetUser(ctx, prior.UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return DayOfResult{}, fmt.Errorf("load user %d: %w", prior.UserID, err)
	}
	if u.GatewayCustomerID == "" {
		m.markFailed(ctx, prior, "no gateway customer")
		return DayOfResult{}, ErrCustomerSetupFailed
	}
	pm, err := m.gw.DefaultPaymentMethod(ctx, u.GatewayCustomerID)
	if err != nil {
		m.markFailed(ctx, prior, err.Error())
		return DayOfResult{}, wrap(ErrGateway, err)
	}
	if pm == "" {
		m.markFailed(ctx, prior, "no default payment method")
		return DayOfResult{}, ErrNoPaymentMethod
	}

	intent, err := m.gw.CreateHold(ctx, gateway.HoldRequest{
		CustomerID:      u.GatewayCustomerID,
		AmountCents:     cents,
		UserID:          prior.UserID,
		TableID:         prior.TableID,
		Strategy:        model.StrategySetupThenHold,
		PaymentMethodID: pm,
		OffSession:      true,
		IdempotencyKey:  fmt.Sprintf("day-of-hold-%d", prior.ID),
	})
	if err != nil {
		m.markFailed(ctx, prior, err.Error())
		return DayOfResult{}, wrap(ErrGateway, err)
	}

	row := model.CollateralHold{
		UserID:           prior.UserID,
		TableID:          prior.TableID,
		CollateralCents:  cents,
		Strategy:         model.StrategySetupThenHold,
		Status:           model.HoldActive,
		PaymentIntentID:  intent.ID,
		PaymentMethodRef: pm,
	}
	if intent.RequiresAction() {
		row.Status = model.HoldFailed
		row.ErrorMessage = "authentication required"
	}
	if err := m.record(ctx, row); err != nil {
		return DayOfResult{}, err
	}
	return DayOfResult{
		PaymentIntentID: intent.ID,
		Status:          intent.Status,
		RequiresAction:  intent.RequiresAction(),
		HoldStatus:      row.Status,
	}, nil
}

func (m *HoldManager) markFailed(ctx context.Context, h model.CollateralHold, reason string) {
	ok, err := m.stores.Holds.UpdateHold(ctx, h.ID, h.Status, model.HoldUpdate{Status: model.HoldFailed, ErrorMessage: reason})
	switch {
	case err != nil:
		m.log.Error("mark hold failed", zap.Uint64("hold_id", h.ID), zap.Error(err))
	case !ok:
		m.log.Warn("hold changed before it could be marked failed", zap.Uint64("hold_id", h.ID))
	default:
		m.metrics.HoldTransitions.WithLabelValues(string(model.HoldFailed)).Inc()
		m.log.Info("deferred hold failed", zap.Uint64("hold_id", h.ID), zap.String("reason", reason))
	}
}

// CancelHold cancels the latest hold of (user, table) at the gateway and
// marks it hold_released.  A gateway failure leaves the status unchanged.
func (m *HoldManager) CancelHold(ctx context.Context, tableID, userID uint64) error {
	if err := validIDs(tableID, userID); err != nil {
		return err
	}
	h, err := m.stores.Holds.LatestHold(ctx, userID, tableID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNoHoldFound
	}
	if err != nil {
		return err
	}
	if h.PaymentIntentID == "" {
		return ErrNoHoldFound
	}
	if err := m.gw.CancelHold(ctx, h.PaymentIntentID); err != nil {
		return wrap(ErrGateway, err)
	}
	if h.Status != model.HoldCancelled && !model.CanTransition(h.Status, model.HoldCancelled) {
		m.log.Warn("cancelled hold left in place", zap.Uint64("hold_id", h.ID), zap.String("status", string(h.Status)))
		return nil
	}
	ok, err := m.stores.Holds.UpdateHold(ctx, h.ID, h.Status, model.HoldUpdate{Status: model.HoldCancelled})
	if err != nil {
		return err
	}
	if ok {
		m.metrics.HoldTransitions.WithLabelValues(string(model.HoldCancelled)).Inc()
	}
	return nil
}

func (m *HoldManager) record(ctx context.Context, h model.CollateralHold) error {
	id, err := m.stores.Holds.CreateHold(ctx, h)
	if err != nil {
		return fmt.Errorf("record hold: %w", err)
	}
	m.metrics.HoldsCreated.WithLabelValues(string(h.Strategy), string(h.Status)).Inc()
	m.log.Info("hold recorded",
		zap.Uint64("hold_id", id),
		zap.Uint64("user_id", h.UserID),
		zap.Uint64("table_id", h.TableID),
		zap.String("strategy", string(h.Strategy)),
		zap.String("status", string(h.Status)))
	return nil
}
