package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/supdinner/tables/internal/model"
)

const holdColumns = `id, user_id, table_id, collateral_cents, strategy, status, payment_intent_id, setup_intent_id, payment_method_ref, error_message, created_at, updated_at`

// HoldRepo stores collateral holds.  Rows are never updated in place
// except for their status and gateway metadata; the row with the highest
// id for a (user, table) pair is the authoritative one.
type HoldRepo struct {
	db *sql.DB
}

func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

func scanHold(rs rowScanner) (model.CollateralHold, error) {
	var (
		h                    model.CollateralHold
		pi, si, pm, errorMsg sql.NullString
	)
	err := rs.Scan(&h.ID, &h.UserID, &h.TableID, &h.CollateralCents, &h.Strategy, &h.Status,
		&pi, &si, &pm, &errorMsg, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CollateralHold{}, ErrNotFound
	}
	if err != nil {
		return model.CollateralHold{}, err
	}
	h.PaymentIntentID = pi.String
	h.SetupIntentID = si.String
	h.PaymentMethodRef = pm.String
	h.ErrorMessage = errorMsg.String
	return h, nil
}

// CreateHold inserts a hold row and returns its id.
func (r *HoldRepo) CreateHold(ctx context.Context, h model.CollateralHold) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO collateral_holds
		   (user_id, table_id, collateral_cents, strategy, status, payment_intent_id, setup_intent_id, payment_method_ref, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.UserID, h.TableID, h.CollateralCents, h.Strategy, h.Status,
		nullString(h.PaymentIntentID), nullString(h.SetupIntentID), nullString(h.PaymentMethodRef), nullString(h.ErrorMessage))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// LatestHold returns the most recently created hold for the pair.
func (r *HoldRepo) LatestHold(ctx context.Context, userID, tableID uint64) (model.CollateralHold, error) {
	return scanHold(r.db.QueryRowContext(ctx,
		`SELECT `+holdColumns+` FROM collateral_holds WHERE user_id = ? AND table_id = ? ORDER BY id DESC LIMIT 1`,
		userID, tableID))
}

// HoldByPaymentIntent returns the latest hold referencing the payment intent.
func (r *HoldRepo) HoldByPaymentIntent(ctx context.Context, intentID string) (model.CollateralHold, error) {
	return scanHold(r.db.QueryRowContext(ctx,
		`SELECT `+holdColumns+` FROM collateral_holds WHERE payment_intent_id = ? ORDER BY id DESC LIMIT 1`, intentID))
}

// HoldBySetupIntent returns the latest hold referencing the setup intent.
func (r *HoldRepo) HoldBySetupIntent(ctx context.Context, intentID string) (model.CollateralHold, error) {
	return scanHold(r.db.QueryRowContext(ctx,
		`SELECT `+holdColumns+` FROM collateral_holds WHERE setup_intent_id = ? ORDER BY id DESC LIMIT 1`, intentID))
}

// UpdateHold overwrites the hold's status if it still equals from.  It
// reports false when another writer moved the hold first.
func (r *HoldRepo) UpdateHold(ctx context.Context, id uint64, from model.HoldStatus, upd model.HoldUpdate) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE collateral_holds
		    SET status = ?,
		        payment_method_ref = COALESCE(?, payment_method_ref),
		        error_message = COALESCE(?, error_message)
		  WHERE id = ? AND status = ?`,
		upd.Status, nullString(upd.PaymentMethodRef), nullString(upd.ErrorMessage), id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *HoldRepo) DeleteHoldsForTables(ctx context.Context, ids []uint64) (int64, error) {
	return deleteByTableIDs(ctx, r.db, "collateral_holds", ids)
}
