package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/supdinner/tables/internal/model"
)

// SignupRepo owns the signups table together with the spots_filled
// counter it drives.  Every mutation locks the table row first so that
// concurrent joins serialise on the capacity check.
type SignupRepo struct {
	db *sql.DB
}

func NewSignupRepo(db *sql.DB) *SignupRepo { return &SignupRepo{db: db} }

type capacityRow struct {
	total, filled uint32
	locked        bool
}

func lockCapacity(ctx context.Context, tx *sql.Tx, tableID uint64) (capacityRow, error) {
	var c capacityRow
	err := tx.QueryRowContext(ctx,
		`SELECT total_spots, spots_filled, is_locked FROM tables WHERE id = ? FOR UPDATE`, tableID).
		Scan(&c.total, &c.filled, &c.locked)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

func incrementFilled(ctx context.Context, tx *sql.Tx, tableID uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE tables SET spots_filled = spots_filled + 1 WHERE id = ? AND spots_filled < total_spots`, tableID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTableFull
	}
	return nil
}

func decrementFilled(ctx context.Context, tx *sql.Tx, tableID uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE tables SET spots_filled = spots_filled - 1 WHERE id = ? AND spots_filled > 0`, tableID)
	return err
}

// SignupForUser returns the user's active signup or ErrNotFound.
func (r *SignupRepo) SignupForUser(ctx context.Context, userID uint64) (model.Signup, error) {
	var s model.Signup
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, table_id, created_at FROM signups WHERE user_id = ?`, userID).
		Scan(&s.ID, &s.UserID, &s.TableID, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Signup{}, ErrNotFound
	}
	return s, err
}

// AddSignup inserts a signup and takes one spot.  It fails with
// ErrTableLocked, ErrTableFull or ErrDuplicate without changing anything.
func (r *SignupRepo) AddSignup(ctx context.Context, userID, tableID uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		c, err := lockCapacity(ctx, tx, tableID)
		if err != nil {
			return err
		}
		var existing uint64
		err = tx.QueryRowContext(ctx, `SELECT table_id FROM signups WHERE user_id = ? FOR UPDATE`, userID).Scan(&existing)
		switch {
		case err == nil:
			return ErrDuplicate
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		if c.locked {
			return ErrTableLocked
		}
		if c.filled >= c.total {
			return ErrTableFull
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO signups (user_id, table_id) VALUES (?, ?)`, userID, tableID); err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
		return incrementFilled(ctx, tx, tableID)
	})
}

// RemoveSignup deletes the user's signup on the table and frees its spot.
func (r *SignupRepo) RemoveSignup(ctx context.Context, userID, tableID uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		c, err := lockCapacity(ctx, tx, tableID)
		if err != nil {
			return err
		}
		if c.locked {
			return ErrTableLocked
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM signups WHERE user_id = ? AND table_id = ?`, userID, tableID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return decrementFilled(ctx, tx, tableID)
	})
}

// UpsertSignup records a signup confirmed by payment.  A user who already
// holds a signup anywhere is left untouched and inserted reports false.
// The lock flag is not consulted since the hold is already in place.
func (r *SignupRepo) UpsertSignup(ctx context.Context, userID, tableID uint64) (inserted bool, err error) {
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		c, err := lockCapacity(ctx, tx, tableID)
		if err != nil {
			return err
		}
		var existing uint64
		err = tx.QueryRowContext(ctx, `SELECT table_id FROM signups WHERE user_id = ? FOR UPDATE`, userID).Scan(&existing)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		if c.filled >= c.total {
			return ErrTableFull
		}
		res, err := tx.ExecContext(ctx,
			`INSERT IGNORE INTO signups (user_id, table_id) VALUES (?, ?)`, userID, tableID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if err := incrementFilled(ctx, tx, tableID); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// SignupsForTable lists a table's signups in join order.
func (r *SignupRepo) SignupsForTable(ctx context.Context, tableID uint64) ([]model.Signup, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, table_id, created_at FROM signups WHERE table_id = ? ORDER BY id`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Signup
	for rows.Next() {
		var s model.Signup
		if err := rows.Scan(&s.ID, &s.UserID, &s.TableID, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SignupRepo) DeleteSignupsForTables(ctx context.Context, ids []uint64) (int64, error) {
	return deleteByTableIDs(ctx, r.db, "signups", ids)
}
