package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/supdinner/tables/internal/model"
)

// WaitlistRepo owns the per-table FIFO queues and the promotion
// transaction that moves the head of a queue into a signup.
type WaitlistRepo struct {
	db *sql.DB
}

func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{db: db} }

// PromotionResult describes the outcome of a single promotion attempt.
type PromotionResult struct {
	Promoted       bool
	UserID         uint64
	VacatedTableID uint64 // table the promoted user left, 0 if none
}

// AddWaitlistEntry queues the user for a full table.
func (r *WaitlistRepo) AddWaitlistEntry(ctx context.Context, userID, tableID uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		c, err := lockCapacity(ctx, tx, tableID)
		if err != nil {
			return err
		}
		var one int
		err = tx.QueryRowContext(ctx,
			`SELECT 1 FROM signups WHERE user_id = ? AND table_id = ?`, userID, tableID).Scan(&one)
		switch {
		case err == nil:
			return ErrDuplicate
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		if c.filled < c.total {
			return ErrTableNotFull
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO waitlists (user_id, table_id) VALUES (?, ?)`, userID, tableID); err != nil {
			if isDuplicate(err) {
				return ErrWaitlisted
			}
			return err
		}
		return nil
	})
}

// RemoveWaitlistEntry deletes the entry if present.
func (r *WaitlistRepo) RemoveWaitlistEntry(ctx context.Context, userID, tableID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM waitlists WHERE user_id = ? AND table_id = ?`, userID, tableID)
	return err
}

// WaitlistForTable returns the queue oldest first.
func (r *WaitlistRepo) WaitlistForTable(ctx context.Context, tableID uint64) ([]model.WaitlistEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, table_id, created_at FROM waitlists WHERE table_id = ? ORDER BY created_at, id`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WaitlistEntry
	for rows.Next() {
		var w model.WaitlistEntry
		if err := rows.Scan(&w.ID, &w.UserID, &w.TableID, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Promote moves the oldest waitlisted user of tableID into a signup.  The
// task id is recorded in the same transaction; a task that was already
// processed returns ErrDuplicate and changes nothing.  A prior signup of
// the promoted user on another table is removed and that table's counter
// decremented.  The target's counter is left as is because the leaving
// user's spot is handed over.
func (r *WaitlistRepo) Promote(ctx context.Context, taskID string, tableID uint64) (PromotionResult, error) {
	var out PromotionResult
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO promotion_tasks (task_id, table_id) VALUES (?, ?)`, taskID, tableID); err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
		if _, err := lockCapacity(ctx, tx, tableID); err != nil {
			return err
		}

		var entry model.WaitlistEntry
		err := tx.QueryRowContext(ctx,
			`SELECT id, user_id FROM waitlists WHERE table_id = ? ORDER BY created_at, id LIMIT 1 FOR UPDATE`, tableID).
			Scan(&entry.ID, &entry.UserID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		var prior uint64
		err = tx.QueryRowContext(ctx,
			`SELECT table_id FROM signups WHERE user_id = ? FOR UPDATE`, entry.UserID).Scan(&prior)
		switch {
		case err == nil && prior == tableID:
			// Already seated here; just drop the stale entry.
			_, err = tx.ExecContext(ctx, `DELETE FROM waitlists WHERE id = ?`, entry.ID)
			return err
		case err == nil:
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM signups WHERE user_id = ? AND table_id = ?`, entry.UserID, prior); err != nil {
				return err
			}
			if err := decrementFilled(ctx, tx, prior); err != nil {
				return err
			}
			out.VacatedTableID = prior
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO signups (user_id, table_id) VALUES (?, ?)`, entry.UserID, tableID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM waitlists WHERE id = ?`, entry.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE promotion_tasks SET user_id = ? WHERE task_id = ?`, entry.UserID, taskID); err != nil {
			return err
		}
		out.Promoted = true
		out.UserID = entry.UserID
		return nil
	})
	if err != nil {
		return PromotionResult{}, err
	}
	return out, nil
}

func (r *WaitlistRepo) DeleteWaitlistsForTables(ctx context.Context, ids []uint64) (int64, error) {
	return deleteByTableIDs(ctx, r.db, "waitlists", ids)
}

func (r *WaitlistRepo) DeletePromotionTasksForTables(ctx context.Context, ids []uint64) (int64, error) {
	return deleteByTableIDs(ctx, r.db, "promotion_tasks", ids)
}
