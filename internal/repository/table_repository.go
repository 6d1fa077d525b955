package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/supdinner/tables/internal/model"
)

const tableColumns = `id, title, total_spots, min_spots, spots_filled, is_locked, is_cancelled, event_time, created_at`

// TableRepo provides data access to the tables table.  Capacity changes
// caused by signups live in SignupRepo so that they share a transaction
// with the signup row.
type TableRepo struct {
	db *sql.DB
}

// NewTableRepo returns a TableRepo bound to the provided database.
func NewTableRepo(db *sql.DB) *TableRepo { return &TableRepo{db: db} }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTable(rs rowScanner) (model.Table, error) {
	var (
		t   model.Table
		min sql.NullInt64
	)
	if err := rs.Scan(&t.ID, &t.Title, &t.TotalSpots, &min, &t.SpotsFilled, &t.IsLocked, &t.IsCancelled, &t.EventTime, &t.CreatedAt); err != nil {
		return model.Table{}, err
	}
	if min.Valid {
		m := uint32(min.Int64)
		t.MinSpots = &m
	}
	return t, nil
}

func (r *TableRepo) queryTables(ctx context.Context, q string, args ...interface{}) ([]model.Table, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTable returns the table with the given id or ErrNotFound.
func (r *TableRepo) GetTable(ctx context.Context, id uint64) (model.Table, error) {
	t, err := scanTable(r.db.QueryRowContext(ctx, `SELECT `+tableColumns+` FROM tables WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Table{}, ErrNotFound
	}
	return t, err
}

// CreateTable inserts a table and returns its id.
func (r *TableRepo) CreateTable(ctx context.Context, t model.Table) (uint64, error) {
	var min interface{}
	if t.MinSpots != nil {
		min = *t.MinSpots
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tables (title, total_spots, min_spots, spots_filled, event_time) VALUES (?, ?, ?, 0, ?)`,
		t.Title, t.TotalSpots, min, t.EventTime.UTC())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// ListUpcomingTables returns tables whose event is after now, soonest first.
func (r *TableRepo) ListUpcomingTables(ctx context.Context, now time.Time, limit int) ([]model.Table, error) {
	return r.queryTables(ctx,
		`SELECT `+tableColumns+` FROM tables WHERE event_time > ? AND is_cancelled = 0 ORDER BY event_time, id LIMIT ?`,
		now.UTC(), limit)
}

// LockCandidates returns unlocked tables with an event strictly between
// from and to.
func (r *TableRepo) LockCandidates(ctx context.Context, from, to time.Time) ([]model.Table, error) {
	return r.queryTables(ctx,
		`SELECT `+tableColumns+` FROM tables WHERE is_locked = 0 AND event_time > ? AND event_time < ? ORDER BY event_time, id`,
		from.UTC(), to.UTC())
}

// SetLockState locks a table and records whether it was cancelled.  It
// reports false when the table was already locked by someone else.
func (r *TableRepo) SetLockState(ctx context.Context, id uint64, cancelled bool) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tables SET is_locked = 1, is_cancelled = ? WHERE id = ? AND is_locked = 0`,
		cancelled, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DayOfTables returns locked, confirmed tables with an event in [from, to).
func (r *TableRepo) DayOfTables(ctx context.Context, from, to time.Time) ([]model.Table, error) {
	return r.queryTables(ctx,
		`SELECT `+tableColumns+` FROM tables WHERE is_locked = 1 AND is_cancelled = 0 AND event_time >= ? AND event_time < ? ORDER BY event_time, id`,
		from.UTC(), to.UTC())
}

// ExpiredTableIDs returns the ids of tables whose event ended before the
// given time.
func (r *TableRepo) ExpiredTableIDs(ctx context.Context, before time.Time) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM tables WHERE event_time < ? ORDER BY id`, before.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteTables removes the given tables.  Dependent rows must be deleted
// first.
func (r *TableRepo) DeleteTables(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ph, args := inClause(ids)
	res, err := r.db.ExecContext(ctx, `DELETE FROM tables WHERE id IN (`+ph+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
