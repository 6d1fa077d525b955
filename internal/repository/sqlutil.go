package repository

import (
	"context"
	"database/sql"
	"strings"
)

// inClause returns "?,?,?" for n placeholders and the ids as arguments.
func inClause(ids []uint64) (string, []interface{}) {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

// deleteByTableIDs removes every row of table whose table_id is in ids and
// returns the number of deleted rows.
func deleteByTableIDs(ctx context.Context, db *sql.DB, table string, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ph, args := inClause(ids)
	res, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE table_id IN ("+ph+")", args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// withTx runs fn inside a transaction and commits when fn returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
