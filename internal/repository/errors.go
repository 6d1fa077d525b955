// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow the service layer to tell
// capacity conflicts apart from missing rows without inspecting driver
// errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert hits a unique key, such as a
// second signup for the same user.
var ErrDuplicate = errors.New("duplicate")

// ErrTableLocked is returned when a capacity change is attempted on a
// table inside its lock window.
var ErrTableLocked = errors.New("table locked")

// ErrTableFull is returned when a join finds no free spot at write time.
var ErrTableFull = errors.New("table full")

// ErrTableNotFull is returned when a waitlist entry is requested for a
// table that still has free spots.
var ErrTableNotFull = errors.New("table not full")

// ErrWaitlisted is returned when the user already waits for the table.
var ErrWaitlisted = errors.New("already waitlisted")

// isDuplicate reports whether err is a MySQL duplicate key violation (1062).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
