// filepath: internal/repository/errors.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lostfound/internal/shared"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// primaryCode returns the primary SQLite result code of err, or 0 if err
// did not come from the driver. Extended codes carry the primary code in
// their low byte.
func primaryCode(err error) int {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() & 0xff
	}
	return 0
}

func extendedCode(err error) int {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()
	}
	return 0
}

// isUnavailable reports whether err means the store cannot be used right
// now: it is locked by another writer, missing, unreadable, read-only or
// not a database at all.
func isUnavailable(err error) bool {
	switch primaryCode(err) {
	case sqlite3.SQLITE_BUSY,
		sqlite3.SQLITE_LOCKED,
		sqlite3.SQLITE_CANTOPEN,
		sqlite3.SQLITE_PERM,
		sqlite3.SQLITE_READONLY,
		sqlite3.SQLITE_IOERR,
		sqlite3.SQLITE_FULL,
		sqlite3.SQLITE_NOTADB,
		sqlite3.SQLITE_CORRUPT,
		sqlite3.SQLITE_AUTH:
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// isUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	switch extendedCode(err) {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// isDuplicateColumn matches the one ALTER TABLE failure that means another
// process already added the column. SQLite has no dedicated code for it.
func isDuplicateColumn(err error) bool {
	return primaryCode(err) == sqlite3.SQLITE_ERROR &&
		strings.Contains(err.Error(), "duplicate column name")
}

// Classify wraps driver errors that mean the store is unavailable with
// shared.ErrStorageUnavailable. Already classified and unknown errors are
// returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrStorageUnavailable) || errors.Is(err, shared.ErrSchemaConflict) {
		return err
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
	}
	return err
}

// schemaConflict classifies a failed DDL statement: lock problems stay
// retryable, everything else needs an operator.
func schemaConflict(table, step string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%w: %s %s: %v", shared.ErrStorageUnavailable, step, table, err)
	}
	return fmt.Errorf("%w: %s %s: %v", shared.ErrSchemaConflict, step, table, err)
}
