// filepath: internal/repository/repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"lostfound/internal/logging"

	"github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultLockTimeout bounds how long a statement waits for another
// process's write lock before failing with StorageUnavailable.
const DefaultLockTimeout = 10 * time.Second

// Options configures Open.
type Options struct {
	LockTimeout time.Duration
	// ReadOnly opens an existing file without creating it or changing its
	// journal mode. Writes fail.
	ReadOnly bool
}

// Repository is the access layer over one SQLite store file.
//
// Methods run against whatever handle the Repository is scoped to: the pool
// for a Repository returned by Open, a single connection inside WithConn, or
// a transaction inside WithTx.
type Repository struct {
	DB      *sql.DB
	Builder squirrel.StatementBuilderType // SQL Query Builder
	Path    string

	db   DBTX
	conn *sql.Conn
	inTx bool
}

// DSN builds the modernc connection string. Every pooled connection gets the
// busy timeout, WAL and foreign keys, and write transactions start with
// BEGIN IMMEDIATE so lock waits happen up front rather than at commit.
func DSN(path string, lockTimeout time.Duration) string {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", lockTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// ReadOnlyDSN builds a connection string for inspecting a store. The file
// URI sets mode=ro, and WAL is not requested since that rewrites the header.
func ReadOnlyDSN(path string, lockTimeout time.Duration) string {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	q := url.Values{}
	q.Set("mode", "ro")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", lockTimeout.Milliseconds()))
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path), RawQuery: q.Encode()}
	return u.String()
}

// Open opens (creating if needed) the store at path and checks that it can
// be read. Failures are classified, see Classify.
func Open(ctx context.Context, path string, opts Options) (*Repository, error) {
	logging.Log.Debugf("Opening store at %s (read-only: %t)", path, opts.ReadOnly)
	dsn := DSN(path, opts.LockTimeout)
	if opts.ReadOnly {
		dsn = ReadOnlyDSN(path, opts.LockTimeout)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, Classify(fmt.Errorf("open %s: %w", path, err))
	}

	// sql.Open is lazy; make the first connection now so an unreadable or
	// foreign file is reported here and not at the first query.
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, Classify(fmt.Errorf("open %s: %w", path, err))
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&n); err != nil {
		db.Close()
		return nil, Classify(fmt.Errorf("read %s: %w", path, err))
	}

	return &Repository{
		DB:      db,
		Builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		Path:    path,
		db:      db,
	}, nil
}

// Close closes the underlying pool. Scoped copies must not be closed.
func (r *Repository) Close() error {
	if r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// WithConn runs fn with a copy of r bound to a single pooled connection,
// which is released when fn returns on every path. Inside an existing
// connection or transaction scope fn runs on that scope.
func (r *Repository) WithConn(ctx context.Context, fn func(r *Repository) error) error {
	if r.conn != nil || r.inTx {
		return fn(r)
	}

	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return Classify(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Close()

	scoped := *r
	scoped.db = conn
	scoped.conn = conn
	return fn(&scoped)
}

// WithTx runs fn inside a transaction: commit on success, rollback on error
// or panic (the panic is rethrown). Nested calls join the outer transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(r *Repository) error) (err error) {
	if r.inTx {
		return fn(r)
	}

	var tx *sql.Tx
	if r.conn != nil {
		tx, err = r.conn.BeginTx(ctx, nil)
	} else {
		tx, err = r.DB.BeginTx(ctx, nil)
	}
	if err != nil {
		return Classify(fmt.Errorf("begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = Classify(fmt.Errorf("commit: %w", cerr))
		}
	}()

	scoped := *r
	scoped.db = tx
	scoped.inTx = true
	err = fn(&scoped)
	return err
}

// exec runs a built statement on the scoped handle.
func (r *Repository) exec(ctx context.Context, b squirrel.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	logging.Log.Tracef("exec: %s %v", query, args)
	return r.db.ExecContext(ctx, query, args...)
}

// query runs a built SELECT on the scoped handle. Callers close the rows.
func (r *Repository) query(ctx context.Context, b squirrel.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	logging.Log.Tracef("query: %s %v", query, args)
	return r.db.QueryContext(ctx, query, args...)
}

// queryRow runs a built single-row SELECT on the scoped handle.
func (r *Repository) queryRow(ctx context.Context, b squirrel.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	logging.Log.Tracef("query: %s %v", query, args)
	return r.db.QueryRowContext(ctx, query, args...), nil
}
