package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("database: record not found")

// DB is the SQLite-backed store. All access funnels through a single
// connection so that explicit transactions cover every statement issued while
// they are open, matching SQLite's connection-scoped transaction model.
type DB struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (d *DB) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = d.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the workspace database. The companion lock
// file serializes access across processes; a held lock fails fast rather than
// queueing a second matcher behind a long run.
func Open(path string) (*DB, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire database lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("database %s is in use by another process", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Transactions are issued as explicit BEGIN/COMMIT statements and rely on
	// every statement sharing one connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &DB{db: db, path: path, lock: lock}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	return store, nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Close releases the connection and the process lock.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	err := d.db.Close()
	if d.lock != nil {
		if unlockErr := d.lock.Unlock(); err == nil {
			err = unlockErr
		}
	}
	return err
}

// WithTransaction runs fn inside an explicit transaction. The transaction
// commits when fn returns nil and rolls back on error or panic. Statements
// issued by other goroutines while the transaction is open join it, which is
// exactly what the matching dispatch relies on for batched writes.
func (d *DB) WithTransaction(ctx context.Context, fn func(context.Context) error) (err error) {
	if _, err = d.execWithRetry(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	// Finalization must run even when ctx was canceled mid-batch, or the
	// connection would stay inside a stale transaction.
	finalizeCtx := context.WithoutCancel(ctx)

	committed := false
	defer func() {
		if committed {
			return
		}
		if _, rollbackErr := d.db.ExecContext(finalizeCtx, "ROLLBACK"); rollbackErr != nil && err == nil {
			err = fmt.Errorf("rollback transaction: %w", rollbackErr)
		}
	}()

	if err = fn(ctx); err != nil {
		return err
	}

	if _, err = d.execWithRetry(finalizeCtx, "COMMIT"); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}
