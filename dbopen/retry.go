package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Busy-retry policy for the curation store: WAL plus busy_timeout absorb
// most contention between curator processes, but table locks can still
// surface as errors. Mutations retry a bounded number of times with a
// growing pause before giving up.
const busyAttempts = 3

func busyBackoff(attempt int) time.Duration {
	return time.Duration(100*(attempt+1)) * time.Millisecond
}

// IsBusy reports whether err is sqlite lock contention rather than a
// real statement failure.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// Exec runs a single statement, retrying on lock contention. The store's
// status marks and queue inserts go through here.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var lastErr error
	for attempt := range busyAttempts {
		res, err := db.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		if !IsBusy(err) {
			return nil, err
		}
		lastErr = err
		if err := pause(ctx, busyBackoff(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("dbopen: still busy after %d attempts: %w", busyAttempts, lastErr)
}

// RunTx runs fn inside a transaction, retrying the whole transaction on
// lock contention. fn must be safe to run again from scratch; the
// store's batch inserts qualify because every statement in them is
// idempotent.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var lastErr error
	for attempt := range busyAttempts {
		err := inTx(ctx, db, fn)
		if err == nil {
			return nil
		}
		if !IsBusy(err) {
			return err
		}
		lastErr = err
		if err := pause(ctx, busyBackoff(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("dbopen: still busy after %d attempts: %w", busyAttempts, lastErr)
}

func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("dbopen: cancelled while waiting on a lock: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
