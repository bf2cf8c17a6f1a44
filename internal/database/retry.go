package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whisperq/internal/constants"
	"whisperq/internal/retry"

	"github.com/mattn/go-sqlite3"
)

// writeBackoff paces retries of writes that hit a busy or locked database.
// It stays well inside the dispatcher's store timeout.
var writeBackoff = retry.NewBackoff(retry.BackoffConfig{
	InitialDelay: time.Duration(constants.DatabaseWriteBackoffMs) * time.Millisecond,
	MaxDelay:     time.Duration(constants.DatabaseWriteMaxBackoffMs) * time.Millisecond,
	Multiplier:   2,
	MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
	Jitter:       true,
})

// withWriteRetry runs write, retrying transient SQLite failures.
func withWriteRetry(ctx context.Context, op string, write func() error) error {
	err := writeBackoff.RetryWithPredicate(ctx, write, isTransientSQLiteError)
	if err == nil {
		return nil
	}
	if isTransientSQLiteError(err) {
		return fmt.Errorf("%s: gave up after %d attempts: %w", op, constants.DefaultDatabaseRetryAttempts, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isTransientSQLiteError is true for SQLITE_BUSY, SQLITE_LOCKED and SQLITE_IOERR.
func isTransientSQLiteError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr:
		return true
	}
	return false
}
