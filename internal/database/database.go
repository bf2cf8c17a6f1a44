package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "whisperq/internal/errors"
	"whisperq/internal/migrations"
	"whisperq/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the SQLite-backed store for timers and application settings.
type Database struct {
	db *sql.DB
}

// New opens (creating if needed) the SQLite database at dbPath and applies
// any pending migrations.
func New(dbPath string) (*Database, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidConfig, "invalid database path")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to open database")
	}
	// A single connection keeps SQLite writers from tripping over each other.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to ping database")
	}

	d := &Database{db: db}
	if err := d.migrate(context.Background()); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("%w (close error: %v)", err, closeErr)
		}
		return nil, err
	}

	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks that the database is reachable
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, CreateSchemaMigrationsQuery); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseMigration, "failed to create schema_migrations")
	}

	all, err := migrations.All()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseMigration, "failed to load migrations")
	}

	for _, m := range all {
		if err := d.apply(ctx, m); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeDatabaseMigration, "failed to apply migration").
				WithContext("version", m.Version)
		}
	}
	return nil
}

func (d *Database) apply(ctx context.Context, m migrations.Migration) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var applied int
	if err := tx.QueryRowContext(ctx, SelectAppliedMigrationQuery, m.Version).Scan(&applied); err != nil {
		return err
	}
	if applied > 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, InsertAppliedMigrationQuery, m.Version); err != nil {
		return err
	}
	return tx.Commit()
}

// AppliedMigrations lists the schema versions recorded in schema_migrations
func (d *Database) AppliedMigrations(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, ListAppliedMigrationsQuery)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list migrations", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, apperrors.NewDatabaseError("list migrations", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list migrations", err)
	}
	return versions, nil
}

// GetTimer returns the timestamp stored under name, or nil if there is none.
func (d *Database) GetTimer(ctx context.Context, name string) (*time.Time, error) {
	var ts time.Time
	err := d.db.QueryRowContext(ctx, SelectTimerQuery, name).Scan(&ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get timer", err).WithContext("timer", name)
	}
	return &ts, nil
}

// SaveTimer creates or overwrites the timer stored under name.
func (d *Database) SaveTimer(ctx context.Context, name string, at time.Time) error {
	err := withWriteRetry(ctx, "save timer", func() error {
		_, err := d.db.ExecContext(ctx, UpsertTimerQuery, name, at.UTC())
		return err
	})
	if err != nil {
		return apperrors.NewDatabaseError("save timer", err).WithContext("timer", name)
	}
	return nil
}

// GetMaxWhisperRecipients returns the MaxWhisperRecipients setting. ok is
// false when the setting has never been written.
func (d *Database) GetMaxWhisperRecipients(ctx context.Context) (int, bool, error) {
	var n sql.NullInt64
	err := d.db.QueryRowContext(ctx, SelectMaxWhisperRecipientsQuery).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperrors.NewDatabaseError("get max whisper recipients", err)
	}
	if !n.Valid {
		return 0, false, nil
	}
	return int(n.Int64), true, nil
}

// SetMaxWhisperRecipients overwrites the MaxWhisperRecipients setting.
func (d *Database) SetMaxWhisperRecipients(ctx context.Context, n int) error {
	err := withWriteRetry(ctx, "set max whisper recipients", func() error {
		_, err := d.db.ExecContext(ctx, UpsertMaxWhisperRecipientsQuery, n)
		return err
	})
	if err != nil {
		return apperrors.NewDatabaseError("set max whisper recipients", err)
	}
	return nil
}
