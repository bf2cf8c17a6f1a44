package database

// Schema bookkeeping queries
const (
	CreateSchemaMigrationsQuery = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`

	SelectAppliedMigrationQuery = `
		SELECT COUNT(1) FROM schema_migrations WHERE version = ?
	`

	InsertAppliedMigrationQuery = `
		INSERT INTO schema_migrations (version) VALUES (?)
	`

	ListAppliedMigrationsQuery = `
		SELECT version FROM schema_migrations ORDER BY version
	`
)

// Timer queries
const (
	SelectTimerQuery = `
		SELECT timestamp FROM timers WHERE name = ?
	`

	UpsertTimerQuery = `
		INSERT INTO timers (name, timestamp) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			timestamp = excluded.timestamp,
			updated_at = CURRENT_TIMESTAMP
	`
)

// Settings queries
const (
	SelectMaxWhisperRecipientsQuery = `
		SELECT max_whisper_recipients FROM settings WHERE id = 1
	`

	UpsertMaxWhisperRecipientsQuery = `
		INSERT INTO settings (id, max_whisper_recipients) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET
			max_whisper_recipients = excluded.max_whisper_recipients
	`
)
