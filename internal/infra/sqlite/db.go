// Package sqlite provides SQLite-based persistent storage for Quarry.
// Uses WAL mode for concurrent reads and crash-safe writes. The single
// connection (SQLite is single-writer) serializes all mutations, which
// is what gives the job ledger its per-key atomicity: every lifecycle
// transition runs inside one transaction that either fully commits the
// status change together with its fund movements, or not at all.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/market.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "market.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Jobs: one row per escrowed unit of work. Timestamps are unix
		// milliseconds. IDs are monotonic and never reused.
		`CREATE TABLE IF NOT EXISTS jobs (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			poster         TEXT NOT NULL,
			worker         TEXT,
			description    TEXT NOT NULL,
			category       TEXT NOT NULL DEFAULT 'general',
			payment        INTEGER NOT NULL,
			stake_required INTEGER NOT NULL,
			worker_stake   INTEGER NOT NULL DEFAULT 0,
			status         TEXT NOT NULL,
			result         TEXT,
			created_at     INTEGER NOT NULL,
			deadline       INTEGER NOT NULL,
			submitted_at   INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at)`,

		// Per-agent counters, created lazily on first interaction.
		`CREATE TABLE IF NOT EXISTS agent_stats (
			address        TEXT PRIMARY KEY,
			jobs_posted    INTEGER NOT NULL DEFAULT 0,
			jobs_completed INTEGER NOT NULL DEFAULT 0,
			jobs_failed    INTEGER NOT NULL DEFAULT 0,
			total_earned   INTEGER NOT NULL DEFAULT 0,
			total_spent    INTEGER NOT NULL DEFAULT 0,
			reputation     INTEGER NOT NULL DEFAULT 500
		)`,

		// Fund ledger: double-entry bookkeeping. Every transfer creates
		// matched DEBIT/CREDIT entries; SUM(debits) == SUM(credits) is
		// an invariant. Escrow is just another account.
		`CREATE TABLE IF NOT EXISTS fund_ledger (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			entry_type TEXT NOT NULL,
			account    TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			job_id     INTEGER,
			memo       TEXT,
			balance    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fund_account ON fund_ledger(account)`,
		`CREATE INDEX IF NOT EXISTS idx_fund_job ON fund_ledger(job_id)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Transactions ───────────────────────────────────────────────────────────

// Tx is an open read-modify-write transaction. All job ledger mutations
// run through one of these so that a status change and its fund
// movements commit (or roll back) together.
type Tx struct {
	tx *sql.Tx
}

// Update runs fn inside a transaction. If fn returns an error the
// transaction is rolled back and the error returned unchanged, so a
// failed ledger operation leaves no partial state behind.
func (d *DB) Update(fn func(tx *Tx) error) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&Tx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullableMilli(ms int64) sql.NullInt64 {
	if ms == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: ms, Valid: true}
}
