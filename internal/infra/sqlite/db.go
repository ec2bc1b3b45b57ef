// Package sqlite provides SQLite-based persistent storage for LearnQuest.
// Uses WAL mode for concurrent reads and immediate write transactions so
// the reward critical section holds the write lock from its first statement.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/learnquest/learnquest/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the query set shared by DB and Tx. Reads outside the critical
// section go through DB; every write of a completion goes through Tx.
type Store struct {
	q querier
}

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	Store
	db *sql.DB
}

// Tx is an open write transaction.
type Tx struct {
	Store
	tx *sql.Tx
}

// Open creates or opens the SQLite database at dir/learnquest.db.
// Enables WAL mode, foreign keys, and a 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "learnquest.db")
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{Store: Store{q: db}, db: db}
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

// PingContext checks database connectivity, honoring ctx.
func (d *DB) PingContext(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// WithTx runs fn inside a single write transaction. Any error returned by
// fn, or a panic, rolls the whole transaction back.
func (d *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		// The pool holds a single connection, so BeginTx queues behind any
		// in-flight transaction or read until ctx expires.
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("begin tx: %w: %w", domain.ErrLockTimeout, err)
		}
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	tx := &Tx{Store: Store{q: sqlTx}, tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return classify(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// classify maps SQLite lock contention onto the domain's retryable error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return errors.Join(domain.ErrConcurrencyConflict, err)
	}
	return err
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id               INTEGER PRIMARY KEY,
			total_experience INTEGER NOT NULL DEFAULT 0 CHECK (total_experience >= 0),
			level            INTEGER NOT NULL DEFAULT 1,
			created_at       INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL
		)`,

		// Wallet is a projection of the transaction log
		`CREATE TABLE IF NOT EXISTS wallets (
			user_id      INTEGER PRIMARY KEY,
			coins        INTEGER NOT NULL DEFAULT 0 CHECK (coins >= 0),
			gems         INTEGER NOT NULL DEFAULT 0 CHECK (gems >= 0),
			total_earned INTEGER NOT NULL DEFAULT 0,
			total_spent  INTEGER NOT NULL DEFAULT 0,
			updated_at   INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id         TEXT PRIMARY KEY,
			user_id    INTEGER NOT NULL,
			kind       TEXT NOT NULL,
			currency   TEXT NOT NULL,
			amount     INTEGER NOT NULL CHECK (amount > 0),
			reason     TEXT NOT NULL DEFAULT '',
			source     TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at)`,
		`CREATE TRIGGER IF NOT EXISTS transactions_no_update
			BEFORE UPDATE ON transactions
			BEGIN SELECT RAISE(ABORT, 'transactions are append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS transactions_no_delete
			BEFORE DELETE ON transactions
			BEGIN SELECT RAISE(ABORT, 'transactions are append-only'); END`,

		`CREATE TABLE IF NOT EXISTS streaks (
			user_id            INTEGER NOT NULL,
			streak_type        TEXT NOT NULL,
			current_streak     INTEGER NOT NULL DEFAULT 0,
			longest_streak     INTEGER NOT NULL DEFAULT 0,
			last_activity_date TEXT NOT NULL,
			freezes_available  INTEGER NOT NULL DEFAULT 0,
			freezes_used       INTEGER NOT NULL DEFAULT 0,
			freezes_granted    INTEGER NOT NULL DEFAULT 0,
			updated_at         INTEGER NOT NULL,
			PRIMARY KEY (user_id, streak_type),
			CHECK (longest_streak >= current_streak),
			CHECK (freezes_used <= freezes_granted)
		)`,

		`CREATE TABLE IF NOT EXISTS goals (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id          INTEGER NOT NULL,
			period           TEXT NOT NULL,
			category         TEXT NOT NULL,
			title            TEXT NOT NULL,
			target_value     INTEGER NOT NULL CHECK (target_value > 0),
			current_progress INTEGER NOT NULL DEFAULT 0,
			is_completed     BOOLEAN NOT NULL DEFAULT 0,
			period_date      TEXT NOT NULL,
			completed_at     INTEGER,
			reward_xp        INTEGER NOT NULL DEFAULT 0,
			reward_coins     INTEGER NOT NULL DEFAULT 0,
			created_at       INTEGER NOT NULL,
			UNIQUE (user_id, period, category, period_date),
			CHECK (current_progress >= 0 AND current_progress <= target_value)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_goals_open ON goals(user_id, period, period_date, is_completed)`,

		// Badge catalog and awards
		`CREATE TABLE IF NOT EXISTS badges (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			icon         TEXT NOT NULL DEFAULT '',
			conditions   TEXT NOT NULL,
			xp_reward    INTEGER NOT NULL DEFAULT 0,
			coins_reward INTEGER NOT NULL DEFAULT 0,
			rarity       TEXT NOT NULL DEFAULT 'common'
		)`,
		`CREATE TABLE IF NOT EXISTS user_badges (
			user_id   INTEGER NOT NULL,
			badge_id  TEXT NOT NULL,
			earned_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, badge_id)
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER NOT NULL,
			type       TEXT NOT NULL,
			title      TEXT NOT NULL,
			message    TEXT NOT NULL,
			icon       TEXT NOT NULL DEFAULT '',
			is_read    BOOLEAN NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notif_user ON notifications(user_id, created_at)`,

		// Audit of processed completions (also feeds the stats snapshot)
		`CREATE TABLE IF NOT EXISTS completions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id      INTEGER NOT NULL,
			activity_ref TEXT NOT NULL,
			time_spent   INTEGER NOT NULL,
			score        INTEGER NOT NULL,
			experience   INTEGER NOT NULL,
			coins        INTEGER NOT NULL,
			created_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_completions_user ON completions(user_id)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
