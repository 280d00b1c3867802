/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.TxStore and generic.Token in one database, so a release
  commits its release entries, event, and token transfer in a single SQL
  transaction. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  generic.TxStore: Schedules, releases, pool deposits, settings, events
  generic.Token:   Balances, allowances, burn, total supply
  generic.Minter:  Genesis allocations

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on schedules, releases, pool_deposits
  - Released/Rewarded are summed from releases, never stored

KEY TABLES:
  schedules:        One row per deposit
  releases:         One row per schedule per release call
  pool_deposits:    Reward pool contributions
  settings:         Operator, token supply
  unit_rewards:     Duration unit table
  events:           Notifications, written in the same transaction
  token_balances:   Holder balances
  token_allowances: Owner/spender allowances
  release_runs:     Auto-release sweep history

DECIMALS AND TIMES:
  Amounts and rates are stored as base-10 integer strings. Times are RFC3339
  UTC strings. Ordering uses the seq column, never timestamps.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so
  ":memory:" databases are shared by every call. Methods of the transaction
  view never take the mutex; WithTx holds it for the whole callback.

USAGE:
  store, err := sqlite.New("./data/vesting.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine, err := generic.NewEngine(ctx, store, nil, cfg)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/vesting-engine/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Schedules (append-only, one per deposit)
	CREATE TABLE IF NOT EXISTS schedules (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		beneficiary TEXT NOT NULL,
		depositor TEXT NOT NULL,
		start_at TEXT NOT NULL,
		duration INTEGER NOT NULL CHECK (duration >= 1),
		unit TEXT NOT NULL,
		amount_total TEXT NOT NULL,
		yield_rate TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_beneficiary
		ON schedules(beneficiary, seq);

	-- Release entries (append-only)
	CREATE TABLE IF NOT EXISTS releases (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		release_id TEXT NOT NULL,
		schedule_id TEXT NOT NULL REFERENCES schedules(id),
		beneficiary TEXT NOT NULL,
		principal TEXT NOT NULL,
		reward TEXT NOT NULL,
		released_at TEXT NOT NULL,
		UNIQUE(release_id, schedule_id)
	);

	CREATE INDEX IF NOT EXISTS idx_releases_schedule
		ON releases(schedule_id, seq);
	CREATE INDEX IF NOT EXISTS idx_releases_beneficiary
		ON releases(beneficiary);

	-- Reward pool (append-only)
	CREATE TABLE IF NOT EXISTS pool_deposits (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		depositor TEXT NOT NULL,
		amount TEXT NOT NULL,
		deposited_at TEXT NOT NULL
	);

	-- Mutable settings (operator, token supply)
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- Duration unit table
	CREATE TABLE IF NOT EXISTS unit_rewards (
		unit TEXT PRIMARY KEY,
		seconds_per_unit INTEGER NOT NULL CHECK (seconds_per_unit > 0),
		reward_rate TEXT NOT NULL,
		multiplier TEXT NOT NULL
	);

	-- Events
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		account TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_account
		ON events(account, seq);
	CREATE INDEX IF NOT EXISTS idx_events_type
		ON events(type, seq);

	-- Token ledger
	CREATE TABLE IF NOT EXISTS token_balances (
		holder TEXT PRIMARY KEY,
		balance TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS token_allowances (
		owner TEXT NOT NULL,
		spender TEXT NOT NULL,
		amount TEXT NOT NULL,
		PRIMARY KEY (owner, spender)
	);

	-- Auto-release sweeps
	CREATE TABLE IF NOT EXISTS release_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'running',
		beneficiaries INTEGER DEFAULT 0,
		released INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		principal TEXT NOT NULL DEFAULT '0',
		reward TEXT NOT NULL DEFAULT '0',
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_release_runs_status
		ON release_runs(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// VIEW - Queries shared by the store and its transactions
// =============================================================================

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// view runs every query against one querier. Inside WithTx it is the
// generic.Store handed to the callback, and it is also a generic.Token, so
// token moves commit with the rest of the transaction.
type view struct {
	q querier
}

var (
	_ generic.TxStore = (*Store)(nil)
	_ generic.Token   = (*Store)(nil)
	_ generic.Minter  = (*Store)(nil)
	_ generic.Store   = view{}
	_ generic.Token   = view{}
)

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// inTx runs fn inside one database transaction while holding the write lock.
func (s *Store) inTx(ctx context.Context, fn func(v view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(view{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	return s.inTx(ctx, func(v view) error { return fn(v) })
}

// read returns a view over the shared connection. Callers hold s.mu.RLock.
func (s *Store) read() view {
	return view{q: s.db}
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"releases", "schedules", "pool_deposits", "settings", "unit_rewards",
		"events", "token_balances", "token_allowances", "release_runs",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// parseTime reads an RFC 3339 column value.
func parseTime(column, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", column, value, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
