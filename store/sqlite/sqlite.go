/*
Package sqlite provides a SQLite-backed implementation of the booking
collaborators.

PURPOSE:
  Implements every interface the engine consumes (CapacityStore,
  ResourceCatalog, MaintenanceRegistry, SettingsProvider, CustomerLookup,
  VoucherService) plus the commitment purge, in one embedded database.

INTERFACES IMPLEMENTED:
  booking.CapacityStore:       Snapshot, Reserve, Cancel
  booking.CommitmentPurger:    PurgeBefore
  booking.ResourceCatalog:     Resource
  booking.MaintenanceRegistry: BlackoutDays
  booking.SettingsProvider:    Settings (JSON parsed by factory)
  booking.CustomerLookup:      LookupCustomer
  booking.VoucherService:      ValidateVoucher

KEY TABLES:
  resources:        Capacity and base price per lot
  special_prices:   Date-specific price overrides
  blackouts:        Maintenance days
  reservations:     One row per booking (kept after cancel/purge)
  commitments:      One row per reserved day; summed into committed counts
  capacity_version: Single-row sequence bumped by every capacity write
  settings:         Engine settings JSON
  customers:        Phone -> VIP status
  vouchers:         Voucher rules

CONCURRENCY:
  Writes take sync.RWMutex and run in one SQL transaction that re-reads
  committed counts before inserting, so two writers in this process can
  never both pass the capacity check. Snapshots are plain read
  transactions: under WAL every query inside one sees the same database
  state, and they do not take the mutex.

WAL MODE:
  File databases are opened with WAL so snapshot readers never block the
  writer. ":memory:" databases are pinned to one connection, since every
  new connection would otherwise see its own empty database.

USAGE:
  store, err := sqlite.New("./data/parking.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := &booking.Engine{Catalog: store, Capacity: store, ...}

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - booking/store.go: Interface definitions
  - booking/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL capacity store
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/calendar"
)

// Store implements all booking collaborators using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ booking.CapacityStore       = (*Store)(nil)
	_ booking.CommitmentPurger    = (*Store)(nil)
	_ booking.ResourceCatalog     = (*Store)(nil)
	_ booking.MaintenanceRegistry = (*Store)(nil)
	_ booking.SettingsProvider    = (*Store)(nil)
	_ booking.CustomerLookup      = (*Store)(nil)
	_ booking.VoucherService      = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

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
	-- Parking resources
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		total_capacity INTEGER NOT NULL CHECK (total_capacity >= 0),
		price_per_day TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Date-specific price overrides
	CREATE TABLE IF NOT EXISTS special_prices (
		resource_id TEXT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
		day TEXT NOT NULL,
		price TEXT NOT NULL,
		reason TEXT,
		PRIMARY KEY (resource_id, day)
	);

	-- Maintenance blackouts
	CREATE TABLE IF NOT EXISTS blackouts (
		resource_id TEXT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
		day TEXT NOT NULL,
		reason TEXT,
		PRIMARY KEY (resource_id, day)
	);

	-- Reservations
	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		resource_id TEXT NOT NULL REFERENCES resources(id),
		first_day TEXT NOT NULL,
		last_day TEXT NOT NULL,
		vehicle_count INTEGER NOT NULL CHECK (vehicle_count > 0),
		phone TEXT,
		voucher_code TEXT,
		final_amount TEXT NOT NULL,
		check_in TEXT,
		check_out TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		cancelled_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_resource
		ON reservations(resource_id, first_day);

	-- Per-day commitments (summed into committed counts)
	CREATE TABLE IF NOT EXISTS commitments (
		reservation_id TEXT NOT NULL REFERENCES reservations(id) ON DELETE CASCADE,
		resource_id TEXT NOT NULL,
		day TEXT NOT NULL,
		vehicle_count INTEGER NOT NULL,
		PRIMARY KEY (reservation_id, day)
	);

	-- Hot path: committed count per resource and day range
	CREATE INDEX IF NOT EXISTS idx_commitments_resource_day
		ON commitments(resource_id, day);

	-- Capacity write sequence (snapshot version token)
	CREATE TABLE IF NOT EXISTS capacity_version (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		seq INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO capacity_version (id, seq) VALUES (1, 0);

	-- Engine settings
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		config_json TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	);

	-- Customers
	CREATE TABLE IF NOT EXISTS customers (
		phone TEXT PRIMARY KEY,
		name TEXT,
		is_vip INTEGER NOT NULL DEFAULT 0,
		vip_percent TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	-- Vouchers
	CREATE TABLE IF NOT EXISTS vouchers (
		code TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		value TEXT NOT NULL,
		resource_id TEXT,
		valid_from TEXT,
		valid_to TEXT,
		min_amount TEXT NOT NULL DEFAULT '0',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx executes fn within a database transaction under the write lock.
// If fn returns error, the transaction is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		tables := []string{"commitments", "reservations", "special_prices", "blackouts",
			"resources", "customers", "vouchers", "settings"}
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return bumpVersion(ctx, tx)
	})
}

func bumpVersion(ctx context.Context, db execer) error {
	_, err := db.ExecContext(ctx, "UPDATE capacity_version SET seq = seq + 1 WHERE id = 1")
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d calendar.Date) sql.NullString {
	return nullString(d.String())
}

func parseNullDate(ns sql.NullString) (calendar.Date, error) {
	if !ns.Valid || ns.String == "" {
		return calendar.Date{}, nil
	}
	return calendar.ParseDate(ns.String)
}

func parseDecimal(column, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt %s %q: %w", column, value, err)
	}
	return d, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
