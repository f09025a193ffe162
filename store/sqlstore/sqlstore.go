/*
Package sqlstore provides a database/sql implementation of the billing stores.

PURPOSE:
  Persists groups, periods, members, meters, readings, charge definitions,
  period charges and invoices. Implements billing.Store so the Assembler can
  read configuration and write invoices through it.

DRIVERS:
  sqlite3: github.com/mattn/go-sqlite3 (default, file or ":memory:")
  pgx:     github.com/jackc/pgx/v5/stdlib (PostgreSQL)

  Queries are written with "?" placeholders and rebound to "$n" for pgx.
  The schema only uses TEXT and INTEGER columns so it runs unchanged on both.

STORAGE FORMATS:
  - IDs: UUID strings
  - Money and quantities: decimal strings (never REAL)
  - Timestamps: RFC3339, UTC
  - Invoice date: YYYY-MM-DD

KEY CONSTRAINTS:
  - periods(year, month) unique
  - meter_readings(meter_id, period_id) unique -> billing.ErrDuplicateReading
  - invoices(number) unique (idx_invoices_number) -> billing.ErrDuplicateInvoiceNumber

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The SQLite pool is limited to one
  connection so ":memory:" databases are shared by every query; code inside
  WithTx must only use the transaction.

MIGRATION:
  Schema is auto-migrated on Open().

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/costshare/billing"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Store implements billing.Store and the entity CRUD used by the API.
type Store struct {
	db     *sql.DB
	driver string
	mu     sync.RWMutex
}

var _ billing.Store = (*Store)(nil)

// New creates a SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(DriverSQLite, dbPath)
}

// Open connects with driver ("sqlite3" or "pgx") and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		dsn += "?_foreign_keys=on&_journal_mode=WAL"
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, driver: driver}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cost_groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		manager_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS periods (
		id TEXT PRIMARY KEY,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(year, month)
	)`,

	`CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL REFERENCES cost_groups(id),
		full_name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		floor_area TEXT NOT NULL DEFAULT '0',
		balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_members_group ON members(group_id)`,

	`CREATE TABLE IF NOT EXISTS meters (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id),
		meter_type TEXT NOT NULL,
		unit TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		serial_number TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_meters_member ON meters(member_id)`,

	`CREATE TABLE IF NOT EXISTS meter_readings (
		id TEXT PRIMARY KEY,
		meter_id TEXT NOT NULL REFERENCES meters(id),
		period_id TEXT NOT NULL REFERENCES periods(id),
		value TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_readings_meter_period ON meter_readings(meter_id, period_id)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_period ON meter_readings(period_id)`,

	`CREATE TABLE IF NOT EXISTS charge_definitions (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL REFERENCES cost_groups(id),
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		distribution_type TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'eur',
		meter_type TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_charge_definitions_group ON charge_definitions(group_id)`,

	`CREATE TABLE IF NOT EXISTS period_charges (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL REFERENCES cost_groups(id),
		period_id TEXT NOT NULL REFERENCES periods(id),
		definition_id TEXT NOT NULL REFERENCES charge_definitions(id),
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_period_charges_group_period ON period_charges(group_id, period_id)`,

	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id),
		period_id TEXT NOT NULL REFERENCES periods(id),
		number TEXT NOT NULL,
		invoice_date TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		payable_amount TEXT NOT NULL,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_number ON invoices(number)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_member ON invoices(member_id)`,

	`CREATE TABLE IF NOT EXISTS invoice_items (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoices(id),
		position INTEGER NOT NULL,
		description TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		total TEXT NOT NULL,
		meter_id TEXT REFERENCES meters(id),
		period_charge_id TEXT REFERENCES period_charges(id),
		start_value TEXT,
		end_value TEXT,
		consumed TEXT,
		supplier_amount TEXT,
		total_diff TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice ON invoice_items(invoice_id, position)`,
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Reset deletes all data, children first.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"invoice_items", "invoices", "period_charges", "charge_definitions",
		"meter_readings", "meters", "members", "periods", "cost_groups",
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("reset %s: %w", t, err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (billing.UnitOfWork)
// =============================================================================

// WithTx executes fn within a database transaction. The transaction commits
// only if fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(billing.InvoiceWriter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) InsertInvoice(ctx context.Context, inv billing.Invoice) error {
	return ts.parent.insertInvoice(ctx, ts.tx, inv)
}

func (ts *txStore) InsertInvoiceItem(ctx context.Context, item billing.InvoiceItem) error {
	return ts.parent.insertInvoiceItem(ctx, ts.tx, item)
}

// =============================================================================
// HELPERS
// =============================================================================

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rebind rewrites "?" placeholders to "$n" for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// values resolves driver.Valuer arguments (uuid.UUID, decimal.Decimal) for pgx,
// which would otherwise pick an encoding from the Go type instead of the
// TEXT column.
func (s *Store) values(args []any) []any {
	if s.driver != DriverPostgres {
		return args
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
		if v, ok := a.(driver.Valuer); ok {
			if val, err := v.Value(); err == nil {
				out[i] = val
			}
		}
	}
	return out
}

func (s *Store) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.rebind(query), s.values(args)...)
}

func (s *Store) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.rebind(query), s.values(args)...)
}

func (s *Store) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.rebind(query), s.values(args)...)
}

// expectOne maps "no row updated" to billing.ErrNotFound.
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrNotFound
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// isUniqueViolation reports a unique or primary key violation from either driver.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
