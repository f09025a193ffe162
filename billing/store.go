/*
store.go - Persistence interfaces used by the engine

PURPOSE:
  The engine reads configured charges, members, meters and readings through
  Repository, and writes invoices through a UnitOfWork. Entity CRUD lives in
  the concrete stores; the engine only needs query-by-key access.

KEY INTERFACES:
  Repository:    read-only lookups by (group, period) and (meter, period)
  UnitOfWork:    scoped transaction for invoice + items
  InvoiceWriter: the writes allowed inside a UnitOfWork

ATOMICITY:
  WithTx commits only if fn returns nil. On any error, or a panic, the
  transaction is rolled back, so a reader never observes an invoice header
  without its items or items without their header.

IMPLEMENTATIONS:
  - billing/store/memory.go: in-memory, for tests and demos
  - store/sqlstore: SQLite / PostgreSQL
*/
package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// REPOSITORY - Read side
// =============================================================================

// Repository is the read-only view of configuration and readings.
type Repository interface {
	// PeriodCharges returns the charges configured for a group in a period,
	// each with its ChargeDefinition populated.
	PeriodCharges(ctx context.Context, groupID, periodID uuid.UUID) ([]PeriodCharge, error)

	// GroupMembers returns every member of the group.
	GroupMembers(ctx context.Context, groupID uuid.UUID) ([]Member, error)

	// MemberMeters returns the meters owned by a member.
	MemberMeters(ctx context.Context, memberID uuid.UUID) ([]Meter, error)

	// FindPeriod returns the period for (year, month), or nil if none exists.
	FindPeriod(ctx context.Context, year, month int) (*Period, error)

	// Reading returns the meter's reading in the period, or nil if none exists.
	Reading(ctx context.Context, meterID, periodID uuid.UUID) (*MeterReading, error)

	// GroupReadingsTotal sums every reading in the period for meters of the
	// given type owned by members of the group.
	GroupReadingsTotal(ctx context.Context, groupID uuid.UUID, meterType MeterType, periodID uuid.UUID) (decimal.Decimal, error)
}

// =============================================================================
// UNIT OF WORK - Write side
// =============================================================================

// InvoiceWriter persists an invoice and its items.
type InvoiceWriter interface {
	// InsertInvoice writes the invoice header. Returns ErrDuplicateInvoiceNumber
	// when the number is taken.
	InsertInvoice(ctx context.Context, inv Invoice) error

	// InsertInvoiceItem writes one item of an already inserted invoice.
	InsertInvoiceItem(ctx context.Context, item InvoiceItem) error
}

// UnitOfWork runs fn inside a transaction.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(InvoiceWriter) error) error
}

// Store is everything the Assembler needs.
type Store interface {
	Repository
	UnitOfWork
}
