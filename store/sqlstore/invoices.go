package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/costshare/billing"
)

// =============================================================================
// INVOICES (write side, only reachable through WithTx)
// =============================================================================

const invoiceDateLayout = "2006-01-02"

func (s *Store) insertInvoice(ctx context.Context, q querier, inv billing.Invoice) error {
	_, err := s.exec(ctx, q, `
		INSERT INTO invoices (id, member_id, period_id, number, invoice_date, total_amount, payable_amount, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.MemberID, inv.PeriodID, inv.Number, inv.Date.Format(invoiceDateLayout),
		inv.TotalAmount, inv.PayableAmount, inv.Balance,
		formatTime(inv.CreatedAt), formatTime(inv.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("invoice number %s: %w", inv.Number, billing.ErrDuplicateInvoiceNumber)
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

func (s *Store) insertInvoiceItem(ctx context.Context, q querier, it billing.InvoiceItem) error {
	var position int
	if err := s.queryRow(ctx, q, `SELECT COUNT(*) FROM invoice_items WHERE invoice_id = ?`, it.InvoiceID).Scan(&position); err != nil {
		return err
	}

	_, err := s.exec(ctx, q, `
		INSERT INTO invoice_items
		(id, invoice_id, position, description, quantity, unit_price, total, meter_id, period_charge_id,
		 start_value, end_value, consumed, supplier_amount, total_diff, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.InvoiceID, position, it.Description, it.Quantity, it.UnitPrice, it.Total,
		it.MeterID(), it.PeriodChargeID(),
		nullDecimal(it.StartValue), nullDecimal(it.EndValue), nullDecimal(it.Consumed),
		nullDecimal(it.SupplierAmount), nullDecimal(it.TotalDiff),
		formatTime(it.CreatedAt), formatTime(it.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert invoice item: %w", err)
	}
	return nil
}

// =============================================================================
// INVOICES (read side)
// =============================================================================

const invoiceColumns = `id, member_id, period_id, number, invoice_date, total_amount, payable_amount, balance, created_at, updated_at`

// GetInvoice returns an invoice with its items in insertion order. Each item's
// Meter and Charge references are loaded.
func (s *Store) GetInvoice(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, err := scanInvoice(s.queryRow(ctx, s.db, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %s: %w", id, billing.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	items, refs, err := s.loadItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}

	// References are resolved after the item rows are closed; the SQLite pool
	// has a single connection.
	meters := make(map[uuid.UUID]*billing.Meter)
	charges := make(map[uuid.UUID]*billing.PeriodCharge)
	for i, ref := range refs {
		if ref.meterID.Valid {
			m, ok := meters[ref.meterID.UUID]
			if !ok {
				meter, err := s.getMeter(ctx, s.db, ref.meterID.UUID)
				if err != nil {
					return nil, err
				}
				m = &meter
				meters[meter.ID] = m
			}
			items[i].Meter = m
		}
		if ref.chargeID.Valid {
			pc, ok := charges[ref.chargeID.UUID]
			if !ok {
				charge, err := s.getPeriodCharge(ctx, s.db, ref.chargeID.UUID)
				if err != nil {
					return nil, err
				}
				pc = &charge
				charges[charge.ID] = pc
			}
			items[i].Charge = pc
		}
	}
	inv.Items = items
	return &inv, nil
}

// ListInvoices returns the member's invoices without items, newest first.
func (s *Store) ListInvoices(ctx context.Context, memberID uuid.UUID) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.query(ctx, s.db,
		`SELECT `+invoiceColumns+` FROM invoices WHERE member_id = ? ORDER BY created_at DESC, number DESC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// CountInvoices returns the number of stored invoices.
func (s *Store) CountInvoices(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM invoices`).Scan(&n)
	return n, err
}

type itemRefs struct {
	meterID  uuid.NullUUID
	chargeID uuid.NullUUID
}

func (s *Store) loadItems(ctx context.Context, invoiceID uuid.UUID) ([]billing.InvoiceItem, []itemRefs, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT id, invoice_id, description, quantity, unit_price, total, meter_id, period_charge_id,
		       start_value, end_value, consumed, supplier_amount, total_diff, created_at, updated_at
		FROM invoice_items WHERE invoice_id = ? ORDER BY position`, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var items []billing.InvoiceItem
	var refs []itemRefs
	for rows.Next() {
		var it billing.InvoiceItem
		var ref itemRefs
		var start, end, consumed, supplier, totalDiff decimal.NullDecimal
		var createdAt, updatedAt string
		err := rows.Scan(&it.ID, &it.InvoiceID, &it.Description, &it.Quantity, &it.UnitPrice, &it.Total,
			&ref.meterID, &ref.chargeID, &start, &end, &consumed, &supplier, &totalDiff, &createdAt, &updatedAt)
		if err != nil {
			return nil, nil, err
		}
		it.StartValue = decimalPtr(start)
		it.EndValue = decimalPtr(end)
		it.Consumed = decimalPtr(consumed)
		it.SupplierAmount = decimalPtr(supplier)
		it.TotalDiff = decimalPtr(totalDiff)
		it.CreatedAt = parseTime(createdAt)
		it.UpdatedAt = parseTime(updatedAt)
		items = append(items, it)
		refs = append(refs, ref)
	}
	return items, refs, rows.Err()
}

func scanInvoice(row scanner) (billing.Invoice, error) {
	var inv billing.Invoice
	var date, createdAt, updatedAt string
	err := row.Scan(&inv.ID, &inv.MemberID, &inv.PeriodID, &inv.Number, &date,
		&inv.TotalAmount, &inv.PayableAmount, &inv.Balance, &createdAt, &updatedAt)
	if err != nil {
		return billing.Invoice{}, err
	}
	inv.Date, _ = time.Parse(invoiceDateLayout, date)
	inv.CreatedAt = parseTime(createdAt)
	inv.UpdatedAt = parseTime(updatedAt)
	return inv, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
