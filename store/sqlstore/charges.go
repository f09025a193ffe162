package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/warp/costshare/billing"
)

// =============================================================================
// CHARGE DEFINITIONS
// =============================================================================

const definitionColumns = `d.id, d.group_id, d.name, d.description, d.distribution_type, d.currency, d.meter_type, d.created_at, d.updated_at`

// CreateDefinition saves a charge definition. Currency defaults to eur.
func (s *Store) CreateDefinition(ctx context.Context, d billing.ChargeDefinition) (billing.ChargeDefinition, error) {
	if d.Currency == "" {
		d.Currency = billing.CurrencyEUR
	}
	if err := d.Validate(); err != nil {
		return billing.ChargeDefinition{}, err
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = now()
	d.UpdatedAt = d.CreatedAt

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.groupExists(ctx, s.db, d.GroupID); err != nil {
		return billing.ChargeDefinition{}, err
	}

	_, err := s.exec(ctx, s.db, `
		INSERT INTO charge_definitions (id, group_id, name, description, distribution_type, currency, meter_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.GroupID, d.Name, d.Description, string(d.Rule), string(d.Currency),
		nullString(string(d.MeterType)), formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		return billing.ChargeDefinition{}, fmt.Errorf("failed to create charge definition: %w", err)
	}
	return d, nil
}

// UpdateDefinition overwrites a definition of d.GroupID.
func (s *Store) UpdateDefinition(ctx context.Context, d billing.ChargeDefinition) (billing.ChargeDefinition, error) {
	if d.Currency == "" {
		d.Currency = billing.CurrencyEUR
	}
	if err := d.Validate(); err != nil {
		return billing.ChargeDefinition{}, err
	}
	d.UpdatedAt = now()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := expectOne(s.exec(ctx, s.db, `
		UPDATE charge_definitions
		SET name = ?, description = ?, distribution_type = ?, currency = ?, meter_type = ?, updated_at = ?
		WHERE id = ? AND group_id = ?`,
		d.Name, d.Description, string(d.Rule), string(d.Currency), nullString(string(d.MeterType)),
		formatTime(d.UpdatedAt), d.ID, d.GroupID,
	))
	if err != nil {
		return billing.ChargeDefinition{}, err
	}
	return s.getDefinition(ctx, s.db, d.ID)
}

// GetDefinition retrieves a charge definition by ID.
func (s *Store) GetDefinition(ctx context.Context, id uuid.UUID) (*billing.ChargeDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, err := s.getDefinition(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDefinitions returns the group's charge definitions by name.
func (s *Store) ListDefinitions(ctx context.Context, groupID uuid.UUID) ([]billing.ChargeDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.query(ctx, s.db,
		`SELECT `+definitionColumns+` FROM charge_definitions d WHERE d.group_id = ? ORDER BY d.name`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []billing.ChargeDefinition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func (s *Store) getDefinition(ctx context.Context, q querier, id uuid.UUID) (billing.ChargeDefinition, error) {
	d, err := scanDefinition(s.queryRow(ctx, q,
		`SELECT `+definitionColumns+` FROM charge_definitions d WHERE d.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return billing.ChargeDefinition{}, fmt.Errorf("charge definition %s: %w", id, billing.ErrNotFound)
	}
	return d, err
}

func scanDefinition(row scanner) (billing.ChargeDefinition, error) {
	var d billing.ChargeDefinition
	var rule, currency, createdAt, updatedAt string
	var meterType sql.NullString
	err := row.Scan(&d.ID, &d.GroupID, &d.Name, &d.Description, &rule, &currency, &meterType, &createdAt, &updatedAt)
	if err != nil {
		return billing.ChargeDefinition{}, err
	}
	d.Rule = billing.Rule(rule)
	d.Currency = billing.Currency(currency)
	d.MeterType = billing.MeterType(meterType.String)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return d, nil
}

// =============================================================================
// PERIOD CHARGES
// =============================================================================

const periodChargeQuery = `
	SELECT pc.id, pc.group_id, pc.period_id, pc.amount, pc.created_at, pc.updated_at, ` + definitionColumns + `
	FROM period_charges pc
	JOIN charge_definitions d ON d.id = pc.definition_id`

// CreatePeriodCharge saves the amount of a definition for a period. The
// definition is reloaded so a caller cannot attach another group's definition.
func (s *Store) CreatePeriodCharge(ctx context.Context, pc billing.PeriodCharge) (billing.PeriodCharge, error) {
	if pc.ID == uuid.Nil {
		pc.ID = uuid.New()
	}
	pc.CreatedAt = now()
	pc.UpdatedAt = pc.CreatedAt

	s.mu.Lock()
	defer s.mu.Unlock()

	def, err := s.getDefinition(ctx, s.db, pc.Definition.ID)
	if err != nil {
		return billing.PeriodCharge{}, err
	}
	pc.Definition = def
	if err := pc.Validate(); err != nil {
		return billing.PeriodCharge{}, err
	}
	if _, err := s.getPeriod(ctx, s.db, pc.PeriodID); err != nil {
		return billing.PeriodCharge{}, err
	}

	_, err = s.exec(ctx, s.db, `
		INSERT INTO period_charges (id, group_id, period_id, definition_id, amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pc.ID, pc.GroupID, pc.PeriodID, def.ID, pc.Amount, formatTime(pc.CreatedAt), formatTime(pc.UpdatedAt),
	)
	if err != nil {
		return billing.PeriodCharge{}, fmt.Errorf("failed to create period charge: %w", err)
	}
	return pc, nil
}

// ListPeriodCharges returns every period charge of the group.
func (s *Store) ListPeriodCharges(ctx context.Context, groupID uuid.UUID) ([]billing.PeriodCharge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPeriodCharges(ctx, s.db, periodChargeQuery+`
		JOIN periods p ON p.id = pc.period_id
		WHERE pc.group_id = ?
		ORDER BY p.year DESC, p.month DESC, d.name`, groupID)
}

// PeriodCharges returns the charges configured for a group in a period, each
// with its definition.
func (s *Store) PeriodCharges(ctx context.Context, groupID, periodID uuid.UUID) ([]billing.PeriodCharge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPeriodCharges(ctx, s.db, periodChargeQuery+`
		WHERE pc.group_id = ? AND pc.period_id = ?
		ORDER BY pc.created_at, pc.id`, groupID, periodID)
}

func (s *Store) getPeriodCharge(ctx context.Context, q querier, id uuid.UUID) (billing.PeriodCharge, error) {
	pcs, err := s.queryPeriodCharges(ctx, q, periodChargeQuery+` WHERE pc.id = ?`, id)
	if err != nil {
		return billing.PeriodCharge{}, err
	}
	if len(pcs) == 0 {
		return billing.PeriodCharge{}, fmt.Errorf("period charge %s: %w", id, billing.ErrNotFound)
	}
	return pcs[0], nil
}

func (s *Store) queryPeriodCharges(ctx context.Context, q querier, query string, args ...any) ([]billing.PeriodCharge, error) {
	rows, err := s.query(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var charges []billing.PeriodCharge
	for rows.Next() {
		var pc billing.PeriodCharge
		var createdAt, updatedAt string
		var d billing.ChargeDefinition
		var rule, currency, dCreated, dUpdated string
		var meterType sql.NullString
		err := rows.Scan(&pc.ID, &pc.GroupID, &pc.PeriodID, &pc.Amount, &createdAt, &updatedAt,
			&d.ID, &d.GroupID, &d.Name, &d.Description, &rule, &currency, &meterType, &dCreated, &dUpdated)
		if err != nil {
			return nil, err
		}
		d.Rule = billing.Rule(rule)
		d.Currency = billing.Currency(currency)
		d.MeterType = billing.MeterType(meterType.String)
		d.CreatedAt, d.UpdatedAt = parseTime(dCreated), parseTime(dUpdated)
		pc.Definition = d
		pc.CreatedAt, pc.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
		charges = append(charges, pc)
	}
	return charges, rows.Err()
}
