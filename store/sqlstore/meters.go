package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/costshare/billing"
)

// =============================================================================
// METERS
// =============================================================================

const meterColumns = `m.id, m.member_id, m.meter_type, m.unit, m.description, m.serial_number, m.created_at, m.updated_at`

// CreateMeter saves a meter for an existing member. The unit column is
// always written from the meter type.
func (s *Store) CreateMeter(ctx context.Context, m billing.Meter) (billing.Meter, error) {
	if err := m.Validate(); err != nil {
		return billing.Meter{}, err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = now()
	m.UpdatedAt = m.CreatedAt

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getMember(ctx, s.db, m.MemberID); err != nil {
		return billing.Meter{}, err
	}

	_, err := s.exec(ctx, s.db, `
		INSERT INTO meters (id, member_id, meter_type, unit, description, serial_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.MemberID, string(m.Type), string(m.Unit()), m.Description, m.SerialNumber,
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	if err != nil {
		return billing.Meter{}, fmt.Errorf("failed to create meter: %w", err)
	}
	return m, nil
}

// UpdateMeter changes the meter's type, description and serial number. The
// meter must belong to m.MemberID.
func (s *Store) UpdateMeter(ctx context.Context, m billing.Meter) (billing.Meter, error) {
	if err := m.Validate(); err != nil {
		return billing.Meter{}, err
	}
	m.UpdatedAt = now()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := expectOne(s.exec(ctx, s.db, `
		UPDATE meters
		SET meter_type = ?, unit = ?, description = ?, serial_number = ?, updated_at = ?
		WHERE id = ? AND member_id = ?`,
		string(m.Type), string(m.Unit()), m.Description, m.SerialNumber, formatTime(m.UpdatedAt),
		m.ID, m.MemberID,
	))
	if err != nil {
		return billing.Meter{}, err
	}
	return s.getMeter(ctx, s.db, m.ID)
}

// GetMeter retrieves a meter by ID.
func (s *Store) GetMeter(ctx context.Context, id uuid.UUID) (*billing.Meter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.getMeter(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MemberMeters returns the meters owned by a member.
func (s *Store) MemberMeters(ctx context.Context, memberID uuid.UUID) ([]billing.Meter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMeters(ctx, `
		SELECT `+meterColumns+` FROM meters m
		WHERE m.member_id = ?
		ORDER BY m.meter_type, m.serial_number`, memberID)
}

// GroupMeters returns the meters of every member of the group.
func (s *Store) GroupMeters(ctx context.Context, groupID uuid.UUID) ([]billing.Meter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMeters(ctx, `
		SELECT `+meterColumns+` FROM meters m
		JOIN members c ON c.id = m.member_id
		WHERE c.group_id = ?
		ORDER BY c.full_name, m.meter_type, m.serial_number`, groupID)
}

func (s *Store) queryMeters(ctx context.Context, query string, args ...any) ([]billing.Meter, error) {
	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meters []billing.Meter
	for rows.Next() {
		m, err := scanMeter(rows)
		if err != nil {
			return nil, err
		}
		meters = append(meters, m)
	}
	return meters, rows.Err()
}

func (s *Store) getMeter(ctx context.Context, q querier, id uuid.UUID) (billing.Meter, error) {
	m, err := scanMeter(s.queryRow(ctx, q, `SELECT `+meterColumns+` FROM meters m WHERE m.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Meter{}, fmt.Errorf("meter %s: %w", id, billing.ErrNotFound)
	}
	return m, err
}

// scanMeter rejects rows whose stored unit disagrees with the meter type.
func scanMeter(row scanner) (billing.Meter, error) {
	var m billing.Meter
	var meterType, unit, createdAt, updatedAt string
	if err := row.Scan(&m.ID, &m.MemberID, &meterType, &unit, &m.Description, &m.SerialNumber, &createdAt, &updatedAt); err != nil {
		return billing.Meter{}, err
	}
	m.Type = billing.MeterType(meterType)
	if err := m.CheckUnit(billing.Unit(unit)); err != nil {
		return billing.Meter{}, fmt.Errorf("meter %s: %w", m.ID, err)
	}
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return m, nil
}

// =============================================================================
// METER READINGS
// =============================================================================

// ReadingRecord is a reading joined with its meter and period for listings.
type ReadingRecord struct {
	billing.MeterReading
	Meter  billing.Meter
	Period billing.Period
}

// CreateReading saves a reading submitted by memberID. The meter must belong
// to that member and have no reading for the period yet.
func (s *Store) CreateReading(ctx context.Context, memberID uuid.UUID, r billing.MeterReading) (billing.MeterReading, error) {
	if err := r.Validate(); err != nil {
		return billing.MeterReading{}, err
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = now()
	r.UpdatedAt = r.CreatedAt

	s.mu.Lock()
	defer s.mu.Unlock()

	meter, err := s.getMeter(ctx, s.db, r.MeterID)
	if err != nil {
		return billing.MeterReading{}, err
	}
	if meter.MemberID != memberID {
		return billing.MeterReading{}, billing.ErrMeterNotOwned
	}
	if _, err := s.getPeriod(ctx, s.db, r.PeriodID); err != nil {
		return billing.MeterReading{}, err
	}

	_, err = s.exec(ctx, s.db, `
		INSERT INTO meter_readings (id, meter_id, period_id, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.MeterID, r.PeriodID, r.Value, formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return billing.MeterReading{}, billing.ErrDuplicateReading
		}
		return billing.MeterReading{}, fmt.Errorf("failed to create reading: %w", err)
	}
	return r, nil
}

// ListReadings returns the readings of all meters of a member, newest period first.
func (s *Store) ListReadings(ctx context.Context, memberID uuid.UUID) ([]ReadingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.query(ctx, s.db, `
		SELECT r.id, r.meter_id, r.period_id, r.value, r.created_at, r.updated_at,
		       `+meterColumns+`,
		       p.id, p.year, p.month, p.created_at, p.updated_at
		FROM meter_readings r
		JOIN meters m ON m.id = r.meter_id
		JOIN periods p ON p.id = r.period_id
		WHERE m.member_id = ?
		ORDER BY p.year DESC, p.month DESC, m.meter_type, m.serial_number`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ReadingRecord
	for rows.Next() {
		var rec ReadingRecord
		var rCreated, rUpdated, meterType, unit, mCreated, mUpdated, pCreated, pUpdated string
		err := rows.Scan(
			&rec.ID, &rec.MeterID, &rec.PeriodID, &rec.Value, &rCreated, &rUpdated,
			&rec.Meter.ID, &rec.Meter.MemberID, &meterType, &unit, &rec.Meter.Description, &rec.Meter.SerialNumber, &mCreated, &mUpdated,
			&rec.Period.ID, &rec.Period.Year, &rec.Period.Month, &pCreated, &pUpdated,
		)
		if err != nil {
			return nil, err
		}
		rec.CreatedAt, rec.UpdatedAt = parseTime(rCreated), parseTime(rUpdated)
		rec.Meter.Type = billing.MeterType(meterType)
		if err := rec.Meter.CheckUnit(billing.Unit(unit)); err != nil {
			return nil, err
		}
		rec.Meter.CreatedAt, rec.Meter.UpdatedAt = parseTime(mCreated), parseTime(mUpdated)
		rec.Period.CreatedAt, rec.Period.UpdatedAt = parseTime(pCreated), parseTime(pUpdated)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Reading returns the meter's reading in the period, or nil if none exists.
func (s *Store) Reading(ctx context.Context, meterID, periodID uuid.UUID) (*billing.MeterReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r billing.MeterReading
	var createdAt, updatedAt string
	err := s.queryRow(ctx, s.db, `
		SELECT id, meter_id, period_id, value, created_at, updated_at
		FROM meter_readings WHERE meter_id = ? AND period_id = ?`, meterID, periodID,
	).Scan(&r.ID, &r.MeterID, &r.PeriodID, &r.Value, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// GroupReadingsTotal sums the period's readings of meterType across the group.
// Values are summed as decimals, not in SQL, so no precision is lost.
func (s *Store) GroupReadingsTotal(ctx context.Context, groupID uuid.UUID, meterType billing.MeterType, periodID uuid.UUID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.query(ctx, s.db, `
		SELECT r.value
		FROM meter_readings r
		JOIN meters m ON m.id = r.meter_id
		JOIN members c ON c.id = m.member_id
		WHERE c.group_id = ? AND m.meter_type = ? AND r.period_id = ?`,
		groupID, string(meterType), periodID)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var v decimal.Decimal
		if err := rows.Scan(&v); err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(v)
	}
	return sum, rows.Err()
}
