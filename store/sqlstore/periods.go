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
// PERIODS
// =============================================================================

const periodColumns = `p.id, p.year, p.month, p.created_at, p.updated_at`

// GetOrCreatePeriod returns the period for (year, month), creating it if it
// does not exist yet.
func (s *Store) GetOrCreatePeriod(ctx context.Context, year, month int) (billing.Period, error) {
	ym := billing.YearMonth{Year: year, Month: month}
	if err := ym.Validate(); err != nil {
		return billing.Period{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.findPeriod(ctx, s.db, year, month)
	if err != nil {
		return billing.Period{}, err
	}
	if p != nil {
		return *p, nil
	}

	created := billing.Period{ID: uuid.New(), Year: year, Month: month, CreatedAt: now()}
	created.UpdatedAt = created.CreatedAt
	_, err = s.exec(ctx, s.db, `
		INSERT INTO periods (id, year, month, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		created.ID, created.Year, created.Month, formatTime(created.CreatedAt), formatTime(created.UpdatedAt),
	)
	if err != nil {
		return billing.Period{}, fmt.Errorf("failed to create period %s: %w", ym, err)
	}
	return created, nil
}

// GetPeriod retrieves a period by ID.
func (s *Store) GetPeriod(ctx context.Context, id uuid.UUID) (*billing.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.getPeriod(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPeriod returns the period for (year, month), or nil if none exists.
func (s *Store) FindPeriod(ctx context.Context, year, month int) (*billing.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.findPeriod(ctx, s.db, year, month)
}

// ListPeriods returns all periods, newest first.
func (s *Store) ListPeriods(ctx context.Context) ([]billing.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPeriods(ctx, `SELECT `+periodColumns+` FROM periods p ORDER BY p.year DESC, p.month DESC`)
}

// GroupPeriods returns the periods that have at least one charge configured
// for the group, newest first.
func (s *Store) GroupPeriods(ctx context.Context, groupID uuid.UUID) ([]billing.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPeriods(ctx, `
		SELECT `+periodColumns+` FROM periods p
		WHERE EXISTS (SELECT 1 FROM period_charges pc WHERE pc.period_id = p.id AND pc.group_id = ?)
		ORDER BY p.year DESC, p.month DESC`, groupID)
}

func (s *Store) queryPeriods(ctx context.Context, query string, args ...any) ([]billing.Period, error) {
	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []billing.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (s *Store) getPeriod(ctx context.Context, q querier, id uuid.UUID) (billing.Period, error) {
	p, err := scanPeriod(s.queryRow(ctx, q, `SELECT `+periodColumns+` FROM periods p WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Period{}, fmt.Errorf("period %s: %w", id, billing.ErrNotFound)
	}
	return p, err
}

func (s *Store) findPeriod(ctx context.Context, q querier, year, month int) (*billing.Period, error) {
	p, err := scanPeriod(s.queryRow(ctx, q,
		`SELECT `+periodColumns+` FROM periods p WHERE p.year = ? AND p.month = ?`, year, month))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPeriod(row scanner) (billing.Period, error) {
	var p billing.Period
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Year, &p.Month, &createdAt, &updatedAt); err != nil {
		return billing.Period{}, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}
