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
// MEMBERS
// =============================================================================

const memberColumns = `id, group_id, full_name, email, phone, address, floor_area, balance, created_at, updated_at`

// CreateMember saves a new member of an existing group.
func (s *Store) CreateMember(ctx context.Context, m billing.Member) (billing.Member, error) {
	if err := m.Validate(); err != nil {
		return billing.Member{}, err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = now()
	m.UpdatedAt = m.CreatedAt

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.groupExists(ctx, s.db, m.GroupID); err != nil {
		return billing.Member{}, err
	}

	_, err := s.exec(ctx, s.db, `
		INSERT INTO members (`+memberColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.GroupID, m.FullName, m.Email, m.Phone, m.Address,
		m.FloorArea, m.Balance, formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	if err != nil {
		return billing.Member{}, fmt.Errorf("failed to create member: %w", err)
	}
	return m, nil
}

// UpdateMember overwrites the member's editable fields. The group is fixed.
func (s *Store) UpdateMember(ctx context.Context, m billing.Member) (billing.Member, error) {
	if err := m.Validate(); err != nil {
		return billing.Member{}, err
	}
	m.UpdatedAt = now()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := expectOne(s.exec(ctx, s.db, `
		UPDATE members
		SET full_name = ?, email = ?, phone = ?, address = ?, floor_area = ?, balance = ?, updated_at = ?
		WHERE id = ?`,
		m.FullName, m.Email, m.Phone, m.Address, m.FloorArea, m.Balance, formatTime(m.UpdatedAt), m.ID,
	))
	if err != nil {
		return billing.Member{}, err
	}
	return s.getMember(ctx, s.db, m.ID)
}

// GetMember retrieves a member by ID.
func (s *Store) GetMember(ctx context.Context, id uuid.UUID) (*billing.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.getMember(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMembers returns the group's members by name.
func (s *Store) ListMembers(ctx context.Context, groupID uuid.UUID) ([]billing.Member, error) {
	return s.GroupMembers(ctx, groupID)
}

// GroupMembers returns every member of the group.
func (s *Store) GroupMembers(ctx context.Context, groupID uuid.UUID) ([]billing.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.query(ctx, s.db,
		`SELECT `+memberColumns+` FROM members WHERE group_id = ? ORDER BY full_name`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []billing.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) getMember(ctx context.Context, q querier, id uuid.UUID) (billing.Member, error) {
	m, err := scanMember(s.queryRow(ctx, q, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Member{}, fmt.Errorf("member %s: %w", id, billing.ErrNotFound)
	}
	return m, err
}

func (s *Store) groupExists(ctx context.Context, q querier, id uuid.UUID) error {
	var n int
	if err := s.queryRow(ctx, q, `SELECT COUNT(*) FROM cost_groups WHERE id = ?`, id).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("group %s: %w", id, billing.ErrNotFound)
	}
	return nil
}

func scanMember(row scanner) (billing.Member, error) {
	var m billing.Member
	var createdAt, updatedAt string
	err := row.Scan(&m.ID, &m.GroupID, &m.FullName, &m.Email, &m.Phone, &m.Address,
		&m.FloorArea, &m.Balance, &createdAt, &updatedAt)
	if err != nil {
		return billing.Member{}, err
	}
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return m, nil
}
