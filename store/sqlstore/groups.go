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
// GROUPS
// =============================================================================

// CreateGroup saves a new group, assigning an ID if it has none.
func (s *Store) CreateGroup(ctx context.Context, g billing.Group) (billing.Group, error) {
	if err := g.Validate(); err != nil {
		return billing.Group{}, err
	}
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.CreatedAt = now()
	g.UpdatedAt = g.CreatedAt

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.exec(ctx, s.db, `
		INSERT INTO cost_groups (id, name, description, manager_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Description, nullString(g.ManagerID),
		formatTime(g.CreatedAt), formatTime(g.UpdatedAt),
	)
	if err != nil {
		return billing.Group{}, fmt.Errorf("failed to create group: %w", err)
	}
	return g, nil
}

// GetGroup retrieves a group by ID.
func (s *Store) GetGroup(ctx context.Context, id uuid.UUID) (*billing.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.queryRow(ctx, s.db, `
		SELECT id, name, description, manager_id, created_at, updated_at
		FROM cost_groups WHERE id = ?`, id)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGroups returns all groups by name.
func (s *Store) ListGroups(ctx context.Context) ([]billing.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.query(ctx, s.db, `
		SELECT id, name, description, manager_id, created_at, updated_at
		FROM cost_groups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []billing.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGroup(row scanner) (billing.Group, error) {
	var g billing.Group
	var manager sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &manager, &createdAt, &updatedAt); err != nil {
		return billing.Group{}, err
	}
	g.ManagerID = manager.String
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)
	return g, nil
}
