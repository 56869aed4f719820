package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Assignment maps one hub entity to the tenant that owns it. Location is
// the farm position ("row-1/rack-3"); Category is a free-form device
// grouping ("light", "pump", "fan"). Both drive emergency stop filtering.
type Assignment struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	EntityID  string    `json:"entity_id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// AssignmentFilter narrows List results. Zero values match everything.
type AssignmentFilter struct {
	Locations  []string
	Categories []string
}

// AssignmentStore looks up which entities belong to a tenant.
type AssignmentStore interface {
	List(ctx context.Context, tenantID string, filter AssignmentFilter) ([]Assignment, error)
	HasAccess(ctx context.Context, tenantID, entityID string) (bool, error)
	Create(ctx context.Context, a *Assignment) error
	Delete(ctx context.Context, tenantID, entityID string) error
}

// SQLiteAssignmentStore reads assignments from the device_assignments
// table.
type SQLiteAssignmentStore struct {
	db *sql.DB
}

// NewSQLiteAssignmentStore creates an assignment store.
func NewSQLiteAssignmentStore(db *sql.DB) *SQLiteAssignmentStore {
	return &SQLiteAssignmentStore{db: db}
}

// List returns the tenant's assignments, optionally filtered by category.
func (s *SQLiteAssignmentStore) List(ctx context.Context, tenantID string, filter AssignmentFilter) ([]Assignment, error) {
	query := `SELECT id, tenant_id, entity_id, name, location, category, created_at
	          FROM device_assignments WHERE tenant_id = ?`
	args := []any{tenantID}

	if len(filter.Locations) > 0 {
		query += " AND location IN (" + placeholders(len(filter.Locations)) + ")"
		for _, l := range filter.Locations {
			args = append(args, l)
		}
	}
	if len(filter.Categories) > 0 {
		query += " AND category IN (" + placeholders(len(filter.Categories)) + ")"
		for _, c := range filter.Categories {
			args = append(args, c)
		}
	}
	query += " ORDER BY entity_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying assignments: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only iteration

	var out []Assignment
	for rows.Next() {
		var a Assignment
		var createdAt string
		if err := rows.Scan(&a.ID, &a.TenantID, &a.EntityID, &a.Name, &a.Location, &a.Category, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing assignment timestamp: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignments: %w", err)
	}
	return out, nil
}

// HasAccess reports whether the tenant has an assignment for the entity.
func (s *SQLiteAssignmentStore) HasAccess(ctx context.Context, tenantID, entityID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM device_assignments WHERE tenant_id = ? AND entity_id = ?`,
		tenantID, entityID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking access: %w", err)
	}
	return n > 0, nil
}

// Create inserts an assignment. The ID and CreatedAt are generated if
// empty.
func (s *SQLiteAssignmentStore) Create(ctx context.Context, a *Assignment) error {
	if a.ID == "" {
		a.ID = "asn-" + uuid.NewString()[:8]
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_assignments (id, tenant_id, entity_id, name, location, category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.EntityID, a.Name, a.Location, a.Category, a.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting assignment: %w", err)
	}
	return nil
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	p := strings.Repeat("?,", n)
	return p[:len(p)-1]
}

// Delete removes one assignment.
func (s *SQLiteAssignmentStore) Delete(ctx context.Context, tenantID, entityID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM device_assignments WHERE tenant_id = ? AND entity_id = ?`,
		tenantID, entityID,
	)
	if err != nil {
		return fmt.Errorf("deleting assignment: %w", err)
	}
	return nil
}
