package roles

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-iam/gatehouse/internal/rbac"
)

// Detail is a role together with its granted permission and module codes.
type Detail struct {
	rbac.Role
	Permissions []string `json:"permissions"`
	Modules     []string `json:"modules"`
}

// Repository provides PostgreSQL backed reads for role management. Writes go
// through the rbac service so they carry the version bump.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByOrganization returns the organization's roles plus system-wide roles.
func (r *Repository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]rbac.Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, code, name, level, COALESCE(scope, ''), is_system, is_active, created_at, updated_at
		FROM roles
		WHERE organization_id = $1 OR organization_id = $2
		ORDER BY level, code`, orgID, rbac.SystemOrgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Get fetches one role with its permission and module codes.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Detail, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, code, name, level, COALESCE(scope, ''), is_system, is_active, created_at, updated_at
		FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Detail{}, rbac.ErrNotFound
		}
		return Detail{}, err
	}

	detail := Detail{Role: role}
	perms, err := r.codes(ctx, `
		SELECT p.code FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1 ORDER BY p.code`, id)
	if err != nil {
		return Detail{}, err
	}
	detail.Permissions = perms

	modules, err := r.codes(ctx, `
		SELECT m.code FROM role_modules rm JOIN modules m ON m.id = rm.module_id
		WHERE rm.role_id = $1 ORDER BY m.code`, id)
	if err != nil {
		return Detail{}, err
	}
	detail.Modules = modules
	return detail, nil
}

func (r *Repository) codes(ctx context.Context, query string, id uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func scanRole(row pgx.Row) (rbac.Role, error) {
	var (
		role      rbac.Role
		scope     string
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&role.ID, &role.OrganizationID, &role.Code, &role.Name, &role.Level,
		&scope, &role.IsSystem, &role.IsActive, &createdAt, &updatedAt); err != nil {
		return rbac.Role{}, err
	}
	role.Scope = rbac.Scope(scope)
	role.CreatedAt = createdAt.Time
	role.UpdatedAt = updatedAt.Time
	return role, nil
}
