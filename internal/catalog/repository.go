package catalog

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-iam/gatehouse/internal/rbac"
)

// Repository provides read access to the module and permission catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListModules returns all modules in display order.
func (r *Repository) ListModules(ctx context.Context) ([]rbac.Module, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, name, ordering, is_active, created_at, updated_at
		FROM modules ORDER BY ordering, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []rbac.Module
	for rows.Next() {
		var (
			module    rbac.Module
			createdAt pgtype.Timestamptz
			updatedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&module.ID, &module.Code, &module.Name, &module.Ordering,
			&module.IsActive, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		module.CreatedAt = createdAt.Time
		module.UpdatedAt = updatedAt.Time
		modules = append(modules, module)
	}
	return modules, rows.Err()
}

// ListPermissions returns all permissions ordered by code.
func (r *Repository) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, module_id, code, name, description, action, is_active
		FROM permissions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []rbac.Permission
	for rows.Next() {
		var perm rbac.Permission
		if err := rows.Scan(&perm.ID, &perm.ModuleID, &perm.Code, &perm.Name,
			&perm.Description, &perm.Action, &perm.IsActive); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}
