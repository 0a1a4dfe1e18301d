package rbac

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-iam/gatehouse/internal/platform/db"
)

// Service carries the administrative mutations over RBAC entities. Every
// write runs in one transaction together with the organization version bump,
// so concurrent cache reads either see the pre-write version (stale,
// detected, recomputed) or the post-write version.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a Service backed by the provided pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// CreateRole inserts a new role. Use SystemOrgID for a system-wide role.
func (s *Service) CreateRole(ctx context.Context, orgID uuid.UUID, code, name string, level int, scope Scope) (Role, error) {
	code = strings.TrimSpace(strings.ToLower(code))
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return Role{}, errors.New("rbac: role code and name required")
	}
	if scope != "" && !scope.Valid() {
		return Role{}, errors.New("rbac: invalid role scope")
	}

	role := Role{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Code:           code,
		Name:           name,
		Level:          level,
		Scope:          scope,
		IsSystem:       orgID == SystemOrgID,
		IsActive:       true,
	}
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO roles (id, organization_id, code, name, level, scope, is_system, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, TRUE, NOW(), NOW())`,
			role.ID, role.OrganizationID, role.Code, role.Name, role.Level, string(role.Scope), role.IsSystem)
		if err != nil {
			return mapUniqueViolation(err)
		}
		return BumpVersion(ctx, tx, orgID)
	})
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// UpdateRole changes a role's display name, level, and scope. System roles
// cannot be edited through the tenant surface.
func (s *Service) UpdateRole(ctx context.Context, roleID uuid.UUID, name string, level int, scope Scope) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("rbac: role name required")
	}
	if scope != "" && !scope.Valid() {
		return errors.New("rbac: invalid role scope")
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		role, err := lockRole(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return ErrSystemRole
		}
		if _, err := tx.Exec(ctx, `
			UPDATE roles SET name = $2, level = $3, scope = NULLIF($4, ''), updated_at = NOW()
			WHERE id = $1`, roleID, name, level, string(scope)); err != nil {
			return err
		}
		return BumpVersion(ctx, tx, role.OrganizationID)
	})
}

// DeleteRole removes a role together with its permission, module, and user
// assignment edges.
func (s *Service) DeleteRole(ctx context.Context, roleID uuid.UUID) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		role, err := lockRole(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return ErrSystemRole
		}
		// Edges cascade via FKs; deleting explicitly keeps the intent visible
		// and works on schemas restored without the constraints.
		for _, query := range []string{
			`DELETE FROM role_permissions WHERE role_id = $1`,
			`DELETE FROM role_modules WHERE role_id = $1`,
			`DELETE FROM user_roles WHERE role_id = $1`,
			`DELETE FROM roles WHERE id = $1`,
		} {
			if _, err := tx.Exec(ctx, query, roleID); err != nil {
				return err
			}
		}
		return BumpVersion(ctx, tx, role.OrganizationID)
	})
}

// SetRolePermissions replaces the permission set of a role with the given
// permission ids, attaching and detaching the difference.
func (s *Service) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID, grantedBy uuid.UUID) error {
	return s.setRoleEdges(ctx, roleID, permissionIDs, grantedBy, edgeSpec{
		table:  "role_permissions",
		column: "permission_id",
	})
}

// SetRoleModules replaces the module grants of a role.
func (s *Service) SetRoleModules(ctx context.Context, roleID uuid.UUID, moduleIDs []uuid.UUID, grantedBy uuid.UUID) error {
	return s.setRoleEdges(ctx, roleID, moduleIDs, grantedBy, edgeSpec{
		table:  "role_modules",
		column: "module_id",
	})
}

type edgeSpec struct {
	table  string
	column string
}

func (s *Service) setRoleEdges(ctx context.Context, roleID uuid.UUID, targetIDs []uuid.UUID, grantedBy uuid.UUID, spec edgeSpec) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		role, err := lockRole(ctx, tx, roleID)
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `SELECT `+spec.column+` FROM `+spec.table+` WHERE role_id = $1`, roleID)
		if err != nil {
			return err
		}
		existing := make(map[uuid.UUID]struct{})
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			existing[id] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		keep := make(map[uuid.UUID]struct{}, len(targetIDs))
		for _, id := range targetIDs {
			keep[id] = struct{}{}
			if _, ok := existing[id]; ok {
				continue
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO `+spec.table+` (role_id, `+spec.column+`, granted_by, created_at)
				VALUES ($1, $2, $3, NOW())
				ON CONFLICT (role_id, `+spec.column+`) DO NOTHING`,
				roleID, id, grantedBy); err != nil {
				return err
			}
		}
		for id := range existing {
			if _, ok := keep[id]; ok {
				continue
			}
			if _, err := tx.Exec(ctx, `DELETE FROM `+spec.table+` WHERE role_id = $1 AND `+spec.column+` = $2`, roleID, id); err != nil {
				return err
			}
		}
		return BumpVersion(ctx, tx, role.OrganizationID)
	})
}

// AssignRole assigns a role to a principal, keeping the exactly-one-primary
// invariant: the first assignment always becomes primary, and requesting
// primary demotes the previous one inside the same transaction.
func (s *Service) AssignRole(ctx context.Context, userID, roleID, assignedBy uuid.UUID, isPrimary bool) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var orgID uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT organization_id FROM user_profiles WHERE user_id = $1 AND deleted_at IS NULL FOR UPDATE`, userID).Scan(&orgID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPrincipalNotFound
			}
			return err
		}
		role, err := lockRole(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if !role.AppliesTo(orgID) {
			return ErrOrganizationMismatch
		}

		var assigned int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM user_roles WHERE user_id = $1`, userID).Scan(&assigned); err != nil {
			return err
		}
		if assigned == 0 {
			isPrimary = true
		}
		if isPrimary {
			if _, err := tx.Exec(ctx, `UPDATE user_roles SET is_primary = FALSE WHERE user_id = $1 AND is_primary`, userID); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id, assigned_by, assigned_at, is_primary)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, role_id) DO UPDATE SET is_primary = EXCLUDED.is_primary`,
			userID, roleID, assignedBy, time.Now().UTC(), isPrimary); err != nil {
			return err
		}
		return BumpVersion(ctx, tx, orgID)
	})
}

// RemoveRole removes an assignment. When the primary assignment goes away and
// the principal still holds roles, the oldest remaining assignment is
// promoted so the invariant survives.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var orgID uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT organization_id FROM user_profiles WHERE user_id = $1 AND deleted_at IS NULL FOR UPDATE`, userID).Scan(&orgID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPrincipalNotFound
			}
			return err
		}

		var wasPrimary bool
		err := tx.QueryRow(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2 RETURNING is_primary`, userID, roleID).Scan(&wasPrimary)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if wasPrimary {
			if _, err := tx.Exec(ctx, `
				UPDATE user_roles SET is_primary = TRUE
				WHERE user_id = $1 AND role_id = (
					SELECT role_id FROM user_roles WHERE user_id = $1 ORDER BY assigned_at, role_id LIMIT 1
				)`, userID); err != nil {
				return err
			}
		}
		return BumpVersion(ctx, tx, orgID)
	})
}

// EnsureModule upserts a module in the global catalog.
func (s *Service) EnsureModule(ctx context.Context, code, name string, ordering int) (Module, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return Module{}, errors.New("rbac: module code and name required")
	}
	var module Module
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO modules (id, code, name, ordering, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, ordering = EXCLUDED.ordering, updated_at = NOW()
			RETURNING id, code, name, ordering, is_active`,
			uuid.New(), code, name, ordering,
		).Scan(&module.ID, &module.Code, &module.Name, &module.Ordering, &module.IsActive)
		if err != nil {
			return err
		}
		return BumpVersion(ctx, tx, SystemOrgID)
	})
	if err != nil {
		return Module{}, err
	}
	return module, nil
}

// EnsurePermission upserts a permission under the given module. Only the
// description may change once the permission exists.
func (s *Service) EnsurePermission(ctx context.Context, moduleID uuid.UUID, code, name, description, action string) (Permission, error) {
	code = strings.TrimSpace(strings.ToLower(code))
	if code == "" {
		return Permission{}, errors.New("rbac: permission code required")
	}
	var perm Permission
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO permissions (id, module_id, code, name, description, action, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW(), NOW())
			ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description, updated_at = NOW()
			RETURNING id, module_id, code, name, description, action, is_active`,
			uuid.New(), moduleID, code, name, description, action,
		).Scan(&perm.ID, &perm.ModuleID, &perm.Code, &perm.Name, &perm.Description, &perm.Action, &perm.IsActive)
		if err != nil {
			return mapUniqueViolation(err)
		}
		return BumpVersion(ctx, tx, SystemOrgID)
	})
	if err != nil {
		return Permission{}, err
	}
	return perm, nil
}

// DeletePermission removes a permission and its role edges.
func (s *Service) DeletePermission(ctx context.Context, permissionID uuid.UUID) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id = $1`, permissionID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, permissionID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return BumpVersion(ctx, tx, SystemOrgID)
	})
}

func lockRole(ctx context.Context, tx pgx.Tx, roleID uuid.UUID) (Role, error) {
	var (
		role  Role
		scope string
	)
	err := tx.QueryRow(ctx, `
		SELECT id, organization_id, code, name, level, COALESCE(scope, ''), is_system, is_active
		FROM roles WHERE id = $1 FOR UPDATE`, roleID,
	).Scan(&role.ID, &role.OrganizationID, &role.Code, &role.Name, &role.Level, &scope, &role.IsSystem, &role.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	role.Scope = Scope(scope)
	return role, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateCode
	}
	return err
}
