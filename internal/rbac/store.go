package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store exposes the entity reads the resolution engine needs. Implementations
// must filter inactive or soft-deleted records at the query level so the
// resolver never has to reason about them.
type Store interface {
	// GetUserProfile returns ErrPrincipalNotFound when no profile exists.
	GetUserProfile(ctx context.Context, principalID uuid.UUID) (*UserProfile, error)
	// ListAssignedRoles returns every active role assigned to the principal,
	// including roles from foreign organizations; the resolver applies the
	// tenant boundary.
	ListAssignedRoles(ctx context.Context, principalID uuid.UUID) ([]Role, error)
	// ListPermissionCodes unions active permission codes over the given roles.
	ListPermissionCodes(ctx context.Context, roleIDs []uuid.UUID) ([]string, error)
	// ListModuleCodes unions active module codes over the given roles.
	ListModuleCodes(ctx context.Context, roleIDs []uuid.UUID) ([]string, error)
	// OrganizationVersion returns the monotonic RBAC version for the
	// organization, combined with the system-wide counter so catalog and
	// system-role writes invalidate every tenant.
	OrganizationVersion(ctx context.Context, orgID uuid.UUID) (int64, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// GetUserProfile fetches the principal's RBAC profile.
func (s *PGStore) GetUserProfile(ctx context.Context, principalID uuid.UUID) (*UserProfile, error) {
	const query = `
		SELECT user_id, organization_id, status, default_scope, metadata,
		       locked_until, storage_used_bytes, storage_quota_bytes,
		       created_at, updated_at
		FROM user_profiles
		WHERE user_id = $1 AND deleted_at IS NULL`

	var (
		profile     UserProfile
		scope       string
		status      string
		lockedUntil pgtype.Timestamptz
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx, query, principalID).Scan(
		&profile.UserID,
		&profile.OrganizationID,
		&status,
		&scope,
		&profile.Metadata,
		&lockedUntil,
		&profile.StorageUsedBytes,
		&profile.StorageQuotaBytes,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		return nil, err
	}
	profile.Status = Status(status)
	profile.DefaultScope = Scope(scope)
	if lockedUntil.Valid {
		t := lockedUntil.Time
		profile.LockedUntil = &t
	}
	profile.CreatedAt = createdAt.Time
	profile.UpdatedAt = updatedAt.Time
	return &profile, nil
}

// ListAssignedRoles loads all active roles assigned to the principal.
func (s *PGStore) ListAssignedRoles(ctx context.Context, principalID uuid.UUID) ([]Role, error) {
	const query = `
		SELECT r.id, r.organization_id, r.code, r.name, r.level,
		       COALESCE(r.scope, ''), r.is_system, r.is_active,
		       r.created_at, r.updated_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND r.is_active
		ORDER BY r.level, r.code`

	rows, err := s.pool.Query(ctx, query, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var (
			role      Role
			scope     string
			createdAt pgtype.Timestamptz
			updatedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&role.ID, &role.OrganizationID, &role.Code, &role.Name,
			&role.Level, &scope, &role.IsSystem, &role.IsActive, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		role.Scope = Scope(scope)
		role.CreatedAt = createdAt.Time
		role.UpdatedAt = updatedAt.Time
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListPermissionCodes unions active permission codes across the given roles.
func (s *PGStore) ListPermissionCodes(ctx context.Context, roleIDs []uuid.UUID) ([]string, error) {
	const query = `
		SELECT DISTINCT p.code
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ANY($1) AND p.is_active
		ORDER BY p.code`
	return s.listCodes(ctx, query, roleIDs)
}

// ListModuleCodes unions active module codes across the given roles.
func (s *PGStore) ListModuleCodes(ctx context.Context, roleIDs []uuid.UUID) ([]string, error) {
	const query = `
		SELECT DISTINCT m.code
		FROM role_modules rm
		JOIN modules m ON m.id = rm.module_id
		WHERE rm.role_id = ANY($1) AND m.is_active
		ORDER BY m.code`
	return s.listCodes(ctx, query, roleIDs)
}

func (s *PGStore) listCodes(ctx context.Context, query string, roleIDs []uuid.UUID) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, query, roleIDs)
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

// OrganizationVersion returns the tenant counter plus the system-wide counter.
// Missing rows count as zero, so a fresh organization starts at version zero
// and any first write moves it forward.
func (s *PGStore) OrganizationVersion(ctx context.Context, orgID uuid.UUID) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(version), 0)
		FROM org_versions
		WHERE organization_id = $1 OR organization_id = $2`
	var version int64
	if err := s.pool.QueryRow(ctx, query, orgID, SystemOrgID).Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

var _ Store = (*PGStore)(nil)

// BumpVersion increments the organization's RBAC version counter inside the
// caller's transaction. Every write to roles, permissions, role edges, or
// user-role assignments must call this in the same transaction so a cache
// read after commit can never pair post-write entities with a pre-write
// version number. Pass SystemOrgID for catalog or system-role writes.
func BumpVersion(ctx context.Context, tx pgx.Tx, orgID uuid.UUID) error {
	const query = `
		INSERT INTO org_versions (organization_id, version, updated_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (organization_id)
		DO UPDATE SET version = org_versions.version + 1, updated_at = EXCLUDED.updated_at`
	_, err := tx.Exec(ctx, query, orgID, time.Now().UTC())
	return err
}
