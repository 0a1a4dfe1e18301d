package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-iam/gatehouse/internal/platform/db"
	"github.com/gatehouse-iam/gatehouse/internal/rbac"
)

// Repository provides PostgreSQL backed persistence for accounts. Every write
// that can change an authorization outcome bumps the owning tenant's version
// inside the same transaction, so cached resolutions go stale immediately.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `
	u.id, u.email, u.full_name, p.organization_id, p.status, p.default_scope,
	p.locked_until, p.metadata, p.created_at, p.updated_at`

// List returns the accounts of one tenant ordered by email.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM user_profiles p
		JOIN users u ON u.id = p.user_id
		WHERE p.organization_id = $1 AND p.deleted_at IS NULL
		ORDER BY u.email`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// Get fetches one account by user id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM user_profiles p
		JOIN users u ON u.id = p.user_id
		WHERE p.user_id = $1 AND p.deleted_at IS NULL`, id)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, rbac.ErrNotFound
		}
		return Account{}, err
	}
	return acc, nil
}

// Create inserts the identity row and its profile atomically. New accounts
// start in pending status until verified.
func (r *Repository) Create(ctx context.Context, acc Account, passwordHash string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, email, full_name, password_hash, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())`,
			acc.ID, acc.Email, acc.FullName, passwordHash)
		if err != nil {
			return mapUnique(err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO user_profiles (user_id, organization_id, status, default_scope, metadata, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
			acc.ID, acc.OrganizationID, acc.Status, acc.DefaultScope, acc.Metadata)
		if err != nil {
			return mapUnique(err)
		}
		return rbac.BumpVersion(ctx, tx, acc.OrganizationID)
	})
}

// UpdateProfile changes the display name and metadata blob.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, fullName string, metadata map[string]any) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		orgID, err := lockProfile(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE users SET full_name = $2, updated_at = NOW() WHERE id = $1`, id, fullName); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE user_profiles SET metadata = $2, updated_at = NOW() WHERE user_id = $1`, id, metadata); err != nil {
			return err
		}
		return rbac.BumpVersion(ctx, tx, orgID)
	})
}

// SetStatus moves the account to a new lifecycle status. lockedUntil is only
// meaningful with the locked status; passing nil clears any lock window.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status rbac.Status, lockedUntil *time.Time) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		orgID, err := lockProfile(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE user_profiles SET status = $2, locked_until = $3, updated_at = NOW()
			WHERE user_id = $1`, id, status, lockedUntil); err != nil {
			return err
		}
		return rbac.BumpVersion(ctx, tx, orgID)
	})
}

// SetDefaultScope changes the fallback visibility scope used when no assigned
// role carries one.
func (r *Repository) SetDefaultScope(ctx context.Context, id uuid.UUID, scope rbac.Scope) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		orgID, err := lockProfile(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE user_profiles SET default_scope = $2, updated_at = NOW()
			WHERE user_id = $1`, id, scope); err != nil {
			return err
		}
		return rbac.BumpVersion(ctx, tx, orgID)
	})
}

// SoftDelete marks the profile deleted and detaches every role assignment.
// The identity row stays for audit history.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		orgID, err := lockProfile(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE user_profiles SET deleted_at = NOW(), updated_at = NOW()
			WHERE user_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE users SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id); err != nil {
			return err
		}
		return rbac.BumpVersion(ctx, tx, orgID)
	})
}

// ListRoles returns the account's role assignments, primary first.
func (r *Repository) ListRoles(ctx context.Context, id uuid.UUID) ([]AssignedRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.code, r.name, r.level, COALESCE(r.scope, ''), ur.is_primary, ur.assigned_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY ur.is_primary DESC, ur.assigned_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assigned []AssignedRole
	for rows.Next() {
		var (
			ar AssignedRole
			at pgtype.Timestamptz
		)
		if err := rows.Scan(&ar.RoleID, &ar.Code, &ar.Name, &ar.Level, &ar.Scope, &ar.IsPrimary, &at); err != nil {
			return nil, err
		}
		ar.AssignedAt = at.Time
		assigned = append(assigned, ar)
	}
	return assigned, rows.Err()
}

// lockProfile pins the profile row for the transaction and returns the owning
// tenant so the caller can bump its version.
func lockProfile(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (uuid.UUID, error) {
	var orgID uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT organization_id FROM user_profiles
		WHERE user_id = $1 AND deleted_at IS NULL FOR UPDATE`, userID).Scan(&orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, rbac.ErrNotFound
		}
		return uuid.Nil, err
	}
	return orgID, nil
}

func mapUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return rbac.ErrDuplicateCode
	}
	return err
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acc         Account
		lockedUntil pgtype.Timestamptz
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)
	if err := row.Scan(&acc.ID, &acc.Email, &acc.FullName, &acc.OrganizationID,
		&acc.Status, &acc.DefaultScope, &lockedUntil, &acc.Metadata, &createdAt, &updatedAt); err != nil {
		return Account{}, err
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		acc.LockedUntil = &t
	}
	acc.CreatedAt = createdAt.Time
	acc.UpdatedAt = updatedAt.Time
	return acc, nil
}
