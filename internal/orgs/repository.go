package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-iam/gatehouse/internal/platform/db"
	"github.com/gatehouse-iam/gatehouse/internal/rbac"
)

// Repository provides PostgreSQL backed persistence for organizations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns a page of organizations that are not soft-deleted, plus the
// total row count for pagination. A non-nil only narrows the listing to that
// single organization; tenant-scoped callers see their own row and nothing
// else.
func (r *Repository) List(ctx context.Context, limit, offset int, only uuid.UUID) ([]rbac.Organization, int, error) {
	where := `WHERE deleted_at IS NULL`
	args := []any{}
	if only != uuid.Nil {
		args = append(args, only)
		where += ` AND id = $1`
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM organizations `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageQuery := fmt.Sprintf(`
		SELECT id, code, name, settings, is_active, created_at, updated_at
		FROM organizations %s
		ORDER BY name LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, pageQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orgs []rbac.Organization
	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, 0, err
		}
		orgs = append(orgs, org)
	}
	return orgs, total, rows.Err()
}

// Get fetches one organization by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (rbac.Organization, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, code, name, settings, is_active, created_at, updated_at
		FROM organizations WHERE id = $1 AND deleted_at IS NULL`, id)
	org, err := scanOrg(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Organization{}, rbac.ErrNotFound
		}
		return rbac.Organization{}, err
	}
	return org, nil
}

// Create inserts a new organization.
func (r *Repository) Create(ctx context.Context, org rbac.Organization) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO organizations (id, code, name, settings, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())`,
			org.ID, org.Code, org.Name, org.Settings)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return rbac.ErrDuplicateCode
			}
			return err
		}
		return rbac.BumpVersion(ctx, tx, org.ID)
	})
}

// Update changes the display name and settings blob.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, name string, settings map[string]any) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE organizations SET name = $2, settings = $3, updated_at = NOW()
			WHERE id = $1 AND deleted_at IS NULL`, id, name, settings)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return rbac.ErrNotFound
		}
		return rbac.BumpVersion(ctx, tx, id)
	})
}

// SoftDelete marks the organization deleted. Principals of a deleted tenant
// fail resolution on their next request because the profile read filters
// deleted organizations out.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE organizations SET deleted_at = NOW(), is_active = FALSE, updated_at = NOW()
			WHERE id = $1 AND deleted_at IS NULL`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return rbac.ErrNotFound
		}
		return rbac.BumpVersion(ctx, tx, id)
	})
}

func scanOrg(row pgx.Row) (rbac.Organization, error) {
	var (
		org       rbac.Organization
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&org.ID, &org.Code, &org.Name, &org.Settings, &org.IsActive, &createdAt, &updatedAt); err != nil {
		return rbac.Organization{}, err
	}
	org.CreatedAt = createdAt.Time
	org.UpdatedAt = updatedAt.Time
	return org, nil
}
