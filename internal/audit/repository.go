package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository membaca log keputusan dari PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository membuat repository audit baru.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineColumns = `d.id, d.at, d.principal_id, p.organization_id, d.allowed, d.reason, d.module, d.permission, d.resource`

// auth_decisions tidak menyimpan kolom organisasi; tenant ditarik lewat join
// ke user_profiles. LEFT JOIN menjaga baris historis milik principal yang
// profilnya sudah hilang.
const timelineFrom = `FROM auth_decisions d LEFT JOIN user_profiles p ON p.user_id = d.principal_id`

// TimelineWindow mengambil satu halaman keputusan, terbaru lebih dulu.
func (r *PGRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	where, args := buildFilters(filters)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s %s %s
		ORDER BY d.at DESC, d.id DESC
		LIMIT $%d OFFSET $%d`, timelineColumns, timelineFrom, where, len(args)-1, len(args))
	return r.query(ctx, query, args)
}

// TimelineAll mengambil seluruh keputusan sesuai filter, untuk ekspor.
func (r *PGRepository) TimelineAll(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	where, args := buildFilters(filters)
	query := fmt.Sprintf(`
		SELECT %s %s %s
		ORDER BY d.at DESC, d.id DESC`, timelineColumns, timelineFrom, where)
	return r.query(ctx, query, args)
}

func (r *PGRepository) query(ctx context.Context, query string, args []any) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimelineRow
	for rows.Next() {
		var (
			row TimelineRow
			at  pgtype.Timestamptz
			org pgtype.UUID
		)
		if err := rows.Scan(&row.ID, &at, &row.PrincipalID, &org, &row.Allowed,
			&row.Reason, &row.Module, &row.Permission, &row.Resource); err != nil {
			return nil, err
		}
		row.At = at.Time
		if org.Valid {
			row.OrganizationID = org.Bytes
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func buildFilters(filters TimelineFilters) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if !filters.From.IsZero() {
		add("d.at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("d.at < $%d", filters.To)
	}
	if filters.PrincipalID != uuid.Nil {
		add("d.principal_id = $%d", filters.PrincipalID)
	}
	if filters.OrganizationID != uuid.Nil {
		add("p.organization_id = $%d", filters.OrganizationID)
	}
	switch filters.Outcome {
	case "allowed":
		clauses = append(clauses, "d.allowed")
	case "denied":
		clauses = append(clauses, "NOT d.allowed")
	}
	if filters.Reason != "" {
		add("d.reason = $%d", filters.Reason)
	}
	if filters.Permission != "" {
		add("d.permission = $%d", filters.Permission)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// InsertDecision menulis satu keputusan. Dipanggil oleh worker, bukan oleh
// jalur request.
func (r *PGRepository) InsertDecision(ctx context.Context, row TimelineRow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auth_decisions (at, principal_id, allowed, reason, module, permission, resource)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		row.At.UTC(), row.PrincipalID, row.Allowed, row.Reason, row.Module, row.Permission, row.Resource)
	return err
}

// DeleteBefore menghapus keputusan yang lebih tua dari cutoff.
func (r *PGRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_decisions WHERE at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
