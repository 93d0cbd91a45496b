package gatepass

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/societyops/societyops/internal/shared"
)

const passColumns = `id, society_id, code, visitor_name, visitor_phone, wing, flat_number, purpose, expected_at, status, created_by, created_at, updated_at`

// Repository persists gate passes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new pass.
func (r *Repository) Insert(ctx context.Context, pass Pass) (Pass, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO gate_passes (society_id, code, visitor_name, visitor_phone, wing, flat_number, purpose, expected_at, status, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		 RETURNING id, created_at, updated_at`,
		pass.SocietyID, pass.Code, pass.VisitorName, pass.VisitorPhone, pass.Wing, pass.FlatNumber,
		pass.Purpose, pass.ExpectedAt, pass.Status, pass.CreatedBy, time.Now(),
	).Scan(&pass.ID, &pass.CreatedAt, &pass.UpdatedAt)
	if err != nil {
		return Pass{}, err
	}
	return pass, nil
}

// Get loads one pass by id within a society.
func (r *Repository) Get(ctx context.Context, societyID, id int64) (Pass, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `SELECT `+passColumns+` FROM gate_passes WHERE society_id=$1 AND id=$2`, societyID, id))
}

// GetByCode loads one pass by its scan code.
func (r *Repository) GetByCode(ctx context.Context, societyID int64, code uuid.UUID) (Pass, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `SELECT `+passColumns+` FROM gate_passes WHERE society_id=$1 AND code=$2`, societyID, code))
}

// ListForDay returns a society's passes expected on a given day, newest
// first.
func (r *Repository) ListForDay(ctx context.Context, societyID int64, day time.Time) ([]Pass, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	rows, err := r.pool.Query(ctx,
		`SELECT `+passColumns+` FROM gate_passes
		 WHERE society_id=$1 AND expected_at >= $2 AND expected_at < $3
		 ORDER BY expected_at DESC`,
		societyID, start, start.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

// ListForFlat returns passes raised for one unit.
func (r *Repository) ListForFlat(ctx context.Context, scope shared.SocietyScope) ([]Pass, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+passColumns+` FROM gate_passes
		 WHERE society_id=$1 AND wing=$2 AND flat_number=$3
		 ORDER BY expected_at DESC`,
		scope.SocietyID, scope.Wing, scope.FlatNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

// UpdateStatus moves a pass to a new status, re-checking the current one.
func (r *Repository) UpdateStatus(ctx context.Context, societyID, id int64, from, to Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE gate_passes SET status=$4, updated_at=NOW() WHERE society_id=$1 AND id=$2 AND status=$3`,
		societyID, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *Repository) scanOne(row pgx.Row) (Pass, error) {
	var p Pass
	err := row.Scan(&p.ID, &p.SocietyID, &p.Code, &p.VisitorName, &p.VisitorPhone, &p.Wing, &p.FlatNumber,
		&p.Purpose, &p.ExpectedAt, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Pass{}, ErrPassNotFound
	}
	if err != nil {
		return Pass{}, err
	}
	return p, nil
}

func (r *Repository) collect(rows pgx.Rows) ([]Pass, error) {
	var passes []Pass
	for rows.Next() {
		var p Pass
		if err := rows.Scan(&p.ID, &p.SocietyID, &p.Code, &p.VisitorName, &p.VisitorPhone, &p.Wing, &p.FlatNumber,
			&p.Purpose, &p.ExpectedAt, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		passes = append(passes, p)
	}
	return passes, rows.Err()
}
