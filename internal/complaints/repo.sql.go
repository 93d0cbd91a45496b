package complaints

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const complaintColumns = `id, society_id, title, description, category, status, wing, flat_number, raised_by, COALESCE(assigned_to, 0), created_at, updated_at`

// Repository persists complaints.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new complaint.
func (r *Repository) Insert(ctx context.Context, c Complaint) (Complaint, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO complaints (society_id, title, description, category, status, wing, flat_number, raised_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 RETURNING id, created_at, updated_at`,
		c.SocietyID, c.Title, c.Description, c.Category, c.Status, c.Wing, c.FlatNumber, c.RaisedBy, time.Now(),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Complaint{}, err
	}
	return c, nil
}

// Get loads one complaint within a society.
func (r *Repository) Get(ctx context.Context, societyID, id int64) (Complaint, error) {
	var c Complaint
	err := r.pool.QueryRow(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE society_id=$1 AND id=$2`, societyID, id).
		Scan(&c.ID, &c.SocietyID, &c.Title, &c.Description, &c.Category, &c.Status, &c.Wing, &c.FlatNumber, &c.RaisedBy, &c.AssignedTo, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Complaint{}, ErrComplaintNotFound
	}
	if err != nil {
		return Complaint{}, err
	}
	return c, nil
}

// List returns a page of a society's complaints, optionally filtered by
// status, newest first.
func (r *Repository) List(ctx context.Context, societyID int64, status Status, limit, offset int) ([]Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE society_id=$1`
	args := []any{societyID}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Complaint
	for rows.Next() {
		var c Complaint
		if err := rows.Scan(&c.ID, &c.SocietyID, &c.Title, &c.Description, &c.Category, &c.Status, &c.Wing, &c.FlatNumber, &c.RaisedBy, &c.AssignedTo, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of complaints matching the listing filter.
func (r *Repository) Count(ctx context.Context, societyID int64, status Status) (int, error) {
	query := `SELECT COUNT(*) FROM complaints WHERE society_id=$1`
	args := []any{societyID}
	if status != "" {
		query += ` AND status=$2`
		args = append(args, status)
	}
	var count int
	err := r.pool.QueryRow(ctx, query, args...).Scan(&count)
	return count, err
}

// UpdateStatus moves a complaint to a new status, re-checking the current
// one. A non-zero assignee is recorded alongside the move.
func (r *Repository) UpdateStatus(ctx context.Context, societyID, id int64, from, to Status, assignedTo int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE complaints SET status=$4, assigned_to=COALESCE(NULLIF($5, 0::BIGINT), assigned_to), updated_at=NOW()
		 WHERE society_id=$1 AND id=$2 AND status=$3`,
		societyID, id, from, to, assignedTo)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}
