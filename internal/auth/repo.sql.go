package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/societyops/societyops/internal/shared"
)

const userColumns = `id, email, password_hash, name, role, COALESCE(society_id, 0), is_active, created_at, updated_at`

// Repository persists user accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByEmail fetches a user by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

// FindByID fetches a user by id.
func (r *Repository) FindByID(ctx context.Context, id int64) (User, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

// Insert creates a user account.
func (r *Repository) Insert(ctx context.Context, user User) (User, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, name, role, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, TRUE, $5, $5)
		 RETURNING id, created_at, updated_at`,
		user.Email, user.PasswordHash, user.Name, user.Role, now,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	user.IsActive = true
	return user, nil
}

// AttachSociety binds the user to a society.
func (r *Repository) AttachSociety(ctx context.Context, userID, societyID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET society_id=$2, updated_at=NOW() WHERE id=$1`, userID, societyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *Repository) scanOne(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.SocietyID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}
