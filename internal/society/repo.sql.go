package society

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/societyops/societyops/internal/platform/db"
)

// flushThreshold caps the number of buffered statements sent in one
// round trip during bootstrap.
const flushThreshold = 500

// Repository persists societies and runs the bootstrap write plan.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Exists reports whether a society with the given name is registered.
func (r *Repository) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM societies WHERE name=$1)`, name).Scan(&exists)
	return exists, err
}

// JoinCodeTaken reports whether a join code is already in use.
func (r *Repository) JoinCodeTaken(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM societies WHERE join_code=$1)`, code).Scan(&exists)
	return exists, err
}

// GetByID loads one society.
func (r *Repository) GetByID(ctx context.Context, id int64) (Society, error) {
	return r.get(ctx, `SELECT id, name, total_wings, address_line1, city, state, postal_code, join_code, created_at, updated_at FROM societies WHERE id=$1`, id)
}

// GetByJoinCode loads the society a join code belongs to.
func (r *Repository) GetByJoinCode(ctx context.Context, code string) (Society, error) {
	return r.get(ctx, `SELECT id, name, total_wings, address_line1, city, state, postal_code, join_code, created_at, updated_at FROM societies WHERE join_code=$1`, code)
}

func (r *Repository) get(ctx context.Context, query string, arg any) (Society, error) {
	var soc Society
	err := r.pool.QueryRow(ctx, query, arg).Scan(&soc.ID, &soc.Name, &soc.TotalWings, &soc.AddressLine1, &soc.City, &soc.State, &soc.PostalCode, &soc.JoinCode, &soc.CreatedAt, &soc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Society{}, ErrSocietyNotFound
	}
	if err != nil {
		return Society{}, err
	}
	return soc, nil
}

// ListWings returns a society's wings in name order.
func (r *Repository) ListWings(ctx context.Context, societyID int64) ([]Wing, error) {
	rows, err := r.pool.Query(ctx, `SELECT society_id, name, created_at FROM wings WHERE society_id=$1 ORDER BY name`, societyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var wings []Wing
	for rows.Next() {
		var w Wing
		if err := rows.Scan(&w.SocietyID, &w.Name, &w.CreatedAt); err != nil {
			return nil, err
		}
		wings = append(wings, w)
	}
	return wings, rows.Err()
}

// AddAdmin records an additional society admin.
func (r *Repository) AddAdmin(ctx context.Context, societyID, userID int64, now time.Time) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO society_admins (society_id, user_id, created_at) VALUES ($1, $2, $3)`, societyID, userID, now)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return ErrAlreadyAdmin
		}
		return err
	}
	return nil
}

// ListAdmins returns the society's admin user ids, oldest first.
func (r *Repository) ListAdmins(ctx context.Context, societyID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM society_admins WHERE society_id=$1 ORDER BY created_at`, societyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SeedAccount names an account to create under a group with a zero
// opening snapshot.
type SeedAccount struct {
	Group string
	Name  string
}

// SeedItem names a bill item template to create.
type SeedItem struct {
	Name string
	Mode string
	Rate float64
}

// WritePlan is the full set of rows bootstrap creates for one society.
// Every row after the society insert keys on names, so the whole plan is
// known up front and flushes in batches without read-backs.
type WritePlan struct {
	Society     Society
	AdminUserID int64
	Wings       []string
	Groups      []string
	Accounts    []SeedAccount
	Items       []SeedItem
}

// Bootstrap creates the society and its entire initial dataset in one
// repeatable-read transaction. Either everything lands or nothing does.
func (r *Repository) Bootstrap(ctx context.Context, plan WritePlan, now time.Time) (Society, error) {
	var soc Society
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		created, err := r.bootstrapTx(ctx, tx, plan, now)
		if err != nil {
			return err
		}
		soc = created
		return nil
	})
	if err != nil {
		return Society{}, err
	}
	return soc, nil
}

func (r *Repository) bootstrapTx(ctx context.Context, tx pgx.Tx, plan WritePlan, now time.Time) (Society, error) {
	soc := plan.Society
	err := tx.QueryRow(ctx,
		`INSERT INTO societies (name, total_wings, address_line1, city, state, postal_code, join_code, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 RETURNING id, created_at, updated_at`,
		soc.Name, soc.TotalWings, soc.AddressLine1, soc.City, soc.State, soc.PostalCode, soc.JoinCode, now,
	).Scan(&soc.ID, &soc.CreatedAt, &soc.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return Society{}, ErrSocietyExists
		}
		return Society{}, err
	}

	batch := &pgx.Batch{}
	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("society: bootstrap write plan: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return err
		}
		batch = &pgx.Batch{}
		return nil
	}
	queue := func(query string, args ...any) error {
		batch.Queue(query, args...)
		if batch.Len() >= flushThreshold {
			return flush()
		}
		return nil
	}

	if plan.AdminUserID > 0 {
		if err := queue(`INSERT INTO society_admins (society_id, user_id, created_at) VALUES ($1, $2, $3)`, soc.ID, plan.AdminUserID, now); err != nil {
			return Society{}, err
		}
	}
	for _, wing := range plan.Wings {
		if err := queue(`INSERT INTO wings (society_id, name, created_at, updated_at) VALUES ($1, $2, $3, $3)`, soc.ID, wing, now); err != nil {
			return Society{}, err
		}
	}
	for _, group := range plan.Groups {
		if err := queue(`INSERT INTO ledger_groups (society_id, name, created_at, updated_at) VALUES ($1, $2, $3, $3)`, soc.ID, group, now); err != nil {
			return Society{}, err
		}
	}
	for _, acc := range plan.Accounts {
		if err := queue(`INSERT INTO ledger_accounts (society_id, group_name, name, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`, soc.ID, acc.Group, acc.Name, now); err != nil {
			return Society{}, err
		}
		if err := queue(
			`INSERT INTO ledger_balances (society_id, group_name, account_name, snapshot_date, daily_change, cumulative_balance, version, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, 0, 0, 1, $5, $5)`,
			soc.ID, acc.Group, acc.Name, now.UTC().Truncate(24*time.Hour), now); err != nil {
			return Society{}, err
		}
	}
	for _, item := range plan.Items {
		if err := queue(`INSERT INTO bill_items (society_id, name, pricing_mode, rate, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)`, soc.ID, item.Name, item.Mode, item.Rate, now); err != nil {
			return Society{}, err
		}
	}
	if err := flush(); err != nil {
		return Society{}, err
	}
	return soc, nil
}

// Summary collects the dashboard counters in one round trip.
func (r *Repository) Summary(ctx context.Context, societyID int64) (Summary, error) {
	soc, err := r.GetByID(ctx, societyID)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Society: soc}
	err = r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM wings WHERE society_id=$1),
			(SELECT COUNT(*) FROM ledger_accounts WHERE society_id=$1),
			(SELECT COUNT(*) FROM complaints WHERE society_id=$1 AND status IN ('open', 'in_progress')),
			(SELECT COUNT(*) FROM flat_bills WHERE society_id=$1 AND status <> 'paid')`,
		societyID,
	).Scan(&sum.WingCount, &sum.AccountCount, &sum.OpenComplaints, &sum.UnpaidBills)
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}
