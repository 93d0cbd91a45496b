package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/societyops/societyops/internal/shared"
)

// Repository persists ledger entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	GroupExists(ctx context.Context, societyID int64, name string) (bool, error)
	InsertAccount(ctx context.Context, societyID int64, ref AccountRef, now time.Time) error
	InsertSnapshot(ctx context.Context, snap BalanceSnapshot) error
	GetSnapshotForUpdate(ctx context.Context, societyID int64, ref AccountRef, date time.Time) (BalanceSnapshot, error)
	UpdateSnapshot(ctx context.Context, snap BalanceSnapshot, expectedVersion int64) error
	LatestSnapshotOnOrBefore(ctx context.Context, societyID int64, ref AccountRef, date time.Time) (BalanceSnapshot, error)
	LatestSnapshotDate(ctx context.Context, societyID int64, ref AccountRef) (time.Time, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// ListGroups returns the society's ledger-group taxonomy.
func (r *Repository) ListGroups(ctx context.Context, societyID int64) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT society_id, name, created_at, updated_at FROM ledger_groups WHERE society_id=$1 ORDER BY name`, societyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.SocietyID, &g.Name, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ListAccounts returns the accounts under one group.
func (r *Repository) ListAccounts(ctx context.Context, societyID int64, group string) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT society_id, group_name, name, created_at, updated_at
FROM ledger_accounts WHERE society_id=$1 AND group_name=$2 ORDER BY name`, societyID, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// ListAccountsInGroups returns all accounts whose group is in the supplied
// set, across the whole society.
func (r *Repository) ListAccountsInGroups(ctx context.Context, societyID int64, groups []string) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT society_id, group_name, name, created_at, updated_at
FROM ledger_accounts WHERE society_id=$1 AND group_name = ANY($2) ORDER BY group_name, name`, societyID, groups)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// LatestSnapshotOnOrBefore finds the most recent balance snapshot at or
// before the target date. Returns shared.ErrNotFound when no history exists.
func (r *Repository) LatestSnapshotOnOrBefore(ctx context.Context, societyID int64, ref AccountRef, date time.Time) (BalanceSnapshot, error) {
	return latestSnapshotOnOrBefore(ctx, r.pool, societyID, ref, date)
}

func scanAccounts(rows pgx.Rows) ([]Account, error) {
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.SocietyID, &a.Group, &a.Name, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func latestSnapshotOnOrBefore(ctx context.Context, q queryer, societyID int64, ref AccountRef, date time.Time) (BalanceSnapshot, error) {
	var snap BalanceSnapshot
	err := q.QueryRow(ctx, `SELECT society_id, group_name, account_name, snapshot_date, daily_change, cumulative_balance, version, created_at, updated_at
FROM ledger_balances WHERE society_id=$1 AND group_name=$2 AND account_name=$3 AND snapshot_date <= $4
ORDER BY snapshot_date DESC LIMIT 1`, societyID, ref.Group, ref.Name, date).
		Scan(&snap.SocietyID, &snap.Group, &snap.Account, &snap.Date, &snap.DailyChange, &snap.CumulativeBalance, &snap.Version, &snap.CreatedAt, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BalanceSnapshot{}, shared.ErrNotFound
		}
		return BalanceSnapshot{}, err
	}
	return snap, nil
}

func (r *txRepository) GroupExists(ctx context.Context, societyID int64, name string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_groups WHERE society_id=$1 AND name=$2)`, societyID, name).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertAccount(ctx context.Context, societyID int64, ref AccountRef, now time.Time) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO ledger_accounts (society_id, group_name, name, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)`, societyID, ref.Group, ref.Name, now)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return ErrAccountExists
		}
		return err
	}
	return nil
}

func (r *txRepository) InsertSnapshot(ctx context.Context, snap BalanceSnapshot) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO ledger_balances (society_id, group_name, account_name, snapshot_date, daily_change, cumulative_balance, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)`,
		snap.SocietyID, snap.Group, snap.Account, snap.Date, toNumeric(snap.DailyChange), toNumeric(snap.CumulativeBalance), snap.Version, snap.CreatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return ErrBalanceConflict
		}
		return err
	}
	return nil
}

func (r *txRepository) GetSnapshotForUpdate(ctx context.Context, societyID int64, ref AccountRef, date time.Time) (BalanceSnapshot, error) {
	var snap BalanceSnapshot
	err := r.tx.QueryRow(ctx, `SELECT society_id, group_name, account_name, snapshot_date, daily_change, cumulative_balance, version, created_at, updated_at
FROM ledger_balances WHERE society_id=$1 AND group_name=$2 AND account_name=$3 AND snapshot_date=$4 FOR UPDATE`,
		societyID, ref.Group, ref.Name, date).
		Scan(&snap.SocietyID, &snap.Group, &snap.Account, &snap.Date, &snap.DailyChange, &snap.CumulativeBalance, &snap.Version, &snap.CreatedAt, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BalanceSnapshot{}, shared.ErrNotFound
		}
		return BalanceSnapshot{}, err
	}
	return snap, nil
}

// UpdateSnapshot rewrites a same-day snapshot, guarded by the version read
// when the posting started. Zero rows affected means another posting won.
func (r *txRepository) UpdateSnapshot(ctx context.Context, snap BalanceSnapshot, expectedVersion int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE ledger_balances
SET daily_change=$5, cumulative_balance=$6, version=version+1, updated_at=NOW()
WHERE society_id=$1 AND group_name=$2 AND account_name=$3 AND snapshot_date=$4 AND version=$7`,
		snap.SocietyID, snap.Group, snap.Account, snap.Date, toNumeric(snap.DailyChange), toNumeric(snap.CumulativeBalance), expectedVersion)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBalanceConflict
	}
	return nil
}

func (r *txRepository) LatestSnapshotOnOrBefore(ctx context.Context, societyID int64, ref AccountRef, date time.Time) (BalanceSnapshot, error) {
	return latestSnapshotOnOrBefore(ctx, r.tx, societyID, ref, date)
}

func (r *txRepository) LatestSnapshotDate(ctx context.Context, societyID int64, ref AccountRef) (time.Time, error) {
	var date time.Time
	err := r.tx.QueryRow(ctx, `SELECT snapshot_date FROM ledger_balances
WHERE society_id=$1 AND group_name=$2 AND account_name=$3 ORDER BY snapshot_date DESC LIMIT 1`,
		societyID, ref.Group, ref.Name).Scan(&date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, shared.ErrNotFound
		}
		return time.Time{}, err
	}
	return date, nil
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}
