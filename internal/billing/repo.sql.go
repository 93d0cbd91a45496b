package billing

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

// Repository persists billing entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertBatch writes a batch and its flat bills in one transaction.
func (r *Repository) InsertBatch(ctx context.Context, batch BillBatch, bills []FlatBill) (BillBatch, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return BillBatch{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `INSERT INTO bill_batches (society_id, bill_number, name, batch_type, start_date)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at, updated_at`,
		batch.SocietyID, batch.BillNumber, batch.Name, batch.Type, batch.StartDate)
	if err := row.Scan(&batch.ID, &batch.CreatedAt, &batch.UpdatedAt); err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return BillBatch{}, ErrBillNumberTaken
		}
		return BillBatch{}, err
	}

	batchInsert := &pgx.Batch{}
	for _, bill := range bills {
		batchInsert.Queue(`INSERT INTO flat_bills (society_id, bill_number, wing, flat_number, item, amount, status)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			bill.SocietyID, bill.BillNumber, bill.Wing, bill.FlatNumber, bill.Item, toNumeric(bill.Amount), bill.Status)
	}
	if err := tx.SendBatch(ctx, batchInsert).Close(); err != nil {
		return BillBatch{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return BillBatch{}, err
	}
	return batch, nil
}

// ListBatches returns batches in a date range, optionally filtered by type.
func (r *Repository) ListBatches(ctx context.Context, societyID int64, from, to time.Time, batchType BatchType) ([]BillBatch, error) {
	query := `SELECT id, society_id, bill_number, name, batch_type, start_date, created_at, updated_at
FROM bill_batches WHERE society_id=$1 AND start_date BETWEEN $2 AND $3`
	args := []any{societyID, from, to}
	if batchType != "" {
		query += ` AND batch_type=$4`
		args = append(args, batchType)
	}
	query += ` ORDER BY start_date, bill_number`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []BillBatch
	for rows.Next() {
		var b BillBatch
		if err := rows.Scan(&b.ID, &b.SocietyID, &b.BillNumber, &b.Name, &b.Type, &b.StartDate, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// statusTotal holds one slice of a grouped aggregate.
type statusTotal struct {
	BillNumber string
	Status     FlatBillStatus
	Total      float64
}

// SumByBillNumbers aggregates flat-bill amounts grouped by bill number and
// status, one indexed scan for the whole batch set.
func (r *Repository) SumByBillNumbers(ctx context.Context, societyID int64, billNumbers []string) (map[string]map[FlatBillStatus]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT bill_number, status, COALESCE(SUM(amount), 0)
FROM flat_bills WHERE society_id=$1 AND bill_number = ANY($2)
GROUP BY bill_number, status`, societyID, billNumbers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := make(map[string]map[FlatBillStatus]float64)
	for rows.Next() {
		var t statusTotal
		if err := rows.Scan(&t.BillNumber, &t.Status, &t.Total); err != nil {
			return nil, err
		}
		if totals[t.BillNumber] == nil {
			totals[t.BillNumber] = make(map[FlatBillStatus]float64)
		}
		totals[t.BillNumber][t.Status] += t.Total
	}
	return totals, rows.Err()
}

// ListFlatBills returns the bills for one unit.
func (r *Repository) ListFlatBills(ctx context.Context, scope shared.SocietyScope) ([]FlatBill, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, society_id, bill_number, wing, flat_number, item, amount, status, created_at, updated_at
FROM flat_bills WHERE society_id=$1 AND wing=$2 AND flat_number=$3 ORDER BY created_at DESC`,
		scope.SocietyID, scope.Wing, scope.FlatNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bills []FlatBill
	for rows.Next() {
		var b FlatBill
		if err := rows.Scan(&b.ID, &b.SocietyID, &b.BillNumber, &b.Wing, &b.FlatNumber, &b.Item, &b.Amount, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// GetFlatBill fetches one bill.
func (r *Repository) GetFlatBill(ctx context.Context, societyID, billID int64) (FlatBill, error) {
	var b FlatBill
	err := r.pool.QueryRow(ctx, `SELECT id, society_id, bill_number, wing, flat_number, item, amount, status, created_at, updated_at
FROM flat_bills WHERE society_id=$1 AND id=$2`, societyID, billID).
		Scan(&b.ID, &b.SocietyID, &b.BillNumber, &b.Wing, &b.FlatNumber, &b.Item, &b.Amount, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FlatBill{}, ErrBillNotFound
		}
		return FlatBill{}, err
	}
	return b, nil
}

// UpdateFlatBillStatus moves a bill between states; the WHERE clause
// re-checks the source state so racing updates cannot skip the transition
// rules.
func (r *Repository) UpdateFlatBillStatus(ctx context.Context, societyID, billID int64, from, to FlatBillStatus) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE flat_bills SET status=$4, updated_at=NOW()
WHERE society_id=$1 AND id=$2 AND status=$3`, societyID, billID, from, to)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// ListItems returns the society's bill item templates.
func (r *Repository) ListItems(ctx context.Context, societyID int64) ([]BillItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT society_id, name, pricing_mode, rate, created_at, updated_at
FROM bill_items WHERE society_id=$1 ORDER BY name`, societyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BillItem
	for rows.Next() {
		var item BillItem
		if err := rows.Scan(&item.SocietyID, &item.Name, &item.Mode, &item.Rate, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountUnpaidOlderThan counts unpaid flat bills created before the cutoff,
// used by the reminder job. A zero society id counts across all societies.
func (r *Repository) CountUnpaidOlderThan(ctx context.Context, societyID int64, cutoff time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM flat_bills
WHERE ($1 = 0 OR society_id=$1) AND status=$2 AND created_at < $3`, societyID, StatusUnpaid, cutoff).Scan(&count)
	return count, err
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}
