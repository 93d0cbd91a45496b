package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/societyops/societyops/internal/observability"
)

// driftTolerance absorbs numeric round-off when comparing balances.
const driftTolerance = 0.005

// LedgerIntegrityScanner verifies that every account's cumulative balance
// matches the running sum of its daily changes. Drift means a snapshot was
// edited outside the posting path.
type LedgerIntegrityScanner struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewLedgerIntegrityScanner constructs the scanner.
func NewLedgerIntegrityScanner(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *LedgerIntegrityScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerIntegrityScanner{pool: pool, logger: logger, metrics: metrics}
}

// Handle processes TaskLedgerIntegrity tasks.
func (s *LedgerIntegrityScanner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	drifted, err := s.Scan(ctx, payload.SocietyID)
	if err != nil {
		s.record("failure")
		return err
	}
	if drifted > 0 {
		s.logger.Warn("ledger integrity drift detected",
			slog.Int64("society_id", payload.SocietyID),
			slog.Int("accounts", drifted))
	}
	s.record("success")
	return nil
}

// Scan walks snapshot chains and returns the number of accounts whose
// cumulative balances disagree with their daily changes.
func (s *LedgerIntegrityScanner) Scan(ctx context.Context, societyID int64) (int, error) {
	query := `SELECT society_id, group_name, account_name, snapshot_date, daily_change, cumulative_balance
FROM ledger_balances`
	args := []any{}
	if societyID > 0 {
		query += ` WHERE society_id=$1`
		args = append(args, societyID)
	}
	query += ` ORDER BY society_id, group_name, account_name, snapshot_date`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	type accountKey struct {
		societyID      int64
		group, account string
	}
	var (
		current accountKey
		running float64
		tainted = make(map[accountKey]bool)
		started bool
	)
	for rows.Next() {
		var key accountKey
		var date any
		var change, cumulative float64
		if err := rows.Scan(&key.societyID, &key.group, &key.account, &date, &change, &cumulative); err != nil {
			return 0, err
		}
		if !started || key != current {
			current = key
			running = 0
			started = true
		}
		running += change
		if math.Abs(running-cumulative) > driftTolerance {
			if !tainted[key] {
				tainted[key] = true
				s.logger.Warn("cumulative balance drift",
					slog.Int64("society_id", key.societyID),
					slog.String("group", key.group),
					slog.String("account", key.account),
					slog.Float64("expected", running),
					slog.Float64("stored", cumulative))
			}
			// Resync so one bad snapshot does not cascade.
			running = cumulative
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return len(tainted), nil
}

func (s *LedgerIntegrityScanner) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordJob(TaskLedgerIntegrity, outcome)
	}
}
