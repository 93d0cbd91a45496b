package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/societyops/societyops/internal/observability"
)

const defaultOverdueDays = 7

// UnpaidCounter is the slice of the billing repository the reminder job
// needs.
type UnpaidCounter interface {
	CountUnpaidOlderThan(ctx context.Context, societyID int64, cutoff time.Time) (int64, error)
}

// BillReminder summarises long-unpaid bills so the committee can chase
// them.
type BillReminder struct {
	bills   UnpaidCounter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewBillReminder constructs the reminder job.
func NewBillReminder(bills UnpaidCounter, logger *slog.Logger, metrics *observability.Metrics) *BillReminder {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillReminder{bills: bills, logger: logger, metrics: metrics}
}

// Handle processes TaskBillReminders tasks.
func (b *BillReminder) Handle(ctx context.Context, t *asynq.Task) error {
	var payload BillRemindersPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	days := payload.OverdueDays
	if days <= 0 {
		days = defaultOverdueDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	count, err := b.bills.CountUnpaidOlderThan(ctx, payload.SocietyID, cutoff)
	if err != nil {
		if b.metrics != nil {
			b.metrics.RecordJob(TaskBillReminders, "failure")
		}
		return err
	}
	if count > 0 {
		b.logger.Info("unpaid bill reminder",
			slog.Int64("society_id", payload.SocietyID),
			slog.Int64("overdue_bills", count),
			slog.Int("older_than_days", days))
	}
	if b.metrics != nil {
		b.metrics.RecordJob(TaskBillReminders, "success")
	}
	return nil
}
