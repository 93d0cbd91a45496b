package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity walks each account's snapshot chain and reports
	// drift between daily changes and cumulative balances.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskBillReminders counts long-unpaid bills per society and logs a
	// reminder summary.
	TaskBillReminders = "billing:reminders"
)

// LedgerIntegrityPayload scopes an integrity scan. A zero society id scans
// every society.
type LedgerIntegrityPayload struct {
	SocietyID int64 `json:"society_id"`
}

// NewLedgerIntegrityTask constructs an integrity scan task.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}

// BillRemindersPayload scopes a reminder run.
type BillRemindersPayload struct {
	SocietyID int64 `json:"society_id"`
	// OverdueDays is how old an unpaid bill must be to count. Defaults
	// to 7 when zero.
	OverdueDays int `json:"overdue_days"`
}

// NewBillRemindersTask constructs a reminder task.
func NewBillRemindersTask(payload BillRemindersPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillReminders, data), nil
}
