package ledger

import (
	"errors"
	"time"
)

// Group is a fixed-taxonomy category of accounts. The name is the
// identifier: groups are created once at bootstrap and never through
// user-facing flows.
type Group struct {
	SocietyID int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountRef addresses an account by its group and name within a society.
type AccountRef struct {
	Group string
	Name  string
}

// Account is a named ledger line under a group.
type Account struct {
	SocietyID int64
	Group     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ref returns the account's addressable reference.
func (a Account) Ref() AccountRef {
	return AccountRef{Group: a.Group, Name: a.Name}
}

// BalanceSnapshot is a dated record of an account's running total plus that
// date's net change. The cumulative balance at a date equals the cumulative
// balance of the latest prior snapshot plus the day's changes; snapshots are
// appended, never rewritten outside the versioned posting path.
type BalanceSnapshot struct {
	SocietyID         int64
	Group             string
	Account           string
	Date              time.Time
	DailyChange       float64
	CumulativeBalance float64
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PostingInput describes one transaction posting against an account.
type PostingInput struct {
	Account AccountRef
	Date    time.Time
	Amount  float64
	Memo    string
	ActorID int64
}

// CategoryLine is one account row in an income/expenditure report.
type CategoryLine struct {
	Group   string  `json:"group"`
	Account string  `json:"account"`
	Balance float64 `json:"balance"`
}

// IncomeExpenditure holds the partitioned report as of a date. Rows are
// sorted by account name ascending so reports are reproducible.
type IncomeExpenditure struct {
	AsOf             time.Time      `json:"as_of"`
	Income           []CategoryLine `json:"income"`
	Expenditure      []CategoryLine `json:"expenditure"`
	IncomeTotal      float64        `json:"income_total"`
	ExpenditureTotal float64        `json:"expenditure_total"`
}

var (
	// ErrGroupNotFound indicates the group is not part of the society's taxonomy.
	ErrGroupNotFound = errors.New("ledger: group not found")
	// ErrAccountExists indicates a duplicate account name within a group.
	ErrAccountExists = errors.New("ledger: account already exists")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrBalanceConflict indicates a concurrent posting won the version race.
	ErrBalanceConflict = errors.New("ledger: balance snapshot version conflict")
	// ErrBackdatedPosting indicates a posting older than the newest snapshot.
	ErrBackdatedPosting = errors.New("ledger: posting predates latest snapshot")
	// ErrAmountZero indicates a posting with no amount.
	ErrAmountZero = errors.New("ledger: amount must be non-zero")
)

// Validate checks a posting before any write happens.
func (in PostingInput) Validate() error {
	if in.Account.Group == "" || in.Account.Name == "" {
		return errors.New("ledger: account reference required")
	}
	if in.Date.IsZero() {
		return errors.New("ledger: date required")
	}
	if in.Amount == 0 {
		return ErrAmountZero
	}
	return nil
}

// Day truncates a timestamp to its calendar date in UTC. Snapshot identity
// is the date, so every posting path normalises through this.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
