package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/societyops/societyops/internal/reportcache"
	"github.com/societyops/societyops/internal/shared"
)

// RepositoryPort abstracts repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListGroups(ctx context.Context, societyID int64) ([]Group, error)
	ListAccounts(ctx context.Context, societyID int64, group string) ([]Account, error)
	ListAccountsInGroups(ctx context.Context, societyID int64, groups []string) ([]Account, error)
	LatestSnapshotOnOrBefore(ctx context.Context, societyID int64, ref AccountRef, date time.Time) (BalanceSnapshot, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportCache serves cached report payloads and invalidates them after a
// write.
type ReportCache interface {
	Bump(ctx context.Context) error
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// balanceFanout bounds the number of concurrent balance lookups the
// income/expenditure report issues.
const balanceFanout = 8

// Service coordinates account creation, balance posting, and report
// aggregation for the society ledger.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache ReportCache
	now   func() time.Time

	collateOnce sync.Once
	collator    *collate.Collator
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, cache ReportCache) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ListGroups returns the society's taxonomy.
func (s *Service) ListGroups(ctx context.Context, scope shared.SocietyScope) ([]Group, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListGroups(ctx, scope.SocietyID)
}

// ListAccounts returns the accounts under one group.
func (s *Service) ListAccounts(ctx context.Context, scope shared.SocietyScope, group string) ([]Account, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if group == "" {
		return nil, ErrGroupNotFound
	}
	return s.repo.ListAccounts(ctx, scope.SocietyID, group)
}

// BalanceAsOf resolves an account's cumulative balance as of the latest
// snapshot at or before the target date. Missing history is not an error:
// it is the defined "no history yet" case and maps to zero.
func (s *Service) BalanceAsOf(ctx context.Context, scope shared.SocietyScope, ref AccountRef, date time.Time) (float64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	day := Day(date)
	if s.cache == nil {
		return s.balanceAsOf(ctx, scope, ref, day)
	}
	key, err := s.cache.BuildKey(ctx, reportcache.BalanceKey(scope.SocietyID, ref.Group, ref.Name, day)...)
	if err != nil {
		return s.balanceAsOf(ctx, scope, ref, day)
	}
	var balance float64
	err = s.cache.FetchJSON(ctx, key, &balance, func(ctx context.Context) (any, error) {
		return s.balanceAsOf(ctx, scope, ref, day)
	})
	return balance, err
}

func (s *Service) balanceAsOf(ctx context.Context, scope shared.SocietyScope, ref AccountRef, day time.Time) (float64, error) {
	snap, err := s.repo.LatestSnapshotOnOrBefore(ctx, scope.SocietyID, ref, day)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return snap.CumulativeBalance, nil
}

// CreateAccount adds an account under an existing group with a zero opening
// snapshot dated today. Accounts created under a special group also get a
// mirror account under Account Receivable, each with a matching opening
// snapshot, in the same transaction.
func (s *Service) CreateAccount(ctx context.Context, scope shared.SocietyScope, ref AccountRef, actorID int64) ([]Account, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if ref.Group == "" || ref.Name == "" {
		return nil, errors.New("ledger: group and account name required")
	}
	now := s.now().UTC()
	today := Day(now)

	refs := []AccountRef{ref}
	if SpecialGroups[ref.Group] {
		refs = append(refs, AccountRef{Group: GroupAccountReceivable, Name: ref.Name + ReceivableSuffix})
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, r := range refs {
			ok, err := tx.GroupExists(ctx, scope.SocietyID, r.Group)
			if err != nil {
				return err
			}
			if !ok {
				return ErrGroupNotFound
			}
			if err := tx.InsertAccount(ctx, scope.SocietyID, r, now); err != nil {
				return err
			}
			if err := tx.InsertSnapshot(ctx, BalanceSnapshot{
				SocietyID: scope.SocietyID,
				Group:     r.Group,
				Account:   r.Name,
				Date:      today,
				Version:   1,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created := make([]Account, 0, len(refs))
	for _, r := range refs {
		created = append(created, Account{SocietyID: scope.SocietyID, Group: r.Group, Name: r.Name, CreatedAt: now, UpdatedAt: now})
	}
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			SocietyID: scope.SocietyID,
			ActorID:   actorID,
			Action:    "ledger.account.create",
			Entity:    "ledger_account",
			EntityID:  ref.Group + "/" + ref.Name,
			Meta:      map[string]any{"mirrored": len(refs) > 1},
			At:        now,
		})
	}
	return created, nil
}

// PostTransaction applies a signed amount to an account on a date. The
// snapshot for that date is created or advanced inside one transaction; the
// version compare-and-swap turns a concurrent same-day posting into
// ErrBalanceConflict instead of a silent lost update. Postings older than
// the newest snapshot are rejected: later cumulative balances would no
// longer equal their prior snapshot plus the day's changes.
func (s *Service) PostTransaction(ctx context.Context, scope shared.SocietyScope, in PostingInput) (BalanceSnapshot, error) {
	if err := scope.Validate(); err != nil {
		return BalanceSnapshot{}, err
	}
	if err := in.Validate(); err != nil {
		return BalanceSnapshot{}, err
	}
	now := s.now().UTC()
	date := Day(in.Date)

	var result BalanceSnapshot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		latest, err := tx.LatestSnapshotDate(ctx, scope.SocietyID, in.Account)
		switch {
		case err == nil:
			if date.Before(Day(latest)) {
				return ErrBackdatedPosting
			}
		case errors.Is(err, shared.ErrNotFound):
			return ErrAccountNotFound
		default:
			return err
		}

		existing, err := tx.GetSnapshotForUpdate(ctx, scope.SocietyID, in.Account, date)
		if err == nil {
			updated := existing
			updated.DailyChange += in.Amount
			updated.CumulativeBalance += in.Amount
			if err := tx.UpdateSnapshot(ctx, updated, existing.Version); err != nil {
				return err
			}
			updated.Version = existing.Version + 1
			updated.UpdatedAt = now
			result = updated
			return nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}

		var prior float64
		prev, err := tx.LatestSnapshotOnOrBefore(ctx, scope.SocietyID, in.Account, date)
		if err == nil {
			prior = prev.CumulativeBalance
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		snap := BalanceSnapshot{
			SocietyID:         scope.SocietyID,
			Group:             in.Account.Group,
			Account:           in.Account.Name,
			Date:              date,
			DailyChange:       in.Amount,
			CumulativeBalance: prior + in.Amount,
			Version:           1,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.InsertSnapshot(ctx, snap); err != nil {
			return err
		}
		result = snap
		return nil
	})
	if err != nil {
		return BalanceSnapshot{}, err
	}

	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			SocietyID: scope.SocietyID,
			ActorID:   in.ActorID,
			Action:    "ledger.transaction.post",
			Entity:    "ledger_balance",
			EntityID:  fmt.Sprintf("%s/%s@%s", in.Account.Group, in.Account.Name, date.Format(time.DateOnly)),
			Meta:      map[string]any{"amount": in.Amount, "memo": in.Memo},
			At:        now,
		})
	}
	return result, nil
}

// IncomeExpenditure partitions accounts into income and expenditure sets as
// of a date, resolving each balance independently with bounded fan-out.
// Accounts whose balance is exactly zero are excluded from both sets.
func (s *Service) IncomeExpenditure(ctx context.Context, scope shared.SocietyScope, date time.Time) (IncomeExpenditure, error) {
	if err := scope.Validate(); err != nil {
		return IncomeExpenditure{}, err
	}
	day := Day(date)
	if s.cache == nil {
		return s.incomeExpenditure(ctx, scope, day)
	}
	key, err := s.cache.BuildKey(ctx, reportcache.IncomeExpenditureKey(scope.SocietyID, day)...)
	if err != nil {
		return s.incomeExpenditure(ctx, scope, day)
	}
	var report IncomeExpenditure
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
		return s.incomeExpenditure(ctx, scope, day)
	})
	return report, err
}

func (s *Service) incomeExpenditure(ctx context.Context, scope shared.SocietyScope, day time.Time) (IncomeExpenditure, error) {
	groups := append(append([]string{}, IncomeGroups...), ExpenditureGroups...)
	accounts, err := s.repo.ListAccountsInGroups(ctx, scope.SocietyID, groups)
	if err != nil {
		return IncomeExpenditure{}, err
	}

	balances := make([]float64, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(balanceFanout)
	for i, account := range accounts {
		g.Go(func() error {
			bal, err := s.balanceAsOf(gctx, scope, account.Ref(), day)
			if err != nil {
				return err
			}
			balances[i] = bal
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return IncomeExpenditure{}, err
	}

	report := IncomeExpenditure{AsOf: day}
	for i, account := range accounts {
		if balances[i] == 0 {
			continue
		}
		line := CategoryLine{Group: account.Group, Account: account.Name, Balance: balances[i]}
		switch {
		case IsIncomeGroup(account.Group):
			report.Income = append(report.Income, line)
			report.IncomeTotal += line.Balance
		case IsExpenditureGroup(account.Group):
			report.Expenditure = append(report.Expenditure, line)
			report.ExpenditureTotal += line.Balance
		}
	}
	s.sortLines(report.Income)
	s.sortLines(report.Expenditure)
	return report, nil
}

func (s *Service) sortLines(lines []CategoryLine) {
	c := s.collate()
	sort.SliceStable(lines, func(i, j int) bool {
		return c.CompareString(lines[i].Account, lines[j].Account) < 0
	})
}

func (s *Service) collate() *collate.Collator {
	s.collateOnce.Do(func() {
		s.collator = collate.New(language.English)
	})
	return s.collator
}
