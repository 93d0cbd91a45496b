package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/societyops/societyops/internal/shared"
)

type memoryLedgerRepo struct {
	groups    map[string]bool
	accounts  map[AccountRef]bool
	snapshots map[AccountRef][]BalanceSnapshot

	// afterLockedRead runs between the locked read and the CAS write, to
	// simulate a concurrent posting.
	afterLockedRead func(ref AccountRef)
}

func newMemoryLedgerRepo(groups ...string) *memoryLedgerRepo {
	r := &memoryLedgerRepo{
		groups:    make(map[string]bool),
		accounts:  make(map[AccountRef]bool),
		snapshots: make(map[AccountRef][]BalanceSnapshot),
	}
	for _, g := range groups {
		r.groups[g] = true
	}
	return r
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryLedgerRepo) ListGroups(ctx context.Context, societyID int64) ([]Group, error) {
	var out []Group
	for name := range r.groups {
		out = append(out, Group{SocietyID: societyID, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryLedgerRepo) ListAccounts(ctx context.Context, societyID int64, group string) ([]Account, error) {
	var out []Account
	for ref := range r.accounts {
		if ref.Group == group {
			out = append(out, Account{SocietyID: societyID, Group: ref.Group, Name: ref.Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryLedgerRepo) ListAccountsInGroups(ctx context.Context, societyID int64, groups []string) ([]Account, error) {
	want := make(map[string]bool, len(groups))
	for _, g := range groups {
		want[g] = true
	}
	var out []Account
	for ref := range r.accounts {
		if want[ref.Group] {
			out = append(out, Account{SocietyID: societyID, Group: ref.Group, Name: ref.Name})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *memoryLedgerRepo) LatestSnapshotOnOrBefore(ctx context.Context, societyID int64, ref AccountRef, date time.Time) (BalanceSnapshot, error) {
	var found *BalanceSnapshot
	for i := range r.snapshots[ref] {
		snap := r.snapshots[ref][i]
		if snap.Date.After(date) {
			continue
		}
		if found == nil || snap.Date.After(found.Date) {
			found = &snap
		}
	}
	if found == nil {
		return BalanceSnapshot{}, shared.ErrNotFound
	}
	return *found, nil
}

func (r *memoryLedgerRepo) GroupExists(ctx context.Context, societyID int64, name string) (bool, error) {
	return r.groups[name], nil
}

func (r *memoryLedgerRepo) InsertAccount(ctx context.Context, societyID int64, ref AccountRef, now time.Time) error {
	if r.accounts[ref] {
		return ErrAccountExists
	}
	r.accounts[ref] = true
	return nil
}

func (r *memoryLedgerRepo) InsertSnapshot(ctx context.Context, snap BalanceSnapshot) error {
	ref := AccountRef{Group: snap.Group, Name: snap.Account}
	for _, existing := range r.snapshots[ref] {
		if existing.Date.Equal(snap.Date) {
			return ErrBalanceConflict
		}
	}
	r.snapshots[ref] = append(r.snapshots[ref], snap)
	return nil
}

func (r *memoryLedgerRepo) GetSnapshotForUpdate(ctx context.Context, societyID int64, ref AccountRef, date time.Time) (BalanceSnapshot, error) {
	for _, snap := range r.snapshots[ref] {
		if snap.Date.Equal(date) {
			if r.afterLockedRead != nil {
				hook := r.afterLockedRead
				r.afterLockedRead = nil
				hook(ref)
			}
			return snap, nil
		}
	}
	return BalanceSnapshot{}, shared.ErrNotFound
}

func (r *memoryLedgerRepo) UpdateSnapshot(ctx context.Context, snap BalanceSnapshot, expectedVersion int64) error {
	ref := AccountRef{Group: snap.Group, Name: snap.Account}
	for i := range r.snapshots[ref] {
		if r.snapshots[ref][i].Date.Equal(snap.Date) {
			if r.snapshots[ref][i].Version != expectedVersion {
				return ErrBalanceConflict
			}
			snap.Version = expectedVersion + 1
			r.snapshots[ref][i] = snap
			return nil
		}
	}
	return ErrBalanceConflict
}

func (r *memoryLedgerRepo) LatestSnapshotDate(ctx context.Context, societyID int64, ref AccountRef) (time.Time, error) {
	var latest time.Time
	found := false
	for _, snap := range r.snapshots[ref] {
		if !found || snap.Date.After(latest) {
			latest = snap.Date
			found = true
		}
	}
	if !found {
		return time.Time{}, shared.ErrNotFound
	}
	return latest, nil
}

func (r *memoryLedgerRepo) seedSnapshot(ref AccountRef, date string, daily, cumulative float64) {
	day, _ := time.Parse(time.DateOnly, date)
	r.snapshots[ref] = append(r.snapshots[ref], BalanceSnapshot{
		Group: ref.Group, Account: ref.Name,
		Date: day, DailyChange: daily, CumulativeBalance: cumulative, Version: 1,
	})
}

func testScope() shared.SocietyScope { return shared.Scope(1) }

func date(t *testing.T, raw string) time.Time {
	t.Helper()
	day, err := time.Parse(time.DateOnly, raw)
	require.NoError(t, err)
	return day
}

func TestBalanceAsOfNoHistoryReturnsZero(t *testing.T) {
	repo := newMemoryLedgerRepo("Cash in Hand")
	repo.accounts[AccountRef{Group: "Cash in Hand", Name: "Cash"}] = true
	svc := NewService(repo, nil, nil)

	balance, err := svc.BalanceAsOf(context.Background(), testScope(), AccountRef{Group: "Cash in Hand", Name: "Cash"}, date(t, "2024-06-01"))
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestBalanceAsOfReturnsLatestBeforeDate(t *testing.T) {
	ref := AccountRef{Group: "Bank Accounts", Name: "Society Bank Account"}
	repo := newMemoryLedgerRepo("Bank Accounts")
	repo.accounts[ref] = true
	repo.seedSnapshot(ref, "2024-01-01", 100, 100)
	repo.seedSnapshot(ref, "2024-02-01", 150, 250)
	svc := NewService(repo, nil, nil)

	cases := []struct {
		lookup string
		want   float64
	}{
		{"2024-01-15", 100},
		{"2024-02-15", 250},
		{"2023-12-01", 0},
		{"2024-01-01", 100},
	}
	for _, tc := range cases {
		balance, err := svc.BalanceAsOf(context.Background(), testScope(), ref, date(t, tc.lookup))
		require.NoError(t, err)
		require.Equal(t, tc.want, balance, "as of %s", tc.lookup)
	}
}

func TestCreateAccountSpecialGroupCreatesMirror(t *testing.T) {
	repo := newMemoryLedgerRepo("Reserve and Surplus", GroupAccountReceivable)
	svc := NewService(repo, nil, nil)
	svc.WithNow(func() time.Time { return date(t, "2024-03-10") })

	created, err := svc.CreateAccount(context.Background(), testScope(), AccountRef{Group: "Reserve and Surplus", Name: "Repairs Fund"}, 1)
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.Equal(t, "Repairs Fund Receivable", created[1].Name)
	require.Equal(t, GroupAccountReceivable, created[1].Group)

	for _, account := range created {
		snaps := repo.snapshots[account.Ref()]
		require.Len(t, snaps, 1)
		require.Equal(t, date(t, "2024-03-10"), snaps[0].Date)
		require.Zero(t, snaps[0].DailyChange)
		require.Zero(t, snaps[0].CumulativeBalance)
	}
}

func TestCreateAccountRegularGroupNoMirror(t *testing.T) {
	repo := newMemoryLedgerRepo("Direct Expenses", GroupAccountReceivable)
	svc := NewService(repo, nil, nil)

	created, err := svc.CreateAccount(context.Background(), testScope(), AccountRef{Group: "Direct Expenses", Name: "Garden Upkeep"}, 1)
	require.NoError(t, err)
	require.Len(t, created, 1)
}

func TestCreateAccountUnknownGroup(t *testing.T) {
	repo := newMemoryLedgerRepo("Cash in Hand")
	svc := NewService(repo, nil, nil)

	_, err := svc.CreateAccount(context.Background(), testScope(), AccountRef{Group: "Imaginary", Name: "X"}, 1)
	require.ErrorIs(t, err, ErrGroupNotFound)
}

func TestPostTransactionCreatesSnapshotFromPrior(t *testing.T) {
	ref := AccountRef{Group: "Direct Income", Name: "Maintenance Charges"}
	repo := newMemoryLedgerRepo("Direct Income")
	repo.accounts[ref] = true
	repo.seedSnapshot(ref, "2024-01-01", 0, 500)
	svc := NewService(repo, nil, nil)

	snap, err := svc.PostTransaction(context.Background(), testScope(), PostingInput{
		Account: ref, Date: date(t, "2024-01-20"), Amount: 125,
	})
	require.NoError(t, err)
	require.Equal(t, 125.0, snap.DailyChange)
	require.Equal(t, 625.0, snap.CumulativeBalance)
	require.EqualValues(t, 1, snap.Version)
}

func TestPostTransactionSameDayAccumulates(t *testing.T) {
	ref := AccountRef{Group: "Direct Income", Name: "Maintenance Charges"}
	repo := newMemoryLedgerRepo("Direct Income")
	repo.accounts[ref] = true
	repo.seedSnapshot(ref, "2024-01-20", 100, 100)
	svc := NewService(repo, nil, nil)

	snap, err := svc.PostTransaction(context.Background(), testScope(), PostingInput{
		Account: ref, Date: date(t, "2024-01-20"), Amount: -40,
	})
	require.NoError(t, err)
	require.Equal(t, 60.0, snap.DailyChange)
	require.Equal(t, 60.0, snap.CumulativeBalance)
	require.EqualValues(t, 2, snap.Version)
}

func TestPostTransactionVersionConflict(t *testing.T) {
	ref := AccountRef{Group: "Direct Income", Name: "Maintenance Charges"}
	repo := newMemoryLedgerRepo("Direct Income")
	repo.accounts[ref] = true
	repo.seedSnapshot(ref, "2024-01-20", 100, 100)
	repo.afterLockedRead = func(target AccountRef) {
		for i := range repo.snapshots[target] {
			repo.snapshots[target][i].Version++
		}
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.PostTransaction(context.Background(), testScope(), PostingInput{
		Account: ref, Date: date(t, "2024-01-20"), Amount: 10,
	})
	require.ErrorIs(t, err, ErrBalanceConflict)
}

func TestPostTransactionBackdatedRejected(t *testing.T) {
	ref := AccountRef{Group: "Direct Income", Name: "Maintenance Charges"}
	repo := newMemoryLedgerRepo("Direct Income")
	repo.accounts[ref] = true
	repo.seedSnapshot(ref, "2024-03-01", 0, 0)
	svc := NewService(repo, nil, nil)

	_, err := svc.PostTransaction(context.Background(), testScope(), PostingInput{
		Account: ref, Date: date(t, "2024-02-01"), Amount: 10,
	})
	require.ErrorIs(t, err, ErrBackdatedPosting)
}

func TestPostTransactionUnknownAccount(t *testing.T) {
	repo := newMemoryLedgerRepo("Direct Income")
	svc := NewService(repo, nil, nil)

	_, err := svc.PostTransaction(context.Background(), testScope(), PostingInput{
		Account: AccountRef{Group: "Direct Income", Name: "Ghost"}, Date: date(t, "2024-02-01"), Amount: 10,
	})
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestIncomeExpenditureFiltersZeroAndSorts(t *testing.T) {
	repo := newMemoryLedgerRepo(append(append([]string{}, IncomeGroups...), ExpenditureGroups...)...)
	seed := func(group, name string, cumulative float64) {
		ref := AccountRef{Group: group, Name: name}
		repo.accounts[ref] = true
		if cumulative != 0 {
			repo.seedSnapshot(ref, "2024-05-01", cumulative, cumulative)
		}
	}
	seed("Direct Income", "Maintenance Charges", 900)
	seed("Indirect Income", "Bank Interest", 35)
	seed("Direct Income", "Late Payment Charges", 0)
	seed("Direct Expenses", "Security Charges", 400)
	seed("Maintenance & Repairing", "Building Maintenance", 120)
	seed("Indirect Expenses", "Bank Charges", 0)

	svc := NewService(repo, nil, nil)
	report, err := svc.IncomeExpenditure(context.Background(), testScope(), date(t, "2024-06-01"))
	require.NoError(t, err)

	require.Len(t, report.Income, 2)
	require.Equal(t, "Bank Interest", report.Income[0].Account)
	require.Equal(t, "Maintenance Charges", report.Income[1].Account)
	require.Equal(t, 935.0, report.IncomeTotal)

	require.Len(t, report.Expenditure, 2)
	require.Equal(t, "Building Maintenance", report.Expenditure[0].Account)
	require.Equal(t, "Security Charges", report.Expenditure[1].Account)
	require.Equal(t, 520.0, report.ExpenditureTotal)
}

type stubReportCache struct {
	entries map[string][]byte
	version int64
	hits    int
}

func newStubReportCache() *stubReportCache {
	return &stubReportCache{entries: make(map[string][]byte), version: 1}
}

func (c *stubReportCache) Bump(ctx context.Context) error {
	c.version++
	return nil
}

func (c *stubReportCache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	return fmt.Sprintf("%s:%d", strings.Join(parts, ":"), c.version), nil
}

func (c *stubReportCache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if raw, ok := c.entries[key]; ok {
		c.hits++
		return json.Unmarshal(raw, dest)
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return json.Unmarshal(raw, dest)
}

func TestIncomeExpenditureCachedUntilPosting(t *testing.T) {
	ref := AccountRef{Group: "Direct Income", Name: "Maintenance Charges"}
	repo := newMemoryLedgerRepo(append(append([]string{}, IncomeGroups...), ExpenditureGroups...)...)
	repo.accounts[ref] = true
	repo.seedSnapshot(ref, "2024-05-01", 500, 500)

	cache := newStubReportCache()
	svc := NewService(repo, nil, cache)

	first, err := svc.IncomeExpenditure(context.Background(), testScope(), date(t, "2024-06-01"))
	require.NoError(t, err)
	require.Equal(t, 500.0, first.IncomeTotal)
	require.Equal(t, 0, cache.hits)

	second, err := svc.IncomeExpenditure(context.Background(), testScope(), date(t, "2024-06-01"))
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, cache.hits)

	_, err = svc.PostTransaction(context.Background(), testScope(), PostingInput{
		Account: ref, Date: date(t, "2024-06-02"), Amount: 100,
	})
	require.NoError(t, err)

	after, err := svc.IncomeExpenditure(context.Background(), testScope(), date(t, "2024-06-10"))
	require.NoError(t, err)
	require.Equal(t, 600.0, after.IncomeTotal)
	require.Equal(t, 1, cache.hits)
}
