package society

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/require"

	"github.com/societyops/societyops/internal/ledger"
	"github.com/societyops/societyops/internal/shared"
)

type memorySocietyRepo struct {
	societies   map[string]Society
	plans       []WritePlan
	wings       map[int64][]Wing
	admins      map[int64][]int64
	takenCode   string
	failNext    error
	nextID      int64
	summaryHits int
}

func newMemorySocietyRepo() *memorySocietyRepo {
	return &memorySocietyRepo{
		societies: make(map[string]Society),
		wings:     make(map[int64][]Wing),
		admins:    make(map[int64][]int64),
	}
}

func (r *memorySocietyRepo) Exists(ctx context.Context, name string) (bool, error) {
	_, ok := r.societies[name]
	return ok, nil
}

func (r *memorySocietyRepo) JoinCodeTaken(ctx context.Context, code string) (bool, error) {
	return code == r.takenCode, nil
}

func (r *memorySocietyRepo) Bootstrap(ctx context.Context, plan WritePlan, now time.Time) (Society, error) {
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return Society{}, err
	}
	r.nextID++
	soc := plan.Society
	soc.ID = r.nextID
	soc.CreatedAt = now
	soc.UpdatedAt = now
	r.societies[soc.Name] = soc
	r.plans = append(r.plans, plan)
	wings := make([]Wing, 0, len(plan.Wings))
	for _, name := range plan.Wings {
		wings = append(wings, Wing{SocietyID: soc.ID, Name: name, CreatedAt: now})
	}
	r.wings[soc.ID] = wings
	return soc, nil
}

func (r *memorySocietyRepo) GetByID(ctx context.Context, id int64) (Society, error) {
	for _, soc := range r.societies {
		if soc.ID == id {
			return soc, nil
		}
	}
	return Society{}, ErrSocietyNotFound
}

func (r *memorySocietyRepo) GetByJoinCode(ctx context.Context, code string) (Society, error) {
	for _, soc := range r.societies {
		if soc.JoinCode == code {
			return soc, nil
		}
	}
	return Society{}, ErrSocietyNotFound
}

func (r *memorySocietyRepo) ListWings(ctx context.Context, societyID int64) ([]Wing, error) {
	return r.wings[societyID], nil
}

func (r *memorySocietyRepo) AddAdmin(ctx context.Context, societyID, userID int64, now time.Time) error {
	for _, id := range r.admins[societyID] {
		if id == userID {
			return ErrAlreadyAdmin
		}
	}
	r.admins[societyID] = append(r.admins[societyID], userID)
	return nil
}

func (r *memorySocietyRepo) ListAdmins(ctx context.Context, societyID int64) ([]int64, error) {
	return r.admins[societyID], nil
}

func (r *memorySocietyRepo) Summary(ctx context.Context, societyID int64) (Summary, error) {
	r.summaryHits++
	soc, err := r.GetByID(ctx, societyID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Society: soc, WingCount: len(r.wings[societyID])}, nil
}

type memoryIdemStore struct {
	keys map[string]bool
}

func newMemoryIdemStore() *memoryIdemStore {
	return &memoryIdemStore{keys: make(map[string]bool)}
}

func (s *memoryIdemStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = true
	return nil
}

func (s *memoryIdemStore) Delete(ctx context.Context, key string) error {
	delete(s.keys, key)
	return nil
}

func TestBootstrapSeedsFullDataset(t *testing.T) {
	repo := newMemorySocietyRepo()
	idem := newMemoryIdemStore()
	svc := NewService(repo, idem, nil, nil, nil)

	soc, err := svc.Bootstrap(context.Background(), BootstrapInput{
		Name:        "Green Acres",
		TotalWings:  3,
		City:        "Pune",
		AdminUserID: 7,
	})
	require.NoError(t, err)
	require.NotZero(t, soc.ID)
	require.Len(t, soc.JoinCode, joinCodeLen)

	require.Len(t, repo.plans, 1)
	plan := repo.plans[0]
	require.Equal(t, []string{"A", "B", "C"}, plan.Wings)
	require.Equal(t, ledger.DefaultGroups, plan.Groups)
	require.Equal(t, int64(7), plan.AdminUserID)

	wantAccounts := 0
	for _, names := range ledger.SeedAccounts {
		wantAccounts += len(names)
	}
	require.Len(t, plan.Accounts, wantAccounts)
	for _, acc := range plan.Accounts {
		require.Contains(t, ledger.SeedAccounts[acc.Group], acc.Name)
	}
	require.Len(t, plan.Items, 5)
}

func TestBootstrapCustomWingNames(t *testing.T) {
	repo := newMemorySocietyRepo()
	svc := NewService(repo, newMemoryIdemStore(), nil, nil, nil)

	_, err := svc.Bootstrap(context.Background(), BootstrapInput{
		Name:       "Lake View",
		TotalWings: 2,
		WingNames:  []string{"North", "South"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"North", "South"}, repo.plans[0].Wings)
}

func TestBootstrapRejectsWingNameMismatch(t *testing.T) {
	repo := newMemorySocietyRepo()
	svc := NewService(repo, newMemoryIdemStore(), nil, nil, nil)

	_, err := svc.Bootstrap(context.Background(), BootstrapInput{
		Name:       "Lake View",
		TotalWings: 3,
		WingNames:  []string{"North", "South"},
	})
	require.ErrorIs(t, err, ErrWingNamesMismatch)
	require.Empty(t, repo.plans)
}

func TestBootstrapRejectsDuplicateName(t *testing.T) {
	repo := newMemorySocietyRepo()
	svc := NewService(repo, newMemoryIdemStore(), nil, nil, nil)

	_, err := svc.Bootstrap(context.Background(), BootstrapInput{Name: "Green Acres", TotalWings: 1})
	require.NoError(t, err)

	_, err = svc.Bootstrap(context.Background(), BootstrapInput{Name: "Green Acres", TotalWings: 1})
	require.ErrorIs(t, err, ErrSocietyExists)
	require.Len(t, repo.plans, 1)
}

func TestBootstrapInFlightDuplicateBlockedByKey(t *testing.T) {
	repo := newMemorySocietyRepo()
	idem := newMemoryIdemStore()
	idem.keys["bootstrap:Green Acres"] = true
	svc := NewService(repo, idem, nil, nil, nil)

	_, err := svc.Bootstrap(context.Background(), BootstrapInput{Name: "Green Acres", TotalWings: 1})
	require.ErrorIs(t, err, ErrSocietyExists)
	require.Empty(t, repo.plans)
}

func TestBootstrapFailureReleasesKey(t *testing.T) {
	repo := newMemorySocietyRepo()
	repo.failNext = errors.New("write plan failed")
	idem := newMemoryIdemStore()
	svc := NewService(repo, idem, nil, nil, nil)

	_, err := svc.Bootstrap(context.Background(), BootstrapInput{Name: "Green Acres", TotalWings: 2})
	require.Error(t, err)
	require.Empty(t, repo.societies)
	require.False(t, idem.keys["bootstrap:Green Acres"])

	_, err = svc.Bootstrap(context.Background(), BootstrapInput{Name: "Green Acres", TotalWings: 2})
	require.NoError(t, err)
}

func TestBootstrapRetriesJoinCodeCollision(t *testing.T) {
	repo := newMemorySocietyRepo()
	svc := NewService(repo, newMemoryIdemStore(), nil, nil, nil)

	soc, err := svc.Bootstrap(context.Background(), BootstrapInput{Name: "Green Acres", TotalWings: 1})
	require.NoError(t, err)
	for _, ch := range soc.JoinCode {
		require.Contains(t, joinCodeCharset, string(ch))
	}
}

func TestBootstrapJoinCodeIsNumeric(t *testing.T) {
	repo := newMemorySocietyRepo()
	svc := NewService(repo, newMemoryIdemStore(), nil, nil, nil)

	soc, err := svc.Bootstrap(context.Background(), BootstrapInput{Name: "Green Acres", TotalWings: 1})
	require.NoError(t, err)
	require.Len(t, soc.JoinCode, joinCodeLen)
	for _, ch := range soc.JoinCode {
		require.True(t, unicode.IsDigit(ch), "join code %q contains non-digit %q", soc.JoinCode, ch)
	}
}

type stubSummaryCache struct {
	entries map[string][]byte
	version int64
	hits    int
}

func newStubSummaryCache() *stubSummaryCache {
	return &stubSummaryCache{entries: make(map[string][]byte), version: 1}
}

func (c *stubSummaryCache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	return fmt.Sprintf("%s:%d", strings.Join(parts, ":"), c.version), nil
}

func (c *stubSummaryCache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
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

func TestDashboardSummaryServedFromCache(t *testing.T) {
	repo := newMemorySocietyRepo()
	cache := newStubSummaryCache()
	svc := NewService(repo, newMemoryIdemStore(), nil, cache, nil)

	soc, err := svc.Bootstrap(context.Background(), BootstrapInput{Name: "Green Acres", TotalWings: 2})
	require.NoError(t, err)
	scope := shared.Scope(soc.ID)

	first, err := svc.DashboardSummary(context.Background(), scope)
	require.NoError(t, err)
	require.Equal(t, 2, first.WingCount)
	require.Equal(t, 1, repo.summaryHits)

	second, err := svc.DashboardSummary(context.Background(), scope)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.summaryHits)
	require.Equal(t, 1, cache.hits)
}

func TestAddAdminRejectsDuplicate(t *testing.T) {
	repo := newMemorySocietyRepo()
	svc := NewService(repo, newMemoryIdemStore(), nil, nil, nil)

	soc, err := svc.Bootstrap(context.Background(), BootstrapInput{Name: "Green Acres", TotalWings: 1})
	require.NoError(t, err)
	scope := shared.Scope(soc.ID)

	require.NoError(t, svc.AddAdmin(context.Background(), scope, 42, 1))
	err = svc.AddAdmin(context.Background(), scope, 42, 1)
	require.ErrorIs(t, err, ErrAlreadyAdmin)

	admins, err := svc.ListAdmins(context.Background(), scope)
	require.NoError(t, err)
	require.Equal(t, []int64{42}, admins)

	err = svc.AddAdmin(context.Background(), scope, 0, 1)
	require.Error(t, err)
}
