package society

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/societyops/societyops/internal/billing"
	"github.com/societyops/societyops/internal/ledger"
	"github.com/societyops/societyops/internal/reportcache"
	"github.com/societyops/societyops/internal/shared"
)

// RepositoryPort abstracts society persistence.
type RepositoryPort interface {
	Exists(ctx context.Context, name string) (bool, error)
	JoinCodeTaken(ctx context.Context, code string) (bool, error)
	Bootstrap(ctx context.Context, plan WritePlan, now time.Time) (Society, error)
	GetByID(ctx context.Context, id int64) (Society, error)
	GetByJoinCode(ctx context.Context, code string) (Society, error)
	ListWings(ctx context.Context, societyID int64) ([]Wing, error)
	AddAdmin(ctx context.Context, societyID, userID int64, now time.Time) error
	ListAdmins(ctx context.Context, societyID int64) ([]int64, error)
	Summary(ctx context.Context, societyID int64) (Summary, error)
}

// IdempotencyPort guards bootstrap against duplicate in-flight attempts.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort records society events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportCache serves cached dashboard payloads.
type ReportCache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// Join codes are numeric so residents can key them in on a phone pad.
const joinCodeLen = 6
const joinCodeCharset = "0123456789"

// Service runs society setup and lookups.
type Service struct {
	repo   RepositoryPort
	idem   IdempotencyPort
	audit  AuditPort
	cache  ReportCache
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the society service.
func NewService(repo RepositoryPort, idem IdempotencyPort, audit AuditPort, cache ReportCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, idem: idem, audit: audit, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Bootstrap registers a society and seeds its complete initial dataset:
// wings, the ledger group taxonomy with seed accounts and zero opening
// snapshots, and the default bill item templates. The whole plan commits
// atomically.
func (s *Service) Bootstrap(ctx context.Context, in BootstrapInput) (Society, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Society{}, fmt.Errorf("society: name required")
	}
	in.Name = name

	wings, err := in.WingNamesOrDefault()
	if err != nil {
		return Society{}, err
	}

	exists, err := s.repo.Exists(ctx, in.Name)
	if err != nil {
		return Society{}, err
	}
	if exists {
		return Society{}, ErrSocietyExists
	}

	idemKey := "bootstrap:" + in.Name
	if s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idemKey, "society"); err != nil {
			if err == shared.ErrIdempotencyConflict {
				return Society{}, ErrSocietyExists
			}
			return Society{}, err
		}
	}

	code, err := s.freshJoinCode(ctx)
	if err != nil {
		s.releaseKey(ctx, idemKey)
		return Society{}, err
	}

	plan := WritePlan{
		Society: Society{
			Name:         in.Name,
			TotalWings:   in.TotalWings,
			AddressLine1: in.AddressLine1,
			City:         in.City,
			State:        in.State,
			PostalCode:   in.PostalCode,
			JoinCode:     code,
		},
		AdminUserID: in.AdminUserID,
		Wings:       wings,
		Groups:      ledger.DefaultGroups,
		Accounts:    seedAccounts(),
		Items:       seedItems(),
	}

	now := s.now().UTC()
	soc, err := s.repo.Bootstrap(ctx, plan, now)
	if err != nil {
		s.releaseKey(ctx, idemKey)
		return Society{}, err
	}

	s.logger.Info("society bootstrapped",
		slog.Int64("society_id", soc.ID),
		slog.Int("wings", len(wings)),
		slog.Int("accounts", len(plan.Accounts)))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			SocietyID: soc.ID,
			ActorID:   in.AdminUserID,
			Action:    "society.bootstrap",
			Entity:    "society",
			EntityID:  soc.Name,
			Meta:      map[string]any{"wings": len(wings)},
			At:        now,
		})
	}
	return soc, nil
}

func (s *Service) releaseKey(ctx context.Context, key string) {
	if s.idem == nil {
		return
	}
	if err := s.idem.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to release bootstrap key", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *Service) freshJoinCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := randomCode(joinCodeLen)
		if err != nil {
			return "", err
		}
		taken, err := s.repo.JoinCodeTaken(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("society: could not allocate a unique join code")
}

func randomCode(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(joinCodeCharset))))
		if err != nil {
			return "", err
		}
		b.WriteByte(joinCodeCharset[idx.Int64()])
	}
	return b.String(), nil
}

func seedAccounts() []SeedAccount {
	var accounts []SeedAccount
	for _, group := range ledger.DefaultGroups {
		for _, name := range ledger.SeedAccounts[group] {
			accounts = append(accounts, SeedAccount{Group: group, Name: name})
		}
	}
	return accounts
}

func seedItems() []SeedItem {
	items := make([]SeedItem, 0, len(billing.DefaultItems))
	for _, item := range billing.DefaultItems {
		items = append(items, SeedItem{Name: item.Name, Mode: string(item.Mode), Rate: item.Rate})
	}
	return items
}

// Get loads one society.
func (s *Service) Get(ctx context.Context, id int64) (Society, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByJoinCode resolves a resident's join code.
func (s *Service) GetByJoinCode(ctx context.Context, code string) (Society, error) {
	return s.repo.GetByJoinCode(ctx, strings.TrimSpace(code))
}

// ListWings returns a society's wings.
func (s *Service) ListWings(ctx context.Context, scope shared.SocietyScope) ([]Wing, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListWings(ctx, scope.SocietyID)
}

// AddAdmin grants an additional user admin standing in the society.
func (s *Service) AddAdmin(ctx context.Context, scope shared.SocietyScope, userID, actorID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if userID <= 0 {
		return fmt.Errorf("society: admin user id required")
	}
	now := s.now().UTC()
	if err := s.repo.AddAdmin(ctx, scope.SocietyID, userID, now); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			SocietyID: scope.SocietyID,
			ActorID:   actorID,
			Action:    "society.admin.add",
			Entity:    "society_admin",
			EntityID:  fmt.Sprintf("%d", userID),
			At:        now,
		})
	}
	return nil
}

// ListAdmins returns the society's admin user ids.
func (s *Service) ListAdmins(ctx context.Context, scope shared.SocietyScope) ([]int64, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListAdmins(ctx, scope.SocietyID)
}

// DashboardSummary returns the society overview counts, served through the
// versioned report cache so repeated dashboard loads skip the count
// subqueries. Writes that move the counters bump the cache version.
func (s *Service) DashboardSummary(ctx context.Context, scope shared.SocietyScope) (Summary, error) {
	if err := scope.Validate(); err != nil {
		return Summary{}, err
	}
	if s.cache == nil {
		return s.repo.Summary(ctx, scope.SocietyID)
	}
	key, err := s.cache.BuildKey(ctx, reportcache.SummaryKey(scope.SocietyID)...)
	if err != nil {
		return s.repo.Summary(ctx, scope.SocietyID)
	}
	var summary Summary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (any, error) {
		return s.repo.Summary(ctx, scope.SocietyID)
	})
	return summary, err
}
