package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/societyops/societyops/internal/shared"
)

// RepositoryPort abstracts billing persistence.
type RepositoryPort interface {
	InsertBatch(ctx context.Context, batch BillBatch, bills []FlatBill) (BillBatch, error)
	ListBatches(ctx context.Context, societyID int64, from, to time.Time, batchType BatchType) ([]BillBatch, error)
	SumByBillNumbers(ctx context.Context, societyID int64, billNumbers []string) (map[string]map[FlatBillStatus]float64, error)
	ListFlatBills(ctx context.Context, scope shared.SocietyScope) ([]FlatBill, error)
	GetFlatBill(ctx context.Context, societyID, billID int64) (FlatBill, error)
	UpdateFlatBillStatus(ctx context.Context, societyID, billID int64, from, to FlatBillStatus) error
	ListItems(ctx context.Context, societyID int64) ([]BillItem, error)
}

// AuditPort records billing events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheBumper invalidates cached report payloads after a write.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service coordinates bill issuance, payment transitions, and per-batch
// aggregation.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache CacheBumper
	now   func() time.Time
}

// NewService constructs the billing service.
func NewService(repo RepositoryPort, audit AuditPort, cache CacheBumper) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateBatch issues a batch of charges across units. The bill number is
// derived from the batch type and issue instant and tags every flat bill.
func (s *Service) CreateBatch(ctx context.Context, scope shared.SocietyScope, in CreateBatchInput) (BillBatch, error) {
	if err := scope.Validate(); err != nil {
		return BillBatch{}, err
	}
	if in.Type != BatchScheduled && in.Type != BatchSpecial {
		return BillBatch{}, ErrBadBatchType
	}
	if len(in.Units) == 0 {
		return BillBatch{}, fmt.Errorf("billing: batch requires at least one unit charge")
	}
	now := s.now().UTC()
	startDate := in.StartDate
	if startDate.IsZero() {
		startDate = now
	}

	// Two batches issued in the same millisecond collide on the bill
	// number, so retry with a suffix instead of surfacing the unique
	// violation.
	for attempt := 0; attempt < 3; attempt++ {
		billNumber := fmt.Sprintf("B%d", now.UnixMilli())
		if attempt > 0 {
			billNumber = fmt.Sprintf("B%d-%d", now.UnixMilli(), attempt)
		}

		batch := BillBatch{
			SocietyID:  scope.SocietyID,
			BillNumber: billNumber,
			Name:       in.Name,
			Type:       in.Type,
			StartDate:  startDate,
		}
		bills := make([]FlatBill, 0, len(in.Units))
		for _, unit := range in.Units {
			bills = append(bills, FlatBill{
				SocietyID:  scope.SocietyID,
				BillNumber: billNumber,
				Wing:       unit.Wing,
				FlatNumber: unit.FlatNumber,
				Item:       unit.Item,
				Amount:     unit.Amount,
				Status:     StatusUnpaid,
			})
		}

		created, err := s.repo.InsertBatch(ctx, batch, bills)
		if errors.Is(err, ErrBillNumberTaken) {
			continue
		}
		if err != nil {
			return BillBatch{}, err
		}
		if s.cache != nil {
			_ = s.cache.Bump(ctx)
		}
		if s.audit != nil {
			_ = s.audit.Record(ctx, shared.AuditLog{
				SocietyID: scope.SocietyID,
				ActorID:   in.ActorID,
				Action:    "billing.batch.create",
				Entity:    "bill_batch",
				EntityID:  billNumber,
				Meta:      map[string]any{"units": len(bills), "type": string(in.Type)},
				At:        now,
			})
		}
		return created, nil
	}
	return BillBatch{}, ErrBillNumberTaken
}

// BatchSummaries sums paid and unpaid amounts per batch in a date range.
// Unpaid covers both unpaid and Pending Approval bills. One grouped scan
// serves the whole batch set; the source re-fetched every unit's bills per
// batch, which this deliberately replaces.
func (s *Service) BatchSummaries(ctx context.Context, scope shared.SocietyScope, from, to time.Time, batchType BatchType) ([]BatchSummary, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	batches, err := s.repo.ListBatches(ctx, scope.SocietyID, from, to, batchType)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, nil
	}
	numbers := make([]string, 0, len(batches))
	for _, b := range batches {
		numbers = append(numbers, b.BillNumber)
	}
	totals, err := s.repo.SumByBillNumbers(ctx, scope.SocietyID, numbers)
	if err != nil {
		return nil, err
	}
	summaries := make([]BatchSummary, 0, len(batches))
	for _, b := range batches {
		summary := BatchSummary{Batch: b}
		for status, total := range totals[b.BillNumber] {
			switch status {
			case StatusPaid:
				summary.PaidAmount += total
			case StatusUnpaid, StatusPendingApproval:
				summary.UnpaidAmount += total
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ListFlatBills returns one unit's bills.
func (s *Service) ListFlatBills(ctx context.Context, scope shared.SocietyScope) ([]FlatBill, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListFlatBills(ctx, scope)
}

// ListItems returns the society's bill item templates.
func (s *Service) ListItems(ctx context.Context, scope shared.SocietyScope) ([]BillItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListItems(ctx, scope.SocietyID)
}

// SubmitPayment marks an unpaid bill as awaiting approval, the state a
// resident's claimed payment sits in until the committee confirms it.
func (s *Service) SubmitPayment(ctx context.Context, scope shared.SocietyScope, billID, actorID int64) (FlatBill, error) {
	return s.transition(ctx, scope, billID, actorID, StatusPendingApproval, "billing.bill.submit")
}

// MarkPaid confirms payment of a bill from either pre-paid state.
func (s *Service) MarkPaid(ctx context.Context, scope shared.SocietyScope, billID, actorID int64) (FlatBill, error) {
	return s.transition(ctx, scope, billID, actorID, StatusPaid, "billing.bill.paid")
}

func (s *Service) transition(ctx context.Context, scope shared.SocietyScope, billID, actorID int64, to FlatBillStatus, action string) (FlatBill, error) {
	if err := scope.Validate(); err != nil {
		return FlatBill{}, err
	}
	bill, err := s.repo.GetFlatBill(ctx, scope.SocietyID, billID)
	if err != nil {
		return FlatBill{}, err
	}
	if !CanTransition(bill.Status, to) {
		return FlatBill{}, ErrInvalidTransition
	}
	if err := s.repo.UpdateFlatBillStatus(ctx, scope.SocietyID, billID, bill.Status, to); err != nil {
		return FlatBill{}, err
	}
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
	bill.Status = to
	bill.UpdatedAt = s.now().UTC()
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			SocietyID: scope.SocietyID,
			ActorID:   actorID,
			Action:    action,
			Entity:    "flat_bill",
			EntityID:  fmt.Sprintf("%d", billID),
			Meta:      map[string]any{"bill_number": bill.BillNumber, "status": string(to)},
			At:        s.now(),
		})
	}
	return bill, nil
}
