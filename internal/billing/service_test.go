package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/societyops/societyops/internal/shared"
)

type memoryBillingRepo struct {
	batches    []BillBatch
	bills      map[int64]*FlatBill
	items      []BillItem
	nextBillID int64

	// duplicateInserts makes that many InsertBatch calls fail with a
	// bill number collision before succeeding.
	duplicateInserts int
}

func newMemoryBillingRepo() *memoryBillingRepo {
	return &memoryBillingRepo{bills: make(map[int64]*FlatBill)}
}

func (r *memoryBillingRepo) InsertBatch(ctx context.Context, batch BillBatch, bills []FlatBill) (BillBatch, error) {
	if r.duplicateInserts > 0 {
		r.duplicateInserts--
		return BillBatch{}, ErrBillNumberTaken
	}
	batch.ID = int64(len(r.batches) + 1)
	batch.CreatedAt = time.Now()
	batch.UpdatedAt = batch.CreatedAt
	r.batches = append(r.batches, batch)
	for _, bill := range bills {
		r.addBill(bill)
	}
	return batch, nil
}

func (r *memoryBillingRepo) addBill(bill FlatBill) FlatBill {
	r.nextBillID++
	bill.ID = r.nextBillID
	r.bills[bill.ID] = &bill
	return bill
}

func (r *memoryBillingRepo) ListBatches(ctx context.Context, societyID int64, from, to time.Time, batchType BatchType) ([]BillBatch, error) {
	var out []BillBatch
	for _, b := range r.batches {
		if b.SocietyID != societyID {
			continue
		}
		if b.StartDate.Before(from) || b.StartDate.After(to) {
			continue
		}
		if batchType != "" && b.Type != batchType {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *memoryBillingRepo) SumByBillNumbers(ctx context.Context, societyID int64, billNumbers []string) (map[string]map[FlatBillStatus]float64, error) {
	want := make(map[string]bool, len(billNumbers))
	for _, n := range billNumbers {
		want[n] = true
	}
	totals := make(map[string]map[FlatBillStatus]float64)
	for _, bill := range r.bills {
		if bill.SocietyID != societyID || !want[bill.BillNumber] {
			continue
		}
		if totals[bill.BillNumber] == nil {
			totals[bill.BillNumber] = make(map[FlatBillStatus]float64)
		}
		totals[bill.BillNumber][bill.Status] += bill.Amount
	}
	return totals, nil
}

func (r *memoryBillingRepo) ListFlatBills(ctx context.Context, scope shared.SocietyScope) ([]FlatBill, error) {
	var out []FlatBill
	for _, bill := range r.bills {
		if bill.SocietyID == scope.SocietyID && bill.Wing == scope.Wing && bill.FlatNumber == scope.FlatNumber {
			out = append(out, *bill)
		}
	}
	return out, nil
}

func (r *memoryBillingRepo) GetFlatBill(ctx context.Context, societyID, billID int64) (FlatBill, error) {
	bill, ok := r.bills[billID]
	if !ok || bill.SocietyID != societyID {
		return FlatBill{}, ErrBillNotFound
	}
	return *bill, nil
}

func (r *memoryBillingRepo) UpdateFlatBillStatus(ctx context.Context, societyID, billID int64, from, to FlatBillStatus) error {
	bill, ok := r.bills[billID]
	if !ok || bill.SocietyID != societyID || bill.Status != from {
		return ErrInvalidTransition
	}
	bill.Status = to
	return nil
}

func (r *memoryBillingRepo) ListItems(ctx context.Context, societyID int64) ([]BillItem, error) {
	return r.items, nil
}

func testScope() shared.SocietyScope { return shared.Scope(1) }

func TestBatchSummariesPartitionsPaidAndUnpaid(t *testing.T) {
	repo := newMemoryBillingRepo()
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	repo.batches = append(repo.batches, BillBatch{
		ID: 1, SocietyID: 1, BillNumber: "B100", Name: "April Maintenance",
		Type: BatchScheduled, StartDate: start,
	})
	repo.addBill(FlatBill{SocietyID: 1, BillNumber: "B100", Wing: "A", FlatNumber: "101", Amount: 50, Status: StatusUnpaid})
	repo.addBill(FlatBill{SocietyID: 1, BillNumber: "B100", Wing: "A", FlatNumber: "102", Amount: 75, Status: StatusPaid})
	repo.addBill(FlatBill{SocietyID: 1, BillNumber: "B100", Wing: "B", FlatNumber: "201", Amount: 120, Status: StatusPendingApproval})

	svc := NewService(repo, nil, nil)
	summaries, err := svc.BatchSummaries(context.Background(), testScope(),
		start.AddDate(0, 0, -1), start.AddDate(0, 1, 0), "")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, 75.0, summaries[0].PaidAmount)
	require.Equal(t, 170.0, summaries[0].UnpaidAmount)
}

func TestBatchSummariesFiltersTypeAndRange(t *testing.T) {
	repo := newMemoryBillingRepo()
	april := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	june := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	repo.batches = append(repo.batches,
		BillBatch{ID: 1, SocietyID: 1, BillNumber: "B1", Type: BatchScheduled, StartDate: april},
		BillBatch{ID: 2, SocietyID: 1, BillNumber: "B2", Type: BatchSpecial, StartDate: april},
		BillBatch{ID: 3, SocietyID: 1, BillNumber: "B3", Type: BatchScheduled, StartDate: june},
	)

	svc := NewService(repo, nil, nil)
	summaries, err := svc.BatchSummaries(context.Background(), testScope(),
		april.AddDate(0, 0, -1), april.AddDate(0, 1, 0), BatchScheduled)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, "B1", summaries[0].Batch.BillNumber)
}

func TestCreateBatchTagsEveryUnit(t *testing.T) {
	repo := newMemoryBillingRepo()
	svc := NewService(repo, nil, nil)

	batch, err := svc.CreateBatch(context.Background(), testScope(), CreateBatchInput{
		Name: "Lift Repair Levy",
		Type: BatchSpecial,
		Units: []UnitCharge{
			{Wing: "A", FlatNumber: "101", Amount: 500},
			{Wing: "A", FlatNumber: "102", Amount: 500},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, batch.BillNumber)

	for _, bill := range repo.bills {
		require.Equal(t, batch.BillNumber, bill.BillNumber)
		require.Equal(t, StatusUnpaid, bill.Status)
	}
}

func TestCreateBatchRejectsUnknownType(t *testing.T) {
	svc := NewService(newMemoryBillingRepo(), nil, nil)
	_, err := svc.CreateBatch(context.Background(), testScope(), CreateBatchInput{
		Name:  "Broken",
		Type:  BatchType("Mystery Bill"),
		Units: []UnitCharge{{Wing: "A", FlatNumber: "101", Amount: 1}},
	})
	require.ErrorIs(t, err, ErrBadBatchType)
}

func TestPaymentTransitions(t *testing.T) {
	repo := newMemoryBillingRepo()
	bill := repo.addBill(FlatBill{SocietyID: 1, BillNumber: "B9", Wing: "A", FlatNumber: "101", Amount: 250, Status: StatusUnpaid})
	svc := NewService(repo, nil, nil)

	submitted, err := svc.SubmitPayment(context.Background(), testScope(), bill.ID, 4)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, submitted.Status)

	paid, err := svc.MarkPaid(context.Background(), testScope(), bill.ID, 2)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)

	_, err = svc.SubmitPayment(context.Background(), testScope(), bill.ID, 4)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.MarkPaid(context.Background(), testScope(), bill.ID, 2)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

type countingBumper struct {
	bumps int
}

func (b *countingBumper) Bump(ctx context.Context) error {
	b.bumps++
	return nil
}

func TestCreateBatchRetriesBillNumberCollision(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.duplicateInserts = 1
	svc := NewService(repo, nil, nil)

	batch, err := svc.CreateBatch(context.Background(), testScope(), CreateBatchInput{
		Name:  "April Maintenance",
		Type:  BatchScheduled,
		Units: []UnitCharge{{Wing: "A", FlatNumber: "101", Amount: 50}},
	})
	require.NoError(t, err)
	require.Regexp(t, `^B\d+-1$`, batch.BillNumber)
	require.Len(t, repo.batches, 1)
}

func TestCreateBatchGivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.duplicateInserts = 3
	svc := NewService(repo, nil, nil)

	_, err := svc.CreateBatch(context.Background(), testScope(), CreateBatchInput{
		Name:  "April Maintenance",
		Type:  BatchScheduled,
		Units: []UnitCharge{{Wing: "A", FlatNumber: "101", Amount: 50}},
	})
	require.ErrorIs(t, err, ErrBillNumberTaken)
	require.Empty(t, repo.batches)
}

func TestWritesBumpDashboardCache(t *testing.T) {
	repo := newMemoryBillingRepo()
	bumper := &countingBumper{}
	svc := NewService(repo, nil, bumper)

	_, err := svc.CreateBatch(context.Background(), testScope(), CreateBatchInput{
		Name:  "April Maintenance",
		Type:  BatchScheduled,
		Units: []UnitCharge{{Wing: "A", FlatNumber: "101", Amount: 50}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, bumper.bumps)

	var billID int64
	for id := range repo.bills {
		billID = id
	}
	_, err = svc.MarkPaid(context.Background(), testScope(), billID, 2)
	require.NoError(t, err)
	require.Equal(t, 2, bumper.bumps)
}

func TestMarkPaidDirectlyFromUnpaid(t *testing.T) {
	repo := newMemoryBillingRepo()
	bill := repo.addBill(FlatBill{SocietyID: 1, BillNumber: "B9", Wing: "A", FlatNumber: "101", Amount: 250, Status: StatusUnpaid})
	svc := NewService(repo, nil, nil)

	paid, err := svc.MarkPaid(context.Background(), testScope(), bill.ID, 2)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
}
