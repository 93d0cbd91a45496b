package gatepass

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/societyops/societyops/internal/shared"
)

type memoryPassRepo struct {
	passes map[int64]*Pass
	nextID int64
}

func newMemoryPassRepo() *memoryPassRepo {
	return &memoryPassRepo{passes: make(map[int64]*Pass)}
}

func (r *memoryPassRepo) Insert(ctx context.Context, pass Pass) (Pass, error) {
	r.nextID++
	pass.ID = r.nextID
	pass.CreatedAt = time.Now()
	pass.UpdatedAt = pass.CreatedAt
	r.passes[pass.ID] = &pass
	return pass, nil
}

func (r *memoryPassRepo) Get(ctx context.Context, societyID, id int64) (Pass, error) {
	pass, ok := r.passes[id]
	if !ok || pass.SocietyID != societyID {
		return Pass{}, ErrPassNotFound
	}
	return *pass, nil
}

func (r *memoryPassRepo) GetByCode(ctx context.Context, societyID int64, code uuid.UUID) (Pass, error) {
	for _, pass := range r.passes {
		if pass.SocietyID == societyID && pass.Code == code {
			return *pass, nil
		}
	}
	return Pass{}, ErrPassNotFound
}

func (r *memoryPassRepo) ListForDay(ctx context.Context, societyID int64, day time.Time) ([]Pass, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)
	var out []Pass
	for _, pass := range r.passes {
		if pass.SocietyID == societyID && !pass.ExpectedAt.Before(start) && pass.ExpectedAt.Before(end) {
			out = append(out, *pass)
		}
	}
	return out, nil
}

func (r *memoryPassRepo) ListForFlat(ctx context.Context, scope shared.SocietyScope) ([]Pass, error) {
	var out []Pass
	for _, pass := range r.passes {
		if pass.SocietyID == scope.SocietyID && pass.Wing == scope.Wing && pass.FlatNumber == scope.FlatNumber {
			out = append(out, *pass)
		}
	}
	return out, nil
}

func (r *memoryPassRepo) UpdateStatus(ctx context.Context, societyID, id int64, from, to Status) error {
	pass, ok := r.passes[id]
	if !ok || pass.SocietyID != societyID || pass.Status != from {
		return ErrInvalidTransition
	}
	pass.Status = to
	return nil
}

func testScope() shared.SocietyScope { return shared.Scope(1) }

func newPass(t *testing.T, svc *Service) Pass {
	t.Helper()
	pass, err := svc.Create(context.Background(), testScope(), CreateInput{
		VisitorName: "Plumber",
		Wing:        "A",
		FlatNumber:  "101",
		ExpectedAt:  time.Now().Add(2 * time.Hour),
		CreatedBy:   5,
	})
	require.NoError(t, err)
	return pass
}

func TestCreateStartsPendingWithCode(t *testing.T) {
	svc := NewService(newMemoryPassRepo(), nil)
	pass := newPass(t, svc)
	require.Equal(t, StatusPending, pass.Status)
	require.NotEqual(t, uuid.Nil, pass.Code)
}

func TestFullVisitorFlow(t *testing.T) {
	repo := newMemoryPassRepo()
	svc := NewService(repo, nil)
	pass := newPass(t, svc)

	approved, err := svc.Approve(context.Background(), testScope(), pass.ID, 2)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)

	checkedIn, err := svc.CheckIn(context.Background(), testScope(), pass.Code, 3)
	require.NoError(t, err)
	require.Equal(t, StatusCheckedIn, checkedIn.Status)

	checkedOut, err := svc.CheckOut(context.Background(), testScope(), pass.ID, 3)
	require.NoError(t, err)
	require.Equal(t, StatusCheckedOut, checkedOut.Status)
}

func TestCheckInRequiresApproval(t *testing.T) {
	svc := NewService(newMemoryPassRepo(), nil)
	pass := newPass(t, svc)

	_, err := svc.CheckIn(context.Background(), testScope(), pass.Code, 3)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectedPassIsTerminal(t *testing.T) {
	svc := NewService(newMemoryPassRepo(), nil)
	pass := newPass(t, svc)

	_, err := svc.Reject(context.Background(), testScope(), pass.ID, 2)
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), testScope(), pass.ID, 2)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.CheckIn(context.Background(), testScope(), pass.Code, 3)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestScanUnknownCode(t *testing.T) {
	svc := NewService(newMemoryPassRepo(), nil)
	_, err := svc.CheckIn(context.Background(), testScope(), uuid.New(), 3)
	require.ErrorIs(t, err, ErrPassNotFound)
}

func TestPassesScopedToSociety(t *testing.T) {
	repo := newMemoryPassRepo()
	svc := NewService(repo, nil)
	pass := newPass(t, svc)

	_, err := svc.Get(context.Background(), shared.Scope(2), pass.ID)
	require.ErrorIs(t, err, ErrPassNotFound)
}
