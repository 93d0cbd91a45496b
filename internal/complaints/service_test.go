package complaints

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/societyops/societyops/internal/shared"
)

type memoryComplaintRepo struct {
	complaints map[int64]*Complaint
	nextID     int64
}

func newMemoryComplaintRepo() *memoryComplaintRepo {
	return &memoryComplaintRepo{complaints: make(map[int64]*Complaint)}
}

func (r *memoryComplaintRepo) Insert(ctx context.Context, c Complaint) (Complaint, error) {
	r.nextID++
	c.ID = r.nextID
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.complaints[c.ID] = &c
	return c, nil
}

func (r *memoryComplaintRepo) Get(ctx context.Context, societyID, id int64) (Complaint, error) {
	c, ok := r.complaints[id]
	if !ok || c.SocietyID != societyID {
		return Complaint{}, ErrComplaintNotFound
	}
	return *c, nil
}

func (r *memoryComplaintRepo) List(ctx context.Context, societyID int64, status Status, limit, offset int) ([]Complaint, error) {
	var out []Complaint
	for _, c := range r.complaints {
		if c.SocietyID != societyID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, *c)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryComplaintRepo) Count(ctx context.Context, societyID int64, status Status) (int, error) {
	n := 0
	for _, c := range r.complaints {
		if c.SocietyID != societyID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		n++
	}
	return n, nil
}

func (r *memoryComplaintRepo) UpdateStatus(ctx context.Context, societyID, id int64, from, to Status, assignedTo int64) error {
	c, ok := r.complaints[id]
	if !ok || c.SocietyID != societyID || c.Status != from {
		return ErrInvalidTransition
	}
	c.Status = to
	if assignedTo != 0 {
		c.AssignedTo = assignedTo
	}
	return nil
}

func testScope() shared.SocietyScope { return shared.Scope(1) }

func raise(t *testing.T, svc *Service) Complaint {
	t.Helper()
	c, err := svc.Create(context.Background(), testScope(), CreateInput{
		Title:    "Lift stuck on 3rd floor",
		Category: "lift",
		Wing:     "B",
		RaisedBy: 9,
	})
	require.NoError(t, err)
	return c
}

func TestCreateStartsOpen(t *testing.T) {
	svc := NewService(newMemoryComplaintRepo(), nil, nil)
	c := raise(t, svc)
	require.Equal(t, StatusOpen, c.Status)
}

func TestCreateDefaultsCategory(t *testing.T) {
	svc := NewService(newMemoryComplaintRepo(), nil, nil)
	c, err := svc.Create(context.Background(), testScope(), CreateInput{Title: "Noise", RaisedBy: 9})
	require.NoError(t, err)
	require.Equal(t, "general", c.Category)
}

func TestStartAssignsAndProgresses(t *testing.T) {
	repo := newMemoryComplaintRepo()
	svc := NewService(repo, nil, nil)
	c := raise(t, svc)

	started, err := svc.Start(context.Background(), testScope(), c.ID, 4)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, started.Status)
	require.Equal(t, int64(4), started.AssignedTo)
}

func TestResolveFromOpenOrInProgress(t *testing.T) {
	svc := NewService(newMemoryComplaintRepo(), nil, nil)
	c := raise(t, svc)

	resolved, err := svc.Resolve(context.Background(), testScope(), c.ID, 4)
	require.NoError(t, err)
	require.Equal(t, StatusResolved, resolved.Status)

	c2 := raise(t, svc)
	_, err = svc.Start(context.Background(), testScope(), c2.ID, 4)
	require.NoError(t, err)
	resolved2, err := svc.Resolve(context.Background(), testScope(), c2.ID, 4)
	require.NoError(t, err)
	require.Equal(t, StatusResolved, resolved2.Status)
}

func TestResolvedIsTerminal(t *testing.T) {
	svc := NewService(newMemoryComplaintRepo(), nil, nil)
	c := raise(t, svc)

	_, err := svc.Resolve(context.Background(), testScope(), c.ID, 4)
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), testScope(), c.ID, 4)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Reject(context.Background(), testScope(), c.ID, 4)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListFiltersByStatus(t *testing.T) {
	svc := NewService(newMemoryComplaintRepo(), nil, nil)
	open := raise(t, svc)
	other := raise(t, svc)
	_, err := svc.Resolve(context.Background(), testScope(), other.ID, 4)
	require.NoError(t, err)

	listed, pagination, err := svc.List(context.Background(), testScope(), StatusOpen, 1, 20)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, open.ID, listed[0].ID)
	require.Equal(t, 1, pagination.Total)
}

func TestListPaginates(t *testing.T) {
	svc := NewService(newMemoryComplaintRepo(), nil, nil)
	for i := 0; i < 5; i++ {
		raise(t, svc)
	}

	listed, pagination, err := svc.List(context.Background(), testScope(), "", 2, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, 5, pagination.Total)
	require.Equal(t, 3, pagination.TotalPages)
}
