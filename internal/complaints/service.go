package complaints

import (
	"context"
	"fmt"
	"time"

	"github.com/societyops/societyops/internal/shared"
)

// RepositoryPort abstracts complaint persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, c Complaint) (Complaint, error)
	Get(ctx context.Context, societyID, id int64) (Complaint, error)
	List(ctx context.Context, societyID int64, status Status, limit, offset int) ([]Complaint, error)
	Count(ctx context.Context, societyID int64, status Status) (int, error)
	UpdateStatus(ctx context.Context, societyID, id int64, from, to Status, assignedTo int64) error
}

// AuditPort records complaint events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheBumper invalidates cached report payloads after a write.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service runs the complaint workflow.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache CacheBumper
	now   func() time.Time
}

// NewService constructs the complaints service.
func NewService(repo RepositoryPort, audit AuditPort, cache CacheBumper) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, now: time.Now}
}

// Create raises a complaint. It starts open.
func (s *Service) Create(ctx context.Context, scope shared.SocietyScope, in CreateInput) (Complaint, error) {
	if err := scope.Validate(); err != nil {
		return Complaint{}, err
	}
	category := in.Category
	if category == "" {
		category = "general"
	}
	created, err := s.repo.Insert(ctx, Complaint{
		SocietyID:   scope.SocietyID,
		Title:       in.Title,
		Description: in.Description,
		Category:    category,
		Status:      StatusOpen,
		Wing:        in.Wing,
		FlatNumber:  in.FlatNumber,
		RaisedBy:    in.RaisedBy,
	})
	if err != nil {
		return Complaint{}, err
	}
	s.bump(ctx)
	s.record(ctx, scope.SocietyID, in.RaisedBy, "complaint.create", created)
	return created, nil
}

// Get loads one complaint.
func (s *Service) Get(ctx context.Context, scope shared.SocietyScope, id int64) (Complaint, error) {
	if err := scope.Validate(); err != nil {
		return Complaint{}, err
	}
	return s.repo.Get(ctx, scope.SocietyID, id)
}

// List returns a page of a society's complaints, optionally filtered by
// status.
func (s *Service) List(ctx context.Context, scope shared.SocietyScope, status Status, page, perPage int) ([]Complaint, shared.Pagination, error) {
	if err := scope.Validate(); err != nil {
		return nil, shared.Pagination{}, err
	}
	total, err := s.repo.Count(ctx, scope.SocietyID, status)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	pagination := shared.NewPagination(page, perPage, total)
	offset := (pagination.Page - 1) * pagination.PerPage
	listed, err := s.repo.List(ctx, scope.SocietyID, status, pagination.PerPage, offset)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return listed, pagination, nil
}

// Start moves a complaint into progress and assigns it.
func (s *Service) Start(ctx context.Context, scope shared.SocietyScope, id, actorID int64) (Complaint, error) {
	return s.transition(ctx, scope, id, actorID, StatusInProgress, actorID, "complaint.start")
}

// Resolve closes a complaint as fixed.
func (s *Service) Resolve(ctx context.Context, scope shared.SocietyScope, id, actorID int64) (Complaint, error) {
	return s.transition(ctx, scope, id, actorID, StatusResolved, 0, "complaint.resolve")
}

// Reject closes a complaint without action.
func (s *Service) Reject(ctx context.Context, scope shared.SocietyScope, id, actorID int64) (Complaint, error) {
	return s.transition(ctx, scope, id, actorID, StatusRejected, 0, "complaint.reject")
}

func (s *Service) transition(ctx context.Context, scope shared.SocietyScope, id, actorID int64, to Status, assignTo int64, action string) (Complaint, error) {
	if err := scope.Validate(); err != nil {
		return Complaint{}, err
	}
	c, err := s.repo.Get(ctx, scope.SocietyID, id)
	if err != nil {
		return Complaint{}, err
	}
	if !CanTransition(c.Status, to) {
		return Complaint{}, ErrInvalidTransition
	}
	if err := s.repo.UpdateStatus(ctx, scope.SocietyID, id, c.Status, to, assignTo); err != nil {
		return Complaint{}, err
	}
	s.bump(ctx)
	c.Status = to
	if assignTo != 0 {
		c.AssignedTo = assignTo
	}
	c.UpdatedAt = s.now().UTC()
	s.record(ctx, scope.SocietyID, actorID, action, c)
	return c, nil
}

func (s *Service) bump(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}

func (s *Service) record(ctx context.Context, societyID, actorID int64, action string, c Complaint) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		SocietyID: societyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "complaint",
		EntityID:  fmt.Sprintf("%d", c.ID),
		Meta:      map[string]any{"status": string(c.Status), "category": c.Category},
		At:        s.now(),
	})
}
