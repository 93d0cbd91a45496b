package gatepass

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/societyops/societyops/internal/shared"
)

// RepositoryPort abstracts gate pass persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, pass Pass) (Pass, error)
	Get(ctx context.Context, societyID, id int64) (Pass, error)
	GetByCode(ctx context.Context, societyID int64, code uuid.UUID) (Pass, error)
	ListForDay(ctx context.Context, societyID int64, day time.Time) ([]Pass, error)
	ListForFlat(ctx context.Context, scope shared.SocietyScope) ([]Pass, error)
	UpdateStatus(ctx context.Context, societyID, id int64, from, to Status) error
}

// AuditPort records gate pass events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the visitor pass workflow.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the gatepass service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// Create requests a pass for an expected visitor. The pass starts pending
// and carries a fresh scan code.
func (s *Service) Create(ctx context.Context, scope shared.SocietyScope, in CreateInput) (Pass, error) {
	if err := scope.Validate(); err != nil {
		return Pass{}, err
	}
	pass := Pass{
		SocietyID:    scope.SocietyID,
		Code:         uuid.New(),
		VisitorName:  in.VisitorName,
		VisitorPhone: in.VisitorPhone,
		Wing:         in.Wing,
		FlatNumber:   in.FlatNumber,
		Purpose:      in.Purpose,
		ExpectedAt:   in.ExpectedAt,
		Status:       StatusPending,
		CreatedBy:    in.CreatedBy,
	}
	created, err := s.repo.Insert(ctx, pass)
	if err != nil {
		return Pass{}, err
	}
	s.record(ctx, scope.SocietyID, in.CreatedBy, "gatepass.create", created)
	return created, nil
}

// Approve lets a visitor in once the gate confirms them.
func (s *Service) Approve(ctx context.Context, scope shared.SocietyScope, id, actorID int64) (Pass, error) {
	return s.transition(ctx, scope, id, actorID, StatusApproved, "gatepass.approve")
}

// Reject declines a pending or approved pass.
func (s *Service) Reject(ctx context.Context, scope shared.SocietyScope, id, actorID int64) (Pass, error) {
	return s.transition(ctx, scope, id, actorID, StatusRejected, "gatepass.reject")
}

// CheckIn records the visitor's arrival. The guard scans the pass code.
func (s *Service) CheckIn(ctx context.Context, scope shared.SocietyScope, code uuid.UUID, actorID int64) (Pass, error) {
	if err := scope.Validate(); err != nil {
		return Pass{}, err
	}
	pass, err := s.repo.GetByCode(ctx, scope.SocietyID, code)
	if err != nil {
		return Pass{}, err
	}
	return s.move(ctx, scope, pass, actorID, StatusCheckedIn, "gatepass.checkin")
}

// CheckOut records the visitor's departure.
func (s *Service) CheckOut(ctx context.Context, scope shared.SocietyScope, id, actorID int64) (Pass, error) {
	return s.transition(ctx, scope, id, actorID, StatusCheckedOut, "gatepass.checkout")
}

// Get loads one pass.
func (s *Service) Get(ctx context.Context, scope shared.SocietyScope, id int64) (Pass, error) {
	if err := scope.Validate(); err != nil {
		return Pass{}, err
	}
	return s.repo.Get(ctx, scope.SocietyID, id)
}

// ListForDay returns the passes expected on a day, for the gate register.
func (s *Service) ListForDay(ctx context.Context, scope shared.SocietyScope, day time.Time) ([]Pass, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListForDay(ctx, scope.SocietyID, day)
}

// ListForFlat returns one unit's passes.
func (s *Service) ListForFlat(ctx context.Context, scope shared.SocietyScope) ([]Pass, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListForFlat(ctx, scope)
}

func (s *Service) transition(ctx context.Context, scope shared.SocietyScope, id, actorID int64, to Status, action string) (Pass, error) {
	if err := scope.Validate(); err != nil {
		return Pass{}, err
	}
	pass, err := s.repo.Get(ctx, scope.SocietyID, id)
	if err != nil {
		return Pass{}, err
	}
	return s.move(ctx, scope, pass, actorID, to, action)
}

func (s *Service) move(ctx context.Context, scope shared.SocietyScope, pass Pass, actorID int64, to Status, action string) (Pass, error) {
	if !CanTransition(pass.Status, to) {
		return Pass{}, ErrInvalidTransition
	}
	if err := s.repo.UpdateStatus(ctx, scope.SocietyID, pass.ID, pass.Status, to); err != nil {
		return Pass{}, err
	}
	pass.Status = to
	pass.UpdatedAt = s.now().UTC()
	s.record(ctx, scope.SocietyID, actorID, action, pass)
	return pass, nil
}

func (s *Service) record(ctx context.Context, societyID, actorID int64, action string, pass Pass) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		SocietyID: societyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "gate_pass",
		EntityID:  fmt.Sprintf("%d", pass.ID),
		Meta:      map[string]any{"status": string(pass.Status), "visitor": pass.VisitorName},
		At:        s.now(),
	})
}
