package gatepass

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status values a gate pass moves through.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusCheckedIn  Status = "checked_in"
	StatusCheckedOut Status = "checked_out"
)

var (
	// ErrPassNotFound indicates an unknown pass id or code.
	ErrPassNotFound = errors.New("gatepass: not found")
	// ErrInvalidTransition indicates a status change the workflow forbids.
	ErrInvalidTransition = errors.New("gatepass: invalid status transition")
)

// transitions is the visitor workflow. A pass is requested by a resident,
// approved or rejected by the committee, then checked in and out at the
// gate.
var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected},
	StatusApproved:  {StatusCheckedIn, StatusRejected},
	StatusCheckedIn: {StatusCheckedOut},
}

// CanTransition reports whether a pass may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Pass is one visitor gate pass. The code is what the guard scans at the
// gate.
type Pass struct {
	ID           int64     `json:"id"`
	SocietyID    int64     `json:"-"`
	Code         uuid.UUID `json:"code"`
	VisitorName  string    `json:"visitor_name"`
	VisitorPhone string    `json:"visitor_phone"`
	Wing         string    `json:"wing"`
	FlatNumber   string    `json:"flat_number"`
	Purpose      string    `json:"purpose"`
	ExpectedAt   time.Time `json:"expected_at"`
	Status       Status    `json:"status"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateInput carries a pass request.
type CreateInput struct {
	VisitorName  string    `json:"visitor_name" validate:"required,max=120"`
	VisitorPhone string    `json:"visitor_phone" validate:"omitempty,max=20"`
	Wing         string    `json:"wing" validate:"required,max=40"`
	FlatNumber   string    `json:"flat_number" validate:"required,max=20"`
	Purpose      string    `json:"purpose" validate:"max=200"`
	ExpectedAt   time.Time `json:"expected_at" validate:"required"`
	CreatedBy    int64     `json:"-"`
}
