package complaints

import (
	"errors"
	"time"
)

// Status values a complaint moves through.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
)

var (
	// ErrComplaintNotFound indicates an unknown complaint id.
	ErrComplaintNotFound = errors.New("complaints: not found")
	// ErrInvalidTransition indicates a status change the workflow forbids.
	ErrInvalidTransition = errors.New("complaints: invalid status transition")
)

var transitions = map[Status][]Status{
	StatusOpen:       {StatusInProgress, StatusResolved, StatusRejected},
	StatusInProgress: {StatusResolved, StatusRejected},
}

// CanTransition reports whether a complaint may move between two statuses.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Complaint is one issue raised by a resident.
type Complaint struct {
	ID          int64     `json:"id"`
	SocietyID   int64     `json:"-"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Status      Status    `json:"status"`
	Wing        string    `json:"wing"`
	FlatNumber  string    `json:"flat_number"`
	RaisedBy    int64     `json:"raised_by"`
	AssignedTo  int64     `json:"assigned_to,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateInput carries a new complaint.
type CreateInput struct {
	Title       string `json:"title" validate:"required,max=140"`
	Description string `json:"description" validate:"max=2000"`
	Category    string `json:"category" validate:"omitempty,oneof=general plumbing electrical security housekeeping lift parking"`
	Wing        string `json:"wing" validate:"omitempty,max=40"`
	FlatNumber  string `json:"flat_number" validate:"omitempty,max=20"`
	RaisedBy    int64  `json:"-"`
}
