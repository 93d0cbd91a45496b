package billing

import (
	"errors"
	"time"
)

// PricingMode enumerates how a bill item computes its charge.
type PricingMode string

const (
	PricingFixed      PricingMode = "fixed"
	PricingPercentage PricingMode = "percentage"
	PricingPerUnit    PricingMode = "perUnit"
)

// BatchType enumerates bill batch categories.
type BatchType string

const (
	BatchScheduled BatchType = "Scheduled Bill"
	BatchSpecial   BatchType = "Special Bill"
)

// FlatBillStatus enumerates payment states. The only modelled transition is
// unpaid or Pending Approval to paid.
type FlatBillStatus string

const (
	StatusUnpaid          FlatBillStatus = "unpaid"
	StatusPendingApproval FlatBillStatus = "Pending Approval"
	StatusPaid            FlatBillStatus = "paid"
)

// BillItem is a charge template applied when generating a batch.
type BillItem struct {
	SocietyID int64       `json:"-"`
	Name      string      `json:"name"`
	Mode      PricingMode `json:"pricing_mode"`
	Rate      float64     `json:"rate"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// DefaultItems are the templates every society starts with.
var DefaultItems = []BillItem{
	{Name: "Maintenance Charge", Mode: PricingPerUnit, Rate: 2.5},
	{Name: "Sinking Fund", Mode: PricingPercentage, Rate: 0.25},
	{Name: "Repair Fund", Mode: PricingPercentage, Rate: 0.5},
	{Name: "Water Charges", Mode: PricingFixed, Rate: 300},
	{Name: "Parking Charges", Mode: PricingFixed, Rate: 150},
}

// BillBatch is a named, dated group of charges issued across units. The
// bill number correlates it with its flat bills.
type BillBatch struct {
	ID         int64     `json:"id"`
	SocietyID  int64     `json:"-"`
	BillNumber string    `json:"bill_number"`
	Name       string    `json:"name"`
	Type       BatchType `json:"batch_type"`
	StartDate  time.Time `json:"start_date"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FlatBill is one charge instance for one residential unit.
type FlatBill struct {
	ID         int64          `json:"id"`
	SocietyID  int64          `json:"-"`
	BillNumber string         `json:"bill_number"`
	Wing       string         `json:"wing"`
	FlatNumber string         `json:"flat_number"`
	Item       string         `json:"item"`
	Amount     float64        `json:"amount"`
	Status     FlatBillStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// UnitCharge is one unit's charge when creating a batch.
type UnitCharge struct {
	Wing       string  `json:"wing" validate:"required"`
	FlatNumber string  `json:"flat_number" validate:"required"`
	Item       string  `json:"item"`
	Amount     float64 `json:"amount" validate:"gt=0"`
}

// CreateBatchInput groups the fields needed to issue a batch.
type CreateBatchInput struct {
	Name      string       `json:"name" validate:"required,max=120"`
	Type      BatchType    `json:"batch_type" validate:"required"`
	StartDate time.Time    `json:"-"`
	Units     []UnitCharge `json:"units" validate:"required,min=1,dive"`
	ActorID   int64        `json:"-"`
}

// BatchSummary pairs a batch with its paid and unpaid totals.
type BatchSummary struct {
	Batch        BillBatch `json:"batch"`
	PaidAmount   float64   `json:"paid_amount"`
	UnpaidAmount float64   `json:"unpaid_amount"`
}

var (
	// ErrBatchNotFound indicates a missing bill batch.
	ErrBatchNotFound = errors.New("billing: batch not found")
	// ErrBillNotFound indicates a missing flat bill.
	ErrBillNotFound = errors.New("billing: flat bill not found")
	// ErrInvalidTransition indicates a disallowed status change.
	ErrInvalidTransition = errors.New("billing: invalid status transition")
	// ErrBadBatchType indicates an unknown batch type.
	ErrBadBatchType = errors.New("billing: unknown batch type")
	// ErrBillNumberTaken indicates a bill number collision on issue.
	ErrBillNumberTaken = errors.New("billing: bill number already issued")
)

// CanTransition reports whether a flat bill may move between two states.
func CanTransition(from, to FlatBillStatus) bool {
	switch {
	case from == StatusUnpaid && to == StatusPendingApproval:
		return true
	case from == StatusUnpaid && to == StatusPaid:
		return true
	case from == StatusPendingApproval && to == StatusPaid:
		return true
	default:
		return false
	}
}
