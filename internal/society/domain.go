package society

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSocietyExists indicates a bootstrap attempt for a name already
	// taken.
	ErrSocietyExists = errors.New("society: name already registered")
	// ErrWingNamesMismatch indicates custom wing names whose count does
	// not match the declared wing count.
	ErrWingNamesMismatch = errors.New("society: wing name count does not match total wings")
	// ErrSocietyNotFound indicates an unknown society id or join code.
	ErrSocietyNotFound = errors.New("society: not found")
	// ErrAlreadyAdmin indicates the user is already a society admin.
	ErrAlreadyAdmin = errors.New("society: user is already an admin")
)

// Society is one registered residential society. The join code lets
// residents attach themselves to it after setup.
type Society struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	TotalWings   int       `json:"total_wings"`
	AddressLine1 string    `json:"address_line1"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	PostalCode   string    `json:"postal_code"`
	JoinCode     string    `json:"join_code"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Wing is one named wing of a society.
type Wing struct {
	SocietyID int64     `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// BootstrapInput carries everything needed to set up a society.
type BootstrapInput struct {
	Name         string   `json:"name" validate:"required,max=120"`
	TotalWings   int      `json:"total_wings" validate:"required,min=1,max=26"`
	WingNames    []string `json:"wing_names" validate:"omitempty,dive,required,max=40"`
	AddressLine1 string   `json:"address_line1" validate:"max=200"`
	City         string   `json:"city" validate:"max=80"`
	State        string   `json:"state" validate:"max=80"`
	PostalCode   string   `json:"postal_code" validate:"max=12"`
	AdminUserID  int64    `json:"-"`
}

// WingNamesOrDefault resolves the wing names for the input. With no custom
// names it generates A, B, C and so on. With custom names the count must
// match TotalWings exactly.
func (in BootstrapInput) WingNamesOrDefault() ([]string, error) {
	if len(in.WingNames) == 0 {
		names := make([]string, in.TotalWings)
		for i := range names {
			names[i] = fmt.Sprintf("%c", 'A'+i)
		}
		return names, nil
	}
	if len(in.WingNames) != in.TotalWings {
		return nil, ErrWingNamesMismatch
	}
	return in.WingNames, nil
}

// Summary is the society dashboard payload.
type Summary struct {
	Society        Society `json:"society"`
	WingCount      int     `json:"wing_count"`
	AccountCount   int     `json:"account_count"`
	OpenComplaints int     `json:"open_complaints"`
	UnpaidBills    int     `json:"unpaid_bills"`
}
