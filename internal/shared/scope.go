package shared

import "fmt"

// SocietyScope identifies the tenant a call operates on. It is threaded
// explicitly through every service call; nothing reads tenant identity from
// ambient state.
type SocietyScope struct {
	SocietyID  int64
	Wing       string
	FlatNumber string
}

// Scope builds a society-level scope.
func Scope(societyID int64) SocietyScope {
	return SocietyScope{SocietyID: societyID}
}

// WithFlat narrows the scope to a single residential unit.
func (s SocietyScope) WithFlat(wing, flatNumber string) SocietyScope {
	s.Wing = wing
	s.FlatNumber = flatNumber
	return s
}

// Validate ensures the scope carries a tenant id.
func (s SocietyScope) Validate() error {
	if s.SocietyID <= 0 {
		return ErrScopeRequired
	}
	return nil
}

func (s SocietyScope) String() string {
	if s.Wing == "" {
		return fmt.Sprintf("society/%d", s.SocietyID)
	}
	return fmt.Sprintf("society/%d/%s/%s", s.SocietyID, s.Wing, s.FlatNumber)
}
