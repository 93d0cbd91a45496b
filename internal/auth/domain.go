package auth

import (
	"errors"
	"time"
)

var (
	// ErrEmailTaken indicates a registration with an email already in use.
	ErrEmailTaken = errors.New("auth: email already registered")
	// ErrInvalidToken indicates a missing, malformed, or expired token.
	ErrInvalidToken = errors.New("auth: invalid or expired token")
)

// User is one account. Role and society attachment live on the user row;
// a user belongs to at most one society.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	SocietyID    int64     `json:"society_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RegisterInput carries a new account request.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=120"`
	Role     string `json:"role" validate:"omitempty,oneof=admin committee resident guard"`
}

// LoginInput carries a credential check request.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// JoinInput attaches a user to a society via its join code.
type JoinInput struct {
	JoinCode string `json:"join_code" validate:"required,len=6"`
}
