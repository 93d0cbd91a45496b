package auth

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/societyops/societyops/internal/rbac"
	"github.com/societyops/societyops/internal/shared"
)

// RepositoryPort abstracts user persistence.
type RepositoryPort interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id int64) (User, error)
	Insert(ctx context.Context, user User) (User, error)
	AttachSociety(ctx context.Context, userID, societyID int64) error
}

// SocietyResolver maps a join code to a society id.
type SocietyResolver interface {
	ResolveJoinCode(ctx context.Context, code string) (int64, error)
}

// Service wraps authentication business rules.
type Service struct {
	repo      RepositoryPort
	tokens    *TokenManager
	societies SocietyResolver
	logger    *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo RepositoryPort, tokens *TokenManager, societies SocietyResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, societies: societies, logger: logger}
}

// Register creates an account with a hashed password. The first admin of
// a society registers with the admin role and then bootstraps the society.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	role := in.Role
	if role == "" {
		role = rbac.RoleResident
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.Insert(ctx, User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(in.Name),
		Role:         role,
	})
	if err != nil {
		return User{}, err
	}
	s.logger.Info("user registered", slog.Int64("user_id", user.ID), slog.String("role", user.Role))
	return user, nil
}

// Login validates credentials and issues an access token.
func (s *Service) Login(ctx context.Context, in LoginInput) (User, string, error) {
	user, err := s.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		return User{}, "", err
	}
	token, err := s.tokens.Generate(user)
	if err != nil {
		return User{}, "", err
	}
	return user, token, nil
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// JoinSociety attaches the user to the society a join code belongs to and
// issues a fresh token carrying the new scope.
func (s *Service) JoinSociety(ctx context.Context, userID int64, in JoinInput) (User, string, error) {
	societyID, err := s.societies.ResolveJoinCode(ctx, strings.TrimSpace(in.JoinCode))
	if err != nil {
		return User{}, "", err
	}
	if err := s.repo.AttachSociety(ctx, userID, societyID); err != nil {
		return User{}, "", err
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return User{}, "", err
	}
	token, err := s.tokens.Generate(user)
	if err != nil {
		return User{}, "", err
	}
	return user, token, nil
}
