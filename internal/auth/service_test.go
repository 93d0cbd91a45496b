package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/societyops/societyops/internal/rbac"
	"github.com/societyops/societyops/internal/shared"
)

type memoryUserRepo struct {
	users  map[string]User
	nextID int64
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[string]User)}
}

func (r *memoryUserRepo) FindByEmail(ctx context.Context, email string) (User, error) {
	user, ok := r.users[email]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return user, nil
}

func (r *memoryUserRepo) FindByID(ctx context.Context, id int64) (User, error) {
	for _, user := range r.users {
		if user.ID == id {
			return user, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func (r *memoryUserRepo) Insert(ctx context.Context, user User) (User, error) {
	if _, ok := r.users[user.Email]; ok {
		return User{}, ErrEmailTaken
	}
	r.nextID++
	user.ID = r.nextID
	user.IsActive = true
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.Email] = user
	return user, nil
}

func (r *memoryUserRepo) AttachSociety(ctx context.Context, userID, societyID int64) error {
	for email, user := range r.users {
		if user.ID == userID {
			user.SocietyID = societyID
			r.users[email] = user
			return nil
		}
	}
	return shared.ErrNotFound
}

type staticResolver struct {
	codes map[string]int64
}

func (r staticResolver) ResolveJoinCode(ctx context.Context, code string) (int64, error) {
	id, ok := r.codes[code]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return id, nil
}

func newTestService(repo RepositoryPort) *Service {
	tokens := NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)
	resolver := staticResolver{codes: map[string]int64{"482913": 42}}
	return NewService(repo, tokens, resolver, nil)
}

func TestRegisterAndLogin(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := newTestService(repo)

	user, err := svc.Register(context.Background(), RegisterInput{
		Email:    "Admin@Example.com",
		Password: "correct horse",
		Name:     "Asha",
		Role:     rbac.RoleAdmin,
	})
	require.NoError(t, err)
	require.Equal(t, "admin@example.com", user.Email)
	require.NotEqual(t, "correct horse", user.PasswordHash)

	got, token, err := svc.Login(context.Background(), LoginInput{Email: "admin@example.com", Password: "correct horse"})
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.NotEmpty(t, token)
}

func TestRegisterDefaultsToResident(t *testing.T) {
	svc := newTestService(newMemoryUserRepo())
	user, err := svc.Register(context.Background(), RegisterInput{
		Email:    "res@example.com",
		Password: "secret pass",
		Name:     "Ravi",
	})
	require.NoError(t, err)
	require.Equal(t, rbac.RoleResident, user.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newTestService(newMemoryUserRepo())
	_, err := svc.Register(context.Background(), RegisterInput{Email: "a@b.com", Password: "secret pass", Name: "A"})
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), LoginInput{Email: "a@b.com", Password: "wrong"})
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	svc := newTestService(newMemoryUserRepo())
	_, _, err := svc.Login(context.Background(), LoginInput{Email: "nobody@b.com", Password: "whatever"})
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestJoinSocietyRefreshesClaims(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := newTestService(repo)

	user, err := svc.Register(context.Background(), RegisterInput{Email: "res@b.com", Password: "secret pass", Name: "R"})
	require.NoError(t, err)

	joined, token, err := svc.JoinSociety(context.Background(), user.ID, JoinInput{JoinCode: " 482913 "})
	require.NoError(t, err)
	require.Equal(t, int64(42), joined.SocietyID)

	claims, err := svc.tokens.Validate(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.SocietyID)
	require.Equal(t, user.ID, claims.UserID)
}

func TestTokenRoundTripAndTamper(t *testing.T) {
	tokens := NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)
	signed, err := tokens.Generate(User{ID: 9, SocietyID: 3, Role: rbac.RoleCommittee})
	require.NoError(t, err)

	claims, err := tokens.Validate(signed)
	require.NoError(t, err)
	require.Equal(t, int64(9), claims.UserID)
	require.Equal(t, rbac.RoleCommittee, claims.Role)

	other := NewTokenManager("ffffffffffffffffffffffffffffffff", time.Hour)
	_, err = other.Validate(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	tokens := NewTokenManager("0123456789abcdef0123456789abcdef", -time.Minute)
	signed, err := tokens.Generate(User{ID: 1, Role: rbac.RoleResident})
	require.NoError(t, err)

	_, err = tokens.Validate(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}
