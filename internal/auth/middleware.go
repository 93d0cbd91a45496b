package auth

import (
	"net/http"
	"strings"

	"github.com/societyops/societyops/internal/platform/httpx"
	"github.com/societyops/societyops/internal/rbac"
)

// Authenticator validates the bearer token on each request and stores the
// resolved claims on the context for the rbac layer.
type Authenticator struct {
	tokens *TokenManager
}

// NewAuthenticator constructs Authenticator.
func NewAuthenticator(tokens *TokenManager) *Authenticator {
	return &Authenticator{tokens: tokens}
}

// Require rejects requests without a valid token.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.claimsFrom(r)
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "valid bearer token required")
			return
		}
		ctx := rbac.ContextWithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) claimsFrom(r *http.Request) (rbac.Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return rbac.Claims{}, ErrInvalidToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return rbac.Claims{}, ErrInvalidToken
	}
	claims, err := a.tokens.Validate(parts[1])
	if err != nil {
		return rbac.Claims{}, err
	}
	return rbac.Claims{UserID: claims.UserID, SocietyID: claims.SocietyID, Role: claims.Role}, nil
}
