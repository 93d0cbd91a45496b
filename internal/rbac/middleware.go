package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current user has at least one of the required
// permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if hasAnyPermission(claims.Permissions(), normalized) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, r, claims)
		})
	}
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if hasAllPermissions(claims.Permissions(), normalized) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, r, claims)
		})
	}
}

// RequireSocietyScope ensures the route's society matches the caller's
// claims. Admins may cross society boundaries. A caller who has not joined
// a society yet carries a zero scope and is denied.
func (m Middleware) RequireSocietyScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		if claims.Role == RoleAdmin {
			next.ServeHTTP(w, r)
			return
		}
		id, err := strconv.ParseInt(chi.URLParam(r, "societyID"), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		if claims.SocietyID != id {
			m.deny(w, r, claims)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, claims Claims) {
	if m.Logger != nil {
		m.Logger.Warn("permission denied",
			slog.String("path", r.URL.Path),
			slog.Int64("user_id", claims.UserID),
			slog.String("role", claims.Role))
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

func normalizePermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hasAnyPermission(granted map[string]bool, required []string) bool {
	for _, p := range required {
		if granted[p] {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted map[string]bool, required []string) bool {
	for _, p := range required {
		if !granted[p] {
			return false
		}
	}
	return true
}
