package rbac

import "context"

// Role names carried in auth claims.
const (
	RoleAdmin     = "admin"
	RoleCommittee = "committee"
	RoleResident  = "resident"
	RoleGuard     = "guard"
)

// rolePermissions is the fixed permission map. Roles are few and stable, so
// the mapping lives in code rather than a table.
var rolePermissions = map[string][]string{
	RoleAdmin: {
		"society.bootstrap", "society.view", "society.manage",
		"ledger.view", "ledger.write",
		"billing.view", "billing.write",
		"gatepass.view", "gatepass.write", "gatepass.screen",
		"complaint.view", "complaint.write", "complaint.manage",
		"jobs.manage",
	},
	RoleCommittee: {
		"society.view",
		"ledger.view", "ledger.write",
		"billing.view", "billing.write",
		"gatepass.view", "gatepass.write",
		"complaint.view", "complaint.write", "complaint.manage",
	},
	RoleResident: {
		"society.view",
		"billing.view",
		"gatepass.view", "gatepass.write",
		"complaint.view", "complaint.write",
	},
	RoleGuard: {
		"gatepass.view", "gatepass.screen",
	},
}

// Claims is the identity the auth layer resolves for a request.
type Claims struct {
	UserID    int64
	SocietyID int64
	Role      string
}

// Permissions returns the permission set granted to the claims' role.
func (c Claims) Permissions() map[string]bool {
	granted := make(map[string]bool)
	for _, p := range rolePermissions[c.Role] {
		granted[p] = true
	}
	return granted
}

type contextKey struct{}

// ContextWithClaims stores resolved claims on the context.
func ContextWithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// ClaimsFromContext retrieves claims, if any.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(Claims)
	return claims, ok
}

// UserIDFromContext returns the acting user id, or zero when unauthenticated.
func UserIDFromContext(ctx context.Context) int64 {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return 0
	}
	return claims.UserID
}
