package shared

import (
	"context"
	"slices"
)

// Principal is the authenticated caller as resolved by the identity provider.
type Principal struct {
	UserID     int64
	CompanyIDs []int64
}

// CanAccess reports whether the principal may act on the company.
func (p Principal) CanAccess(companyID int64) bool {
	return slices.Contains(p.CompanyIDs, companyID)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
