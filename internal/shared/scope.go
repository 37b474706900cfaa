package shared

import "context"

// Scope is the tenant partition every product, movement and document belongs to:
// the owning company plus the active fiscal year. Core operations receive it
// explicitly; there is no ambient "current company" state.
type Scope struct {
	CompanyID    int64
	FiscalYearID int64
}

// Valid reports whether both parts of the scope are set.
func (s Scope) Valid() bool {
	return s.CompanyID > 0 && s.FiscalYearID > 0
}

type scopeContextKey struct{}

// ContextWithScope stores the request scope in context.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the scope from context. The second return is false
// when no valid scope was attached to the request.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok && scope.Valid()
}
