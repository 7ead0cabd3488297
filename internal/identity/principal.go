package identity

import (
	"context"

	"github.com/Freeeeeet/tutorlink/internal/model"
)

// Principal is the signed-in user on whose behalf an operation runs.
// It replaces any process-wide "current user": callers pass it explicitly.
type Principal struct {
	UserID string
	Role   model.Role
	// TokenID is the access token's jti, used to sign the principal out.
	TokenID string
}

func (p Principal) IsTutor() bool {
	return p.Role == model.RoleTutor
}

func (p Principal) IsStudent() bool {
	return p.Role == model.RoleStudent
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
