package auth

import (
	"context"

	apperrors "github.com/anirudh/go-ridebid/internal/errors"
)

// Actor roles.
const (
	RoleRider  = "rider"
	RoleDriver = "driver"
)

// Actor is the authenticated caller, as established by the access-control
// collaborator upstream of this core.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsRider() bool  { return a.Role == RoleRider }
func (a Actor) IsDriver() bool { return a.Role == RoleDriver }

type contextKey struct{}

// WithActor stores the actor on the request context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// CurrentActor resolves the caller identity. Every mutating operation fails
// Unauthenticated without one.
func CurrentActor(ctx context.Context) (Actor, error) {
	actor, ok := ctx.Value(contextKey{}).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, apperrors.ErrUnauthenticated
	}
	return actor, nil
}
