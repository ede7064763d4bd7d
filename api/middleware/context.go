package middleware

import (
	"context"

	"github.com/lazydrop/lazydrop-billing/pkg/enums"
)

type actorKey struct{}

// Actor is the operator a verified admin token belongs to.
type Actor struct {
	Subject string
	Role    enums.AdminRole
}

// ActorFromContext returns the operator set by Auth, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok && actor.Subject != ""
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor)
}
