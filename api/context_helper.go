package api

import (
	"context"
	"time"

	"github.com/linesmerrill/camp-cad-api/models"
)

// QueryTimeout is the default timeout for read-only store queries
const QueryTimeout = 10 * time.Second

type actorKey struct{}

// WithQueryTimeout creates a context with query timeout
func WithQueryTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, QueryTimeout)
}

// WithActor returns a copy of ctx carrying the authenticated actor
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor Middleware authenticated
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(models.Actor)
	return actor, ok
}
