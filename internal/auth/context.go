// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"

	"github.com/aiqx/core-service/internal/domain"
)

type actorContextKey struct{}

var ctxActorKey actorContextKey

// Actor is the authenticated caller of a request. Internal marks a
// trusted service-to-service call that bypasses all permission checks.
type Actor struct {
	ID       string
	Roles    []domain.Role
	Language string
	Internal bool
}

// HasRole reports whether the actor carries the given workflow role.
func (a Actor) HasRole(role domain.Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// WithActor stores the authenticated actor on the request context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ctxActorKey, actor)
}

// ActorFromContext reads the authenticated actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	v := ctx.Value(ctxActorKey)
	actor, ok := v.(Actor)
	if !ok || (actor.ID == "" && !actor.Internal) {
		return Actor{}, false
	}
	return actor, true
}
