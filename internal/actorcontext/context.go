package actorcontext

import (
	"context"
	"strings"
)

// Roles issued by the identity provider.
const (
	RolePartner = "partner"
	RoleStaff   = "staff"
	RoleSystem  = "system"
)

// Actor is the authenticated caller of a request.
type Actor struct {
	ID    string
	Role  string
	Email string
}

func (a Actor) IsPartner() bool { return a.Role == RolePartner }
func (a Actor) IsStaff() bool   { return a.Role == RoleStaff }

type actorKey struct{}

type requestMetaKey struct{}

// RequestMeta carries request-scoped values written into audit records.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// WithActor stores the actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	actor.ID = strings.TrimSpace(actor.ID)
	actor.Role = strings.ToLower(strings.TrimSpace(actor.Role))
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor from context, if set.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}
