package shared

import (
	"context"

	"github.com/google/uuid"
)

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// Access carries the outcome of an allowed authorization check through the
// request context: who the principal is, which tenant bounds their data, and
// how wide their visibility is. Handlers translate the scope into their own
// query filters; the middleware never filters domain resources itself.
type Access struct {
	PrincipalID    uuid.UUID
	OrganizationID uuid.UUID
	Scope          string
}

type accessContextKey struct{}

// ContextWithAccess attaches the access decision to the context.
func ContextWithAccess(ctx context.Context, access Access) context.Context {
	return context.WithValue(ctx, accessContextKey{}, access)
}

// AccessFromContext extracts the access decision; ok is false when the
// request never passed the enforcement middleware.
func AccessFromContext(ctx context.Context) (Access, bool) {
	access, ok := ctx.Value(accessContextKey{}).(Access)
	return access, ok
}
