package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// Middleware wires authorization checks into HTTP handlers. The principal id
// comes from the session established upstream; on allow, the visibility scope
// and organization are attached to the request context for downstream
// handlers to build their own data filters.
type Middleware struct {
	Authorizer *Authorizer
	Logger     *slog.Logger
}

// RequirePermission gates the subtree on a fine-grained permission code.
func (m Middleware) RequirePermission(code string) func(http.Handler) http.Handler {
	return m.Require(RequirePermission(code))
}

// RequireModule gates the subtree on coarse module access.
func (m Middleware) RequireModule(code string) func(http.Handler) http.Handler {
	return m.Require(RequireModule(code))
}

// Require gates the subtree on an arbitrary requirement.
func (m Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principalID, ok := m.currentPrincipal(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			decision, err := m.Authorizer.Authorize(r.Context(), principalID, req, r.Method+" "+r.URL.Path)
			if err != nil {
				// Could not decide. Fail closed, but distinguish the
				// transient case from a deny for callers and operators.
				if m.Logger != nil && errors.Is(err, ErrStoreUnavailable) {
					m.Logger.Error("authorize", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			if !decision.Allowed {
				// The detailed reason goes to audit only; the response stays
				// generic so the authorization model is not leaked.
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			ctx := shared.ContextWithAccess(r.Context(), shared.Access{
				PrincipalID:    principalID,
				OrganizationID: decision.OrganizationID,
				Scope:          string(decision.Scope),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m Middleware) currentPrincipal(r *http.Request) (uuid.UUID, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return uuid.Nil, false
	}
	raw := sess.User()
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("parse principal id", slog.String("value", raw))
		}
		return uuid.Nil, false
	}
	return id, true
}
