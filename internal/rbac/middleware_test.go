package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

func requestWithPrincipal(t *testing.T, principal string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/pids", nil)
	sess := &shared.Session{ID: "test-session"}
	if principal != "" {
		sess.SetUser(principal)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestMiddlewareAllowsAndInjectsAccess(t *testing.T) {
	store := newStubStore()
	orgID := uuid.New()
	pid := store.addPrincipal(orgID, StatusActive, ScopeOwn)
	store.addRole(pid, Role{OrganizationID: orgID, Code: "viewer", Level: 1, Scope: ScopeTeam},
		[]string{"pid.read"}, []string{"PID"})
	mw := Middleware{Authorizer: newTestAuthorizer(store, nil, nil)}

	var got shared.Access
	var ok bool
	handler := mw.Require(RequireBoth("PID", "pid.read"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = shared.AccessFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestWithPrincipal(t, pid.String()))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if !ok {
		t.Fatal("access missing from context")
	}
	if got.PrincipalID != pid || got.OrganizationID != orgID || got.Scope != string(ScopeTeam) {
		t.Fatalf("access = %+v", got)
	}
}

func TestMiddlewareDenyIsGenericForbidden(t *testing.T) {
	store := newStubStore()
	pid := store.addPrincipal(uuid.New(), StatusActive, ScopeOwn)
	mw := Middleware{Authorizer: newTestAuthorizer(store, nil, nil)}

	handler := mw.RequirePermission("pid.create")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run on deny")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestWithPrincipal(t, pid.String()))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
	body := rr.Body.String()
	if body != http.StatusText(http.StatusForbidden)+"\n" {
		t.Fatalf("deny response leaked detail: %q", body)
	}
}

func TestMiddlewareSuspendedAccountForbidden(t *testing.T) {
	store := newStubStore()
	orgID := uuid.New()
	pid := store.addPrincipal(orgID, StatusSuspended, ScopeOwn)
	store.addRole(pid, Role{OrganizationID: orgID, Code: "admin", Level: 5},
		[]string{"pid.create"}, nil)
	mw := Middleware{Authorizer: newTestAuthorizer(store, nil, nil)}

	handler := mw.RequirePermission("pid.create")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for suspended account")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestWithPrincipal(t, pid.String()))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestMiddlewareNoSessionForbidden(t *testing.T) {
	store := newStubStore()
	mw := Middleware{Authorizer: newTestAuthorizer(store, nil, nil)}
	handler := mw.RequirePermission("pid.read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a session")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/pids", nil))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, requestWithPrincipal(t, ""))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("anonymous session: status = %d, want 403", rr.Code)
	}
}

func TestMiddlewareStoreOutageIsServiceUnavailable(t *testing.T) {
	store := newStubStore()
	pid := uuid.New()
	store.failWith = errTimeout{}
	mw := Middleware{Authorizer: newTestAuthorizer(store, nil, nil)}

	handler := mw.RequirePermission("pid.read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run during store outage")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestWithPrincipal(t, pid.String()))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "i/o timeout" }
