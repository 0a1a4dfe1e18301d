package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type recordingSink struct {
	records []DecisionRecord
}

func (r *recordingSink) Decision(ctx context.Context, rec DecisionRecord) {
	r.records = append(r.records, rec)
}

type countingObserver struct {
	allowed int
	denied  map[string]int
}

func (o *countingObserver) ObserveDecision(allowed bool, reason string) {
	if allowed {
		o.allowed++
		return
	}
	if o.denied == nil {
		o.denied = map[string]int{}
	}
	o.denied[reason]++
}

func newTestAuthorizer(store *stubStore, sink AuditSink, observer Observer) *Authorizer {
	resolver := NewResolver(store)
	cache := NewDecisionCache(nil, store, resolver, time.Minute, nil)
	return NewAuthorizer(NewGuard(store), cache, sink, observer)
}

func TestAuthorizeAllowsGrantedRequirement(t *testing.T) {
	store := newStubStore()
	orgID := uuid.New()
	pid := store.addPrincipal(orgID, StatusActive, ScopeOwn)
	store.addRole(pid, Role{OrganizationID: orgID, Code: "engineer", Level: 2, Scope: ScopeTeam},
		[]string{"pid.create"}, []string{"PID"})
	sink := &recordingSink{}
	auth := newTestAuthorizer(store, sink, nil)

	decision, err := auth.Authorize(context.Background(), pid, RequireBoth("PID", "pid.create"), "POST /pids")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow, got reason %q", decision.Reason)
	}
	if decision.Scope != ScopeTeam || decision.OrganizationID != orgID {
		t.Fatalf("decision context wrong: %+v", decision)
	}
	if len(sink.records) != 1 || !sink.records[0].Allowed || sink.records[0].Resource != "POST /pids" {
		t.Fatalf("audit record wrong: %+v", sink.records)
	}
}

func TestAuthorizeDeniesByDefault(t *testing.T) {
	store := newStubStore()
	orgID := uuid.New()
	pid := store.addPrincipal(orgID, StatusActive, ScopeOwn)
	auth := newTestAuthorizer(store, nil, nil)

	decision, err := auth.Authorize(context.Background(), pid, RequirePermission("pid.create"), "")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if decision.Allowed || decision.Reason != DenyMissingPermission {
		t.Fatalf("expected missing_permission deny, got %+v", decision)
	}
}

func TestAuthorizeModuleGateBeforePermission(t *testing.T) {
	store := newStubStore()
	orgID := uuid.New()
	pid := store.addPrincipal(orgID, StatusActive, ScopeOwn)
	// Permission granted, module not: the module gate must report first.
	store.addRole(pid, Role{OrganizationID: orgID, Code: "engineer", Level: 2},
		[]string{"pid.create"}, nil)
	auth := newTestAuthorizer(store, nil, nil)

	decision, err := auth.Authorize(context.Background(), pid, RequireBoth("PID", "pid.create"), "")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if decision.Reason != DenyMissingModule {
		t.Fatalf("reason = %q, want %q", decision.Reason, DenyMissingModule)
	}
}

func TestAuthorizeAccountGatePrecedesResolution(t *testing.T) {
	store := newStubStore()
	orgID := uuid.New()
	pid := store.addPrincipal(orgID, StatusSuspended, ScopeOwn)
	store.addRole(pid, Role{OrganizationID: orgID, Code: "admin", Level: 5},
		[]string{"pid.create"}, []string{"PID"})
	sink := &recordingSink{}
	auth := newTestAuthorizer(store, sink, nil)

	decision, err := auth.Authorize(context.Background(), pid, RequireBoth("PID", "pid.create"), "")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if decision.Allowed || decision.Reason != DenyAccountInactive {
		t.Fatalf("expected account_inactive deny, got %+v", decision)
	}
	if len(sink.records) != 1 || sink.records[0].Reason != DenyAccountInactive {
		t.Fatalf("audit record wrong: %+v", sink.records)
	}
}

func TestAuthorizeUnknownPrincipalDenies(t *testing.T) {
	store := newStubStore()
	auth := newTestAuthorizer(store, nil, nil)

	decision, err := auth.Authorize(context.Background(), uuid.New(), RequirePermission("pid.read"), "")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if decision.Allowed || decision.Reason != DenyUnknownPrincipal {
		t.Fatalf("expected unknown_principal deny, got %+v", decision)
	}
}

func TestAuthorizeStoreFailurePropagates(t *testing.T) {
	store := newStubStore()
	store.failWith = errors.New("connection reset")
	sink := &recordingSink{}
	auth := newTestAuthorizer(store, sink, nil)

	_, err := auth.Authorize(context.Background(), uuid.New(), RequirePermission("pid.read"), "")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if len(sink.records) != 0 {
		t.Fatalf("indecision must not be audited as a decision: %+v", sink.records)
	}
}

func TestAuthorizeEmptyRequirementAllowsActiveAccount(t *testing.T) {
	store := newStubStore()
	pid := store.addPrincipal(uuid.New(), StatusActive, ScopeOwn)
	auth := newTestAuthorizer(store, nil, nil)

	decision, err := auth.Authorize(context.Background(), pid, Requirement{}, "")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("empty requirement should pass for active account, got %+v", decision)
	}
}

func TestAuthorizeObserverCounts(t *testing.T) {
	store := newStubStore()
	orgID := uuid.New()
	pid := store.addPrincipal(orgID, StatusActive, ScopeOwn)
	store.addRole(pid, Role{OrganizationID: orgID, Code: "viewer", Level: 1},
		[]string{"pid.read"}, nil)
	observer := &countingObserver{}
	auth := newTestAuthorizer(store, nil, observer)
	ctx := context.Background()

	if _, err := auth.Authorize(ctx, pid, RequirePermission("pid.read"), ""); err != nil {
		t.Fatalf("authorize allow: %v", err)
	}
	if _, err := auth.Authorize(ctx, pid, RequirePermission("pid.delete"), ""); err != nil {
		t.Fatalf("authorize deny: %v", err)
	}
	if observer.allowed != 1 {
		t.Fatalf("allowed = %d, want 1", observer.allowed)
	}
	if observer.denied[string(DenyMissingPermission)] != 1 {
		t.Fatalf("denied = %v, want one missing_permission", observer.denied)
	}
}
