package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, store *stubStore) (*DecisionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDecisionCache(client, store, NewResolver(store), time.Minute, nil), mr
}

func TestCacheServesMemoizedResolution(t *testing.T) {
	store := newStubStore()
	orgID := uuid.New()
	pid := store.addPrincipal(orgID, StatusActive, ScopeOwn)
	store.addRole(pid, Role{OrganizationID: orgID, Code: "viewer", Level: 1}, []string{"pid.read"}, nil)
	cache, _ := newTestCache(t, store)
	ctx := context.Background()

	first, err := cache.GetOrCompute(ctx, pid)
	if err != nil {
		t.Fatalf("first lookup: %v", err)
	}

	// Mutate the backing grants without bumping the version: the cache must
	// keep serving the memoized entry.
	store.roles[pid] = nil
	second, err := cache.GetOrCompute(ctx, pid)
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if !second.HasPermission("pid.read") {
		t.Fatalf("expected cached grants, got %v", second.Permissions)
	}
	if first.OrganizationID != second.OrganizationID {
		t.Fatalf("organization drifted between lookups")
	}
}

func TestCacheVersionBumpInvalidates(t *testing.T) {
	store := newStubStore()
	orgID := uuid.New()
	pid := store.addPrincipal(orgID, StatusActive, ScopeOwn)
	role := store.addRole(pid, Role{OrganizationID: orgID, Code: "viewer", Level: 1}, []string{"pid.read"}, nil)
	cache, _ := newTestCache(t, store)
	ctx := context.Background()

	if _, err := cache.GetOrCompute(ctx, pid); err != nil {
		t.Fatalf("warm lookup: %v", err)
	}

	store.permissions[role.ID] = []string{"pid.read", "pid.create"}
	store.versions[orgID]++

	result, err := cache.GetOrCompute(ctx, pid)
	if err != nil {
		t.Fatalf("post-bump lookup: %v", err)
	}
	if !result.HasPermission("pid.create") {
		t.Fatalf("expected recomputed grants after version bump, got %v", result.Permissions)
	}
}

func TestCacheSystemVersionBumpInvalidatesEveryTenant(t *testing.T) {
	store := newStubStore()
	orgID := uuid.New()
	pid := store.addPrincipal(orgID, StatusActive, ScopeOwn)
	role := store.addRole(pid, Role{OrganizationID: SystemOrgID, Code: "auditor", Level: 2}, []string{"iam.audit.view"}, nil)
	cache, _ := newTestCache(t, store)
	ctx := context.Background()

	if _, err := cache.GetOrCompute(ctx, pid); err != nil {
		t.Fatalf("warm lookup: %v", err)
	}

	store.permissions[role.ID] = nil
	store.versions[SystemOrgID]++

	result, err := cache.GetOrCompute(ctx, pid)
	if err != nil {
		t.Fatalf("post-bump lookup: %v", err)
	}
	if result.HasPermission("iam.audit.view") {
		t.Fatalf("system-wide write did not invalidate tenant entry: %v", result.Permissions)
	}
}

func TestCacheForgetDropsEntry(t *testing.T) {
	store := newStubStore()
	orgID := uuid.New()
	pid := store.addPrincipal(orgID, StatusActive, ScopeOwn)
	store.addRole(pid, Role{OrganizationID: orgID, Code: "viewer", Level: 1}, []string{"pid.read"}, nil)
	cache, mr := newTestCache(t, store)
	ctx := context.Background()

	if _, err := cache.GetOrCompute(ctx, pid); err != nil {
		t.Fatalf("warm lookup: %v", err)
	}
	if !mr.Exists("rbac:decision:" + pid.String()) {
		t.Fatal("expected entry in redis after lookup")
	}
	if err := cache.Forget(ctx, pid); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if mr.Exists("rbac:decision:" + pid.String()) {
		t.Fatal("expected entry gone after Forget")
	}
}

func TestCacheNilClientComputesDirectly(t *testing.T) {
	store := newStubStore()
	orgID := uuid.New()
	pid := store.addPrincipal(orgID, StatusActive, ScopeOwn)
	store.addRole(pid, Role{OrganizationID: orgID, Code: "viewer", Level: 1}, []string{"pid.read"}, nil)
	cache := NewDecisionCache(nil, store, NewResolver(store), time.Minute, nil)

	result, err := cache.GetOrCompute(context.Background(), pid)
	if err != nil {
		t.Fatalf("direct compute: %v", err)
	}
	if !result.HasPermission("pid.read") {
		t.Fatalf("expected direct resolution, got %v", result.Permissions)
	}
}

func TestCachePropagatesUnknownPrincipal(t *testing.T) {
	store := newStubStore()
	cache, _ := newTestCache(t, store)

	_, err := cache.GetOrCompute(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected error for unknown principal")
	}
}
