package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestGuardAllowsActiveAccount(t *testing.T) {
	store := newStubStore()
	pid := store.addPrincipal(uuid.New(), StatusActive, ScopeOwn)

	if err := NewGuard(store).Check(context.Background(), pid); err != nil {
		t.Fatalf("active account should pass, got %v", err)
	}
}

func TestGuardBlocksNonActiveStatuses(t *testing.T) {
	for _, status := range []Status{StatusSuspended, StatusPending, StatusLocked} {
		store := newStubStore()
		pid := store.addPrincipal(uuid.New(), status, ScopeOwn)

		err := NewGuard(store).Check(context.Background(), pid)
		got, ok := IsAccountInactive(err)
		if !ok {
			t.Fatalf("status %s: expected AccountInactiveError, got %v", status, err)
		}
		if got != status {
			t.Fatalf("status = %q, want %q", got, status)
		}
	}
}

func TestGuardHonorsLockWindow(t *testing.T) {
	store := newStubStore()
	pid := store.addPrincipal(uuid.New(), StatusActive, ScopeOwn)
	future := time.Now().Add(30 * time.Minute)
	store.profiles[pid].LockedUntil = &future

	err := NewGuard(store).Check(context.Background(), pid)
	if status, ok := IsAccountInactive(err); !ok || status != StatusLocked {
		t.Fatalf("expected locked, got %v", err)
	}

	past := time.Now().Add(-time.Minute)
	store.profiles[pid].LockedUntil = &past
	if err := NewGuard(store).Check(context.Background(), pid); err != nil {
		t.Fatalf("expired lock should pass, got %v", err)
	}
}

func TestGuardUnknownPrincipal(t *testing.T) {
	store := newStubStore()
	err := NewGuard(store).Check(context.Background(), uuid.New())
	if !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestGuardStoreFailure(t *testing.T) {
	store := newStubStore()
	store.failWith = errors.New("timeout")
	err := NewGuard(store).Check(context.Background(), uuid.New())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
