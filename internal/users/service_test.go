package users

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-iam/gatehouse/internal/rbac"
)

type stubRepo struct {
	accounts     map[uuid.UUID]Account
	lastHash     string
	lastStatus   rbac.Status
	lastLocked   *time.Time
	softDeleted  []uuid.UUID
	statusCalled bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{accounts: map[uuid.UUID]Account{}}
}

func (s *stubRepo) List(ctx context.Context, orgID uuid.UUID) ([]Account, error) { return nil, nil }

func (s *stubRepo) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	acc, ok := s.accounts[id]
	if !ok {
		return Account{}, rbac.ErrNotFound
	}
	return acc, nil
}

func (s *stubRepo) Create(ctx context.Context, acc Account, passwordHash string) error {
	s.accounts[acc.ID] = acc
	s.lastHash = passwordHash
	return nil
}

func (s *stubRepo) UpdateProfile(ctx context.Context, id uuid.UUID, fullName string, metadata map[string]any) error {
	return nil
}

func (s *stubRepo) SetStatus(ctx context.Context, id uuid.UUID, status rbac.Status, lockedUntil *time.Time) error {
	acc := s.accounts[id]
	acc.Status = status
	acc.LockedUntil = lockedUntil
	s.accounts[id] = acc
	s.lastStatus = status
	s.lastLocked = lockedUntil
	s.statusCalled = true
	return nil
}

func (s *stubRepo) SetDefaultScope(ctx context.Context, id uuid.UUID, scope rbac.Scope) error {
	return nil
}

func (s *stubRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	s.softDeleted = append(s.softDeleted, id)
	delete(s.accounts, id)
	return nil
}

func (s *stubRepo) ListRoles(ctx context.Context, id uuid.UUID) ([]AssignedRole, error) {
	return nil, nil
}

func (s *stubRepo) add(status rbac.Status) uuid.UUID {
	id := uuid.New()
	s.accounts[id] = Account{ID: id, Status: status, OrganizationID: uuid.New()}
	return id
}

func newTestService(repo *stubRepo) *Service {
	return NewService(repo, nil, slog.Default())
}

func TestCreateStartsPendingWithHashedPassword(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	acc, err := svc.Create(context.Background(), uuid.New(), " Admin@Example.COM ", "Admin", "correct horse", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if acc.Status != rbac.StatusPending {
		t.Fatalf("status = %q, want pending", acc.Status)
	}
	if acc.Email != "admin@example.com" {
		t.Fatalf("email not normalized: %q", acc.Email)
	}
	if acc.DefaultScope != rbac.ScopeOwn {
		t.Fatalf("scope = %q, want fallback own", acc.DefaultScope)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(repo.lastHash), []byte("correct horse")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
}

func TestVerifyOnlyFromPending(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	id := repo.add(rbac.StatusPending)

	if err := svc.Verify(context.Background(), id); err != nil {
		t.Fatalf("verify pending: %v", err)
	}
	if repo.lastStatus != rbac.StatusActive {
		t.Fatalf("status = %q, want active", repo.lastStatus)
	}

	active := repo.add(rbac.StatusActive)
	err := svc.Verify(context.Background(), active)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("verify active should fail, got %v", err)
	}
}

func TestSuspendAndActivateRoundTrip(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	id := repo.add(rbac.StatusActive)
	ctx := context.Background()

	if err := svc.Suspend(ctx, id); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if repo.lastStatus != rbac.StatusSuspended {
		t.Fatalf("status = %q, want suspended", repo.lastStatus)
	}
	if err := svc.Activate(ctx, id); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if repo.lastStatus != rbac.StatusActive || repo.lastLocked != nil {
		t.Fatalf("activate must clear lock window, got %q %v", repo.lastStatus, repo.lastLocked)
	}

	if err := svc.Suspend(ctx, repo.add(rbac.StatusPending)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("suspending a pending account should fail, got %v", err)
	}
}

func TestLockSetsWindow(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	id := repo.add(rbac.StatusActive)
	until := time.Now().Add(time.Hour)

	if err := svc.Lock(context.Background(), id, until); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if repo.lastStatus != rbac.StatusLocked {
		t.Fatalf("status = %q, want locked", repo.lastStatus)
	}
	if repo.lastLocked == nil || !repo.lastLocked.Equal(until.UTC()) {
		t.Fatalf("locked_until = %v, want %v", repo.lastLocked, until.UTC())
	}

	// Relocking an already locked account is not a valid transition.
	if err := svc.Lock(context.Background(), id, time.Time{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestSetDefaultScopeRejectsUnknown(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	id := repo.add(rbac.StatusActive)

	if err := svc.SetDefaultScope(context.Background(), id, "galaxy"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected rejection of unknown scope, got %v", err)
	}
	if err := svc.SetDefaultScope(context.Background(), id, rbac.ScopeOrganization); err != nil {
		t.Fatalf("set scope: %v", err)
	}
}

func TestDeleteSoftDeletes(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	id := repo.add(rbac.StatusActive)

	if err := svc.Delete(context.Background(), id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(repo.softDeleted) != 1 || repo.softDeleted[0] != id {
		t.Fatalf("soft delete not recorded: %v", repo.softDeleted)
	}
}
