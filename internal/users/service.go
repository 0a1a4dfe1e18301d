package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-iam/gatehouse/internal/rbac"
)

// ErrInvalidTransition reports a status change the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// RepositoryPort defines data access methods for accounts.
type RepositoryPort interface {
	List(ctx context.Context, orgID uuid.UUID) ([]Account, error)
	Get(ctx context.Context, id uuid.UUID) (Account, error)
	Create(ctx context.Context, acc Account, passwordHash string) error
	UpdateProfile(ctx context.Context, id uuid.UUID, fullName string, metadata map[string]any) error
	SetStatus(ctx context.Context, id uuid.UUID, status rbac.Status, lockedUntil *time.Time) error
	SetDefaultScope(ctx context.Context, id uuid.UUID, scope rbac.Scope) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	ListRoles(ctx context.Context, id uuid.UUID) ([]AssignedRole, error)
}

// Service handles account lifecycle logic.
type Service struct {
	repo   RepositoryPort
	cache  *rbac.DecisionCache
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cache *rbac.DecisionCache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// List returns the accounts of one tenant.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]Account, error) {
	return s.repo.List(ctx, orgID)
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	return s.repo.Get(ctx, id)
}

// ListRoles returns the account's role assignments.
func (s *Service) ListRoles(ctx context.Context, id uuid.UUID) ([]AssignedRole, error) {
	return s.repo.ListRoles(ctx, id)
}

// Create provisions an account in pending status. The account cannot pass the
// guard until an administrator verifies it.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, email, fullName, password string, scope rbac.Scope) (Account, error) {
	if !scope.Valid() {
		scope = rbac.ScopeOwn
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}
	acc := Account{
		ID:             uuid.New(),
		Email:          strings.ToLower(strings.TrimSpace(email)),
		FullName:       fullName,
		OrganizationID: orgID,
		Status:         rbac.StatusPending,
		DefaultScope:   scope,
	}
	if err := s.repo.Create(ctx, acc, string(hash)); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// UpdateProfile changes display name and metadata.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, fullName string, metadata map[string]any) error {
	return s.repo.UpdateProfile(ctx, id, fullName, metadata)
}

// Verify moves a pending account to active.
func (s *Service) Verify(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, rbac.StatusActive, nil, rbac.StatusPending)
}

// Activate reinstates a suspended or locked account and clears any lock
// window.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, rbac.StatusActive, nil, rbac.StatusSuspended, rbac.StatusLocked)
}

// Suspend blocks the account indefinitely. Takes effect on the principal's
// next request regardless of cached resolutions.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, rbac.StatusSuspended, nil, rbac.StatusActive, rbac.StatusLocked)
}

// Lock blocks the account until the given time. A zero until locks
// indefinitely.
func (s *Service) Lock(ctx context.Context, id uuid.UUID, until time.Time) error {
	var window *time.Time
	if !until.IsZero() {
		u := until.UTC()
		window = &u
	}
	return s.transition(ctx, id, rbac.StatusLocked, window, rbac.StatusActive, rbac.StatusSuspended)
}

// SetDefaultScope changes the profile's fallback visibility scope.
func (s *Service) SetDefaultScope(ctx context.Context, id uuid.UUID, scope rbac.Scope) error {
	if !scope.Valid() {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidTransition, scope)
	}
	return s.repo.SetDefaultScope(ctx, id, scope)
}

// Delete soft-deletes the account and drops its cached resolution so the next
// request misses instead of waiting for the version check.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Forget(ctx, id); err != nil {
			s.logger.Warn("drop cached resolution", slog.String("user_id", id.String()), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to rbac.Status, lockedUntil *time.Time, from ...rbac.Status) error {
	acc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	allowed := false
	for _, st := range from {
		if acc.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, acc.Status, to)
	}
	return s.repo.SetStatus(ctx, id, to, lockedUntil)
}
