package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Guard enforces account-status gates ahead of any permission computation.
// Status is read from the store at request time, never from the decision
// cache, so a suspension takes effect on the very next request after it
// commits. Requests already past the guard are not retroactively cancelled.
type Guard struct {
	store Store
}

// NewGuard constructs a Guard.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// Check returns nil when the account is active. It returns
// ErrPrincipalNotFound, an AccountInactiveError, or a wrapped
// ErrStoreUnavailable; an inactive principal's roles are irrelevant, so the
// check concludes before any resolution work.
func (g *Guard) Check(ctx context.Context, principalID uuid.UUID) error {
	profile, err := g.store.GetUserProfile(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return err
		}
		return storeErr("load profile", err)
	}
	if status := profile.Inactive(time.Now()); status != "" {
		return &AccountInactiveError{Status: status}
	}
	return nil
}
