package rbac

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrPrincipalNotFound indicates the principal has no profile.
	ErrPrincipalNotFound = errors.New("rbac: principal not found")
	// ErrStoreUnavailable marks a transient store failure. It signals
	// indecision: the caller may retry, but must not treat it as a grant.
	ErrStoreUnavailable = errors.New("rbac: store unavailable")
	// ErrSystemRole rejects edits and deletes of system roles.
	ErrSystemRole = errors.New("rbac: system role is immutable")
	// ErrDuplicateCode indicates a unique code constraint violation.
	ErrDuplicateCode = errors.New("rbac: code already in use")
	// ErrOrganizationMismatch rejects attaching a role across tenant
	// boundaries.
	ErrOrganizationMismatch = errors.New("rbac: role belongs to another organization")
)

// AccountInactiveError reports a non-active account status. It is terminal
// for the current request and always resolves to a deny.
type AccountInactiveError struct {
	Status Status
}

func (e *AccountInactiveError) Error() string {
	return fmt.Sprintf("rbac: account %s", e.Status)
}

// IsAccountInactive extracts the status from an AccountInactiveError chain.
func IsAccountInactive(err error) (Status, bool) {
	var inactive *AccountInactiveError
	if errors.As(err, &inactive) {
		return inactive.Status, true
	}
	return "", false
}

// storeErr wraps a read failure so callers can distinguish "we could not
// decide" from an authorization deny.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
