package rbac

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Resolver computes a principal's effective grant set. It is a pure read over
// the Store: no caching, no side effects, safe to invoke concurrently and to
// recompute redundantly.
type Resolver struct {
	store Store
}

// NewResolver constructs a Resolver.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve computes the permission set, module set, visibility scope, and
// tenant of the principal.
//
// Grants are purely additive: each assigned role can only add capability.
// Roles owned by a foreign organization are excluded before the union so they
// contribute nothing. A principal with no roles resolves to an empty grant
// set; that is a valid unprivileged state, not an error.
func (rv *Resolver) Resolve(ctx context.Context, principalID uuid.UUID) (*Resolution, error) {
	profile, err := rv.store.GetUserProfile(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, err
		}
		return nil, storeErr("load profile", err)
	}

	// The guard runs first in the request path, but resolution must not
	// assume it did.
	if status := profile.Inactive(time.Now()); status != "" {
		return nil, &AccountInactiveError{Status: status}
	}

	assigned, err := rv.store.ListAssignedRoles(ctx, principalID)
	if err != nil {
		return nil, storeErr("load roles", err)
	}

	roles := make([]Role, 0, len(assigned))
	for _, role := range assigned {
		if role.AppliesTo(profile.OrganizationID) {
			roles = append(roles, role)
		}
	}

	result := &Resolution{
		PrincipalID:    principalID,
		OrganizationID: profile.OrganizationID,
		Scope:          resolveScope(roles, profile.DefaultScope),
	}
	if len(roles) == 0 {
		return result, nil
	}

	roleIDs := make([]uuid.UUID, len(roles))
	for i, role := range roles {
		roleIDs[i] = role.ID
	}

	// The two unions are independent reads; run them together.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		codes, err := rv.store.ListPermissionCodes(groupCtx, roleIDs)
		if err != nil {
			return storeErr("load permissions", err)
		}
		result.Permissions = codes
		return nil
	})
	group.Go(func() error {
		codes, err := rv.store.ListModuleCodes(groupCtx, roleIDs)
		if err != nil {
			return storeErr("load modules", err)
		}
		result.Modules = codes
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(result.Permissions)
	sort.Strings(result.Modules)
	return result, nil
}

// resolveScope picks the least restrictive scope configured on the applicable
// roles, falling back to the profile default when no role sets one. Roles are
// visited in ascending level order so that, between scopes of equal width,
// the higher-privilege role's scope is the one reported.
func resolveScope(roles []Role, fallback Scope) Scope {
	sorted := make([]Role, len(roles))
	copy(sorted, roles)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	var widest Scope
	for _, role := range sorted {
		if !role.Scope.Valid() {
			continue
		}
		widest = WiderScope(widest, role.Scope)
	}
	if widest == "" {
		if fallback.Valid() {
			return fallback
		}
		return ScopeOwn
	}
	return widest
}
