package rbac

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// SystemOrgID is the sentinel organization owning system-wide roles and the
// global catalog (modules, permissions). Roles under it apply to every tenant.
var SystemOrgID = uuid.Nil

// Scope describes how much of a resource collection a principal may see.
type Scope string

// Visibility scopes ordered from most to least restrictive.
const (
	ScopeOwn          Scope = "own"
	ScopeTeam         Scope = "team"
	ScopeOrganization Scope = "organization"
	ScopeAll          Scope = "all"
)

var scopeRanks = map[Scope]int{
	ScopeOwn:          1,
	ScopeTeam:         2,
	ScopeOrganization: 3,
	ScopeAll:          4,
}

// Valid reports whether the scope is one of the known values.
func (s Scope) Valid() bool {
	_, ok := scopeRanks[s]
	return ok
}

// Rank returns the ordering of the scope; higher means more visibility.
// Unknown scopes rank below "own" so a corrupt value never widens access.
func (s Scope) Rank() int {
	return scopeRanks[s]
}

// WiderScope returns the less restrictive of two scopes.
func WiderScope(a, b Scope) Scope {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Status is the lifecycle state of a principal's account.
type Status string

// Account statuses. Only StatusActive may pass the guard.
const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusPending   Status = "pending"
	StatusLocked    Status = "locked"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusPending, StatusLocked:
		return true
	}
	return false
}

// Organization is a tenant boundary isolating RBAC entities.
type Organization struct {
	ID        uuid.UUID
	Code      string
	Name      string
	Settings  map[string]any
	IsActive  bool
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Module is a coarse feature area gating a group of permissions.
type Module struct {
	ID        uuid.UUID
	Code      string
	Name      string
	Ordering  int
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permission is an atomic capability addressed by a dotted code
// such as "pid.create".
type Permission struct {
	ID          uuid.UUID
	ModuleID    uuid.UUID
	Code        string
	Name        string
	Description string
	Action      string
	IsActive    bool
}

// Role bundles permissions and module grants. OrganizationID equal to
// SystemOrgID marks a system-wide role that applies in every tenant.
type Role struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Code           string
	Name           string
	Level          int
	Scope          Scope
	IsSystem       bool
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AppliesTo reports whether the role grants anything to a principal in the
// given organization. Roles from a foreign tenant grant nothing.
func (r Role) AppliesTo(orgID uuid.UUID) bool {
	return r.OrganizationID == SystemOrgID || r.OrganizationID == orgID
}

// UserRole assigns a role to a principal.
type UserRole struct {
	UserID     uuid.UUID
	RoleID     uuid.UUID
	AssignedBy uuid.UUID
	AssignedAt time.Time
	IsPrimary  bool
}

// UserProfile carries the per-principal RBAC state.
type UserProfile struct {
	UserID            uuid.UUID
	OrganizationID    uuid.UUID
	Status            Status
	DefaultScope      Scope
	Metadata          map[string]any
	LockedUntil       *time.Time
	StorageUsedBytes  int64
	StorageQuotaBytes int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Inactive reports the effective non-active status, taking a temporary lock
// window into account. A zero return value means the account is active.
func (p *UserProfile) Inactive(now time.Time) Status {
	if p.Status != StatusActive {
		return p.Status
	}
	if p.LockedUntil != nil && p.LockedUntil.After(now) {
		return StatusLocked
	}
	return ""
}

// Resolution is the effective grant set of a principal.
type Resolution struct {
	PrincipalID    uuid.UUID `json:"principal_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Permissions    []string  `json:"permissions"`
	Modules        []string  `json:"modules"`
	Scope          Scope     `json:"scope"`
}

// HasPermission reports whether the permission code was granted.
func (r *Resolution) HasPermission(code string) bool {
	return containsCode(r.Permissions, code)
}

// HasModule reports whether the module code was granted.
func (r *Resolution) HasModule(code string) bool {
	return containsCode(r.Modules, code)
}

func containsCode(sorted []string, code string) bool {
	i := sort.SearchStrings(sorted, code)
	return i < len(sorted) && sorted[i] == code
}

// Requirement describes what an operation demands from the caller. The zero
// value requires nothing. When both fields are set the module gate is
// evaluated before the permission gate.
type Requirement struct {
	Module     string
	Permission string
}

// RequirePermission builds a permission-only requirement.
func RequirePermission(code string) Requirement {
	return Requirement{Permission: code}
}

// RequireModule builds a module-only requirement.
func RequireModule(code string) Requirement {
	return Requirement{Module: code}
}

// RequireBoth gates on module access first, then the fine-grained permission.
func RequireBoth(module, permission string) Requirement {
	return Requirement{Module: module, Permission: permission}
}

// Empty reports whether the requirement demands nothing.
func (q Requirement) Empty() bool {
	return q.Module == "" && q.Permission == ""
}

// DenyReason explains a negative authorization decision. Reasons are recorded
// for audit only; callers receive a generic forbidden response.
type DenyReason string

// Deny reasons.
const (
	DenyMissingPermission DenyReason = "missing_permission"
	DenyMissingModule     DenyReason = "missing_module"
	DenyAccountInactive   DenyReason = "account_inactive"
	DenyOrgMismatch       DenyReason = "organization_mismatch"
	DenyUnknownPrincipal  DenyReason = "unknown_principal"
)

// Decision is the outcome of an authorization check. Scope and OrganizationID
// are populated on allow so downstream handlers can build visibility filters.
type Decision struct {
	Allowed        bool
	Reason         DenyReason
	Scope          Scope
	OrganizationID uuid.UUID
}
