package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-iam/gatehouse/internal/rbac"
)

// Account joins the identity row with its RBAC profile for admin listings.
type Account struct {
	ID             uuid.UUID      `json:"id"`
	Email          string         `json:"email"`
	FullName       string         `json:"full_name"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	Status         rbac.Status    `json:"status"`
	DefaultScope   rbac.Scope     `json:"default_scope"`
	LockedUntil    *time.Time     `json:"locked_until,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// AssignedRole is a role attached to an account, flattened for listings.
type AssignedRole struct {
	RoleID     uuid.UUID  `json:"role_id"`
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	Level      int        `json:"level"`
	Scope      rbac.Scope `json:"scope,omitempty"`
	IsPrimary  bool       `json:"is_primary"`
	AssignedAt time.Time  `json:"assigned_at"`
}
