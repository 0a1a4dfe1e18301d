package auth

import (
	"time"

	"github.com/google/uuid"
)

// User represents an authenticated user account. Authorization state lives in
// the principal's RBAC profile, not here.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
