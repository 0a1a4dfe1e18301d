package audit

import (
	"time"

	"github.com/google/uuid"
)

// TimelineFilters menampung filter dasar untuk audit timeline.
// OrganizationID membatasi hasil ke satu tenant; uuid.Nil berarti semua.
type TimelineFilters struct {
	From           time.Time
	To             time.Time
	PrincipalID    uuid.UUID
	OrganizationID uuid.UUID
	Outcome        string // "", "allowed", "denied"
	Reason         string
	Permission     string
	Page           int
	PageSize       int
}

// TimelineRow mewakili satu keputusan otorisasi yang tercatat. Organisasi
// diambil lewat join ke user_profiles saat membaca.
type TimelineRow struct {
	ID             int64     `json:"id"`
	At             time.Time `json:"at"`
	PrincipalID    uuid.UUID `json:"principal_id"`
	OrganizationID uuid.UUID `json:"organization_id,omitempty"`
	Allowed        bool      `json:"allowed"`
	Reason         string    `json:"reason,omitempty"`
	Module         string    `json:"module,omitempty"`
	Permission     string    `json:"permission,omitempty"`
	Resource       string    `json:"resource,omitempty"`
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}
