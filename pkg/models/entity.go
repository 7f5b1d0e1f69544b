package models

import (
	"encoding/json"
	"time"
)

// EntityKind identifies the canonical entity variant
type EntityKind string

const (
	EntityKindInvestor EntityKind = "investor"
	EntityKindFirm     EntityKind = "firm"
	EntityKindContact  EntityKind = "contact"
)

// ValidEntityKind reports whether the given kind is one of the known variants
func ValidEntityKind(kind string) bool {
	switch EntityKind(kind) {
	case EntityKindInvestor, EntityKindFirm, EntityKindContact:
		return true
	}
	return false
}

// Source tags where an entity originated
const (
	SourceExternal   = "external"
	SourceManual     = "manual"
	SourceFileImport = "file-import"
)

// Sync statuses for the outbound push direction
const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
	SyncStatusError   = "error"
)

// Entity is the canonical local representation of a firm, investor, or contact.
// Mapped columns are owned by the reconciliation pipeline; Notes and
// InternalStatus are local-only and never touched by an upsert.
type Entity struct {
	ID             string  `json:"id" db:"id"`
	TenantID       string  `json:"tenant_id" db:"tenant_id"`
	EntityKind     string  `json:"entity_kind" db:"entity_kind"`
	ExternalID     *string `json:"external_id,omitempty" db:"external_id"`
	Name           string  `json:"name" db:"name"`
	Email          *string `json:"email,omitempty" db:"email"`
	Phone          *string `json:"phone,omitempty" db:"phone"`
	Website        *string `json:"website,omitempty" db:"website"`
	Location       *string `json:"location,omitempty" db:"location"`
	Classification *string `json:"classification,omitempty" db:"classification"`

	Sectors     json.RawMessage `json:"sectors,omitempty" db:"sectors"`
	Stages      json.RawMessage `json:"stages,omitempty" db:"stages"`
	Contacts    json.RawMessage `json:"contacts,omitempty" db:"contacts"`
	SocialLinks json.RawMessage `json:"social_links,omitempty" db:"social_links"`
	Bio         *string         `json:"bio,omitempty" db:"bio"`

	Notes          *string `json:"notes,omitempty" db:"notes"`
	InternalStatus *string `json:"internal_status,omitempty" db:"internal_status"`

	Source             string     `json:"source" db:"source"`
	SyncStatus         string     `json:"sync_status" db:"sync_status"`
	SyncError          *string    `json:"sync_error,omitempty" db:"sync_error"`
	LastExternalSyncAt *time.Time `json:"last_external_sync_at,omitempty" db:"last_external_sync_at"`
	Fingerprint        string     `json:"fingerprint" db:"fingerprint"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MappedFields is the attribute set produced by the field mapper for one
// external record. It carries only the columns the pipeline owns.
type MappedFields struct {
	ExternalID     string   `json:"external_id"`
	Name           string   `json:"name"`
	Email          *string  `json:"email,omitempty"`
	Phone          *string  `json:"phone,omitempty"`
	Website        *string  `json:"website,omitempty"`
	Location       *string  `json:"location,omitempty"`
	Classification *string  `json:"classification,omitempty"`
	Sectors        []string `json:"sectors,omitempty"`
	Stages         []string `json:"stages,omitempty"`
	Bio            *string  `json:"bio,omitempty"`

	Contacts    []ContactChannel  `json:"contacts,omitempty"`
	SocialLinks map[string]string `json:"social_links,omitempty"`
}

// ContactChannel is a secondary contact attached to an entity
type ContactChannel struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role,omitempty"`
}

// EntityListResponse is the response for listing entities
type EntityListResponse struct {
	Items      []Entity `json:"items"`
	TotalCount int      `json:"total_count"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}

// CompletenessFields returns the domain field values considered when ranking
// duplicate group members. The count of non-empty values decides the winner.
func (e *Entity) CompletenessFields() []any {
	return []any{
		e.Email,
		e.Phone,
		e.Website,
		e.Location,
		e.Classification,
		e.Bio,
		e.Contacts,
		e.SocialLinks,
		e.Sectors,
		e.Stages,
	}
}
