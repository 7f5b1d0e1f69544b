package models

import (
	"encoding/json"
	"time"
)

// Match types recorded on duplicate candidates. Fuzzy-name pairs score below
// identity on names alone; combined pairs share an exact normalized name but
// disagree on external identity, so they need review instead of auto-merge.
const (
	MatchTypeFuzzyName = "fuzzy_name"
	MatchTypeCombined  = "combined"
)

// DuplicateCandidate statuses
const (
	CandidateStatusPending   = "pending"
	CandidateStatusMerged    = "merged"
	CandidateStatusDismissed = "dismissed"
	CandidateStatusReviewed  = "reviewed"
)

// DuplicateCandidate is a pair of entities believed to represent the same
// real-world record. Fuzzy matches are recorded here for review instead of
// being merged automatically.
type DuplicateCandidate struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	EntityKind string    `json:"entity_kind" db:"entity_kind"`
	EntityAID  string    `json:"entity_a_id" db:"entity_a_id"`
	EntityBID  string    `json:"entity_b_id" db:"entity_b_id"`
	MatchType  string    `json:"match_type" db:"match_type"`
	Similarity float64   `json:"similarity" db:"similarity"`
	Status     string    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// UpdateCandidateRequest is the request body for reviewing a candidate
type UpdateCandidateRequest struct {
	Status string `json:"status" validate:"required,oneof=pending merged dismissed reviewed"`
}

// DuplicateCandidateListResponse is the response for listing candidates
type DuplicateCandidateListResponse struct {
	Items      []DuplicateCandidate `json:"items"`
	TotalCount int                  `json:"total_count"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
}

// ArchiveReasonLessComplete tags entities archived after losing a
// completeness ranking
const ArchiveReasonLessComplete = "duplicate_less_complete"

// ArchivedEntity is a write-once snapshot of an entity that lost duplicate
// resolution. Restoration is a manual administrative action.
type ArchivedEntity struct {
	ID            string          `json:"id" db:"id"`
	TenantID      string          `json:"tenant_id" db:"tenant_id"`
	EntityID      string          `json:"entity_id" db:"entity_id"`
	EntityKind    string          `json:"entity_kind" db:"entity_kind"`
	Data          json.RawMessage `json:"data" db:"data"`
	ArchiveReason string          `json:"archive_reason" db:"archive_reason"`
	MergedIntoID  string          `json:"merged_into_id" db:"merged_into_id"`
	ArchivedAt    time.Time       `json:"archived_at" db:"archived_at"`
}

// RunDeduplicationRequest is the request body for running deduplication
type RunDeduplicationRequest struct {
	EntityKind string `json:"entity_kind" validate:"required,oneof=investor firm contact"`
}

// DeduplicationSummary reports one deduplication pass
type DeduplicationSummary struct {
	EntityKind   string `json:"entity_kind"`
	GroupsFound  int    `json:"groups_found"`
	Removed      int    `json:"removed"`
	Candidates   int    `json:"candidates"`
	FailedGroups int    `json:"failed_groups,omitempty"`
}

// PushSyncRequest is the request body for pushing pending syncs
type PushSyncRequest struct {
	EntityKind string `json:"entity_kind" validate:"required,oneof=investor firm contact"`
}

// PushSyncSummary reports one push-sync pass
type PushSyncSummary struct {
	EntityKind string `json:"entity_kind"`
	Total      int    `json:"total"`
	Synced     int    `json:"synced"`
	Failed     int    `json:"failed"`
	Batches    int    `json:"batches"`
}
