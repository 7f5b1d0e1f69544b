package models

import (
	"encoding/json"
	"time"
)

// ImportRunStatus is the lifecycle state of one import execution
type ImportRunStatus string

const (
	ImportRunStatusPending    ImportRunStatus = "pending"
	ImportRunStatusInProgress ImportRunStatus = "in_progress"
	ImportRunStatusCompleted  ImportRunStatus = "completed"
	ImportRunStatusFailed     ImportRunStatus = "failed"
	ImportRunStatusCancelled  ImportRunStatus = "cancelled"
)

// IsTerminal reports whether the status freezes the run
func (s ImportRunStatus) IsTerminal() bool {
	switch s {
	case ImportRunStatusCompleted, ImportRunStatusFailed, ImportRunStatusCancelled:
		return true
	}
	return false
}

// ImportRun represents one execution of the fetch-map-upsert pipeline.
// Counters are updated incrementally while the run is live and frozen once a
// terminal status is reached.
type ImportRun struct {
	ID             string          `json:"id" db:"id"`
	TenantID       string          `json:"tenant_id" db:"tenant_id"`
	CollectionType string          `json:"collection_type" db:"collection_type"`
	WorkspaceID    string          `json:"workspace_id" db:"workspace_id"`
	Status         ImportRunStatus `json:"status" db:"status"`

	TotalRecords     int `json:"total_records" db:"total_records"`
	ProcessedRecords int `json:"processed_records" db:"processed_records"`
	CreatedRecords   int `json:"created_records" db:"created_records"`
	UpdatedRecords   int `json:"updated_records" db:"updated_records"`
	SkippedRecords   int `json:"skipped_records" db:"skipped_records"`
	FailedRecords    int `json:"failed_records" db:"failed_records"`
	PercentComplete  int `json:"percent_complete" db:"percent_complete"`

	Cursor       *string `json:"cursor,omitempty" db:"cursor"`
	ErrorSummary *string `json:"error_summary,omitempty" db:"error_summary"`

	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// StartImportRequest is the request body for starting an import. WorkspaceID
// may be omitted, in which case the run uses the configured default workspace.
type StartImportRequest struct {
	CollectionType string `json:"collection_type" validate:"required,oneof=investor firm contact"`
	WorkspaceID    string `json:"workspace_id" validate:"omitempty"`
}

// ImportRunListResponse is the response for listing import runs
type ImportRunListResponse struct {
	Items      []ImportRun `json:"items"`
	TotalCount int         `json:"total_count"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
}

// FailedRecord is one record that could not be reconciled during a run
type FailedRecord struct {
	ID           string          `json:"id" db:"id"`
	RunID        string          `json:"run_id" db:"run_id"`
	TenantID     string          `json:"tenant_id" db:"tenant_id"`
	ExternalID   string          `json:"external_id" db:"external_id"`
	Payload      json.RawMessage `json:"payload,omitempty" db:"payload"`
	ErrorCode    string          `json:"error_code" db:"error_code"`
	ErrorMessage string          `json:"error_message" db:"error_message"`
	RetryCount   int             `json:"retry_count" db:"retry_count"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// Error codes recorded on FailedRecord rows
const (
	ErrorCodeMapping = "mapping_error"
	ErrorCodeUpsert  = "upsert_error"
	ErrorCodeMissing = "missing_identity"
)

// FailedRecordListResponse is the response for listing a run's failures
type FailedRecordListResponse struct {
	Items      []FailedRecord `json:"items"`
	TotalCount int            `json:"total_count"`
}
