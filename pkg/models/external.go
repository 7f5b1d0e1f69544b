package models

import "time"

// ExternalRecord is one record as received from the external CRM. It is never
// mutated, only read.
type ExternalRecord struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	Website      string          `json:"website,omitempty"`
	Location     string          `json:"location,omitempty"`
	Type         string          `json:"type,omitempty"`
	Groups       []ExternalGroup `json:"groups,omitempty"`
	CustomFields FieldBag        `json:"customFields,omitempty"`
	CreatedTime  *time.Time      `json:"createdTime,omitempty"`
	UpdatedTime  *time.Time      `json:"updatedTime,omitempty"`
}

// ExternalGroup is a workspace/group membership on an external record
type ExternalGroup struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// FieldBag holds the nested, workspace-scoped custom fields of an external
// record: workspace id -> field name -> value. Unknown workspaces are simply
// absent from the bag.
type FieldBag map[string]map[string]any

// ExternalPage is the envelope returned by the external CRM list endpoint
type ExternalPage struct {
	Data ExternalPageData `json:"data"`
}

// ExternalPageData carries the items plus the pagination pointer
type ExternalPageData struct {
	Items      []ExternalRecord   `json:"items"`
	Pagination ExternalPagination `json:"pagination"`
}

// ExternalPagination holds the opaque cursor to the next page, when any
type ExternalPagination struct {
	NextLink string `json:"nextLink,omitempty"`
}

// ExternalPushResult is the response body of a push create/update call
type ExternalPushResult struct {
	ID string `json:"id"`
}
