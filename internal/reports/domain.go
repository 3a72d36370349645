// Package reports implements abuse reports against platform content.
// Anyone signed in may file one; only the moderation team sees the
// queue and moves reports through their lifecycle.
package reports

import "time"

// ReportType names the kind of entity a report points at.
type ReportType string

const (
	TypeComment ReportType = "COMMENT"
	TypeSeries  ReportType = "SERIES"
	TypeChapter ReportType = "CHAPTER"
	TypeUser    ReportType = "USER"
)

// Status is a report's position in the moderation lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusReviewed  Status = "REVIEWED"
	StatusResolved  Status = "RESOLVED"
	StatusDismissed Status = "DISMISSED"
)

// Report is one filed complaint.
type Report struct {
	ID          int64      `json:"id"`
	ReporterID  int64      `json:"reporter_id"`
	Type        ReportType `json:"type"`
	EntityID    int64      `json:"entity_id"`
	Reason      string     `json:"reason"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	ReviewedBy  *int64     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ReportInput is the payload for filing a report.
type ReportInput struct {
	Type        ReportType `json:"type" validate:"required,oneof=COMMENT SERIES CHAPTER USER"`
	EntityID    int64      `json:"entity_id" validate:"required,min=1"`
	Reason      string     `json:"reason" validate:"required,min=1,max=200"`
	Description string     `json:"description" validate:"max=1000"`
}

// StatusInput is the payload for moving a report through its lifecycle.
type StatusInput struct {
	Status Status `json:"status" validate:"required,oneof=PENDING REVIEWED RESOLVED DISMISSED"`
	Notes  string `json:"notes" validate:"max=1000"`
}

// Filters narrows the moderation queue.
type Filters struct {
	Status Status
	Type   ReportType
}

// Page is one window of the moderation queue.
type Page struct {
	Items    []Report `json:"items"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	HasNext  bool     `json:"has_next"`
}
