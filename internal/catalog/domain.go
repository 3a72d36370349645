// Package catalog manages series and their chapters, the read-heavy
// core of the platform. Listings and detail reads flow through the tag
// cache; every write invalidates the tags it touches before returning.
package catalog

import "time"

// Series statuses as stored.
const (
	StatusOngoing   = "ONGOING"
	StatusCompleted = "COMPLETED"
	StatusHiatus    = "HIATUS"
)

// Series is one publication with an owning creator.
type Series struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Synopsis  string    `json:"synopsis"`
	Genre     string    `json:"genre"`
	Status    string    `json:"status"`
	CoverURL  string    `json:"cover_url,omitempty"`
	AuthorID  int64     `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chapter is one episode of a series. Early-access chapters are visible
// in listings but their content is gated to premium subscribers until
// PublishedAt passes.
type Chapter struct {
	ID          int64     `json:"id"`
	SeriesID    int64     `json:"series_id"`
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	ContentURL  string    `json:"content_url,omitempty"`
	EarlyAccess bool      `json:"early_access"`
	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SeriesInput is the payload for creating or updating a series.
type SeriesInput struct {
	Title    string `json:"title" validate:"required,min=1,max=200"`
	Synopsis string `json:"synopsis" validate:"max=4000"`
	Genre    string `json:"genre" validate:"required,min=2,max=40"`
	Status   string `json:"status" validate:"omitempty,oneof=ONGOING COMPLETED HIATUS"`
	CoverURL string `json:"cover_url" validate:"omitempty,url"`
}

// ChapterInput is the payload for creating a chapter.
type ChapterInput struct {
	Number      int    `json:"number" validate:"required,min=1"`
	Title       string `json:"title" validate:"required,min=1,max=200"`
	ContentURL  string `json:"content_url" validate:"omitempty,url"`
	EarlyAccess bool   `json:"early_access"`
}

// Page is one window of a listing.
type Page[T any] struct {
	Items    []T  `json:"items"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}
