// Package reviews implements long-form series reviews. A reader writes
// at most one review per series; removed reviews disappear from
// listings instead of leaving a tombstone.
package reviews

import "time"

// Review is one reader's written take on a series.
type Review struct {
	ID         int64     `json:"id"`
	SeriesID   int64     `json:"series_id"`
	UserID     int64     `json:"user_id"`
	Author     string    `json:"author,omitempty"`
	Content    string    `json:"content"`
	HasSpoiler bool      `json:"has_spoiler"`
	Deleted    bool      `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReviewInput is the payload for publishing a review.
type ReviewInput struct {
	SeriesID   int64  `json:"series_id" validate:"required,min=1"`
	Content    string `json:"content" validate:"required,min=1,max=5000"`
	HasSpoiler bool   `json:"has_spoiler"`
}

// ReviewUpdate is the payload for rewriting a review.
type ReviewUpdate struct {
	Content    string `json:"content" validate:"required,min=1,max=5000"`
	HasSpoiler bool   `json:"has_spoiler"`
}

// Page is one window of a series' reviews.
type Page struct {
	Items    []Review `json:"items"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	HasNext  bool     `json:"has_next"`
}
