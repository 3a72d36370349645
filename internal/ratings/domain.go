// Package ratings implements per-reader series scores. A reader holds
// at most one rating per series; writing again replaces it.
package ratings

import "time"

// Rating is one reader's score for a series.
type Rating struct {
	ID        int64     `json:"id"`
	SeriesID  int64     `json:"series_id"`
	UserID    int64     `json:"user_id"`
	Value     int       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RatingInput is the payload for rating a series.
type RatingInput struct {
	SeriesID int64 `json:"series_id" validate:"required,min=1"`
	Value    int   `json:"value" validate:"required,min=1,max=5"`
}

// Summary aggregates a series' ratings for display, average rounded to
// one decimal.
type Summary struct {
	SeriesID int64   `json:"series_id"`
	Average  float64 `json:"average"`
	Count    int     `json:"count"`
}
