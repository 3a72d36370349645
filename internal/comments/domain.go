// Package comments implements chapter discussion: posting, editing,
// likes and moderation. Deletes are soft so moderation leaves a visible
// tombstone in the thread.
package comments

import "time"

// Comment is one discussion entry under a chapter.
type Comment struct {
	ID        int64     `json:"id"`
	ChapterID int64     `json:"chapter_id"`
	AuthorID  int64     `json:"author_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Likes     int       `json:"likes"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommentInput is the payload for posting or editing a comment.
type CommentInput struct {
	Body string `json:"body" validate:"required,min=1,max=2000"`
}

// Page is one window of a comment thread.
type Page struct {
	Items    []Comment `json:"items"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	HasNext  bool      `json:"has_next"`
}
