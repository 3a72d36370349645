package comments

import "context"

// Repository defines persistence operations for comments.
type Repository interface {
	ListByChapter(ctx context.Context, chapterID int64, offset, limit int) ([]Comment, error)
	Find(ctx context.Context, id int64) (*Comment, error)
	Create(ctx context.Context, c *Comment) error
	UpdateBody(ctx context.Context, id int64, body string) error
	SoftDelete(ctx context.Context, id int64) error
	Like(ctx context.Context, commentID, userID int64) error
	Unlike(ctx context.Context, commentID, userID int64) error
}
