package entity

import "time"

// Author is the public profile data rendered next to a comment.
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Headline    string `json:"headline,omitempty"`
}

// Comment is a single entry in a post's comment thread.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`

	// Author is resolved client-side and never persisted with the row.
	Author *Author `json:"-"`
}

// CommentInput is the validated payload for a new comment.
type CommentInput struct {
	PostID string `validate:"required"`
	Body   string `validate:"required,max=2000"`
}
