// Package entity defines the domain objects the feed client works with: posts,
// comments, authors, notifications, job applications and per-entity interaction
// state, together with their validation rules and domain errors.
package entity

import "time"

// PostKind distinguishes news posts from job postings.
type PostKind string

const (
	PostKindNews PostKind = "news"
	PostKindJob  PostKind = "job"
)

// Post is a feed item. Comments, likes and bookmarks hang off a post id.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Kind      PostKind  `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
