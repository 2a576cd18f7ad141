package domain

import "time"

// CommentAuthorType indicates who authored a comment.
type CommentAuthorType string

const (
	AuthorTypeRequester CommentAuthorType = "REQUESTER"
	AuthorTypeAgent     CommentAuthorType = "AGENT"
	AuthorTypeSystem    CommentAuthorType = "SYSTEM"
)

// CommentVisibility differentiates between replies and internal notes.
type CommentVisibility string

const (
	VisibilityPublic   CommentVisibility = "PUBLIC"
	VisibilityInternal CommentVisibility = "INTERNAL"
)

// Comment captures communications in a ticket thread.
type Comment struct {
	ID         string
	TicketID   string
	AuthorType CommentAuthorType
	AuthorID   *string
	Visibility CommentVisibility
	Body       string
	CreatedAt  time.Time
}
