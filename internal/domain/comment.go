package domain

import "time"

// CommentKind differentiates between replies and notes.
type CommentKind string

const (
	CommentKindPublicReply  CommentKind = "PUBLIC_REPLY"
	CommentKindInternalNote CommentKind = "INTERNAL_NOTE"
)

// TicketComment captures communications in a ticket thread.
type TicketComment struct {
	ID        string
	TicketID  string
	AuthorID  string
	Kind      CommentKind
	Body      string
	CreatedAt time.Time
}
