package events

import (
	"time"

	"github.com/supportdesk/workflow-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketUpdated       EventType = "ticket_updated"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketMessageSent   EventType = "ticket_message_sent"
	EventTicketRated         EventType = "ticket_rated"
	EventTicketDeleted       EventType = "ticket_deleted"
)

// Event is one mutation record handed to the outbound channel after a
// successful command. Events are ephemeral: owned by the aggregator until
// flushed, then discarded.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	CreatorID string                `json:"creator_id"`
	LineID    *string               `json:"line_id,omitempty"`
	Priority  domain.TicketPriority `json:"priority"`
	Title     string                `json:"title"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssignmentID string                  `json:"assignment_id,omitempty"`
	AssigneeID   *string                 `json:"assignee_id,omitempty"`
	LineID       *string                 `json:"line_id,omitempty"`
	Mode         domain.DispatchMode     `json:"mode,omitempty"`
	Status       domain.AssignmentStatus `json:"status,omitempty"`
}

// MessageSentPayload payload.
type MessageSentPayload struct {
	CommentID   string             `json:"comment_id"`
	Kind        domain.CommentKind `json:"kind"`
	AuthorID    string             `json:"author_id"`
	BodyPreview string             `json:"body_preview"`
}

// TicketRatedPayload payload.
type TicketRatedPayload struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	Fields map[string]any `json:"fields,omitempty"`
}
