package dto

import (
	"time"

	"github.com/supportdesk/workflow-service/internal/domain"
)

// CreateTicketRequest is the payload for opening a ticket.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	LineID      *string               `json:"line_id"`
}

// ChangeStatusRequest drives one transition.
type ChangeStatusRequest struct {
	Status  domain.TicketStatus `json:"status"`
	Comment string              `json:"comment"`
}

// CancelTicketRequest retires a ticket.
type CancelTicketRequest struct {
	Reason string `json:"reason"`
}

// RateTicketRequest records satisfaction on a closed ticket.
type RateTicketRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

// CreateCommentRequest appends a thread entry.
type CreateCommentRequest struct {
	Kind domain.CommentKind `json:"kind"`
	Body string             `json:"body"`
}

// TicketSummary is the list representation.
type TicketSummary struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	Title       string                `json:"title"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	LineID      *string               `json:"line_id,omitempty"`
	AssigneeID  *string               `json:"assignee_id,omitempty"`
	Escalated   bool                  `json:"escalated"`
	SLADeadline *time.Time            `json:"sla_deadline,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// TicketDetailResponse is the single-ticket representation.
type TicketDetailResponse struct {
	TicketSummary
	Description     string            `json:"description"`
	CreatorID       string            `json:"creator_id"`
	FirstResponseAt *time.Time        `json:"first_response_at,omitempty"`
	ResolvedAt      *time.Time        `json:"resolved_at,omitempty"`
	ClosedAt        *time.Time        `json:"closed_at,omitempty"`
	Rating          *int              `json:"rating,omitempty"`
	Feedback        *string           `json:"feedback,omitempty"`
	Comments        []CommentResponse `json:"comments"`
}

// CommentResponse is one thread entry.
type CommentResponse struct {
	ID        string             `json:"id"`
	Kind      domain.CommentKind `json:"kind"`
	AuthorID  string             `json:"author_id"`
	Body      string             `json:"body"`
	CreatedAt time.Time          `json:"created_at"`
}

// IntervalResponse is one ledger row.
type IntervalResponse struct {
	Status          domain.TicketStatus `json:"status"`
	EnteredAt       time.Time           `json:"entered_at"`
	ExitedAt        *time.Time          `json:"exited_at,omitempty"`
	DurationSeconds *int64              `json:"duration_seconds,omitempty"`
	ChangedByID     *string             `json:"changed_by_id,omitempty"`
	Comment         string              `json:"comment,omitempty"`
}

// TimeReportResponse aggregates the ledger for one ticket.
type TimeReportResponse struct {
	TicketID             string             `json:"ticket_id"`
	PerStatusSeconds     map[string]int64   `json:"per_status_seconds"`
	ActiveSeconds        int64              `json:"active_seconds"`
	FirstResponseSeconds *int64             `json:"first_response_seconds,omitempty"`
	History              []IntervalResponse `json:"history"`
}
