package domain

import "time"

// TicketStatus enumerates workflow states for tickets.
type TicketStatus string

const (
	TicketStatusNew            TicketStatus = "NEW"
	TicketStatusOpen           TicketStatus = "OPEN"
	TicketStatusPending        TicketStatus = "PENDING"
	TicketStatusEscalated      TicketStatus = "ESCALATED"
	TicketStatusResolved       TicketStatus = "RESOLVED"
	TicketStatusPendingClosure TicketStatus = "PENDING_CLOSURE"
	TicketStatusClosed         TicketStatus = "CLOSED"
	TicketStatusReopened       TicketStatus = "REOPENED"
	TicketStatusRejected       TicketStatus = "REJECTED"
	TicketStatusCancelled      TicketStatus = "CANCELLED"
)

// Terminal reports whether the status has no outgoing transitions.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusRejected || s == TicketStatusCancelled
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// SLAWindow returns the resolution window granted for the priority.
func (p TicketPriority) SLAWindow() time.Duration {
	switch p {
	case TicketPriorityUrgent:
		return 4 * time.Hour
	case TicketPriorityHigh:
		return 8 * time.Hour
	case TicketPriorityLow:
		return 72 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Ticket is the aggregate for support requests. References to the creator,
// assignee and support line are plain identifiers resolved on demand.
// Version is bumped on every write and compared-and-swapped by the
// persistence layer for optimistic concurrency.
type Ticket struct {
	ID                 string
	ExternalKey        string
	CreatorID          string
	AssigneeID         *string
	LineID             *string
	Title              string
	Description        string
	Status             TicketStatus
	Priority           TicketPriority
	SLADeadline        *time.Time
	FirstResponseAt    *time.Time
	ResolvedAt         *time.Time
	ClosedAt           *time.Time
	ClosureRequestedBy *string
	ClosureRequestedAt *time.Time
	Escalated          bool
	Rating             *int
	Feedback           *string
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time
}

// Assigned reports whether the ticket currently has an assignee.
func (t *Ticket) Assigned() bool {
	return t.AssigneeID != nil && *t.AssigneeID != ""
}
