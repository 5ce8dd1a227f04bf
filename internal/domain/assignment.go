package domain

import "time"

// AssignmentStatus tracks the one-way lifecycle of a hand-off.
type AssignmentStatus string

const (
	AssignmentStatusPending  AssignmentStatus = "PENDING"
	AssignmentStatusAccepted AssignmentStatus = "ACCEPTED"
	AssignmentStatusRejected AssignmentStatus = "REJECTED"
)

// DispatchMode controls who within the target receives the ticket.
type DispatchMode string

const (
	DispatchFirstAvailable DispatchMode = "FIRST_AVAILABLE"
	DispatchRoundRobin     DispatchMode = "ROUND_ROBIN"
	DispatchLeastLoaded    DispatchMode = "LEAST_LOADED"
	DispatchDirect         DispatchMode = "DIRECT"
)

// Assignment is a proposed or confirmed hand-off of a ticket to a support
// line or specialist. A ToUserID of nil means the open pool of the line.
// Status moves PENDING -> ACCEPTED | REJECTED and never back.
type Assignment struct {
	ID           string
	TicketID     string
	FromLineID   *string
	FromUserID   *string
	ToLineID     *string
	ToUserID     *string
	Mode         DispatchMode
	Status       AssignmentStatus
	Note         string
	RejectReason *string
	Version      int64
	CreatedAt    time.Time
	AcceptedAt   *time.Time
	RejectedAt   *time.Time
}

// Settled reports whether the assignment reached a terminal status.
func (a *Assignment) Settled() bool {
	return a.Status != AssignmentStatusPending
}
