package dto

import (
	"time"

	"github.com/supportdesk/workflow-service/internal/domain"
)

// CreateAssignmentRequest asks for a hand-off.
type CreateAssignmentRequest struct {
	ToLineID *string             `json:"to_line_id"`
	ToUserID *string             `json:"to_user_id"`
	Mode     domain.DispatchMode `json:"mode"`
	Note     string              `json:"note"`
}

// RejectAssignmentRequest declines a pending hand-off.
type RejectAssignmentRequest struct {
	Reason string `json:"reason"`
}

// AssignmentResponse is the wire representation of a hand-off.
type AssignmentResponse struct {
	ID           string                  `json:"id"`
	TicketID     string                  `json:"ticket_id"`
	FromUserID   *string                 `json:"from_user_id,omitempty"`
	FromLineID   *string                 `json:"from_line_id,omitempty"`
	ToLineID     *string                 `json:"to_line_id,omitempty"`
	ToUserID     *string                 `json:"to_user_id,omitempty"`
	Mode         domain.DispatchMode     `json:"mode"`
	Status       domain.AssignmentStatus `json:"status"`
	Note         string                  `json:"note,omitempty"`
	RejectReason *string                 `json:"reject_reason,omitempty"`
	AcceptedAt   *time.Time              `json:"accepted_at,omitempty"`
	RejectedAt   *time.Time              `json:"rejected_at,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
}
