package workflow

import (
	"context"
	"time"

	"github.com/supportdesk/workflow-service/internal/domain"
	"github.com/supportdesk/workflow-service/internal/events"
	"github.com/supportdesk/workflow-service/internal/repository"
	apperrors "github.com/supportdesk/workflow-service/pkg/util"
)

// allowedTransitions is the complete transition table. REJECTED and
// CANCELLED have no outgoing transitions.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusNew: {
		domain.TicketStatusOpen, domain.TicketStatusRejected, domain.TicketStatusCancelled,
	},
	domain.TicketStatusOpen: {
		domain.TicketStatusPending, domain.TicketStatusResolved, domain.TicketStatusEscalated,
	},
	domain.TicketStatusPending: {
		domain.TicketStatusOpen,
	},
	domain.TicketStatusEscalated: {
		domain.TicketStatusOpen, domain.TicketStatusPending, domain.TicketStatusResolved,
	},
	domain.TicketStatusResolved: {
		domain.TicketStatusPendingClosure, domain.TicketStatusReopened,
	},
	domain.TicketStatusPendingClosure: {
		domain.TicketStatusClosed, domain.TicketStatusReopened,
	},
	domain.TicketStatusClosed: {
		domain.TicketStatusReopened,
	},
	domain.TicketStatusReopened: {
		domain.TicketStatusOpen, domain.TicketStatusResolved, domain.TicketStatusPending,
		domain.TicketStatusEscalated, domain.TicketStatusCancelled,
	},
	domain.TicketStatusRejected:  {},
	domain.TicketStatusCancelled: {},
}

// TransitionAllowed consults the table in isolation from guards and side
// effects.
func TransitionAllowed(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// StateMachine validates and applies status transitions. Every successful
// transition closes and opens ledger intervals and emits a StatusChanged
// event into the aggregator.
type StateMachine struct {
	tickets repository.TicketRepository
	ledger  *Ledger
	agg     *events.Aggregator

	now func() time.Time
}

// NewStateMachine constructs a machine bound to one unit of work. A nil
// clock falls back to time.Now.
func NewStateMachine(tickets repository.TicketRepository, ledger *Ledger, agg *events.Aggregator, now func() time.Time) *StateMachine {
	if now == nil {
		now = time.Now
	}
	return &StateMachine{tickets: tickets, ledger: ledger, agg: agg, now: now}
}

// ChangeStatus applies one guarded transition. The authorization guard runs
// before the table: requesting PENDING_CLOSURE takes the current assignee
// or an admin, leaving PENDING_CLOSURE takes the creator or an admin, and
// everything else takes the assignee or an admin. Admins may force-close
// past the table; the side effects still apply.
func (m *StateMachine) ChangeStatus(ctx context.Context, ticket *domain.Ticket, actor *domain.User, target domain.TicketStatus, comment string) error {
	if err := m.authorize(ticket, actor, target); err != nil {
		return err
	}
	if !TransitionAllowed(ticket.Status, target) {
		if !(actor.IsAdmin() && target == domain.TicketStatusClosed) {
			return apperrors.NewInvalidTransition("status transition not permitted", map[string]any{
				"from": ticket.Status,
				"to":   target,
			})
		}
	}
	return m.apply(ctx, ticket, actor, target, comment)
}

// CancelTicket retires a ticket on the creator's behalf. It bypasses the
// table (any non-final status may be cancelled) but runs the same
// transition path, and additionally tombstones the ticket.
func (m *StateMachine) CancelTicket(ctx context.Context, ticket *domain.Ticket, actor *domain.User, reason string) error {
	if ticket.CreatorID != actor.ID {
		return apperrors.NewAccessDenied("only the creator may cancel a ticket")
	}
	switch ticket.Status {
	case domain.TicketStatusRejected, domain.TicketStatusCancelled, domain.TicketStatusClosed:
		return apperrors.NewInvalidState("ticket already final", map[string]any{"status": ticket.Status})
	}
	if err := m.apply(ctx, ticket, actor, domain.TicketStatusCancelled, reason); err != nil {
		return err
	}
	now := m.now()
	ticket.DeletedAt = &now
	if err := m.tickets.Update(ctx, ticket); err != nil {
		return err
	}
	m.agg.Add(events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload:  events.TicketDeletedPayload{Reason: reason},
	})
	return nil
}

// TakeTicket lets a specialist claim an unassigned ticket. When the ticket
// is still NEW the claim drives a NEW -> OPEN transition through the same
// guarded path, stamping the first-response timestamp once.
func (m *StateMachine) TakeTicket(ctx context.Context, ticket *domain.Ticket, specialist *domain.User) error {
	if !specialist.IsSpecialist() {
		return apperrors.NewInvalidArgument("actor is not a specialist", map[string]any{"user_id": specialist.ID})
	}
	if ticket.Assigned() {
		return apperrors.NewConflict("ticket already assigned", map[string]any{"ticket_id": ticket.ID})
	}
	if ticket.LineID != nil && !specialist.MemberOf(*ticket.LineID) && !specialist.IsAdmin() {
		return apperrors.NewAccessDenied("specialist is not a member of the ticket's support line")
	}

	assigneeID := specialist.ID
	ticket.AssigneeID = &assigneeID
	if err := m.tickets.Update(ctx, ticket); err != nil {
		return err
	}
	m.agg.Add(events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		ActorID:  specialist.ID,
		Payload:  events.TicketAssignedPayload{AssigneeID: ticket.AssigneeID, LineID: ticket.LineID},
	})

	if ticket.Status == domain.TicketStatusNew {
		return m.ChangeStatus(ctx, ticket, specialist, domain.TicketStatusOpen, "ticket taken")
	}
	return nil
}

func (m *StateMachine) authorize(ticket *domain.Ticket, actor *domain.User, target domain.TicketStatus) error {
	if actor.IsAdmin() {
		return nil
	}
	if target == domain.TicketStatusPendingClosure {
		if !m.isAssignee(ticket, actor) {
			return apperrors.NewAccessDenied("only the assignee may request closure")
		}
		return nil
	}
	if ticket.Status == domain.TicketStatusPendingClosure {
		if ticket.CreatorID != actor.ID {
			return apperrors.NewAccessDenied("only the creator may confirm or decline closure")
		}
		return nil
	}
	if !m.isAssignee(ticket, actor) {
		return apperrors.NewAccessDenied("only the assignee may change ticket status")
	}
	return nil
}

func (m *StateMachine) isAssignee(ticket *domain.Ticket, actor *domain.User) bool {
	return ticket.AssigneeID != nil && *ticket.AssigneeID == actor.ID
}

// apply mutates the ticket, records the ledger interval boundary and emits
// the StatusChanged event. Side effects are part of the same unit of work
// as the transition.
func (m *StateMachine) apply(ctx context.Context, ticket *domain.Ticket, actor *domain.User, target domain.TicketStatus, comment string) error {
	now := m.now()
	oldStatus := ticket.Status

	switch target {
	case domain.TicketStatusPendingClosure:
		requester := actor.ID
		ticket.ClosureRequestedBy = &requester
		ticket.ClosureRequestedAt = &now
	case domain.TicketStatusResolved:
		ticket.ResolvedAt = &now
	case domain.TicketStatusClosed:
		ticket.ClosedAt = &now
		ticket.ClosureRequestedBy = nil
		ticket.ClosureRequestedAt = nil
	case domain.TicketStatusReopened:
		ticket.ClosedAt = nil
		ticket.ResolvedAt = nil
		ticket.ClosureRequestedBy = nil
		ticket.ClosureRequestedAt = nil
	case domain.TicketStatusEscalated:
		ticket.Escalated = true
	case domain.TicketStatusOpen:
		if oldStatus == domain.TicketStatusNew && ticket.FirstResponseAt == nil {
			ticket.FirstResponseAt = &now
		}
	}

	ticket.Status = target
	if err := m.tickets.Update(ctx, ticket); err != nil {
		return err
	}
	if err := m.ledger.RecordStatusChange(ctx, ticket, target, actor.ID, comment); err != nil {
		return err
	}
	m.agg.Add(events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.StatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: target,
			Comment:   comment,
		},
	})
	return nil
}
