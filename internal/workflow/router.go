package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/supportdesk/workflow-service/internal/domain"
	"github.com/supportdesk/workflow-service/internal/events"
	"github.com/supportdesk/workflow-service/internal/repository"
	apperrors "github.com/supportdesk/workflow-service/pkg/util"
)

// forwardTargets is the escalation forwarding graph: the line roles each
// role may hand tickets to. Administrators bypass the graph entirely.
var forwardTargets = map[domain.LineRole][]domain.LineRole{
	domain.LineRoleFirstLine:   {domain.LineRoleSecondLine, domain.LineRoleOneCSupport},
	domain.LineRoleSecondLine:  {domain.LineRoleOneCSupport, domain.LineRoleDeveloper},
	domain.LineRoleOneCSupport: {domain.LineRoleSecondLine, domain.LineRoleDeveloper},
	domain.LineRoleDeveloper: {
		domain.LineRoleFirstLine, domain.LineRoleSecondLine,
		domain.LineRoleOneCSupport, domain.LineRoleDeveloper,
	},
}

// CanForward consults the forwarding graph.
func CanForward(from, to domain.LineRole) bool {
	for _, candidate := range forwardTargets[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// AvailabilityChecker reports whether a specialist is currently accepting
// assignments. The data is owned by a collaborator service; a nil checker
// treats everyone as available.
type AvailabilityChecker interface {
	IsAvailable(ctx context.Context, userID string) (bool, error)
}

// CreateAssignmentInput names the destination of a hand-off.
type CreateAssignmentInput struct {
	ToLineID *string
	ToUserID *string
	Mode     domain.DispatchMode
	Note     string
}

// Router creates, accepts and rejects hand-offs between specialists and
// support lines, enforcing the forwarding graph and the dispatch modes.
type Router struct {
	tickets      repository.TicketRepository
	assignments  repository.AssignmentRepository
	lines        repository.LineRepository
	users        repository.UserRepository
	machine      *StateMachine
	agg          *events.Aggregator
	availability AvailabilityChecker

	now func() time.Time
}

// NewRouter constructs a router bound to one unit of work. A nil clock
// falls back to time.Now.
func NewRouter(repos repository.Repositories, machine *StateMachine, agg *events.Aggregator, availability AvailabilityChecker, now func() time.Time) *Router {
	if now == nil {
		now = time.Now
	}
	return &Router{
		tickets:      repos.Tickets,
		assignments:  repos.Assignments,
		lines:        repos.Lines,
		users:        repos.Users,
		machine:      machine,
		agg:          agg,
		availability: availability,
		now:          now,
	}
}

// CreateAssignment validates the destination against the forwarding graph
// and creates a PENDING assignment. The dispatch mode decides who within
// the target receives the ticket: FIRST_AVAILABLE leaves the assignee for
// any line member to claim, DIRECT pins the named specialist, ROUND_ROBIN
// and LEAST_LOADED pick a line member and then behave like DIRECT.
func (r *Router) CreateAssignment(ctx context.Context, ticket *domain.Ticket, input CreateAssignmentInput, actor *domain.User) (*domain.Assignment, error) {
	if input.ToLineID == nil && input.ToUserID == nil {
		return nil, apperrors.NewInvalidArgument("assignment needs a target line or specialist", nil)
	}
	if input.Mode == "" {
		input.Mode = domain.DispatchFirstAvailable
	}

	var targetLine *domain.SupportLine
	var targetUser *domain.User
	var err error

	if input.ToUserID != nil {
		targetUser, err = r.users.GetByID(ctx, *input.ToUserID)
		if err != nil {
			return nil, err
		}
		if !targetUser.IsSpecialist() {
			return nil, apperrors.NewInvalidArgument("target user is not a specialist", map[string]any{"user_id": targetUser.ID})
		}
	}
	if input.ToLineID != nil {
		targetLine, err = r.lines.GetByID(ctx, *input.ToLineID)
		if err != nil {
			return nil, err
		}
		if targetUser != nil && !targetUser.MemberOf(targetLine.ID) {
			return nil, apperrors.NewInvalidArgument("specialist is not a member of the target line", map[string]any{
				"user_id": targetUser.ID,
				"line_id": targetLine.ID,
			})
		}
	}
	if targetLine == nil {
		// Direct hand-off to a specialist routes through their own line.
		if targetUser.LineID == nil {
			return nil, apperrors.NewInvalidArgument("target specialist has no support line", map[string]any{"user_id": targetUser.ID})
		}
		targetLine, err = r.lines.GetByID(ctx, *targetUser.LineID)
		if err != nil {
			return nil, err
		}
	}

	if err := r.checkForwarding(ctx, actor, targetLine); err != nil {
		return nil, err
	}

	assignment := &domain.Assignment{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		FromUserID: &actor.ID,
		FromLineID: actor.LineID,
		ToLineID:   &targetLine.ID,
		ToUserID:   input.ToUserID,
		Mode:       input.Mode,
		Status:     domain.AssignmentStatusPending,
		Note:       input.Note,
		Version:    1,
	}

	switch input.Mode {
	case domain.DispatchDirect:
		if targetUser == nil {
			return nil, apperrors.NewInvalidArgument("DIRECT dispatch needs a target specialist", nil)
		}
	case domain.DispatchRoundRobin:
		targetUser, err = r.pickRoundRobin(ctx, targetLine)
		if err != nil {
			return nil, err
		}
		assignment.ToUserID = &targetUser.ID
	case domain.DispatchLeastLoaded:
		targetUser, err = r.pickLeastLoaded(ctx, targetLine)
		if err != nil {
			return nil, err
		}
		assignment.ToUserID = &targetUser.ID
	case domain.DispatchFirstAvailable:
		targetUser = nil
		assignment.ToUserID = nil
	default:
		return nil, apperrors.NewInvalidArgument("unknown dispatch mode", map[string]any{"mode": input.Mode})
	}

	if err := r.assignments.Create(ctx, assignment); err != nil {
		return nil, err
	}

	// Forwarding to a different line marks the ticket escalated.
	if ticket.LineID == nil || *ticket.LineID != targetLine.ID {
		if ticket.LineID != nil {
			ticket.Escalated = true
		}
		ticket.LineID = &targetLine.ID
	}
	if targetUser != nil {
		ticket.AssigneeID = &targetUser.ID
	} else {
		ticket.AssigneeID = nil
	}
	if err := r.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	r.agg.Add(events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.TicketAssignedPayload{
			AssignmentID: assignment.ID,
			AssigneeID:   assignment.ToUserID,
			LineID:       assignment.ToLineID,
			Mode:         assignment.Mode,
			Status:       assignment.Status,
		},
	})
	return assignment, nil
}

// AcceptAssignment settles a PENDING assignment. The accepting actor
// becomes the ticket's assignee unless the dispatch mode already pinned
// one, and a ticket still in NEW is driven to OPEN.
func (r *Router) AcceptAssignment(ctx context.Context, id string, actor *domain.User) (*domain.Assignment, error) {
	assignment, err := r.assignments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if assignment.Settled() {
		return nil, apperrors.NewConflict("assignment already settled", map[string]any{
			"assignment_id": assignment.ID,
			"status":        assignment.Status,
		})
	}
	if assignment.ToUserID != nil && *assignment.ToUserID != actor.ID && !actor.IsAdmin() {
		return nil, apperrors.NewAccessDenied("assignment is addressed to another specialist")
	}

	now := r.now()
	assignment.Status = domain.AssignmentStatusAccepted
	assignment.AcceptedAt = &now
	if assignment.ToUserID == nil {
		assignment.ToUserID = &actor.ID
	}
	if err := r.assignments.Update(ctx, assignment); err != nil {
		return nil, err
	}

	ticket, err := r.tickets.GetByID(ctx, assignment.TicketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Assigned() {
		ticket.AssigneeID = assignment.ToUserID
		if err := r.tickets.Update(ctx, ticket); err != nil {
			return nil, err
		}
	}
	if ticket.Status == domain.TicketStatusNew {
		if err := r.machine.ChangeStatus(ctx, ticket, actor, domain.TicketStatusOpen, "assignment accepted"); err != nil {
			return nil, err
		}
	}

	r.agg.Add(events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.TicketAssignedPayload{
			AssignmentID: assignment.ID,
			AssigneeID:   assignment.ToUserID,
			LineID:       assignment.ToLineID,
			Mode:         assignment.Mode,
			Status:       assignment.Status,
		},
	})
	return assignment, nil
}

// RejectAssignment settles a PENDING assignment without touching the
// ticket's current assignee.
func (r *Router) RejectAssignment(ctx context.Context, id string, reason string, actor *domain.User) (*domain.Assignment, error) {
	assignment, err := r.assignments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if assignment.Settled() {
		return nil, apperrors.NewConflict("assignment already settled", map[string]any{
			"assignment_id": assignment.ID,
			"status":        assignment.Status,
		})
	}

	now := r.now()
	assignment.Status = domain.AssignmentStatusRejected
	assignment.RejectedAt = &now
	assignment.RejectReason = &reason
	if err := r.assignments.Update(ctx, assignment); err != nil {
		return nil, err
	}

	r.agg.Add(events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: assignment.TicketID,
		ActorID:  actor.ID,
		Payload: events.TicketUpdatedPayload{Fields: map[string]any{
			"assignment_id": assignment.ID,
			"status":        assignment.Status,
			"reason":        reason,
		}},
	})
	return assignment, nil
}

func (r *Router) checkForwarding(ctx context.Context, actor *domain.User, targetLine *domain.SupportLine) error {
	if actor.IsAdmin() {
		return nil
	}
	if !actor.IsSpecialist() {
		return apperrors.NewAccessDenied("only specialists may create assignments")
	}
	if actor.LineID == nil {
		return apperrors.NewAccessDenied("actor has no support line to forward from")
	}
	fromLine, err := r.lines.GetByID(ctx, *actor.LineID)
	if err != nil {
		return err
	}
	if !CanForward(fromLine.Role, targetLine.Role) {
		return apperrors.NewAccessDenied("forwarding from " + string(fromLine.Role) + " to " + string(targetLine.Role) + " is not allowed")
	}
	return nil
}

// pickRoundRobin rotates the line's persisted cursor over its member set.
// The cursor points at the next member to receive work, so a fresh line
// starts at member zero.
func (r *Router) pickRoundRobin(ctx context.Context, line *domain.SupportLine) (*domain.User, error) {
	members, err := r.eligibleMembers(ctx, line)
	if err != nil {
		return nil, err
	}
	index := line.LastAssignedIndex % len(members)
	line.LastAssignedIndex = (index + 1) % len(members)
	if err := r.lines.Update(ctx, line); err != nil {
		return nil, err
	}
	return &members[index], nil
}

// pickLeastLoaded compares candidates by their count of currently assigned
// non-terminal tickets.
func (r *Router) pickLeastLoaded(ctx context.Context, line *domain.SupportLine) (*domain.User, error) {
	members, err := r.eligibleMembers(ctx, line)
	if err != nil {
		return nil, err
	}
	var chosen *domain.User
	best := -1
	for i := range members {
		load, err := r.tickets.CountActiveByAssignee(ctx, members[i].ID)
		if err != nil {
			return nil, err
		}
		if best == -1 || load < best {
			best = load
			chosen = &members[i]
		}
	}
	return chosen, nil
}

func (r *Router) eligibleMembers(ctx context.Context, line *domain.SupportLine) ([]domain.User, error) {
	members, err := r.users.ListByLine(ctx, line.ID)
	if err != nil {
		return nil, err
	}
	if r.availability != nil {
		eligible := members[:0]
		for _, member := range members {
			available, err := r.availability.IsAvailable(ctx, member.ID)
			if err != nil {
				return nil, err
			}
			if available {
				eligible = append(eligible, member)
			}
		}
		members = eligible
	}
	if len(members) == 0 {
		return nil, apperrors.NewConflict("no eligible specialists in line", map[string]any{"line_id": line.ID})
	}
	return members, nil
}
