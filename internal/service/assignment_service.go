package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/supportdesk/workflow-service/internal/domain"
	"github.com/supportdesk/workflow-service/internal/events"
	"github.com/supportdesk/workflow-service/internal/repository"
	"github.com/supportdesk/workflow-service/internal/workflow"
)

// AssignmentService routes hand-offs between specialists and support lines.
type AssignmentService struct {
	uow          repository.UnitOfWork
	availability workflow.AvailabilityChecker
	logger       *zap.Logger

	now func() time.Time
}

// NewAssignmentService constructs the service. availability may be nil,
// in which case every line member is dispatch-eligible.
func NewAssignmentService(uow repository.UnitOfWork, availability workflow.AvailabilityChecker, logger *zap.Logger) *AssignmentService {
	return &AssignmentService{uow: uow, availability: availability, logger: logger, now: time.Now}
}

// AssignmentCreateInput describes a hand-off request.
type AssignmentCreateInput struct {
	TicketID string
	ToLineID *string
	ToUserID *string
	Mode     domain.DispatchMode
	Note     string
}

// Create validates the forwarding rules and creates a PENDING assignment.
func (s *AssignmentService) Create(ctx context.Context, actor *domain.User, input AssignmentCreateInput) (*domain.Assignment, error) {
	var assignment *domain.Assignment
	err := s.uow.Execute(ctx, func(ctx context.Context, repos repository.Repositories, agg *events.Aggregator) error {
		ticket, err := repos.Tickets.GetByID(ctx, input.TicketID)
		if err != nil {
			return err
		}
		router := s.router(repos, agg)
		assignment, err = router.CreateAssignment(ctx, ticket, workflow.CreateAssignmentInput{
			ToLineID: input.ToLineID,
			ToUserID: input.ToUserID,
			Mode:     input.Mode,
			Note:     input.Note,
		}, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("assignment created",
		zap.String("assignment_id", assignment.ID),
		zap.String("ticket_id", assignment.TicketID),
		zap.String("mode", string(assignment.Mode)))
	return assignment, nil
}

// Accept settles a pending assignment in the actor's favor.
func (s *AssignmentService) Accept(ctx context.Context, actor *domain.User, assignmentID string) (*domain.Assignment, error) {
	var assignment *domain.Assignment
	err := s.uow.Execute(ctx, func(ctx context.Context, repos repository.Repositories, agg *events.Aggregator) error {
		var err error
		assignment, err = s.router(repos, agg).AcceptAssignment(ctx, assignmentID, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// Reject settles a pending assignment with a reason.
func (s *AssignmentService) Reject(ctx context.Context, actor *domain.User, assignmentID, reason string) (*domain.Assignment, error) {
	var assignment *domain.Assignment
	err := s.uow.Execute(ctx, func(ctx context.Context, repos repository.Repositories, agg *events.Aggregator) error {
		var err error
		assignment, err = s.router(repos, agg).RejectAssignment(ctx, assignmentID, reason, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// ListByTicket returns the hand-off history of a ticket.
func (s *AssignmentService) ListByTicket(ctx context.Context, ticketID string) ([]domain.Assignment, error) {
	var assignments []domain.Assignment
	err := s.uow.Execute(ctx, func(ctx context.Context, repos repository.Repositories, agg *events.Aggregator) error {
		var err error
		assignments, err = repos.Assignments.ListByTicket(ctx, ticketID)
		return err
	})
	return assignments, err
}

func (s *AssignmentService) router(repos repository.Repositories, agg *events.Aggregator) *workflow.Router {
	machine := workflow.NewStateMachine(repos.Tickets, workflow.NewLedger(repos.Intervals, s.now), agg, s.now)
	return workflow.NewRouter(repos, machine, agg, s.availability, s.now)
}
