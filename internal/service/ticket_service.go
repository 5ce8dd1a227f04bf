package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supportdesk/workflow-service/internal/domain"
	"github.com/supportdesk/workflow-service/internal/events"
	"github.com/supportdesk/workflow-service/internal/observability"
	"github.com/supportdesk/workflow-service/internal/repository"
	"github.com/supportdesk/workflow-service/internal/workflow"
	apperrors "github.com/supportdesk/workflow-service/pkg/util"
)

// TicketService coordinates ticket commands. Every command runs inside one
// unit of work: the transition, its ledger intervals and the aggregated
// events commit or vanish together.
type TicketService struct {
	uow     repository.UnitOfWork
	logger  *zap.Logger
	metrics *observability.Metrics

	now func() time.Time
}

// NewTicketService constructs the service. metrics may be nil.
func NewTicketService(uow repository.UnitOfWork, logger *zap.Logger, metrics *observability.Metrics) *TicketService {
	return &TicketService{uow: uow, logger: logger, metrics: metrics, now: time.Now}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	LineID      *string
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	LineID      *string
	AssigneeID  *string
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TimeReport summarizes a ticket's ledger.
type TimeReport struct {
	TicketID      string
	PerStatus     map[domain.TicketStatus]time.Duration
	ActiveTime    time.Duration
	FirstResponse *time.Duration
	History       []domain.StatusInterval
}

// CreateTicket opens a new ticket in NEW with its first ledger interval and
// an SLA deadline derived from the priority.
func (s *TicketService) CreateTicket(ctx context.Context, creator *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}

	var ticket *domain.Ticket
	err := s.uow.Execute(ctx, func(ctx context.Context, repos repository.Repositories, agg *events.Aggregator) error {
		if input.LineID != nil {
			if _, err := repos.Lines.GetByID(ctx, *input.LineID); err != nil {
				return err
			}
		}

		now := s.now()
		deadline := now.Add(priority.SLAWindow())
		ticket = &domain.Ticket{
			ID:          uuid.NewString(),
			ExternalKey: generateTicketKey(),
			CreatorID:   creator.ID,
			LineID:      input.LineID,
			Title:       title,
			Description: strings.TrimSpace(input.Description),
			Status:      domain.TicketStatusNew,
			Priority:    priority,
			SLADeadline: &deadline,
			Version:     1,
			CreatedAt:   now,
		}
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return err
		}

		ledger := workflow.NewLedger(repos.Intervals, s.now)
		if err := ledger.RecordInitialStatus(ctx, ticket, creator.ID); err != nil {
			return err
		}

		agg.Add(events.Event{
			Type:     events.EventTicketCreated,
			TicketID: ticket.ID,
			ActorID:  creator.ID,
			Payload: events.TicketCreatedPayload{
				CreatorID: creator.ID,
				LineID:    ticket.LineID,
				Priority:  ticket.Priority,
				Title:     ticket.Title,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("external_key", ticket.ExternalKey),
		zap.String("priority", string(ticket.Priority)))
	return ticket, nil
}

// ChangeStatus applies one guarded transition to the ticket.
func (s *TicketService) ChangeStatus(ctx context.Context, actor *domain.User, ticketID string, target domain.TicketStatus, comment string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	var from domain.TicketStatus
	err := s.uow.Execute(ctx, func(ctx context.Context, repos repository.Repositories, agg *events.Aggregator) error {
		var err error
		ticket, err = repos.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		from = ticket.Status
		machine := workflow.NewStateMachine(repos.Tickets, workflow.NewLedger(repos.Intervals, s.now), agg, s.now)
		return machine.ChangeStatus(ctx, ticket, actor, target, comment)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition(string(from), string(target))
	return ticket, nil
}

// CancelTicket retires the ticket on the creator's behalf.
func (s *TicketService) CancelTicket(ctx context.Context, actor *domain.User, ticketID, reason string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.uow.Execute(ctx, func(ctx context.Context, repos repository.Repositories, agg *events.Aggregator) error {
		var err error
		ticket, err = repos.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		machine := workflow.NewStateMachine(repos.Tickets, workflow.NewLedger(repos.Intervals, s.now), agg, s.now)
		return machine.CancelTicket(ctx, ticket, actor, reason)
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// TakeTicket claims an unassigned ticket for the acting specialist.
func (s *TicketService) TakeTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.uow.Execute(ctx, func(ctx context.Context, repos repository.Repositories, agg *events.Aggregator) error {
		var err error
		ticket, err = repos.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		machine := workflow.NewStateMachine(repos.Tickets, workflow.NewLedger(repos.Intervals, s.now), agg, s.now)
		return machine.TakeTicket(ctx, ticket, actor)
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// RateTicket records the creator's satisfaction rating on a CLOSED ticket.
// A rating is written once and never overwritten.
func (s *TicketService) RateTicket(ctx context.Context, actor *domain.User, ticketID string, rating int, feedback string) (*domain.Ticket, error) {
	if rating < 1 || rating > 5 {
		return nil, apperrors.NewValidationError("rating must be between 1 and 5", map[string]any{"rating": rating})
	}
	var ticket *domain.Ticket
	err := s.uow.Execute(ctx, func(ctx context.Context, repos repository.Repositories, agg *events.Aggregator) error {
		var err error
		ticket, err = repos.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.CreatorID != actor.ID {
			return apperrors.NewAccessDenied("only the creator may rate a ticket")
		}
		if ticket.Status != domain.TicketStatusClosed {
			return apperrors.NewInvalidState("only closed tickets can be rated", map[string]any{"status": ticket.Status})
		}
		if ticket.Rating != nil {
			return apperrors.NewConflict("ticket already rated", map[string]any{"ticket_id": ticket.ID})
		}

		ticket.Rating = &rating
		feedback = strings.TrimSpace(feedback)
		if feedback != "" {
			ticket.Feedback = &feedback
		}
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		agg.Add(events.Event{
			Type:     events.EventTicketRated,
			TicketID: ticket.ID,
			ActorID:  actor.ID,
			Payload:  events.TicketRatedPayload{Rating: rating, Feedback: feedback},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// AddComment appends a thread entry. End users may only post public replies
// on their own tickets; internal notes take a specialist with access.
func (s *TicketService) AddComment(ctx context.Context, actor *domain.User, ticketID string, kind domain.CommentKind, body string) (*domain.TicketComment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("body required", nil)
	}
	if kind != domain.CommentKindPublicReply && kind != domain.CommentKindInternalNote {
		return nil, apperrors.NewValidationError("unknown comment kind", map[string]any{"kind": kind})
	}

	var comment *domain.TicketComment
	err := s.uow.Execute(ctx, func(ctx context.Context, repos repository.Repositories, agg *events.Aggregator) error {
		ticket, err := repos.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if !actor.IsSpecialist() {
			if ticket.CreatorID != actor.ID {
				return apperrors.NewAccessDenied("ticket belongs to another user")
			}
			if kind != domain.CommentKindPublicReply {
				return apperrors.NewAccessDenied("end users may only post public replies")
			}
		} else if !s.canAccess(actor, ticket) {
			return apperrors.NewAccessDenied("ticket outside your support line")
		}
		if ticket.Status.Terminal() {
			return apperrors.NewInvalidState("ticket thread is closed", map[string]any{"status": ticket.Status})
		}

		comment = &domain.TicketComment{
			ID:        uuid.NewString(),
			TicketID:  ticket.ID,
			AuthorID:  actor.ID,
			Kind:      kind,
			Body:      body,
			CreatedAt: s.now(),
		}
		if err := repos.Comments.Create(ctx, comment); err != nil {
			return err
		}
		agg.Add(events.Event{
			Type:     events.EventTicketMessageSent,
			TicketID: ticket.ID,
			ActorID:  actor.ID,
			Payload: events.MessageSentPayload{
				CommentID:   comment.ID,
				Kind:        comment.Kind,
				AuthorID:    comment.AuthorID,
				BodyPreview: stringPreview(comment.Body, 120),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// GetTicket fetches a ticket with its visible thread. Internal notes are
// filtered out for end users.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, []domain.TicketComment, error) {
	var ticket *domain.Ticket
	var comments []domain.TicketComment
	err := s.uow.Execute(ctx, func(ctx context.Context, repos repository.Repositories, agg *events.Aggregator) error {
		var err error
		ticket, err = repos.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if !s.canAccess(actor, ticket) {
			return apperrors.NewAccessDenied("ticket belongs to another user")
		}
		comments, err = repos.Comments.ListByTicket(ctx, ticket.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if !actor.IsSpecialist() {
		visible := make([]domain.TicketComment, 0, len(comments))
		for _, c := range comments {
			if c.Kind == domain.CommentKindInternalNote {
				continue
			}
			visible = append(visible, c)
		}
		comments = visible
	}
	return ticket, comments, nil
}

// ListTickets returns tickets scoped by the actor's role: end users see
// their own, specialists see their line plus their assignments, admins see
// everything the filter matches.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.User, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		Statuses:    filter.Statuses,
		Priorities:  filter.Priorities,
		LineID:      filter.LineID,
		AssigneeID:  filter.AssigneeID,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	switch {
	case actor.IsAdmin():
	case actor.IsSpecialist():
		if repoFilter.AssigneeID == nil {
			repoFilter.LineID = actor.LineID
		}
	default:
		creatorID := actor.ID
		repoFilter.CreatorID = &creatorID
	}

	var tickets []domain.Ticket
	err := s.uow.Execute(ctx, func(ctx context.Context, repos repository.Repositories, agg *events.Aggregator) error {
		var err error
		tickets, err = repos.Tickets.ListWithFilter(ctx, repoFilter)
		return err
	})
	return tickets, err
}

// TimeInStatusReport aggregates the ledger for one ticket.
func (s *TicketService) TimeInStatusReport(ctx context.Context, actor *domain.User, ticketID string) (*TimeReport, error) {
	report := &TimeReport{TicketID: ticketID, PerStatus: make(map[domain.TicketStatus]time.Duration)}
	err := s.uow.Execute(ctx, func(ctx context.Context, repos repository.Repositories, agg *events.Aggregator) error {
		ticket, err := repos.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if !s.canAccess(actor, ticket) {
			return apperrors.NewAccessDenied("ticket belongs to another user")
		}

		ledger := workflow.NewLedger(repos.Intervals, s.now)
		report.History, err = ledger.History(ctx, ticketID)
		if err != nil {
			return err
		}
		for _, interval := range report.History {
			if interval.Open() {
				continue
			}
			report.PerStatus[interval.Status] += time.Duration(*interval.DurationSeconds) * time.Second
		}
		report.ActiveTime, err = ledger.TotalActiveTime(ctx, ticketID)
		if err != nil {
			return err
		}
		report.FirstResponse, err = ledger.FirstResponseTime(ctx, ticketID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *TicketService) canAccess(actor *domain.User, ticket *domain.Ticket) bool {
	if actor.IsAdmin() {
		return true
	}
	if ticket.CreatorID == actor.ID {
		return true
	}
	if ticket.AssigneeID != nil && *ticket.AssigneeID == actor.ID {
		return true
	}
	if actor.IsSpecialist() && ticket.LineID != nil && actor.MemberOf(*ticket.LineID) {
		return true
	}
	return false
}

func generateTicketKey() string {
	return "WRK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
