package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/supportdesk/workflow-service/internal/domain"
	"github.com/supportdesk/workflow-service/internal/repository"
	apperrors "github.com/supportdesk/workflow-service/pkg/util"
)

// activeStatuses are the "work in progress" statuses counted by
// TotalActiveTime.
var activeStatuses = map[domain.TicketStatus]bool{
	domain.TicketStatusOpen:      true,
	domain.TicketStatusPending:   true,
	domain.TicketStatusEscalated: true,
}

// Ledger is the append-only record of status intervals. For every ticket
// exactly one interval is open at any time; each transition closes it and
// opens a new one, so the sum of closed durations plus the live interval's
// elapsed time always equals the ticket's age.
type Ledger struct {
	intervals repository.IntervalRepository

	now func() time.Time
}

// NewLedger constructs the ledger over an interval repository. A nil clock
// falls back to time.Now.
func NewLedger(intervals repository.IntervalRepository, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{intervals: intervals, now: now}
}

// RecordInitialStatus opens the first interval at ticket creation time.
// There is no predecessor to close.
func (l *Ledger) RecordInitialStatus(ctx context.Context, ticket *domain.Ticket, actorID string) error {
	enteredAt := ticket.CreatedAt
	if enteredAt.IsZero() {
		enteredAt = l.now()
	}
	return l.intervals.Create(ctx, &domain.StatusInterval{
		ID:          uuid.NewString(),
		TicketID:    ticket.ID,
		Status:      ticket.Status,
		EnteredAt:   enteredAt,
		ChangedByID: &actorID,
	})
}

// RecordStatusChange closes the ticket's single open interval and opens a
// new one for newStatus. A missing open interval is an invariant violation
// (a bug, not a user error) and surfaces as DataIntegrity.
func (l *Ledger) RecordStatusChange(ctx context.Context, ticket *domain.Ticket, newStatus domain.TicketStatus, actorID string, comment string) error {
	open, err := l.intervals.FindOpen(ctx, ticket.ID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return apperrors.NewDataIntegrity("no open interval for ticket", map[string]any{"ticket_id": ticket.ID})
		}
		return err
	}

	now := l.now()
	duration := int64(now.Sub(open.EnteredAt) / time.Second)
	open.ExitedAt = &now
	open.DurationSeconds = &duration
	if err := l.intervals.Close(ctx, open); err != nil {
		return err
	}

	return l.intervals.Create(ctx, &domain.StatusInterval{
		ID:          uuid.NewString(),
		TicketID:    ticket.ID,
		Status:      newStatus,
		EnteredAt:   now,
		ChangedByID: &actorID,
		Comment:     comment,
	})
}

// TotalTimeInStatus sums the durations of closed intervals matching status.
// The open interval is not included even when it matches; callers needing
// "up to now" add the elapsed time themselves.
func (l *Ledger) TotalTimeInStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (time.Duration, error) {
	intervals, err := l.intervals.ListByTicket(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	var total time.Duration
	for _, interval := range intervals {
		if interval.Status == status && interval.DurationSeconds != nil {
			total += time.Duration(*interval.DurationSeconds) * time.Second
		}
	}
	return total, nil
}

// TotalActiveTime sums closed durations across the work-in-progress
// statuses (OPEN, PENDING, ESCALATED).
func (l *Ledger) TotalActiveTime(ctx context.Context, ticketID string) (time.Duration, error) {
	intervals, err := l.intervals.ListByTicket(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	var total time.Duration
	for _, interval := range intervals {
		if activeStatuses[interval.Status] && interval.DurationSeconds != nil {
			total += time.Duration(*interval.DurationSeconds) * time.Second
		}
	}
	return total, nil
}

// FirstResponseTime is the elapsed time between entering NEW and first
// entering OPEN. Returns nil if the ticket never reached OPEN.
func (l *Ledger) FirstResponseTime(ctx context.Context, ticketID string) (*time.Duration, error) {
	intervals, err := l.intervals.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	var newEntered, openEntered *time.Time
	for i := range intervals {
		switch intervals[i].Status {
		case domain.TicketStatusNew:
			if newEntered == nil {
				newEntered = &intervals[i].EnteredAt
			}
		case domain.TicketStatusOpen:
			if openEntered == nil {
				openEntered = &intervals[i].EnteredAt
			}
		}
	}
	if newEntered == nil || openEntered == nil {
		return nil, nil
	}
	elapsed := openEntered.Sub(*newEntered)
	return &elapsed, nil
}

// History returns the ticket's intervals in entry order.
func (l *Ledger) History(ctx context.Context, ticketID string) ([]domain.StatusInterval, error) {
	return l.intervals.ListByTicket(ctx, ticketID)
}
