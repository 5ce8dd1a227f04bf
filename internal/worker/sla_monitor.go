package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/supportdesk/workflow-service/internal/domain"
	"github.com/supportdesk/workflow-service/internal/events"
	"github.com/supportdesk/workflow-service/internal/repository"
)

// sweepBatchSize bounds how many candidate tickets a single sweep loads.
// Anything left over is picked up on the next tick.
const sweepBatchSize = 500

// SLAMonitor periodically scans for tickets past their SLA deadline that
// are still unresolved and flags them as escalated.
type SLAMonitor struct {
	uow      repository.UnitOfWork
	logger   *zap.Logger
	interval time.Duration

	now func() time.Time
}

// NewSLAMonitor constructs the monitor.
func NewSLAMonitor(uow repository.UnitOfWork, logger *zap.Logger, interval time.Duration) *SLAMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SLAMonitor{uow: uow, logger: logger, interval: interval, now: time.Now}
}

// Run blocks until the context is cancelled, sweeping on each tick.
func (m *SLAMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				m.logger.Error("sla sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep flags overdue tickets. Tickets already escalated or in a resting
// status are left alone.
func (m *SLAMonitor) Sweep(ctx context.Context) error {
	return m.uow.Execute(ctx, func(ctx context.Context, repos repository.Repositories, agg *events.Aggregator) error {
		tickets, err := repos.Tickets.ListWithFilter(ctx, repository.TicketFilter{
			Statuses: []domain.TicketStatus{
				domain.TicketStatusNew, domain.TicketStatusOpen, domain.TicketStatusReopened,
			},
			Limit: sweepBatchSize,
		})
		if err != nil {
			return err
		}
		now := m.now()
		for i := range tickets {
			ticket := &tickets[i]
			if ticket.Escalated || ticket.SLADeadline == nil || now.Before(*ticket.SLADeadline) {
				continue
			}
			ticket.Escalated = true
			if err := repos.Tickets.Update(ctx, ticket); err != nil {
				return err
			}
			m.logger.Warn("sla deadline breached",
				zap.String("ticket_id", ticket.ID),
				zap.String("priority", string(ticket.Priority)),
				zap.Time("deadline", *ticket.SLADeadline))
			agg.Add(events.Event{
				Type:     events.EventTicketUpdated,
				TicketID: ticket.ID,
				Payload: events.TicketUpdatedPayload{Fields: map[string]any{
					"escalated": true,
					"reason":    "sla_deadline_breached",
				}},
			})
		}
		return nil
	})
}
