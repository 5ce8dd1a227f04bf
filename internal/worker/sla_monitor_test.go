package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supportdesk/workflow-service/internal/domain"
	"github.com/supportdesk/workflow-service/internal/events"
	"github.com/supportdesk/workflow-service/internal/repository"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {}

func (d *recordingDispatcher) all() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]events.Event(nil), d.events...)
}

func seedTicket(t *testing.T, store *repository.MemoryStore, status domain.TicketStatus, deadline *time.Time, escalated bool) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		ID:          uuid.NewString(),
		ExternalKey: "WRK-" + uuid.NewString()[:8],
		CreatorID:   uuid.NewString(),
		Title:       "printer on fire",
		Status:      status,
		Priority:    domain.TicketPriorityHigh,
		SLADeadline: deadline,
		Escalated:   escalated,
		Version:     1,
	}
	if err := store.Repositories().Tickets.Create(context.Background(), ticket); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	return ticket
}

func TestSweepFlagsOverdueTickets(t *testing.T) {
	store := repository.NewMemoryStore()
	dispatcher := &recordingDispatcher{}
	uow := repository.NewMemoryUnitOfWork(store, dispatcher)

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	overdue := seedTicket(t, store, domain.TicketStatusOpen, &past, false)
	onTime := seedTicket(t, store, domain.TicketStatusOpen, &future, false)
	alreadyFlagged := seedTicket(t, store, domain.TicketStatusOpen, &past, true)
	resolved := seedTicket(t, store, domain.TicketStatusResolved, &past, false)
	noDeadline := seedTicket(t, store, domain.TicketStatusNew, nil, false)

	monitor := NewSLAMonitor(uow, zap.NewNop(), time.Minute)
	monitor.now = func() time.Time { return now }

	if err := monitor.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	repos := store.Repositories()
	ctx := context.Background()

	got, err := repos.Tickets.GetByID(ctx, overdue.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.Escalated {
		t.Fatal("overdue ticket not flagged escalated")
	}

	for _, id := range []string{onTime.ID, resolved.ID, noDeadline.ID} {
		ticket, err := repos.Tickets.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if ticket.Escalated {
			t.Fatalf("ticket %s flagged escalated unexpectedly", id)
		}
	}

	flushed := dispatcher.all()
	if len(flushed) != 1 {
		t.Fatalf("flushed %d events, want 1", len(flushed))
	}
	if flushed[0].Type != events.EventTicketUpdated || flushed[0].TicketID != overdue.ID {
		t.Fatalf("unexpected event %+v", flushed[0])
	}

	// A second sweep finds nothing new: the already-flagged ticket stays
	// flagged and emits no further events.
	if err := monitor.Sweep(context.Background()); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if len(dispatcher.all()) != 1 {
		t.Fatalf("second sweep emitted events, want none")
	}
	untouched, err := repos.Tickets.GetByID(ctx, alreadyFlagged.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if untouched.Version != alreadyFlagged.Version {
		t.Fatal("already-flagged ticket was rewritten")
	}
}

func TestSweepIgnoresEscalatedAndTerminal(t *testing.T) {
	store := repository.NewMemoryStore()
	uow := repository.NewMemoryUnitOfWork(store, &recordingDispatcher{})

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	closed := seedTicket(t, store, domain.TicketStatusClosed, &past, false)

	monitor := NewSLAMonitor(uow, zap.NewNop(), 0)
	monitor.now = func() time.Time { return now }

	if err := monitor.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	ticket, err := store.Repositories().Tickets.GetByID(context.Background(), closed.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if ticket.Escalated {
		t.Fatal("closed ticket flagged escalated")
	}
}
