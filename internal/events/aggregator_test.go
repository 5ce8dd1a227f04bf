package events

import (
	"context"
	"errors"
	"testing"
)

// failOnDispatcher fails every publish for the named ticket and counts all
// attempts.
type failOnDispatcher struct {
	failTicketID string
	published    []Event
}

func (d *failOnDispatcher) Publish(ctx context.Context, event Event) error {
	if event.TicketID == d.failTicketID {
		return errors.New("broker unavailable")
	}
	d.published = append(d.published, event)
	return nil
}

func (d *failOnDispatcher) Subscribe(eventType EventType, handler EventHandler) {}

func collect(d Dispatcher) *[]Event {
	var got []Event
	for _, eventType := range []EventType{
		EventTicketCreated, EventTicketUpdated, EventTicketStatusChanged,
		EventTicketAssigned, EventTicketMessageSent, EventTicketRated, EventTicketDeleted,
	} {
		d.Subscribe(eventType, func(ctx context.Context, event Event) error {
			got = append(got, event)
			return nil
		})
	}
	return &got
}

func TestAggregatorLastWriteWins(t *testing.T) {
	agg := NewAggregator()
	agg.Add(Event{Type: EventTicketCreated, TicketID: "5"})
	agg.Add(Event{Type: EventTicketUpdated, TicketID: "5"})

	events := agg.Events()
	if len(events) != 1 {
		t.Fatalf("want 1 retained event, got %d", len(events))
	}
	if events[0].Type != EventTicketUpdated {
		t.Fatalf("want last write %s, got %s", EventTicketUpdated, events[0].Type)
	}
}

func TestAggregatorDeletedSupersedes(t *testing.T) {
	agg := NewAggregator()
	agg.Add(Event{Type: EventTicketUpdated, TicketID: "5"})
	agg.Add(Event{Type: EventTicketDeleted, TicketID: "5"})

	events := agg.Events()
	if len(events) != 1 || events[0].Type != EventTicketDeleted {
		t.Fatalf("want single deleted event, got %+v", events)
	}
}

func TestAggregatorDeletedNeverSuperseded(t *testing.T) {
	agg := NewAggregator()
	agg.Add(Event{Type: EventTicketDeleted, TicketID: "5"})
	agg.Add(Event{Type: EventTicketUpdated, TicketID: "5"})
	agg.Add(Event{Type: EventTicketStatusChanged, TicketID: "5"})

	events := agg.Events()
	if len(events) != 1 || events[0].Type != EventTicketDeleted {
		t.Fatalf("want deleted tombstone to survive, got %+v", events)
	}
}

func TestAggregatorFlushOrderAndClear(t *testing.T) {
	agg := NewAggregator()
	agg.Add(Event{Type: EventTicketCreated, TicketID: "a"})
	agg.Add(Event{Type: EventTicketCreated, TicketID: "b"})
	agg.Add(Event{Type: EventTicketStatusChanged, TicketID: "a"})
	agg.Add(Event{Type: EventTicketCreated, TicketID: "c"})

	dispatcher := NewInMemoryDispatcher()
	got := collect(dispatcher)
	if err := agg.Flush(context.Background(), dispatcher); err != nil {
		t.Fatalf("flush: %v", err)
	}

	wantOrder := []string{"a", "b", "c"}
	if len(*got) != len(wantOrder) {
		t.Fatalf("want %d events, got %d", len(wantOrder), len(*got))
	}
	for i, ticketID := range wantOrder {
		if (*got)[i].TicketID != ticketID {
			t.Errorf("position %d: want ticket %s, got %s", i, ticketID, (*got)[i].TicketID)
		}
	}
	if (*got)[0].Type != EventTicketStatusChanged {
		t.Errorf("ticket a: want replaced event type, got %s", (*got)[0].Type)
	}

	if agg.Len() != 0 {
		t.Fatalf("flush must clear state, %d events remain", agg.Len())
	}
	if err := agg.Flush(context.Background(), dispatcher); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if len(*got) != len(wantOrder) {
		t.Fatalf("second flush emitted events: %d total", len(*got))
	}
}

// A publish failure must not leave a half-flushed batch behind: the rest of
// the batch still goes out, state is cleared either way, and the error
// surfaces to the caller.
func TestAggregatorFlushClearsStateOnPublishError(t *testing.T) {
	agg := NewAggregator()
	agg.Add(Event{Type: EventTicketCreated, TicketID: "a"})
	agg.Add(Event{Type: EventTicketCreated, TicketID: "b"})
	agg.Add(Event{Type: EventTicketCreated, TicketID: "c"})

	dispatcher := &failOnDispatcher{failTicketID: "b"}
	if err := agg.Flush(context.Background(), dispatcher); err == nil {
		t.Fatal("flush must surface the publish error")
	}

	if len(dispatcher.published) != 2 {
		t.Fatalf("remaining events must still be attempted, got %d", len(dispatcher.published))
	}
	if agg.Len() != 0 {
		t.Fatalf("failed flush must clear state, %d events remain", agg.Len())
	}
	if err := agg.Flush(context.Background(), dispatcher); err != nil {
		t.Fatalf("flush after failure: %v", err)
	}
	if len(dispatcher.published) != 2 {
		t.Fatal("cleared batch must not be replayed")
	}
}

func TestAggregatorStampsIDAndTimestamp(t *testing.T) {
	agg := NewAggregator()
	agg.Add(Event{Type: EventTicketCreated, TicketID: "5"})
	event := agg.Events()[0]
	if event.ID == "" {
		t.Error("event ID not stamped")
	}
	if event.Timestamp.IsZero() {
		t.Error("event timestamp not stamped")
	}
}
