package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Aggregator collects the raw mutation events produced during one unit of
// work and collapses them into a minimal set: at most one event per ticket,
// last write wins. A ticket_deleted event is a tombstone. Once recorded it
// is never superseded, and an incoming one always supersedes.
//
// One aggregator is constructed per inbound command and is confined to that
// command's goroutine; it is never shared or synchronized. The boundary
// wrapping the command flushes it exactly once on success and discards it
// unflushed on failure.
type Aggregator struct {
	order  []string
	events map[string]Event
}

// NewAggregator constructs an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{events: make(map[string]Event)}
}

// Add records an event, replacing any earlier event for the same ticket
// unless the tombstone rule keeps the stored one.
func (a *Aggregator) Add(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	stored, exists := a.events[event.TicketID]
	if !exists {
		a.order = append(a.order, event.TicketID)
		a.events[event.TicketID] = event
		return
	}
	if stored.Type == EventTicketDeleted && event.Type != EventTicketDeleted {
		return
	}
	a.events[event.TicketID] = event
}

// Len returns the number of retained events.
func (a *Aggregator) Len() int {
	return len(a.events)
}

// Events returns the retained events in first-insertion order without
// clearing them.
func (a *Aggregator) Events() []Event {
	result := make([]Event, 0, len(a.order))
	for _, ticketID := range a.order {
		result = append(result, a.events[ticketID])
	}
	return result
}

// Flush emits every retained event, in first-insertion order, to the
// outbound dispatcher. State is cleared unconditionally, even when a
// publish fails: delivery is best-effort after commit and callers must not
// replay a stale batch into a later unit of work. The first publish error
// is returned after the remaining events have been attempted.
func (a *Aggregator) Flush(ctx context.Context, dispatcher Dispatcher) error {
	var firstErr error
	for _, ticketID := range a.order {
		if err := dispatcher.Publish(ctx, a.events[ticketID]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.order = nil
	a.events = make(map[string]Event)
	return firstErr
}
