package domain

import "time"

// StatusInterval is one append-only ledger entry: the time a ticket spent
// in a single status. Exactly one interval per ticket is open (ExitedAt
// nil) at any time. DurationSeconds is filled only when the interval is
// closed; intervals are never otherwise mutated.
type StatusInterval struct {
	ID              string
	TicketID        string
	Status          TicketStatus
	EnteredAt       time.Time
	ExitedAt        *time.Time
	DurationSeconds *int64
	ChangedByID     *string
	Comment         string
}

// Open reports whether the interval is the ticket's current one.
func (i *StatusInterval) Open() bool {
	return i.ExitedAt == nil
}
