package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/supportdesk/workflow-service/internal/domain"
	"github.com/supportdesk/workflow-service/internal/events"
	"github.com/supportdesk/workflow-service/internal/repository"
	apperrors "github.com/supportdesk/workflow-service/pkg/util"
)

type machineEnv struct {
	clock   *testClock
	store   *repository.MemoryStore
	repos   repository.Repositories
	ledger  *Ledger
	agg     *events.Aggregator
	machine *StateMachine
}

func newMachineEnv(t *testing.T) *machineEnv {
	t.Helper()
	clock := newTestClock()
	store := repository.NewMemoryStore()
	store.Now = clock.Now
	repos := store.Repositories()
	ledger := NewLedger(repos.Intervals, clock.Now)
	agg := events.NewAggregator()
	machine := NewStateMachine(repos.Tickets, ledger, agg, clock.Now)
	return &machineEnv{clock: clock, store: store, repos: repos, ledger: ledger, agg: agg, machine: machine}
}

func (e *machineEnv) user(role domain.UserRole, lineID *string) *domain.User {
	user := &domain.User{
		ID:     uuid.NewString(),
		Name:   string(role),
		Email:  uuid.NewString() + "@example.com",
		Role:   role,
		LineID: lineID,
		Active: true,
	}
	e.store.SeedUser(*user)
	return user
}

func (e *machineEnv) newTicket(t *testing.T, creator *domain.User) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket := &domain.Ticket{
		ID:        uuid.NewString(),
		CreatorID: creator.ID,
		Title:     "printer on fire",
		Status:    domain.TicketStatusNew,
		Priority:  domain.TicketPriorityMedium,
		Version:   1,
		CreatedAt: e.clock.Now(),
	}
	if err := e.repos.Tickets.Create(ctx, ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	if err := e.ledger.RecordInitialStatus(ctx, ticket, creator.ID); err != nil {
		t.Fatalf("record initial: %v", err)
	}
	return ticket
}

// driveTo walks an OPEN ticket to the wanted status through legal
// transitions.
func (e *machineEnv) driveTo(t *testing.T, ticket *domain.Ticket, assignee *domain.User, target domain.TicketStatus) {
	t.Helper()
	ctx := context.Background()
	paths := map[domain.TicketStatus][]domain.TicketStatus{
		domain.TicketStatusPending:        {domain.TicketStatusPending},
		domain.TicketStatusEscalated:      {domain.TicketStatusEscalated},
		domain.TicketStatusResolved:       {domain.TicketStatusResolved},
		domain.TicketStatusPendingClosure: {domain.TicketStatusResolved, domain.TicketStatusPendingClosure},
	}
	for _, step := range paths[target] {
		if err := e.machine.ChangeStatus(ctx, ticket, assignee, step, ""); err != nil {
			t.Fatalf("drive to %s via %s: %v", target, step, err)
		}
	}
}

func TestTransitionTable(t *testing.T) {
	all := []domain.TicketStatus{
		domain.TicketStatusNew, domain.TicketStatusOpen, domain.TicketStatusPending,
		domain.TicketStatusEscalated, domain.TicketStatusResolved, domain.TicketStatusPendingClosure,
		domain.TicketStatusClosed, domain.TicketStatusReopened, domain.TicketStatusRejected,
		domain.TicketStatusCancelled,
	}
	allowed := map[domain.TicketStatus][]domain.TicketStatus{
		domain.TicketStatusNew:            {domain.TicketStatusOpen, domain.TicketStatusRejected, domain.TicketStatusCancelled},
		domain.TicketStatusOpen:           {domain.TicketStatusPending, domain.TicketStatusResolved, domain.TicketStatusEscalated},
		domain.TicketStatusPending:        {domain.TicketStatusOpen},
		domain.TicketStatusEscalated:      {domain.TicketStatusOpen, domain.TicketStatusPending, domain.TicketStatusResolved},
		domain.TicketStatusResolved:       {domain.TicketStatusPendingClosure, domain.TicketStatusReopened},
		domain.TicketStatusPendingClosure: {domain.TicketStatusClosed, domain.TicketStatusReopened},
		domain.TicketStatusClosed:         {domain.TicketStatusReopened},
		domain.TicketStatusReopened:       {domain.TicketStatusOpen, domain.TicketStatusResolved, domain.TicketStatusPending, domain.TicketStatusEscalated, domain.TicketStatusCancelled},
	}
	for _, from := range all {
		want := allowed[from]
		for _, to := range all {
			expected := false
			for _, candidate := range want {
				if candidate == to {
					expected = true
				}
			}
			if got := TransitionAllowed(from, to); got != expected {
				t.Errorf("%s -> %s: want %v, got %v", from, to, expected, got)
			}
		}
	}
}

func TestChangeStatusInvalidTransitionWritesNoInterval(t *testing.T) {
	ctx := context.Background()
	env := newMachineEnv(t)
	creator := env.user(domain.UserRoleEndUser, nil)
	specialist := env.user(domain.UserRoleSpecialist, nil)
	ticket := env.newTicket(t, creator)
	assigneeID := specialist.ID
	ticket.AssigneeID = &assigneeID
	if err := env.repos.Tickets.Update(ctx, ticket); err != nil {
		t.Fatalf("assign: %v", err)
	}

	err := env.machine.ChangeStatus(ctx, ticket, specialist, domain.TicketStatusResolved, "")
	if !apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("NEW -> RESOLVED: want INVALID_TRANSITION, got %v", err)
	}

	intervals, _ := env.ledger.History(ctx, ticket.ID)
	if len(intervals) != 1 {
		t.Fatalf("failed transition must not touch the ledger, got %d intervals", len(intervals))
	}
	if env.agg.Len() != 0 {
		t.Fatalf("failed transition must not emit events")
	}
}

func TestChangeStatusGuardBeforeTable(t *testing.T) {
	ctx := context.Background()
	env := newMachineEnv(t)
	creator := env.user(domain.UserRoleEndUser, nil)
	specialist := env.user(domain.UserRoleSpecialist, nil)
	ticket := env.newTicket(t, creator)
	if err := env.machine.TakeTicket(ctx, ticket, specialist); err != nil {
		t.Fatalf("take: %v", err)
	}
	env.driveTo(t, ticket, specialist, domain.TicketStatusResolved)

	// RESOLVED -> PENDING_CLOSURE is in the table, but the creator may not
	// request closure; the guard runs first.
	err := env.machine.ChangeStatus(ctx, ticket, creator, domain.TicketStatusPendingClosure, "")
	if !apperrors.HasCode(err, apperrors.CodeAccessDenied) {
		t.Fatalf("creator requesting closure: want ACCESS_DENIED, got %v", err)
	}
}

func TestClosureHandshake(t *testing.T) {
	ctx := context.Background()
	env := newMachineEnv(t)
	creator := env.user(domain.UserRoleEndUser, nil)
	specialist := env.user(domain.UserRoleSpecialist, nil)
	ticket := env.newTicket(t, creator)
	if err := env.machine.TakeTicket(ctx, ticket, specialist); err != nil {
		t.Fatalf("take: %v", err)
	}
	env.driveTo(t, ticket, specialist, domain.TicketStatusResolved)
	if ticket.ResolvedAt == nil {
		t.Fatal("resolvedAt not stamped")
	}

	if err := env.machine.ChangeStatus(ctx, ticket, specialist, domain.TicketStatusPendingClosure, ""); err != nil {
		t.Fatalf("assignee requests closure: %v", err)
	}
	if ticket.ClosureRequestedBy == nil || *ticket.ClosureRequestedBy != specialist.ID {
		t.Fatal("closure requester not recorded")
	}

	// Only the creator (or admin) may leave PENDING_CLOSURE.
	err := env.machine.ChangeStatus(ctx, ticket, specialist, domain.TicketStatusClosed, "")
	if !apperrors.HasCode(err, apperrors.CodeAccessDenied) {
		t.Fatalf("assignee confirming closure: want ACCESS_DENIED, got %v", err)
	}

	if err := env.machine.ChangeStatus(ctx, ticket, creator, domain.TicketStatusClosed, ""); err != nil {
		t.Fatalf("creator confirms closure: %v", err)
	}
	if ticket.ClosedAt == nil {
		t.Fatal("closedAt not stamped")
	}
	if ticket.ClosureRequestedBy != nil || ticket.ClosureRequestedAt != nil {
		t.Fatal("closure-request fields not cleared on close")
	}
}

func TestReopenClearsResolutionFields(t *testing.T) {
	ctx := context.Background()
	env := newMachineEnv(t)
	creator := env.user(domain.UserRoleEndUser, nil)
	specialist := env.user(domain.UserRoleSpecialist, nil)
	admin := env.user(domain.UserRoleAdmin, nil)
	ticket := env.newTicket(t, creator)
	if err := env.machine.TakeTicket(ctx, ticket, specialist); err != nil {
		t.Fatalf("take: %v", err)
	}
	env.driveTo(t, ticket, specialist, domain.TicketStatusPendingClosure)
	if err := env.machine.ChangeStatus(ctx, ticket, creator, domain.TicketStatusClosed, ""); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := env.machine.ChangeStatus(ctx, ticket, admin, domain.TicketStatusReopened, "customer called back"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if ticket.ClosedAt != nil || ticket.ResolvedAt != nil || ticket.ClosureRequestedBy != nil {
		t.Fatal("reopen must fully reactivate the ticket")
	}
}

func TestAdminForceClose(t *testing.T) {
	ctx := context.Background()
	env := newMachineEnv(t)
	creator := env.user(domain.UserRoleEndUser, nil)
	specialist := env.user(domain.UserRoleSpecialist, nil)
	admin := env.user(domain.UserRoleAdmin, nil)
	ticket := env.newTicket(t, creator)
	if err := env.machine.TakeTicket(ctx, ticket, specialist); err != nil {
		t.Fatalf("take: %v", err)
	}

	// OPEN -> CLOSED is not in the table; only the admin override allows it.
	err := env.machine.ChangeStatus(ctx, ticket, specialist, domain.TicketStatusClosed, "")
	if !apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("specialist force-close: want INVALID_TRANSITION, got %v", err)
	}
	if err := env.machine.ChangeStatus(ctx, ticket, admin, domain.TicketStatusClosed, "force"); err != nil {
		t.Fatalf("admin force-close: %v", err)
	}
	if ticket.ClosedAt == nil {
		t.Fatal("force-close must still run side effects")
	}
}

func TestCancelTicket(t *testing.T) {
	ctx := context.Background()
	env := newMachineEnv(t)
	creator := env.user(domain.UserRoleEndUser, nil)
	other := env.user(domain.UserRoleEndUser, nil)
	ticket := env.newTicket(t, creator)

	err := env.machine.CancelTicket(ctx, ticket, other, "not mine")
	if !apperrors.HasCode(err, apperrors.CodeAccessDenied) {
		t.Fatalf("non-creator cancel: want ACCESS_DENIED, got %v", err)
	}

	if err := env.machine.CancelTicket(ctx, ticket, creator, "fixed it myself"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if ticket.Status != domain.TicketStatusCancelled {
		t.Fatalf("want CANCELLED, got %s", ticket.Status)
	}
	if ticket.DeletedAt == nil {
		t.Fatal("cancel must tombstone the ticket")
	}

	err = env.machine.CancelTicket(ctx, ticket, creator, "again")
	if !apperrors.HasCode(err, apperrors.CodeInvalidState) {
		t.Fatalf("cancel of terminal ticket: want INVALID_STATE, got %v", err)
	}

	// The tombstone event survives later additions within the same command.
	retained := env.agg.Events()
	var forTicket []events.Event
	for _, event := range retained {
		if event.TicketID == ticket.ID {
			forTicket = append(forTicket, event)
		}
	}
	if len(forTicket) != 1 || forTicket[0].Type != events.EventTicketDeleted {
		t.Fatalf("want single deleted event, got %+v", forTicket)
	}
}

func TestTakeTicket(t *testing.T) {
	ctx := context.Background()
	env := newMachineEnv(t)
	creator := env.user(domain.UserRoleEndUser, nil)

	lineID := uuid.NewString()
	env.store.SeedLine(domain.SupportLine{ID: lineID, Name: "first line", Role: domain.LineRoleFirstLine, IsActive: true})
	member := env.user(domain.UserRoleSpecialist, &lineID)
	outsider := env.user(domain.UserRoleSpecialist, nil)

	ticket := env.newTicket(t, creator)
	ticket.LineID = &lineID
	if err := env.repos.Tickets.Update(ctx, ticket); err != nil {
		t.Fatalf("set line: %v", err)
	}

	err := env.machine.TakeTicket(ctx, ticket, creator)
	if !apperrors.HasCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("end user take: want INVALID_ARGUMENT, got %v", err)
	}

	err = env.machine.TakeTicket(ctx, ticket, outsider)
	if !apperrors.HasCode(err, apperrors.CodeAccessDenied) {
		t.Fatalf("outsider take: want ACCESS_DENIED, got %v", err)
	}

	env.clock.Advance(5 * time.Minute)
	if err := env.machine.TakeTicket(ctx, ticket, member); err != nil {
		t.Fatalf("member take: %v", err)
	}
	if ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("take from NEW must drive to OPEN, got %s", ticket.Status)
	}
	if ticket.FirstResponseAt == nil || !ticket.FirstResponseAt.Equal(env.clock.Now()) {
		t.Fatal("first response timestamp not stamped on first OPEN")
	}

	err = env.machine.TakeTicket(ctx, ticket, member)
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("second take: want CONFLICT, got %v", err)
	}
}

func TestConcurrentTakeLosesWithConflict(t *testing.T) {
	ctx := context.Background()
	env := newMachineEnv(t)
	creator := env.user(domain.UserRoleEndUser, nil)
	s1 := env.user(domain.UserRoleSpecialist, nil)
	s2 := env.user(domain.UserRoleSpecialist, nil)
	ticket := env.newTicket(t, creator)

	// Both specialists read the same version before either writes.
	copy1, err := env.repos.Tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("read 1: %v", err)
	}
	copy2, err := env.repos.Tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("read 2: %v", err)
	}

	if err := env.machine.TakeTicket(ctx, copy1, s1); err != nil {
		t.Fatalf("first take: %v", err)
	}
	err = env.machine.TakeTicket(ctx, copy2, s2)
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("second take: want CONFLICT, got %v", err)
	}

	stored, err := env.repos.Tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.AssigneeID == nil || *stored.AssigneeID != s1.ID {
		t.Fatal("winner's assignment lost")
	}
}

func TestFirstResponseStampedOnce(t *testing.T) {
	ctx := context.Background()
	env := newMachineEnv(t)
	creator := env.user(domain.UserRoleEndUser, nil)
	specialist := env.user(domain.UserRoleSpecialist, nil)
	admin := env.user(domain.UserRoleAdmin, nil)
	ticket := env.newTicket(t, creator)

	env.clock.Advance(3 * time.Minute)
	if err := env.machine.TakeTicket(ctx, ticket, specialist); err != nil {
		t.Fatalf("take: %v", err)
	}
	first := *ticket.FirstResponseAt

	env.driveTo(t, ticket, specialist, domain.TicketStatusResolved)
	if err := env.machine.ChangeStatus(ctx, ticket, admin, domain.TicketStatusReopened, ""); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	env.clock.Advance(1 * time.Hour)
	if err := env.machine.ChangeStatus(ctx, ticket, specialist, domain.TicketStatusOpen, ""); err != nil {
		t.Fatalf("reopen to open: %v", err)
	}
	if !ticket.FirstResponseAt.Equal(first) {
		t.Fatal("first response timestamp must be recorded only once")
	}
}
