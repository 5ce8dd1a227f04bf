package domain

import "time"

// LineRole classifies a support line inside the escalation hierarchy.
type LineRole string

const (
	LineRoleFirstLine   LineRole = "FIRST_LINE"
	LineRoleSecondLine  LineRole = "SECOND_LINE"
	LineRoleOneCSupport LineRole = "ONE_C_SUPPORT"
	LineRoleDeveloper   LineRole = "DEVELOPER"
)

// SupportLine is a named team/queue that tickets can be routed to.
// LastAssignedIndex is the rotating cursor used by round-robin dispatch;
// it is persisted on the line so the rotation survives restarts.
type SupportLine struct {
	ID                string
	Name              string
	Description       string
	Role              LineRole
	LastAssignedIndex int
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
