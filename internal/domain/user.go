package domain

import "time"

// UserRole distinguishes end users from workflow actors.
type UserRole string

const (
	UserRoleEndUser    UserRole = "END_USER"
	UserRoleSpecialist UserRole = "SPECIALIST"
	UserRoleAdmin      UserRole = "ADMIN"
)

// User models everybody who touches a ticket: requesters, specialists and
// administrators. Specialists optionally belong to one support line.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	LineID       *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin reports whether the user holds the administrative override.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}

// IsSpecialist reports whether the user may be assigned tickets.
// Administrators carry the specialist capability implicitly.
func (u *User) IsSpecialist() bool {
	return u != nil && (u.Role == UserRoleSpecialist || u.Role == UserRoleAdmin)
}

// MemberOf reports whether the user belongs to the given support line.
func (u *User) MemberOf(lineID string) bool {
	return u != nil && u.LineID != nil && *u.LineID == lineID
}
