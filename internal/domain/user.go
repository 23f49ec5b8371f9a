package domain

import "time"

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// User is an admin, technician or department account.
type User struct {
	ID           int64
	FullName     string
	Email        string
	PasswordHash string
	Role         Role
	DepartmentID *int64
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the caller identity carried by tokens issued for the user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Role: u.Role}
}

// Profile returns the public subset of the user shown next to chat messages.
func (u *User) Profile() Profile {
	return Profile{ID: u.ID, FullName: u.FullName, Role: u.Role}
}

// Profile is the author information attached to chat messages.
type Profile struct {
	ID       int64
	FullName string
	Role     Role
}
