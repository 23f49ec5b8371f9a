package dto

import (
	"time"

	"github.com/spec-kit/factory-support/internal/domain"
)

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserSummary is the account view returned by auth endpoints.
type UserSummary struct {
	ID           int64             `json:"id"`
	FullName     string            `json:"full_name"`
	Email        string            `json:"email"`
	Role         domain.Role       `json:"role"`
	DepartmentID *int64            `json:"department_id"`
	Status       domain.UserStatus `json:"status"`
}

// NewUserSummary converts a domain user.
func NewUserSummary(user *domain.User) UserSummary {
	return UserSummary{
		ID:           user.ID,
		FullName:     user.FullName,
		Email:        user.Email,
		Role:         user.Role,
		DepartmentID: user.DepartmentID,
		Status:       user.Status,
	}
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	User      UserSummary `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}
