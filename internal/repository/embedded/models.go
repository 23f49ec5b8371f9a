package embedded

import (
	"time"

	"github.com/spec-kit/factory-support/internal/domain"
)

type userRow struct {
	ID           int64  `gorm:"primary_key"`
	FullName     string `gorm:"not null"`
	Email        string `gorm:"not null;unique_index"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	DepartmentID *int64
	Status       string `gorm:"not null;default:'active'"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

func (r userRow) toDomain() domain.User {
	return domain.User{
		ID:           r.ID,
		FullName:     r.FullName,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         domain.Role(r.Role),
		DepartmentID: r.DepartmentID,
		Status:       domain.UserStatus(r.Status),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type issueRow struct {
	ID           int64  `gorm:"primary_key"`
	UserID       int64  `gorm:"not null;index"`
	TechnicianID *int64 `gorm:"index"`
	Title        string `gorm:"not null"`
	Status       string `gorm:"not null;default:'pending'"`
	CreatedAt    time.Time
}

func (issueRow) TableName() string { return "issues" }

func (r issueRow) toDomain() *domain.Issue {
	return &domain.Issue{
		ID:           r.ID,
		OwnerID:      r.UserID,
		TechnicianID: r.TechnicianID,
		Title:        r.Title,
		Status:       domain.IssueStatus(r.Status),
		CreatedAt:    r.CreatedAt,
	}
}

type chatRow struct {
	ID        int64 `gorm:"primary_key"`
	IssueID   int64 `gorm:"not null;unique_index"`
	CreatedAt time.Time
}

func (chatRow) TableName() string { return "chats" }

func (r chatRow) toDomain() *domain.Channel {
	return &domain.Channel{ID: r.ID, IssueID: r.IssueID, CreatedAt: r.CreatedAt}
}

type messageRow struct {
	ID        int64  `gorm:"primary_key"`
	ChatID    int64  `gorm:"not null"`
	UserID    int64  `gorm:"not null"`
	Content   string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (messageRow) TableName() string { return "messages" }

func (r messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:        r.ID,
		ChannelID: r.ChatID,
		AuthorID:  r.UserID,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
}
