package embedded

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/gorm"

	"github.com/spec-kit/factory-support/internal/domain"
	"github.com/spec-kit/factory-support/internal/repository"
)

type userStore struct {
	db *gorm.DB
}

func (s *userStore) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}
	row := userRow{
		FullName:     user.FullName,
		Email:        strings.ToLower(strings.TrimSpace(user.Email)),
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		DepartmentID: user.DepartmentID,
		Status:       string(user.Status),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	*user = row.toDomain()
	return nil
}

func (s *userStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *userStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.first(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *userStore) ListByIDs(ctx context.Context, ids []int64) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []userRow
	if err := s.db.Where("id IN (?)", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toDomain())
	}
	return users, nil
}

func (s *userStore) first(ctx context.Context, where string, arg any) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var row userRow
	if err := s.db.Where(where, arg).First(&row).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	user := row.toDomain()
	return &user, nil
}

type issueStore struct {
	db *gorm.DB
}

func (s *issueStore) Create(ctx context.Context, issue *domain.Issue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if issue.Status == "" {
		issue.Status = domain.IssueStatusPending
	}
	row := issueRow{
		UserID:       issue.OwnerID,
		TechnicianID: issue.TechnicianID,
		Title:        issue.Title,
		Status:       string(issue.Status),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	*issue = *row.toDomain()
	return nil
}

func (s *issueStore) FindByID(ctx context.Context, id int64) (*domain.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var row issueRow
	if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return row.toDomain(), nil
}
