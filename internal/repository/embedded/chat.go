package embedded

import (
	"context"
	"fmt"
	"time"

	"github.com/jinzhu/gorm"

	"github.com/spec-kit/factory-support/internal/domain"
	"github.com/spec-kit/factory-support/internal/repository"
)

type channelStore struct {
	db *gorm.DB
}

func (s *channelStore) GetOrCreate(ctx context.Context, issueID int64) (*domain.Channel, error) {
	ch, err := s.FindByIssue(ctx, issueID)
	if err == nil {
		return ch, nil
	}
	if err != repository.ErrNotFound {
		return nil, err
	}

	row := chatRow{IssueID: issueID, CreatedAt: time.Now().UTC()}
	if createErr := s.db.Create(&row).Error; createErr != nil {
		// Lost the race on the unique issue_id index: the stored row wins.
		winner, findErr := s.FindByIssue(ctx, issueID)
		if findErr != nil {
			return nil, fmt.Errorf("create chat for issue %d: %w", issueID, createErr)
		}
		return winner, nil
	}
	return row.toDomain(), nil
}

func (s *channelStore) FindByIssue(ctx context.Context, issueID int64) (*domain.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var row chatRow
	if err := s.db.Where("issue_id = ?", issueID).First(&row).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return row.toDomain(), nil
}

type messageStore struct {
	db *gorm.DB
}

func (s *messageStore) Create(ctx context.Context, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	row := messageRow{
		ChatID:    msg.ChannelID,
		UserID:    msg.AuthorID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.UTC(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	msg.ID = row.ID
	msg.CreatedAt = row.CreatedAt
	return nil
}

func (s *messageStore) ListByChannel(ctx context.Context, channelID int64, page repository.Page) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := s.db.Where("chat_id = ? AND id > ?", channelID, page.AfterID).Order("id ASC")
	if page.Limit > 0 {
		query = query.Limit(page.Limit)
	}

	var rows []messageRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	result := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}
