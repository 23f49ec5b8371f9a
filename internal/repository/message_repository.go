package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/factory-support/internal/domain"
)

// MessageRepository persists chat messages.
type MessageRepository interface {
	// Create stores msg and fills in its ID and CreatedAt.
	Create(ctx context.Context, msg *domain.Message) error
	// ListByChannel returns messages in commit order, which is ascending id.
	ListByChannel(ctx context.Context, channelID int64, page Page) ([]domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (chat_id, user_id, content)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, query,
		msg.ChannelID,
		msg.AuthorID,
		msg.Content,
	).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *messageRepository) ListByChannel(ctx context.Context, channelID int64, page Page) ([]domain.Message, error) {
	query := `
        SELECT id, chat_id, user_id, content, created_at
        FROM messages WHERE chat_id=$1 AND id > $2
        ORDER BY id ASC`
	args := []any{channelID, page.AfterID}
	if page.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, page.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Message, 0)
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ChannelID,
			&msg.AuthorID,
			&msg.Content,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
