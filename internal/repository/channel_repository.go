package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/factory-support/internal/domain"
)

// ChannelRepository maps issues to their single chat channel.
type ChannelRepository interface {
	// GetOrCreate returns the channel of the issue, creating it if needed.
	// Concurrent callers for the same issue all receive the same channel.
	GetOrCreate(ctx context.Context, issueID int64) (*domain.Channel, error)
	// FindByIssue never creates; it returns ErrNotFound when no channel exists.
	FindByIssue(ctx context.Context, issueID int64) (*domain.Channel, error)
}

type channelRepository struct {
	pool *pgxpool.Pool
}

// NewChannelRepository returns a Postgres-backed implementation.
func NewChannelRepository(pool *pgxpool.Pool) ChannelRepository {
	return &channelRepository{pool: pool}
}

func (r *channelRepository) GetOrCreate(ctx context.Context, issueID int64) (*domain.Channel, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	const query = `
        INSERT INTO chats (issue_id) VALUES ($1)
        ON CONFLICT (issue_id) DO UPDATE SET issue_id = EXCLUDED.issue_id
        RETURNING id, issue_id, created_at`

	var ch domain.Channel
	if err := r.pool.QueryRow(ctx, query, issueID).Scan(&ch.ID, &ch.IssueID, &ch.CreatedAt); err != nil {
		return nil, fmt.Errorf("get or create chat for issue %d: %w", issueID, err)
	}
	return &ch, nil
}

func (r *channelRepository) FindByIssue(ctx context.Context, issueID int64) (*domain.Channel, error) {
	const query = `SELECT id, issue_id, created_at FROM chats WHERE issue_id=$1`

	var ch domain.Channel
	if err := r.pool.QueryRow(ctx, query, issueID).Scan(&ch.ID, &ch.IssueID, &ch.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &ch, nil
}
