package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/factory-support/internal/domain"
)

// IssueRepository reads issues owned by the ticketing side of the application.
type IssueRepository interface {
	Create(ctx context.Context, issue *domain.Issue) error
	FindByID(ctx context.Context, id int64) (*domain.Issue, error)
}

type issueRepository struct {
	pool *pgxpool.Pool
}

// NewIssueRepository returns a Postgres-backed implementation.
func NewIssueRepository(pool *pgxpool.Pool) IssueRepository {
	return &issueRepository{pool: pool}
}

func (r *issueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	const query = `
        INSERT INTO issues (user_id, technician_id, title, status)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`

	if issue.Status == "" {
		issue.Status = domain.IssueStatusPending
	}
	if err := r.pool.QueryRow(ctx, query,
		issue.OwnerID,
		issue.TechnicianID,
		issue.Title,
		issue.Status,
	).Scan(&issue.ID, &issue.CreatedAt); err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func (r *issueRepository) FindByID(ctx context.Context, id int64) (*domain.Issue, error) {
	const query = `
        SELECT id, user_id, technician_id, title, status, created_at
        FROM issues WHERE id=$1`

	var issue domain.Issue
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&issue.ID,
		&issue.OwnerID,
		&issue.TechnicianID,
		&issue.Title,
		&issue.Status,
		&issue.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &issue, nil
}
