package repository

//go:generate mockgen -destination=mocks/repository.go -package=mocks github.com/spec-kit/factory-support/internal/repository IssueRepository,UserRepository,ChannelRepository,MessageRepository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/spec-kit/factory-support/pkg/util/errorutil"
)

// ErrNotFound is returned by every backend when a lookup matches nothing.
var ErrNotFound = apperrors.ErrNotFound

// Page narrows a history read. A zero AfterID starts at the oldest message and
// a zero Limit returns the rest of the channel.
type Page struct {
	AfterID int64
	Limit   int
}

// Store bundles the repositories the chat subsystem reads and writes.
type Store struct {
	Issues   IssueRepository
	Users    UserRepository
	Channels ChannelRepository
	Messages MessageRepository
}

// NewPostgresStore wires every repository against one pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Issues:   NewIssueRepository(pool),
		Users:    NewUserRepository(pool),
		Channels: NewChannelRepository(pool),
		Messages: NewMessageRepository(pool),
	}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
