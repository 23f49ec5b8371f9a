package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/factory-support/internal/auth"
	"github.com/spec-kit/factory-support/internal/domain"
	"github.com/spec-kit/factory-support/internal/events"
	"github.com/spec-kit/factory-support/internal/repository"
	apperrors "github.com/spec-kit/factory-support/pkg/util/errorutil"
)

// ChatService owns issue chat channels and their message history.
type ChatService struct {
	issues     repository.IssueRepository
	channels   repository.ChannelRepository
	messages   repository.MessageRepository
	profiles   *ProfileCache
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// ChatDependencies bundles collaborators for the chat service.
type ChatDependencies struct {
	IssueRepo   repository.IssueRepository
	ChannelRepo repository.ChannelRepository
	MessageRepo repository.MessageRepository
	Profiles    *ProfileCache
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewChatService constructs the service.
func NewChatService(deps ChatDependencies) *ChatService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		issues:     deps.IssueRepo,
		channels:   deps.ChannelRepo,
		messages:   deps.MessageRepo,
		profiles:   deps.Profiles,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// AuthorizeIssue loads the issue and checks the caller may use its chat.
// The decision is made on every call; nothing is cached.
func (s *ChatService) AuthorizeIssue(ctx context.Context, identity domain.Identity, issueID int64) (*domain.Issue, error) {
	issue, err := s.issues.FindByID(ctx, issueID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewNotFound("Issue", map[string]any{"issue_id": issueID})
		}
		return nil, fmt.Errorf("load issue %d: %w", issueID, err)
	}
	if !auth.CanAccessIssue(identity, issue) {
		return nil, apperrors.NewForbidden("Access denied")
	}
	return issue, nil
}

// GetOrCreateChannel returns the issue's channel, creating it on first use.
func (s *ChatService) GetOrCreateChannel(ctx context.Context, issueID int64) (*domain.Channel, error) {
	ch, err := s.channels.GetOrCreate(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// AppendMessage stores trimmed content in the channel.
func (s *ChatService) AppendMessage(ctx context.Context, channelID, authorID int64, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationError("Message content required", nil)
	}
	msg := &domain.Message{
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListByChannel returns the channel's messages oldest first.
func (s *ChatService) ListByChannel(ctx context.Context, channelID int64, page repository.Page) ([]domain.Message, error) {
	return s.messages.ListByChannel(ctx, channelID, page)
}

// GetHistory returns the issue conversation for an authorized caller. An issue
// nobody has written to yet has an empty history, not a missing one.
func (s *ChatService) GetHistory(ctx context.Context, identity domain.Identity, issueID int64, page repository.Page) ([]domain.Message, error) {
	if _, err := s.AuthorizeIssue(ctx, identity, issueID); err != nil {
		return nil, err
	}

	ch, err := s.channels.FindByIssue(ctx, issueID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return []domain.Message{}, nil
		}
		return nil, err
	}

	msgs, err := s.ListByChannel(ctx, ch.ID, page)
	if err != nil {
		return nil, err
	}
	if err := s.attachAuthors(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// PostMessage validates, authorizes and persists a message from identity.
// Delivery to live subscribers is left to the caller.
func (s *ChatService) PostMessage(ctx context.Context, identity domain.Identity, issueID int64, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewValidationError("Message content required", nil)
	}
	if _, err := s.AuthorizeIssue(ctx, identity, issueID); err != nil {
		return nil, err
	}

	ch, err := s.GetOrCreateChannel(ctx, issueID)
	if err != nil {
		return nil, err
	}
	msg, err := s.AppendMessage(ctx, ch.ID, identity.ID, content)
	if err != nil {
		return nil, err
	}

	one := []domain.Message{*msg}
	if err := s.attachAuthors(ctx, one); err != nil {
		// The message is committed; a missing display name must not turn it into a failure.
		s.logger.Warn("resolve message author", zap.Int64("message_id", msg.ID), zap.Error(err))
	}
	msg = &one[0]

	s.publishEvent(ctx, events.Event{
		Type:    events.EventChatMessageAdded,
		IssueID: issueID,
		Actor:   events.Actor{UserID: identity.ID, Role: identity.Role},
		Payload: events.ChatMessageAddedPayload{
			ChannelID:   ch.ID,
			MessageID:   msg.ID,
			AuthorName:  authorName(msg),
			BodyPreview: events.Preview(msg.Content),
		},
	})
	return msg, nil
}

func (s *ChatService) attachAuthors(ctx context.Context, msgs []domain.Message) error {
	if s.profiles == nil || len(msgs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(msgs))
	for _, msg := range msgs {
		ids = append(ids, msg.AuthorID)
	}
	profiles, err := s.profiles.Resolve(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve authors: %w", err)
	}
	for i := range msgs {
		if profile, ok := profiles[msgs[i].AuthorID]; ok {
			p := profile
			msgs[i].Author = &p
		}
	}
	return nil
}

func (s *ChatService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func authorName(msg *domain.Message) string {
	if msg.Author == nil {
		return ""
	}
	return msg.Author.FullName
}
