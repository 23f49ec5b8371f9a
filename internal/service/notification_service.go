package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/spec-kit/factory-support/internal/config"
	"github.com/spec-kit/factory-support/internal/events"
	"github.com/spec-kit/factory-support/internal/observability"
)

// WebhookPoster posts one Slack webhook message.
type WebhookPoster func(ctx context.Context, url string, msg *slack.WebhookMessage) error

// NotificationService turns chat events into out-of-band notifications.
// Delivery runs on its own goroutine so the chat path never waits on Slack.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	cfg        config.NotificationConfig
	post       WebhookPoster
	queue      chan events.Event
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics, cfg config.NotificationConfig) *NotificationService {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
		post:       slack.PostWebhookContext,
		queue:      make(chan events.Event, size),
	}
}

// WithPoster replaces the Slack transport.
func (n *NotificationService) WithPoster(post WebhookPoster) *NotificationService {
	n.post = post
	return n
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventChatMessageAdded, n.handleChatMessageAdded)
}

func (n *NotificationService) handleChatMessageAdded(_ context.Context, event events.Event) error {
	n.logger.Info("ChatMessageAdded", zap.Int64("issue_id", event.IssueID), zap.Any("payload", event.Payload))
	if strings.TrimSpace(n.cfg.SlackWebhookURL) == "" {
		return nil
	}
	select {
	case n.queue <- event:
		return nil
	default:
		n.metrics.Incr("notifications.dropped")
		return fmt.Errorf("notification queue full, dropping event %s", event.ID)
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (n *NotificationService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-n.queue:
			n.deliver(ctx, event)
		}
	}
}

func (n *NotificationService) deliver(ctx context.Context, event events.Event) {
	msg := &slack.WebhookMessage{
		Channel: n.cfg.SlackChannel,
		Text:    slackText(event),
	}
	if err := n.post(ctx, n.cfg.SlackWebhookURL, msg); err != nil {
		n.metrics.Incr("notifications.failed")
		n.logger.Warn("slack notification failed",
			zap.String("event_id", event.ID),
			zap.Int64("issue_id", event.IssueID),
			zap.Error(err))
		return
	}
	n.metrics.Incr("notifications.sent")
}

func slackText(event events.Event) string {
	payload, ok := event.Payload.(events.ChatMessageAddedPayload)
	if !ok {
		return fmt.Sprintf("New activity on issue #%d", event.IssueID)
	}
	author := payload.AuthorName
	if author == "" {
		author = fmt.Sprintf("user %d", event.Actor.UserID)
	}
	return fmt.Sprintf("*Issue #%d* new message from %s (%s):\n>%s", event.IssueID, author, event.Actor.Role, payload.BodyPreview)
}
