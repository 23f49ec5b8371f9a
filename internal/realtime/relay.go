package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay shares broadcasts between gateway instances over Redis pub/sub.
// Frames are tagged with the publishing instance so it can skip its own echo.
// Ordering across instances is not guaranteed; clients order by message id.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *zap.Logger
	ready   chan struct{}
}

type relayFrame struct {
	Origin  string          `json:"origin"`
	IssueID int64           `json:"issueId"`
	Frame   json.RawMessage `json:"frame"`
}

// NewRedisRelay builds a relay on channel.
func NewRedisRelay(client *redis.Client, channel string, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Publish implements Publisher.
func (r *RedisRelay) Publish(ctx context.Context, issueID int64, frame []byte) error {
	payload, err := json.Marshal(relayFrame{Origin: r.origin, IssueID: issueID, Frame: frame})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Ready is closed once the subscription is active.
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes to the relay channel and hands foreign frames to deliver
// until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context, deliver func(issueID int64, frame []byte)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	close(r.ready)
	r.logger.Info("ws relay subscribed", zap.String("channel", r.channel), zap.String("origin", r.origin))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var in relayFrame
			if err := json.Unmarshal([]byte(msg.Payload), &in); err != nil {
				r.logger.Warn("drop malformed relay frame", zap.Error(err))
				continue
			}
			if in.Origin == r.origin {
				continue
			}
			deliver(in.IssueID, in.Frame)
		}
	}
}
