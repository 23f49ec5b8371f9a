package realtime

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/factory-support/internal/api/dto"
	"github.com/spec-kit/factory-support/internal/domain"
	"github.com/spec-kit/factory-support/internal/observability"
	apperrors "github.com/spec-kit/factory-support/pkg/util/errorutil"
)

// ChatBackend is the chat service as seen by the gateway.
type ChatBackend interface {
	AuthorizeIssue(ctx context.Context, identity domain.Identity, issueID int64) (*domain.Issue, error)
	PostMessage(ctx context.Context, identity domain.Identity, issueID int64, content string) (*domain.Message, error)
}

// Publisher forwards a broadcast frame to gateway instances sharing the same rooms.
type Publisher interface {
	Publish(ctx context.Context, issueID int64, frame []byte) error
}

// Gateway executes client events against the chat backend and fans stored
// messages out to the issue room.
type Gateway struct {
	hub          *Hub
	chat         ChatBackend
	relay        Publisher
	logger       *zap.Logger
	metrics      *observability.Metrics
	storeTimeout time.Duration
	locks        *issueLocks
}

// NewGateway wires a gateway around hub. storeTimeout bounds each message
// append, which runs detached from the connection that requested it.
func NewGateway(hub *Hub, chat ChatBackend, logger *zap.Logger, metrics *observability.Metrics, storeTimeout time.Duration) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if storeTimeout <= 0 {
		storeTimeout = 10 * time.Second
	}
	return &Gateway{
		hub:          hub,
		chat:         chat,
		logger:       logger,
		metrics:      metrics,
		storeTimeout: storeTimeout,
		locks:        newIssueLocks(),
	}
}

// WithRelay publishes every local broadcast to other instances as well.
func (g *Gateway) WithRelay(relay Publisher) *Gateway {
	g.relay = relay
	return g
}

// Hub returns the room table.
func (g *Gateway) Hub() *Hub { return g.hub }

// Connect registers an authenticated connection.
func (g *Gateway) Connect(identity domain.Identity, queueSize int) *Client {
	c := newClient(identity, queueSize)
	g.hub.Register(c)
	g.metrics.Incr("ws.connections.opened")
	g.logger.Debug("ws client connected",
		zap.String("conn_id", c.ID()),
		zap.Int64("user_id", identity.ID),
		zap.String("role", string(identity.Role)))
	return c
}

// Disconnect drops every room subscription of c and closes it.
func (g *Gateway) Disconnect(c *Client) {
	g.hub.Unregister(c)
	c.Close()
	g.metrics.Incr("ws.connections.closed")
	g.logger.Debug("ws client disconnected", zap.String("conn_id", c.ID()))
}

// HandleFrame decodes one inbound frame, runs the event and queues the ack
// when the client asked for one. Errors are reported to the client and never
// end the connection.
func (g *Gateway) HandleFrame(ctx context.Context, c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		g.metrics.Incr("ws.frames.invalid")
		g.reply(c, EventError, nil, Err(ErrTextBadFrame))
		return
	}

	ack := g.HandleEvent(ctx, c, env.Event, env.Data)
	if env.Ack != nil {
		g.reply(c, EventAck, env.Ack, ack)
	}
}

// HandleEvent runs a single event for c and returns its acknowledgment.
func (g *Gateway) HandleEvent(ctx context.Context, c *Client, event string, data json.RawMessage) Ack {
	event = normalizeEvent(event)
	g.metrics.Incr("ws.events." + eventMetric(event))

	switch event {
	case EventJoin:
		return g.join(ctx, c, data)
	case EventLeave:
		if issueID, ok := parseIssueRef(data); ok {
			g.hub.Leave(c, RoomName(issueID))
		}
		return Ok(nil)
	case EventSendMessage:
		return g.sendMessage(ctx, c, data)
	default:
		return Err(ErrTextUnknownEvent)
	}
}

func (g *Gateway) join(ctx context.Context, c *Client, data json.RawMessage) Ack {
	issueID, ok := parseIssueRef(data)
	if !ok {
		return Err(ErrTextIssueNotFound)
	}
	if _, err := g.chat.AuthorizeIssue(ctx, c.Identity(), issueID); err != nil {
		return g.ackError(c, issueID, err)
	}
	if !g.hub.Join(c, RoomName(issueID)) {
		return Err(ErrTextConnectionClosed)
	}
	return Ok(nil)
}

func (g *Gateway) sendMessage(ctx context.Context, c *Client, data json.RawMessage) Ack {
	issueID, content, ok := parseSendMessage(data)
	if !ok {
		return Err(ErrTextContentRequired)
	}

	// The append must survive the sender hanging up mid-request; only the ack is lost then.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.storeTimeout)
	defer cancel()

	// Holding the issue lock across append and fan-out keeps broadcast order equal to commit order.
	unlock := g.locks.lock(issueID)
	defer unlock()

	msg, err := g.chat.PostMessage(storeCtx, c.Identity(), issueID, content)
	if err != nil {
		return g.ackError(c, issueID, err)
	}

	payload := dto.NewChatMessage(msg)
	frame, err := encodeFrame(EventNewMessage, nil, payload)
	if err != nil {
		g.logger.Error("encode broadcast", zap.Int64("message_id", msg.ID), zap.Error(err))
		return Ok(&payload)
	}
	g.broadcast(storeCtx, issueID, frame)
	return Ok(&payload)
}

func (g *Gateway) broadcast(ctx context.Context, issueID int64, frame []byte) {
	delivered, dropped := g.hub.Broadcast(RoomName(issueID), frame)
	g.metrics.Add("ws.broadcast.delivered", int64(delivered))
	if dropped > 0 {
		g.metrics.Add("ws.clients.slow_closed", int64(dropped))
		g.logger.Warn("closed slow ws clients", zap.Int64("issue_id", issueID), zap.Int("count", dropped))
	}
	if g.relay != nil {
		if err := g.relay.Publish(ctx, issueID, frame); err != nil {
			g.logger.Warn("relay publish failed", zap.Int64("issue_id", issueID), zap.Error(err))
		}
	}
}

// Deliver fans a frame produced by another instance out to local room members.
func (g *Gateway) Deliver(issueID int64, frame []byte) {
	delivered, dropped := g.hub.Broadcast(RoomName(issueID), frame)
	g.metrics.Add("ws.relay.delivered", int64(delivered))
	if dropped > 0 {
		g.metrics.Add("ws.clients.slow_closed", int64(dropped))
	}
}

func (g *Gateway) ackError(c *Client, issueID int64, err error) Ack {
	domainErr := apperrors.ToDomainError(err)
	switch domainErr.Code {
	case apperrors.CodeNotFound:
		return Err(ErrTextIssueNotFound)
	case apperrors.CodeForbidden:
		return Err(ErrTextAccessDenied)
	case apperrors.CodeValidation:
		return Err(ErrTextContentRequired)
	default:
		g.logger.Error("ws event failed",
			zap.String("conn_id", c.ID()),
			zap.Int64("issue_id", issueID),
			zap.Error(err))
		return Err(ErrTextInternal)
	}
}

func (g *Gateway) reply(c *Client, event string, ack *int64, result Ack) {
	frame, err := encodeFrame(event, ack, result)
	if err != nil {
		g.logger.Error("encode ack", zap.Error(err))
		return
	}
	if !c.enqueue(frame) {
		g.logger.Debug("ack dropped", zap.String("conn_id", c.ID()))
	}
}

func eventMetric(event string) string {
	switch event {
	case EventJoin, EventLeave, EventSendMessage:
		return event
	default:
		return "unknown"
	}
}
