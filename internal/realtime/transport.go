package realtime

import (
	"context"
	"time"

	fws "github.com/fasthttp/websocket"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/factory-support/internal/config"
	"github.com/spec-kit/factory-support/internal/domain"
	"github.com/spec-kit/factory-support/internal/observability"
	apperrors "github.com/spec-kit/factory-support/pkg/util/errorutil"
)

const (
	identityLocal = "ws_identity"
	maxFrameBytes = 64 << 10
)

// Authenticator resolves the caller of a handshake request.
type Authenticator interface {
	Authenticate(c *fiber.Ctx) (domain.Identity, error)
}

// Transport serves the gateway over fiber websockets.
type Transport struct {
	gateway *Gateway
	auth    Authenticator
	cfg     config.RealtimeConfig
	origins map[string]struct{}
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewTransport builds the websocket endpoint. An empty origin list accepts any
// origin; requests without an Origin header come from non-browser clients and
// are always accepted.
func NewTransport(gateway *Gateway, authn Authenticator, cfg config.RealtimeConfig, origins []string, logger *zap.Logger, metrics *observability.Metrics) *Transport {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		gateway: gateway,
		auth:    authn,
		cfg:     cfg,
		origins: allowed,
		logger:  logger,
		metrics: metrics,
	}
}

// Register mounts the handshake guard and the websocket handler on path.
func (t *Transport) Register(router fiber.Router, path string) {
	router.Use(path, t.Handshake)
	router.Get(path, websocket.New(t.serve, websocket.Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}))
}

// Handshake rejects unauthenticated upgrades before any websocket is opened.
func (t *Transport) Handshake(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if origin := c.Get(fiber.HeaderOrigin); origin != "" && len(t.origins) > 0 {
		if _, ok := t.origins[origin]; !ok {
			t.metrics.Incr("ws.connections.rejected")
			return apperrors.NewForbidden("Origin not allowed")
		}
	}
	identity, err := t.auth.Authenticate(c)
	if err != nil {
		t.metrics.Incr("ws.connections.rejected")
		t.logger.Info("ws handshake rejected", zap.String("ip", c.IP()), zap.Error(err))
		return err
	}
	c.Locals(identityLocal, identity)
	return c.Next()
}

func (t *Transport) serve(conn *websocket.Conn) {
	identity, ok := conn.Locals(identityLocal).(domain.Identity)
	if !ok {
		_ = conn.Close()
		return
	}

	client := t.gateway.Connect(identity, t.cfg.SendQueueSize)
	ctx, cancel := context.WithCancel(context.Background())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		t.writeLoop(conn, client)
	}()

	pongWait := 2 * t.cfg.PingInterval()
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if fws.IsUnexpectedCloseError(err, fws.CloseNormalClosure, fws.CloseGoingAway, fws.CloseNoStatusReceived) {
				t.logger.Debug("ws read ended", zap.String("conn_id", client.ID()), zap.Error(err))
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if msgType != fws.TextMessage {
			continue
		}
		t.gateway.HandleFrame(ctx, client, data)
	}

	cancel()
	t.gateway.Disconnect(client)
	<-writerDone
}

func (t *Transport) writeLoop(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(t.cfg.PingInterval())
	defer ticker.Stop()
	writeTimeout := t.cfg.WriteTimeout()

	for {
		select {
		case frame := <-client.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(fws.TextMessage, frame); err != nil {
				client.Close()
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(fws.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				client.Close()
				_ = conn.Close()
				return
			}
		case <-client.Done():
			_ = conn.WriteControl(fws.CloseMessage,
				fws.FormatCloseMessage(fws.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			_ = conn.Close()
			return
		}
	}
}
