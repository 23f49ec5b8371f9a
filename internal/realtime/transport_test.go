package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	fws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/factory-support/internal/auth"
	"github.com/spec-kit/factory-support/internal/config"
	apperrors "github.com/spec-kit/factory-support/pkg/util/errorutil"
)

type server struct {
	*fixture
	app    *fiber.App
	addr   string
	tokens *auth.TokenManager
}

func newServer(t *testing.T) *server {
	t.Helper()
	f := newFixture(t)
	tokens := auth.NewTokenManager("realtime-test-secret", time.Hour)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).SendString(fe.Message)
			}
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"error": de.Message})
		},
	})
	cfg := config.RealtimeConfig{SendQueueSize: 16, WriteTimeoutSeconds: 2, PingIntervalSeconds: 5}
	transport := NewTransport(f.gateway, auth.NewAuthMiddleware(tokens, "token"), cfg,
		[]string{"http://plant.local"}, nil, f.metrics)
	transport.Register(app, "/ws")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return &server{fixture: f, app: app, addr: ln.Addr().String(), tokens: tokens}
}

func (s *server) dial(t *testing.T, token string, header http.Header) (*fws.Conn, *http.Response, error) {
	t.Helper()
	url := "ws://" + s.addr + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return fws.DefaultDialer.Dial(url, header)
}

func (s *server) token(t *testing.T, userID int64) string {
	t.Helper()
	user, err := s.store.Users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	token, _, err := s.tokens.GenerateToken(user)
	require.NoError(t, err)
	return token
}

func readEnvelope(t *testing.T, conn *fws.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHandshakeRequiresCredentials(t *testing.T) {
	s := newServer(t)

	_, resp, err := s.dial(t, "", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = s.dial(t, "not-a-jwt", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = s.dial(t, s.token(t, s.owner.ID), http.Header{"Origin": {"http://evil.local"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.Equal(t, int64(3), s.metrics.Counter("ws.connections.rejected"))
	assert.Equal(t, 0, s.gateway.Hub().ClientCount())
}

func TestHandshakeRejectsPlainHTTP(t *testing.T) {
	s := newServer(t)
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestWebsocketJoinAndSend(t *testing.T) {
	s := newServer(t)

	owner, _, err := s.dial(t, s.token(t, s.owner.ID), http.Header{"Origin": {"http://plant.local"}})
	require.NoError(t, err)
	defer owner.Close()
	tech, _, err := s.dial(t, s.token(t, s.tech.ID), nil)
	require.NoError(t, err)
	defer tech.Close()

	for i, conn := range []*fws.Conn{owner, tech} {
		require.NoError(t, conn.WriteJSON(map[string]any{"event": "join", "ack": i + 1, "data": s.issue.ID}))
		env := readEnvelope(t, conn)
		assert.Equal(t, EventAck, env.Event)
		assert.Equal(t, int64(i+1), *env.Ack)
		assert.JSONEq(t, `{"ok":true}`, string(env.Data))
	}

	require.NoError(t, tech.WriteJSON(map[string]any{
		"event": "send_message",
		"ack":   10,
		"data":  map[string]any{"issueId": s.issue.ID, "content": "Swapping the PSU"},
	}))

	pushed := readEnvelope(t, owner)
	assert.Equal(t, EventNewMessage, pushed.Event)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(pushed.Data, &msg))
	assert.Equal(t, "Swapping the PSU", msg["content"])
	assert.Equal(t, "Tom Tech", msg["authorDisplayName"])

	assert.Equal(t, EventNewMessage, readEnvelope(t, tech).Event)
	ack := readEnvelope(t, tech)
	assert.Equal(t, EventAck, ack.Event)
	assert.Equal(t, int64(10), *ack.Ack)

	require.NoError(t, owner.WriteMessage(fws.TextMessage, []byte("{broken")))
	assert.Equal(t, EventError, readEnvelope(t, owner).Event)

	require.NoError(t, owner.WriteMessage(fws.CloseMessage, fws.FormatCloseMessage(fws.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool {
		return s.gateway.Hub().RoomSize(RoomName(s.issue.ID)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
