package realtime

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/factory-support/internal/domain"
	"github.com/spec-kit/factory-support/internal/observability"
	"github.com/spec-kit/factory-support/internal/repository"
	"github.com/spec-kit/factory-support/internal/repository/embedded"
	"github.com/spec-kit/factory-support/internal/service"
)

type fixture struct {
	store   *repository.Store
	gateway *Gateway
	metrics *observability.Metrics
	admin   *domain.User
	tech    *domain.User
	owner   *domain.User
	other   *domain.User
	issue   *domain.Issue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := embedded.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := db.Store()

	ctx := context.Background()
	mk := func(name, email string, role domain.Role) *domain.User {
		u := &domain.User{FullName: name, Email: email, PasswordHash: "x", Role: role}
		require.NoError(t, store.Users.Create(ctx, u))
		return u
	}
	f := &fixture{
		store: store,
		admin: mk("Ada Admin", "admin@plant.local", domain.RoleAdmin),
		tech:  mk("Tom Tech", "tech@plant.local", domain.RoleTechnician),
		owner: mk("Dana Dept", "dept@plant.local", domain.RoleDepartment),
		other: mk("Otto Other", "other@plant.local", domain.RoleDepartment),
	}
	f.issue = &domain.Issue{OwnerID: f.owner.ID, TechnicianID: &f.tech.ID, Title: "Line 3 PLC offline"}
	require.NoError(t, store.Issues.Create(ctx, f.issue))

	profiles := service.NewProfileCache(store.Users, time.Minute)
	chat := service.NewChatService(service.ChatDependencies{
		IssueRepo:   store.Issues,
		ChannelRepo: store.Channels,
		MessageRepo: store.Messages,
		Profiles:    profiles,
	})
	f.metrics = observability.NewMetrics()
	f.gateway = NewGateway(NewHub(), chat, nil, f.metrics, time.Second)
	return f
}

func (f *fixture) connect(u *domain.User) *Client {
	return f.gateway.Connect(u.Identity(), 16)
}

func (f *fixture) newIssue(t *testing.T, owner *domain.User) *domain.Issue {
	t.Helper()
	issue := &domain.Issue{OwnerID: owner.ID, Title: "Badge reader"}
	require.NoError(t, f.store.Issues.Create(context.Background(), issue))
	return issue
}

func nextFrame(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case raw := <-c.Send():
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Envelope{}
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send():
		t.Fatalf("unexpected frame %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func raw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func TestJoinAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		user    *domain.User
		data    json.RawMessage
		wantErr string
	}{
		{name: "admin", user: f.admin, data: raw(f.issue.ID)},
		{name: "assigned technician", user: f.tech, data: raw(map[string]any{"issueId": f.issue.ID})},
		{name: "owner with string id", user: f.owner, data: raw(map[string]any{"issueId": "  " + itoa(f.issue.ID)})},
		{name: "other department", user: f.other, data: raw(f.issue.ID), wantErr: ErrTextAccessDenied},
		{name: "unknown issue", user: f.admin, data: raw(f.issue.ID + 999), wantErr: ErrTextIssueNotFound},
		{name: "garbage id", user: f.admin, data: raw("abc"), wantErr: ErrTextIssueNotFound},
		{name: "missing data", user: f.admin, wantErr: ErrTextIssueNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := f.connect(tt.user)
			defer f.gateway.Disconnect(c)

			ack := f.gateway.HandleEvent(ctx, c, EventJoin, tt.data)
			if tt.wantErr != "" {
				assert.False(t, ack.IsOk())
				assert.Equal(t, tt.wantErr, ack.Error())
				assert.Empty(t, f.gateway.Hub().Rooms(c))
				return
			}
			assert.True(t, ack.IsOk())
			assert.Equal(t, []string{RoomName(f.issue.ID)}, f.gateway.Hub().Rooms(c))
		})
	}
}

func TestFirstMessageCreatesChannelAndReachesRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin, tech, owner := f.connect(f.admin), f.connect(f.tech), f.connect(f.owner)
	for _, c := range []*Client{admin, tech, owner} {
		require.True(t, f.gateway.HandleEvent(ctx, c, EventJoin, raw(f.issue.ID)).IsOk())
	}

	_, err := f.store.Channels.FindByIssue(ctx, f.issue.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)

	ack := f.gateway.HandleEvent(ctx, admin, EventSendMessage,
		raw(map[string]any{"issueId": f.issue.ID, "content": "  Restarting the PLC now  "}))
	require.True(t, ack.IsOk(), ack.Error())
	require.NotNil(t, ack.Message())
	assert.Equal(t, "Restarting the PLC now", ack.Message().Content)
	assert.Equal(t, "Ada Admin", ack.Message().AuthorDisplayName)
	assert.Equal(t, domain.RoleAdmin, ack.Message().AuthorRole)

	ch, err := f.store.Channels.FindByIssue(ctx, f.issue.ID)
	require.NoError(t, err)
	assert.Equal(t, ch.ID, ack.Message().ChannelID)

	for _, c := range []*Client{admin, tech, owner} {
		env := nextFrame(t, c)
		assert.Equal(t, EventNewMessage, env.Event)
		assert.Nil(t, env.Ack)
		var got map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, "Restarting the PLC now", got["content"])
		assert.EqualValues(t, ack.Message().ID, got["id"])
		assert.EqualValues(t, f.admin.ID, got["authorId"])
	}
	assert.Equal(t, int64(3), f.metrics.Counter("ws.broadcast.delivered"))
}

func TestSendMessageRejectsBlankContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.connect(f.owner)
	require.True(t, f.gateway.HandleEvent(ctx, c, EventJoin, raw(f.issue.ID)).IsOk())

	for _, data := range []json.RawMessage{
		raw(map[string]any{"issueId": f.issue.ID, "content": "   "}),
		raw(map[string]any{"content": "hello"}),
		raw(map[string]any{"issueId": "x", "content": "hello"}),
		raw("not an object"),
	} {
		ack := f.gateway.HandleEvent(ctx, c, EventSendMessage, data)
		assert.False(t, ack.IsOk())
		assert.Equal(t, ErrTextContentRequired, ack.Error())
	}

	assertNoFrame(t, c)
	_, err := f.store.Channels.FindByIssue(ctx, f.issue.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSendMessageChecksAccessEveryTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.connect(f.other)

	ack := f.gateway.HandleEvent(ctx, c, EventSendMessage,
		raw(map[string]any{"issueId": f.issue.ID, "content": "let me in"}))
	assert.Equal(t, ErrTextAccessDenied, ack.Error())

	ack = f.gateway.HandleEvent(ctx, c, EventSendMessage,
		raw(map[string]any{"issueId": f.issue.ID + 500, "content": "hello"}))
	assert.Equal(t, ErrTextIssueNotFound, ack.Error())
}

func TestRoomsAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	second := f.newIssue(t, f.other)

	inFirst := f.connect(f.owner)
	inSecond := f.connect(f.other)
	require.True(t, f.gateway.HandleEvent(ctx, inFirst, EventJoin, raw(f.issue.ID)).IsOk())
	require.True(t, f.gateway.HandleEvent(ctx, inSecond, EventJoin, raw(second.ID)).IsOk())

	ack := f.gateway.HandleEvent(ctx, inSecond, EventSendMessage,
		raw(map[string]any{"issueId": second.ID, "content": "badge reader beeps"}))
	require.True(t, ack.IsOk())

	assert.Equal(t, EventNewMessage, nextFrame(t, inSecond).Event)
	assertNoFrame(t, inFirst)
}

func TestSenderOutsideRoomStillGetsAck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.connect(f.owner)
	require.True(t, f.gateway.HandleEvent(ctx, member, EventJoin, raw(f.issue.ID)).IsOk())

	sender := f.connect(f.tech)
	ack := f.gateway.HandleEvent(ctx, sender, EventSendMessage,
		raw(map[string]any{"issueId": f.issue.ID, "content": "on my way"}))
	require.True(t, ack.IsOk())

	assert.Equal(t, "on my way", ack.Message().Content)
	assert.Equal(t, EventNewMessage, nextFrame(t, member).Event)
	assertNoFrame(t, sender)
}

func TestLeaveStopsDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listener := f.connect(f.owner)
	sender := f.connect(f.admin)
	require.True(t, f.gateway.HandleEvent(ctx, listener, EventJoin, raw(f.issue.ID)).IsOk())

	assert.True(t, f.gateway.HandleEvent(ctx, listener, "leave_issue", raw(f.issue.ID)).IsOk())
	assert.True(t, f.gateway.HandleEvent(ctx, listener, EventLeave, raw(f.issue.ID)).IsOk())
	assert.True(t, f.gateway.HandleEvent(ctx, listener, EventLeave, nil).IsOk())

	require.True(t, f.gateway.HandleEvent(ctx, sender, EventSendMessage,
		raw(map[string]any{"issueId": f.issue.ID, "content": "anyone?"})).IsOk())
	assertNoFrame(t, listener)
}

func TestEventAliases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.connect(f.tech)

	assert.True(t, f.gateway.HandleEvent(ctx, c, "join_issue", raw(f.issue.ID)).IsOk())
	ack := f.gateway.HandleEvent(ctx, c, "send_message", raw(map[string]any{"issueId": itoa(f.issue.ID), "content": "hi"}))
	require.True(t, ack.IsOk())
	assert.Equal(t, EventNewMessage, nextFrame(t, c).Event)

	assert.Equal(t, ErrTextUnknownEvent, f.gateway.HandleEvent(ctx, c, "typing", nil).Error())
}

func TestHandleFrameAcks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.connect(f.owner)

	f.gateway.HandleFrame(ctx, c, []byte(`{"event":"join","ack":7,"data":`+itoa(f.issue.ID)+`}`))
	env := nextFrame(t, c)
	assert.Equal(t, EventAck, env.Event)
	require.NotNil(t, env.Ack)
	assert.Equal(t, int64(7), *env.Ack)
	assert.JSONEq(t, `{"ok":true}`, string(env.Data))

	f.gateway.HandleFrame(ctx, c, []byte(`{"event":"sendMessage","ack":8,"data":{"issueId":`+itoa(f.issue.ID)+`,"content":"hello"}}`))
	broadcast := nextFrame(t, c)
	assert.Equal(t, EventNewMessage, broadcast.Event)
	ackEnv := nextFrame(t, c)
	assert.Equal(t, EventAck, ackEnv.Event)
	assert.Equal(t, int64(8), *ackEnv.Ack)
	var body struct {
		OK      bool           `json:"ok"`
		Message map[string]any `json:"message"`
	}
	require.NoError(t, json.Unmarshal(ackEnv.Data, &body))
	assert.True(t, body.OK)
	assert.Equal(t, "hello", body.Message["content"])

	f.gateway.HandleFrame(ctx, c, []byte(`{"event":"join","data":99999}`))
	assertNoFrame(t, c)

	f.gateway.HandleFrame(ctx, c, []byte(`{"event":"join","ack":9,"data":99999}`))
	env = nextFrame(t, c)
	assert.JSONEq(t, `{"error":"Issue not found"}`, string(env.Data))

	f.gateway.HandleFrame(ctx, c, []byte(`not json`))
	env = nextFrame(t, c)
	assert.Equal(t, EventError, env.Event)
	assert.JSONEq(t, `{"error":"Invalid message"}`, string(env.Data))
	assert.Equal(t, int64(1), f.metrics.Counter("ws.frames.invalid"))
}

func TestBroadcastOrderMatchesCommitOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listener := f.gateway.Connect(f.owner.Identity(), 256)
	require.True(t, f.gateway.HandleEvent(ctx, listener, EventJoin, raw(f.issue.ID)).IsOk())

	const senders, perSender = 4, 10
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := f.connect(f.tech)
			defer f.gateway.Disconnect(c)
			for j := 0; j < perSender; j++ {
				ack := f.gateway.HandleEvent(ctx, c, EventSendMessage,
					raw(map[string]any{"issueId": f.issue.ID, "content": "status"}))
				assert.True(t, ack.IsOk())
			}
		}()
	}
	wg.Wait()

	var lastID float64
	for i := 0; i < senders*perSender; i++ {
		env := nextFrame(t, listener)
		var got map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &got))
		id := got["id"].(float64)
		assert.Greater(t, id, lastID)
		lastID = id
	}
	assert.Equal(t, 0, f.gateway.locks.size())
}

func TestSendMessageSurvivesCancelledConnection(t *testing.T) {
	f := newFixture(t)
	c := f.connect(f.owner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ack := f.gateway.HandleEvent(ctx, c, EventSendMessage,
		raw(map[string]any{"issueId": f.issue.ID, "content": "sent while hanging up"}))
	require.True(t, ack.IsOk(), ack.Error())

	ch, err := f.store.Channels.FindByIssue(context.Background(), f.issue.ID)
	require.NoError(t, err)
	msgs, err := f.store.Messages.ListByChannel(context.Background(), ch.ID, repository.Page{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestSlowClientIsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slow := f.gateway.Connect(f.owner.Identity(), 1)
	require.True(t, f.gateway.HandleEvent(ctx, slow, EventJoin, raw(f.issue.ID)).IsOk())

	sender := f.connect(f.admin)
	for i := 0; i < 2; i++ {
		require.True(t, f.gateway.HandleEvent(ctx, sender, EventSendMessage,
			raw(map[string]any{"issueId": f.issue.ID, "content": "flood"})).IsOk())
	}

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow client should be closed")
	}
	assert.Equal(t, 0, f.gateway.Hub().RoomSize(RoomName(f.issue.ID)))
	assert.Equal(t, int64(1), f.metrics.Counter("ws.clients.slow_closed"))
}

type recordingPublisher struct {
	mu     sync.Mutex
	issues []int64
}

func (r *recordingPublisher) Publish(_ context.Context, issueID int64, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issues = append(r.issues, issueID)
	return nil
}

func TestRelayPublishAndDeliver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pub := &recordingPublisher{}
	f.gateway.WithRelay(pub)

	c := f.connect(f.owner)
	require.True(t, f.gateway.HandleEvent(ctx, c, EventJoin, raw(f.issue.ID)).IsOk())
	require.True(t, f.gateway.HandleEvent(ctx, c, EventSendMessage,
		raw(map[string]any{"issueId": f.issue.ID, "content": "x"})).IsOk())
	nextFrame(t, c)
	assert.Equal(t, []int64{f.issue.ID}, pub.issues)

	f.gateway.Deliver(f.issue.ID, []byte(`{"event":"new_message","data":{"id":42}}`))
	assert.Equal(t, EventNewMessage, nextFrame(t, c).Event)
	f.gateway.Deliver(f.issue.ID+1, []byte(`{"event":"new_message"}`))
	assertNoFrame(t, c)
	assert.Equal(t, int64(1), f.metrics.Counter("ws.relay.delivered"))
}

func TestDisconnectLeavesAllRooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	second := f.newIssue(t, f.owner)
	c := f.connect(f.owner)
	require.True(t, f.gateway.HandleEvent(ctx, c, EventJoin, raw(f.issue.ID)).IsOk())
	require.True(t, f.gateway.HandleEvent(ctx, c, EventJoin, raw(second.ID)).IsOk())
	assert.Len(t, f.gateway.Hub().Rooms(c), 2)

	f.gateway.Disconnect(c)
	assert.Equal(t, 0, f.gateway.Hub().ClientCount())
	assert.Equal(t, 0, f.gateway.Hub().RoomSize(RoomName(second.ID)))
	_, open := <-c.Done()
	assert.False(t, open)
}

func TestJoinAfterDisconnectIsRejected(t *testing.T) {
	f := newFixture(t)
	c := f.connect(f.owner)
	f.gateway.Disconnect(c)

	ack := f.gateway.HandleEvent(context.Background(), c, EventJoin, raw(f.issue.ID))
	assert.False(t, ack.IsOk())
	assert.Equal(t, ErrTextConnectionClosed, ack.Error())
	assert.Equal(t, 0, f.gateway.Hub().RoomSize(RoomName(f.issue.ID)))
	assert.Empty(t, f.gateway.Hub().Rooms(c))
}
