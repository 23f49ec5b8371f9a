package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/factory-support/internal/api/dto"
)

func TestAckJSON(t *testing.T) {
	b, err := json.Marshal(Ok(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(b))

	b, err = json.Marshal(Err(ErrTextAccessDenied))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Access denied"}`, string(b))

	msg := &dto.ChatMessage{ID: 5, ChannelID: 2, AuthorID: 3, Content: "hi", AuthorDisplayName: "Ada"}
	b, err = json.Marshal(Ok(msg))
	require.NoError(t, err)
	var out struct {
		OK      bool            `json:"ok"`
		Message dto.ChatMessage `json:"message"`
	}
	require.NoError(t, json.Unmarshal(b, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int64(5), out.Message.ID)
	assert.Equal(t, "Ada", out.Message.AuthorDisplayName)
}

func TestParseIssueRef(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{`12`, 12, true},
		{`"12"`, 12, true},
		{`" 12 "`, 12, true},
		{`{"issueId":12}`, 12, true},
		{`{"issueId":"12"}`, 12, true},
		{`{"issueId":0}`, 0, false},
		{`-4`, -4, false},
		{`{}`, 0, false},
		{`"abc"`, 0, false},
		{`1.5`, 0, false},
		{`null`, 0, false},
		{``, 0, false},
	}
	for _, tt := range tests {
		got, ok := parseIssueRef(json.RawMessage(tt.in))
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestParseSendMessage(t *testing.T) {
	id, content, ok := parseSendMessage(json.RawMessage(`{"issueId":"3","content":" hey "}`))
	require.True(t, ok)
	assert.Equal(t, int64(3), id)
	assert.Equal(t, " hey ", content)

	for _, in := range []string{
		`{"issueId":3,"content":"\n\t "}`,
		`{"issueId":3}`,
		`{"content":"hey"}`,
		`{"issueId":"three","content":"hey"}`,
		`[]`,
	} {
		_, _, ok := parseSendMessage(json.RawMessage(in))
		assert.False(t, ok, in)
	}
}

func TestNormalizeEvent(t *testing.T) {
	assert.Equal(t, EventJoin, normalizeEvent("join_issue"))
	assert.Equal(t, EventLeave, normalizeEvent("leave_issue"))
	assert.Equal(t, EventSendMessage, normalizeEvent("send_message"))
	assert.Equal(t, EventSendMessage, normalizeEvent("sendMessage"))
	assert.Equal(t, "typing", normalizeEvent("typing"))
}

func TestEncodeFrame(t *testing.T) {
	ack := int64(4)
	b, err := encodeFrame(EventAck, &ack, Err(ErrTextUnknownEvent))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ack","ack":4,"data":{"error":"Unknown event"}}`, string(b))

	b, err = encodeFrame(EventNewMessage, nil, map[string]int{"id": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"new_message","data":{"id":1}}`, string(b))
}
