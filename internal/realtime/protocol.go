// Package realtime pushes issue chat messages to connected clients. A Hub
// tracks which connections sit in which issue room, the Gateway turns inbound
// events into chat operations and broadcasts, and the fiber transport moves
// JSON envelopes over websockets.
package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spec-kit/factory-support/internal/api/dto"
)

// Inbound and outbound event names.
const (
	EventJoin        = "join"
	EventLeave       = "leave"
	EventSendMessage = "sendMessage"
	EventNewMessage  = "new_message"
	EventAck         = "ack"
	EventError       = "error"
)

// Older web clients send snake_case event names.
var eventAliases = map[string]string{
	"join_issue":   EventJoin,
	"leave_issue":  EventLeave,
	"send_message": EventSendMessage,
}

// Ack error texts clients match on.
const (
	ErrTextIssueNotFound    = "Issue not found"
	ErrTextAccessDenied     = "Access denied"
	ErrTextContentRequired  = "Issue ID and content required"
	ErrTextInternal         = "Internal server error"
	ErrTextUnknownEvent     = "Unknown event"
	ErrTextBadFrame         = "Invalid message"
	ErrTextConnectionClosed = "Connection closed"
)

// Envelope is the frame exchanged in both directions. Ack is the client's
// correlation id; replies to an event carry the same value.
type Envelope struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ack is the outcome of one client event: either Ok with an optional message
// or Err with a human readable reason.
type Ack struct {
	ok      bool
	message *dto.ChatMessage
	err     string
}

// Ok builds a successful acknowledgment.
func Ok(message *dto.ChatMessage) Ack {
	return Ack{ok: true, message: message}
}

// Err builds a failed acknowledgment.
func Err(reason string) Ack {
	return Ack{err: reason}
}

// IsOk reports success.
func (a Ack) IsOk() bool { return a.ok }

// Error returns the failure reason, empty on success.
func (a Ack) Error() string { return a.err }

// Message returns the stored message carried by a sendMessage ack.
func (a Ack) Message() *dto.ChatMessage { return a.message }

// MarshalJSON renders {"ok":true[,"message":...]} or {"error":"..."}.
func (a Ack) MarshalJSON() ([]byte, error) {
	if !a.ok {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{a.err})
	}
	return json.Marshal(struct {
		OK      bool             `json:"ok"`
		Message *dto.ChatMessage `json:"message,omitempty"`
	}{true, a.message})
}

func normalizeEvent(name string) string {
	if canonical, ok := eventAliases[name]; ok {
		return canonical
	}
	return name
}

func encodeFrame(event string, ack *int64, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Ack: ack, Data: raw})
}

// flexibleID accepts 12, "12" or " 12 ".
type flexibleID int64

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
	}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid issue id %q", b)
	}
	*f = flexibleID(v)
	return nil
}

// parseIssueRef reads the target issue of join and leave. Data may be the bare
// id or an object with issueId.
func parseIssueRef(data json.RawMessage) (int64, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return 0, false
	}
	if trimmed[0] == '{' {
		var ref struct {
			IssueID flexibleID `json:"issueId"`
		}
		if err := json.Unmarshal(trimmed, &ref); err != nil {
			return 0, false
		}
		return int64(ref.IssueID), ref.IssueID > 0
	}
	var id flexibleID
	if err := json.Unmarshal(trimmed, &id); err != nil {
		return 0, false
	}
	return int64(id), id > 0
}

type sendMessageData struct {
	IssueID flexibleID `json:"issueId"`
	Content string     `json:"content"`
}

func parseSendMessage(data json.RawMessage) (int64, string, bool) {
	var in sendMessageData
	if err := json.Unmarshal(data, &in); err != nil {
		return 0, "", false
	}
	if in.IssueID <= 0 || strings.TrimSpace(in.Content) == "" {
		return 0, "", false
	}
	return int64(in.IssueID), in.Content, true
}
