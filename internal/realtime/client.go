package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/factory-support/internal/domain"
)

// Client is one authenticated connection. Outbound frames are queued and
// drained by the transport's writer so a slow peer never blocks a broadcast.
type Client struct {
	id       string
	identity domain.Identity
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

func newClient(identity domain.Identity, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Client{
		id:       uuid.NewString(),
		identity: identity,
		send:     make(chan []byte, queueSize),
		done:     make(chan struct{}),
	}
}

// ID is unique per connection.
func (c *Client) ID() string { return c.id }

// Identity is the caller bound at handshake time.
func (c *Client) Identity() domain.Identity { return c.identity }

// Send yields queued frames in enqueue order.
func (c *Client) Send() <-chan []byte { return c.send }

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// enqueue never blocks. It reports false when the client is closed or its queue is full.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close marks the client closed. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}
