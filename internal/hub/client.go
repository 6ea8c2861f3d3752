package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client is one live connection as seen by the hub. The transport drains Send().
type Client struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func NewClient(userID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		send:        make(chan []byte, buffer),
	}
}

// Send is closed once the client is closed.
func (c *Client) Send() <-chan []byte { return c.send }

// Enqueue never blocks; it reports false when the buffer is full or the client is closed.
func (c *Client) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	if !c.closed {
		close(c.send)
		c.closed = true
	}
	c.mu.Unlock()
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
