package ws

import (
	"sync"

	"github.com/google/uuid"
)

// Client is one live connection as the hub sees it. joined is guarded by the
// hub's lock; everything else is immutable after construction except the
// send channel, which closes exactly once.
type Client struct {
	ID     string
	UserID string

	send      chan []byte
	closeOnce sync.Once
	joined    map[string]struct{}
}

func NewClient(userID string) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		send:   make(chan []byte, 256),
		joined: make(map[string]struct{}),
	}
}

// Send queues a payload for the write pump. A slow consumer with a full
// buffer loses the payload rather than blocking the broadcaster.
func (c *Client) Send(payload []byte) {
	select {
	case c.send <- payload:
	default:
	}
}

// Outbox exposes the delivery channel to the connection's write pump.
func (c *Client) Outbox() <-chan []byte {
	return c.send
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}
