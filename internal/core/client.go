package core

import (
	"sync"

	"github.com/vovakirdan/roomwire/internal/auth"
)

// Close codes a transport should use when a client is closed by the hub.
const (
	CloseNormal       = 1000
	CloseGoingAway    = 1001
	ClosePolicy       = 1008
	CloseUserDeleted  = 4001
	defaultSendBuffer = 32
)

// CloseReason tells the transport how to end the connection.
type CloseReason struct {
	Code int
	Text string
}

// Client is one live connection as seen by the hub.
type Client struct {
	ID        string
	Principal auth.Principal

	events chan *Event
	done   chan struct{}

	closeOnce      sync.Once
	disconnectOnce sync.Once
	reason         CloseReason

	mu    sync.Mutex
	rooms map[string]struct{}
}

// NewClient constructs a client with a buffered outbound queue.
func NewClient(id string, p auth.Principal, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Client{
		ID:        id,
		Principal: p,
		events:    make(chan *Event, buffer),
		done:      make(chan struct{}),
		rooms:     make(map[string]struct{}),
	}
}

// Events is the outbound queue drained by the transport writer.
func (c *Client) Events() <-chan *Event {
	return c.events
}

// Done is closed once the hub wants the connection gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Reason reports why Done was closed.
func (c *Client) Reason() CloseReason {
	<-c.done
	return c.reason
}

// Close asks the transport to end the connection. Later calls are ignored.
func (c *Client) Close(reason CloseReason) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

// deliver queues ev without blocking. A client whose queue is full is
// closed rather than allowed to stall the sender.
func (c *Client) deliver(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.events <- ev:
		return true
	default:
		c.Close(CloseReason{Code: ClosePolicy, Text: "slow consumer"})
		return false
	}
}

// Rooms returns the ids of rooms this connection is subscribed to.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

// InRoom reports whether the connection is subscribed to roomID.
func (c *Client) InRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

func (c *Client) addRoom(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

func (c *Client) clearRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	c.rooms = make(map[string]struct{})
	return out
}
