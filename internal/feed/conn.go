package feed

import (
	"sync"

	"github.com/collinglass/blarg/internal/domain"
)

// Conn is one client session as seen by the feed core: a delivery queue plus
// the current-room pointer. It is a passive sink; all state transitions go
// through the Dispatcher.
type Conn struct {
	ID   string
	Name string

	mu     sync.Mutex
	room   string
	closed bool
	out    chan *domain.Event
	onSlow func(*Conn)
}

func newConn(id, name string, queueSize int, onSlow func(*Conn)) *Conn {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Conn{
		ID:     id,
		Name:   name,
		out:    make(chan *domain.Event, queueSize),
		onSlow: onSlow,
	}
}

// Events exposes the outbound queue to the transport writer. The channel is
// closed when the connection is torn down; buffered events remain readable.
func (c *Conn) Events() <-chan *domain.Event {
	return c.out
}

// Room returns the current room ID, or "" when unjoined.
func (c *Conn) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Conn) setRoom(roomID string) {
	c.mu.Lock()
	c.room = roomID
	c.mu.Unlock()
}

// Enqueue appends an event to the outbound queue without ever blocking the
// caller. When the queue is full an incoming presence event is shed; the
// queued events may include critical ones, which must never be displaced or
// reordered to make space. Overflow on a critical event disconnects the
// lagging connection instead.
func (c *Conn) Enqueue(ev *domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.out <- ev:
		return
	default:
	}

	if droppable(ev.Type) {
		return
	}

	c.closed = true
	close(c.out)
	if c.onSlow != nil {
		c.onSlow(c)
	}
}

// Close tears down the queue. Idempotent; delivery to a closed connection is
// silently suppressed.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}

// droppable reports whether an event may be shed under backpressure.
// Snapshots, comments, title changes and errors must reach the client or the
// connection is no longer worth keeping.
func droppable(t domain.EventType) bool {
	switch t {
	case domain.EventUserJoined, domain.EventUserLeft:
		return true
	default:
		return false
	}
}
