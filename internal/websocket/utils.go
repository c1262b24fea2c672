package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	// A monitor that sends nothing (not even a ping) for this long is
	// treated as gone and its read loop unblocks with an error.
	readTimeout = 5 * time.Minute
)

// Conn wraps a gorilla connection and serializes writes. gorilla allows at
// most one concurrent writer, but handlers write from both the read loop
// (pong replies) and the event loop (monitor fan-out), so every write goes
// through one mutex.
type Conn struct {
	raw *websocket.Conn
	mu  sync.Mutex
}

// Wrap takes ownership of an upgraded connection.
func Wrap(raw *websocket.Conn) *Conn {
	return &Conn{raw: raw}
}

// WriteTyped sends a typed payload with a bounded write deadline.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.raw.WriteJSON(v)
}

// WriteError sends an ErrorResponse to the peer.
func (c *Conn) WriteError(errMsg string) error {
	return c.WriteTyped(ErrorResponse{Event: EventError, Error: errMsg})
}

// ReadJSON decodes the next message into v, refreshing the read deadline.
// Reads stay single-goroutine and need no lock.
func (c *Conn) ReadJSON(v interface{}) error {
	c.raw.SetReadDeadline(time.Now().Add(readTimeout))
	return c.raw.ReadJSON(v)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}
