// Package transport carries realtime frames between the chat client and the
// messaging server. A Transport opens one long-lived Conn per signed-in user;
// inbound frames and connection loss are reported through a Handler on the
// transport's own goroutine.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send once the connection has been closed or lost.
var ErrClosed = errors.New("transport: connection closed")

// Handler receives inbound traffic. Both callbacks may be nil.
type Handler struct {
	// OnFrame is called with the raw bytes of every inbound text frame, in
	// arrival order.
	OnFrame func(data []byte)

	// OnClose is called at most once when the connection is lost. It is not
	// called for a Close initiated by the caller.
	OnClose func(err error)
}

// Conn is an open realtime connection.
type Conn interface {
	// Send writes one frame. It is goroutine-safe.
	Send(data []byte) error
	// Close tears the connection down. It is safe to call multiple times.
	Close() error
}

// Transport opens connections for a user.
type Transport interface {
	Connect(ctx context.Context, userID string, h Handler) (Conn, error)
}
