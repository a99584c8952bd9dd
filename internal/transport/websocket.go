package transport

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// WebSocketConfig holds WebSocket client settings.
type WebSocketConfig struct {
	URL          string        // ws://localhost:8080/ws
	WriteTimeout time.Duration // per-frame write deadline, 0 disables
	Heartbeat    HeartbeatConfig
}

// DefaultWebSocketConfig returns sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		URL:          "ws://localhost:8080/ws",
		WriteTimeout: 10 * time.Second,
		Heartbeat:    DefaultHeartbeatConfig(),
	}
}

// WebSocket dials the messaging server over a WebSocket.
type WebSocket struct {
	config WebSocketConfig
}

// NewWebSocket creates a WebSocket transport.
func NewWebSocket(config WebSocketConfig) *WebSocket {
	return &WebSocket{config: config}
}

// Connect dials the configured URL and starts the read loop and heartbeat.
// userID is not part of the handshake; the server learns it from the join
// frame.
func (t *WebSocket) Connect(ctx context.Context, userID string, h Handler) (Conn, error) {
	conn, br, _, err := ws.Dial(ctx, t.config.URL)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", t.config.URL, err)
	}

	c := &wsConn{
		conn:         conn,
		handler:      h,
		writeTimeout: t.config.WriteTimeout,
		done:         make(chan struct{}),
	}

	// br holds frames the server sent right behind the handshake response.
	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}
	c.rw = struct {
		io.Reader
		io.Writer
	}{r, lockedWriter{c}}

	go c.readLoop()
	if t.config.Heartbeat.Interval > 0 {
		startHeartbeat(c, t.config.Heartbeat)
	}

	log.Printf("[transport] websocket connected to %s user=%s", t.config.URL, userID)
	return c, nil
}

// wsConn is a client-side WebSocket connection. All writes, including the
// pong replies produced while reading, go through writeMu.
type wsConn struct {
	conn         net.Conn
	rw           io.ReadWriter
	handler      Handler
	writeTimeout time.Duration

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// Send writes data as a single text frame.
func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return c.writeFrame(ws.OpText, data)
}

// Close sends a normal-closure frame and closes the socket.
func (c *wsConn) Close() error {
	return c.shutdown(nil)
}

func (c *wsConn) writeFrame(op ws.OpCode, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := wsutil.WriteClientMessage(c.conn, op, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// shutdown closes the socket once. A nil cause is a requested close and
// says goodbye with a close frame; a non-nil cause marks an unrequested loss
// and is reported to OnClose outside the once so the handler may call back
// into Close.
func (c *wsConn) shutdown(cause error) error {
	var (
		first bool
		err   error
	)
	c.closeOnce.Do(func() {
		first = true
		close(c.done)
		if cause == nil {
			_ = c.writeFrame(ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		}
		err = c.conn.Close()
	})
	if first && cause != nil {
		log.Printf("[transport] websocket lost: %v", cause)
		if c.handler.OnClose != nil {
			c.handler.OnClose(cause)
		}
	}
	return err
}

// readLoop reads text frames until the connection fails. Ping and close
// control frames are answered by wsutil.
func (c *wsConn) readLoop() {
	for {
		data, err := wsutil.ReadServerText(c.rw)
		if err != nil {
			select {
			case <-c.done:
				// Closed by us; not a loss.
				return
			default:
			}
			_ = c.shutdown(err)
			return
		}
		if len(data) == 0 {
			continue
		}
		if c.handler.OnFrame != nil {
			c.handler.OnFrame(data)
		}
	}
}

// lockedWriter serializes control replies from the read loop with Send.
type lockedWriter struct {
	c *wsConn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.conn.Write(p)
}
