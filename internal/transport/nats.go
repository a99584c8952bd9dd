package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject prefixes. The server publishes a user's inbound frames on
// circle.user.<userId> and consumes that user's outbound frames from
// circle.client.<userId>.
const (
	SubjectUser   = "circle.user"
	SubjectClient = "circle.client"
)

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "circlechat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NATS relays frames over a NATS server instead of a direct socket.
type NATS struct {
	config NATSConfig
}

// NewNATS creates a NATS transport.
func NewNATS(config NATSConfig) *NATS {
	return &NATS{config: config}
}

// UserSubject returns the subject a user's inbound frames arrive on.
func UserSubject(userID string) string { return SubjectUser + "." + userID }

// ClientSubject returns the subject a user's outbound frames are published to.
func ClientSubject(userID string) string { return SubjectClient + "." + userID }

// Connect opens a NATS connection for userID and subscribes to its inbound
// subject. Transient disconnects are handled by the client's reconnect loop;
// OnClose fires only when the connection is closed for good.
func (t *NATS) Connect(ctx context.Context, userID string, h Handler) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("transport: nats connect: %w", err)
	}

	c := &natsConn{
		outbound: ClientSubject(userID),
		subs:     make(map[string]*nats.Subscription),
	}

	opts := []nats.Option{
		nats.Name(t.config.Name),
		nats.ReconnectWait(t.config.ReconnectWait),
		nats.MaxReconnects(t.config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("[nats] connection closed")
			if c.closing.Load() || h.OnClose == nil {
				return
			}
			err := nc.LastError()
			if err == nil {
				err = ErrClosed
			}
			h.OnClose(err)
		}),
	}

	nc, err := nats.Connect(t.config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("transport: nats connect: %w", err)
	}
	c.conn = nc

	inbound := UserSubject(userID)
	sub, err := nc.Subscribe(inbound, func(msg *nats.Msg) {
		if h.OnFrame != nil && len(msg.Data) > 0 {
			h.OnFrame(msg.Data)
		}
	})
	if err != nil {
		c.closing.Store(true)
		nc.Close()
		return nil, fmt.Errorf("transport: nats subscribe %s: %w", inbound, err)
	}
	c.subs[inbound] = sub

	log.Printf("[nats] connected to %s user=%s", nc.ConnectedUrl(), userID)
	return c, nil
}

// natsConn publishes outbound frames and owns the inbound subscriptions.
type natsConn struct {
	conn     *nats.Conn
	outbound string
	closing  atomic.Bool

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Send publishes data on the user's outbound subject.
func (c *natsConn) Send(data []byte) error {
	if c.closing.Load() || c.conn.IsClosed() {
		return ErrClosed
	}
	if err := c.conn.Publish(c.outbound, data); err != nil {
		return fmt.Errorf("transport: nats publish %s: %w", c.outbound, err)
	}
	return nil
}

// Close drains all active subscriptions and the connection.
func (c *natsConn) Close() error {
	if c.closing.Swap(true) {
		return nil
	}

	c.mu.Lock()
	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)
	c.mu.Unlock()

	if err := c.conn.Drain(); err != nil {
		return fmt.Errorf("transport: nats drain: %w", err)
	}
	return nil
}
