package transport

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// natsURL returns the test server URL or skips the test. These tests need a
// running NATS server, e.g. NATS_URL=nats://localhost:4222.
func natsURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set; skipping NATS transport test")
	}
	return url
}

func TestSubjects(t *testing.T) {
	if got := UserSubject("u1"); got != "circle.user.u1" {
		t.Errorf("UserSubject = %q", got)
	}
	if got := ClientSubject("u1"); got != "circle.client.u1" {
		t.Errorf("ClientSubject = %q", got)
	}
}

func TestNATS_RoundTrip(t *testing.T) {
	url := natsURL(t)

	peer, err := nats.Connect(url)
	if err != nil {
		t.Skipf("NATS not available: %v", err)
	}
	defer peer.Close()

	outbound := make(chan []byte, 1)
	sub, err := peer.Subscribe(ClientSubject("nats-u1"), func(m *nats.Msg) { outbound <- m.Data })
	if err != nil {
		t.Fatalf("peer subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	cfg := DefaultNATSConfig()
	cfg.URL = url
	frames := make(chan []byte, 1)
	conn, err := NewNATS(cfg).Connect(context.Background(), "nats-u1", Handler{
		OnFrame: func(data []byte) { frames <- data },
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	if err := conn.Send([]byte(`{"type":"join","userId":"nats-u1"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case data := <-outbound:
		if string(data) != `{"type":"join","userId":"nats-u1"}` {
			t.Errorf("peer got %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("outbound frame not delivered")
	}

	if err := peer.Publish(UserSubject("nats-u1"), []byte(`{"type":"privateMessage","senderId":"x","message":"y"}`)); err != nil {
		t.Fatalf("peer publish: %v", err)
	}
	select {
	case <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("inbound frame not delivered")
	}
}

func TestNATS_SendAfterClose(t *testing.T) {
	url := natsURL(t)

	cfg := DefaultNATSConfig()
	cfg.URL = url
	conn, err := NewNATS(cfg).Connect(context.Background(), "nats-u2", Handler{
		OnClose: func(err error) { t.Errorf("OnClose called for requested close: %v", err) },
	})
	if err != nil {
		t.Skipf("NATS not available: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := conn.Send([]byte("x")); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// Drain completes asynchronously; give the closed handler time to run.
	time.Sleep(200 * time.Millisecond)
}

func TestNATS_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewNATS(DefaultNATSConfig()).Connect(ctx, "u1", Handler{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
