package session

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/orincore/CircleRJ/internal/chat"
	"github.com/orincore/CircleRJ/internal/notify"
	"github.com/orincore/CircleRJ/internal/protocol"
	"github.com/orincore/CircleRJ/internal/transport"
)

// mockConn records outbound frames.
type mockConn struct {
	mock.Mock
}

func (m *mockConn) Send(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *mockConn) Close() error {
	args := m.Called()
	return args.Error(0)
}

// sent decodes every frame passed to Send.
func (m *mockConn) sent(t *testing.T) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, c := range m.Calls {
		if c.Method != "Send" {
			continue
		}
		var f map[string]interface{}
		require.NoError(t, json.Unmarshal(c.Arguments.Get(0).([]byte), &f))
		out = append(out, f)
	}
	return out
}

// sentOfType returns the decoded frames with the given type.
func (m *mockConn) sentOfType(t *testing.T, typ string) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, f := range m.sent(t) {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}

// fakeTransport hands out a fixed connection and keeps the handler so tests
// can inject inbound frames.
type fakeTransport struct {
	conn     transport.Conn
	err      error
	handler  transport.Handler
	userIDs  []string
	connects int
}

func (f *fakeTransport) Connect(_ context.Context, userID string, h transport.Handler) (transport.Conn, error) {
	f.connects++
	f.userIDs = append(f.userIDs, userID)
	f.handler = h
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}

func (f *fakeTransport) deliver(frame string) {
	f.handler.OnFrame([]byte(frame))
}

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) Load(ctx context.Context, userID string) []chat.Chat {
	args := m.Called(ctx, userID)
	chats, _ := args.Get(0).([]chat.Chat)
	return chats
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) AllowSend(ctx context.Context, userID string) bool {
	return m.Called(ctx, userID).Bool(0)
}

// recordingPlatform grants permission and records notifications.
type recordingPlatform struct {
	mu     sync.Mutex
	shown  []notify.Notification
	clicks []func()
}

func (p *recordingPlatform) RequestPermission(context.Context) (notify.Permission, error) {
	return notify.PermissionGranted, nil
}

func (p *recordingPlatform) Show(n notify.Notification, onClick func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, n)
	p.clicks = append(p.clicks, onClick)
	return nil
}

func (p *recordingPlatform) notifications() []notify.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Notification(nil), p.shown...)
}

// relay is an in-memory messaging server. It routes private messages between
// connected users and pairs random-match requests two at a time. Frames are
// queued and delivered by flush so that no delivery re-enters the session
// that caused it.
type relay struct {
	mu       sync.Mutex
	handlers map[string]transport.Handler
	queue    []delivery
	waiting  string
	rooms    map[string]*matchRoom
	nextRoom int
}

type delivery struct {
	to    string
	frame []byte
}

type matchRoom struct {
	users    [2]string
	accepted map[string]bool
}

func newRelay() *relay {
	return &relay{
		handlers: make(map[string]transport.Handler),
		rooms:    make(map[string]*matchRoom),
	}
}

func (r *relay) Connect(_ context.Context, userID string, h transport.Handler) (transport.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[userID] = h
	return &relayConn{r: r, userID: userID}, nil
}

func (r *relay) push(to string, msgType string, payload interface{}) {
	data, err := protocol.NewClientMessage(msgType, payload)
	if err != nil {
		panic(err)
	}
	r.queue = append(r.queue, delivery{to: to, frame: data})
}

// flush delivers queued frames until the queue is empty.
func (r *relay) flush() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		d := r.queue[0]
		r.queue = r.queue[1:]
		h, ok := r.handlers[d.to]
		r.mu.Unlock()

		if ok && h.OnFrame != nil {
			h.OnFrame(d.frame)
		}
	}
}

func (r *relay) handle(from string, data []byte) {
	var f struct {
		Type        string `json:"type"`
		RecipientID string `json:"recipientId"`
		Message     string `json:"message"`
		RoomID      string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch f.Type {
	case protocol.TypePrivateMessage:
		r.push(f.RecipientID, protocol.TypePrivateMessage, map[string]string{
			"senderId": from,
			"message":  f.Message,
		})

	case protocol.TypeFindRandomMatch:
		if r.waiting == "" || r.waiting == from {
			r.waiting = from
			r.push(from, protocol.TypeRandomMatchStatus, map[string]string{"status": protocol.StatusWaiting})
			return
		}
		other := r.waiting
		r.waiting = ""
		r.nextRoom++
		roomID := "match-" + strconv.Itoa(r.nextRoom)
		r.rooms[roomID] = &matchRoom{users: [2]string{other, from}, accepted: make(map[string]bool)}
		for _, pair := range [][2]string{{other, from}, {from, other}} {
			r.push(pair[0], protocol.TypeRandomMatchStatus, protocol.MatchStatusEvent{
				Status:      protocol.StatusPending,
				RoomID:      roomID,
				MatchedUser: &protocol.MatchedUser{ID: pair[1]},
			})
		}

	case protocol.TypeRandomMatchAccept:
		room, ok := r.rooms[f.RoomID]
		if !ok {
			return
		}
		room.accepted[from] = true
		if room.accepted[room.users[0]] && room.accepted[room.users[1]] {
			for _, u := range room.users {
				r.push(u, protocol.TypeRandomMatchStatus, map[string]string{"status": protocol.StatusConnected})
			}
			delete(r.rooms, f.RoomID)
		}

	case protocol.TypeRandomMatchReject:
		room, ok := r.rooms[f.RoomID]
		if !ok {
			return
		}
		for _, u := range room.users {
			if u != from {
				r.push(u, protocol.TypeRandomMatchStatus, map[string]string{"status": protocol.StatusRejected})
			}
		}
		delete(r.rooms, f.RoomID)
	}
}

type relayConn struct {
	r      *relay
	userID string
}

func (c *relayConn) Send(data []byte) error {
	c.r.handle(c.userID, data)
	return nil
}

func (c *relayConn) Close() error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	delete(c.r.handlers, c.userID)
	return nil
}
