// Package session owns the live chat state of one signed-in user: the
// transport connection, the chat store, the random-match coordinator and the
// notification dispatcher. Every state change, whether from a user action or
// an inbound frame, is serialized behind the session lock.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/orincore/CircleRJ/internal/chat"
	"github.com/orincore/CircleRJ/internal/matching"
	"github.com/orincore/CircleRJ/internal/metrics"
	"github.com/orincore/CircleRJ/internal/notify"
	"github.com/orincore/CircleRJ/internal/protocol"
	"github.com/orincore/CircleRJ/internal/transport"
)

// HistoryLoader rebuilds the user's chats. It fails soft.
type HistoryLoader interface {
	Load(ctx context.Context, userID string) []chat.Chat
}

// SendLimiter throttles outbound messages.
type SendLimiter interface {
	AllowSend(ctx context.Context, userID string) bool
}

// Options are the collaborators shared by every session. Only Transport is
// required.
type Options struct {
	Transport transport.Transport
	History   HistoryLoader
	Limiter   SendLimiter
	Notifier  notify.Platform
}

// MatchState is a snapshot of the random-match surface.
type MatchState struct {
	Phase      matching.Phase
	Status     string
	Accepted   bool
	Visible    bool
	Candidate  *chat.ChatUser
	RoomID     string
	StatusText string
}

// Session is the chat context of one user.
type Session struct {
	userID string
	opts   Options
	now    func() time.Time

	mu       sync.Mutex
	conn     transport.Conn
	closed   bool
	store    *chat.Store
	match    *matching.Coordinator
	notifier *notify.Dispatcher
}

// New creates an unopened session for userID.
func New(userID string, opts Options) *Session {
	s := &Session{
		userID: userID,
		opts:   opts,
		now:    time.Now,
		store:  chat.NewStore(),
	}
	s.match = matching.NewCoordinator(emitter{s}, s.openMatchedRoom)
	s.notifier = notify.NewDispatcher(opts.Notifier, s)
	return s
}

// Open requests notification permission, loads history, connects and joins.
// A connect failure is returned but leaves a usable session in which every
// emit is a no-op.
func (s *Session) Open(ctx context.Context) error {
	s.notifier.RequestPermission(ctx)
	s.LoadHistory(ctx)

	if s.opts.Transport == nil {
		return fmt.Errorf("session: no transport configured")
	}
	conn, err := s.opts.Transport.Connect(ctx, s.userID, transport.Handler{
		OnFrame: s.handleFrame,
		OnClose: s.handleClose,
	})
	if err != nil {
		log.Printf("[session] connect user=%s: %v", s.userID, err)
		return fmt.Errorf("session: connect: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		conn.Close()
		return nil
	}
	s.conn = conn
	metrics.Connected.Set(1)

	if err := s.emitLocked(protocol.TypeJoin, protocol.JoinMsg{UserID: s.userID}); err != nil {
		log.Printf("[session] join user=%s: %v", s.userID, err)
	}
	log.Printf("[session] opened user=%s", s.userID)
	return nil
}

// Close drops the connection and forgets all chat and match state. Later
// calls on the session are no-ops.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
		metrics.Connected.Set(0)
	}
	s.match.Reset()
	s.store.Reset()
	metrics.ActiveChats.Set(0)
	log.Printf("[session] closed user=%s", s.userID)
	return err
}

// LoadHistory replaces the chat list with the persisted history.
func (s *Session) LoadHistory(ctx context.Context) {
	var chats []chat.Chat
	if s.opts.History != nil {
		chats = s.opts.History.Load(ctx, s.userID)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	before := s.store.Appended()
	s.store.Replace(chats)
	s.unlockAndNotify(before)
}

// SendMessage sends text to the selected room's partner and appends it
// locally. It reports whether the message was sent; empty text, a missing
// connection or selection and a throttled user all make it a no-op.
func (s *Session) SendMessage(ctx context.Context, text string) bool {
	text, err := chat.ValidateMessage(text)
	if err != nil {
		return false
	}

	if s.opts.Limiter != nil {
		// The limiter may round-trip to Redis; keep inbound frames flowing.
		s.mu.Lock()
		_, ok := s.sendTargetLocked()
		s.mu.Unlock()
		if !ok {
			return false
		}
		if !s.opts.Limiter.AllowSend(ctx, s.userID) {
			metrics.MessagesTotal.WithLabelValues("throttled").Inc()
			return false
		}
	}

	s.mu.Lock()
	selected, ok := s.sendTargetLocked()
	if !ok {
		s.mu.Unlock()
		return false
	}

	before := s.store.Appended()
	err = s.emitLocked(protocol.TypePrivateMessage, protocol.PrivateMessageMsg{
		RecipientID: selected.PartnerID,
		Message:     text,
		RoomID:      selected.RoomID,
	})
	if err != nil {
		// Fire and forget: the local append still happens.
		log.Printf("[session] send room=%s: %v", selected.RoomID, err)
	}
	s.store.AppendOutgoing(chat.NewMessage(s.userID, selected.PartnerID, text, s.now()))
	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	s.unlockAndNotify(before)
	return true
}

// sendTargetLocked returns the selected room when a send is possible. The
// caller holds s.mu.
func (s *Session) sendTargetLocked() (chat.Chat, bool) {
	if s.closed || s.conn == nil || s.userID == "" {
		return chat.Chat{}, false
	}
	return s.store.Selected()
}

// SelectChat opens an existing room. Unknown rooms are ignored.
func (s *Session) SelectChat(roomID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	before := s.store.Appended()
	s.store.Select(roomID)
	s.unlockAndNotify(before)
}

// StartRandomMatch asks the server for a random partner.
func (s *Session) StartRandomMatch() { s.withMatch((*matching.Coordinator).Start) }

// AcceptRandomMatch accepts the proposed partner.
func (s *Session) AcceptRandomMatch() { s.withMatch((*matching.Coordinator).Accept) }

// RejectRandomMatch rejects the proposed partner and searches again.
func (s *Session) RejectRandomMatch() { s.withMatch((*matching.Coordinator).Reject) }

// CloseMatchPopup hides the matching surface without cancelling the search.
func (s *Session) CloseMatchPopup() { s.withMatch((*matching.Coordinator).Close) }

func (s *Session) withMatch(fn func(*matching.Coordinator)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	before := s.store.Appended()
	fn(s.match)
	s.unlockAndNotify(before)
}

// UserID returns the session's user.
func (s *Session) UserID() string { return s.userID }

// Connected reports whether the transport connection is open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Chats returns the chat list in display order.
func (s *Session) Chats() []chat.Chat { return s.store.Chats() }

// Selected returns the selected room.
func (s *Session) Selected() (chat.Chat, bool) { return s.store.Selected() }

// Messages returns the messages of the selected room.
func (s *Session) Messages() []chat.Message { return s.store.Messages() }

// Match returns a snapshot of the random-match state.
func (s *Session) Match() MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := MatchState{
		Phase:      s.match.Phase(),
		Status:     s.match.Status(),
		Accepted:   s.match.Accepted(),
		Visible:    s.match.Visible(),
		RoomID:     s.match.RoomID(),
		StatusText: s.match.StatusText(),
	}
	if u, ok := s.match.Candidate(); ok {
		st.Candidate = &u
	}
	return st
}

// handleFrame runs on the transport goroutine for every inbound frame.
func (s *Session) handleFrame(data []byte) {
	ev, err := protocol.ParseServerMessage(data)
	if err != nil {
		log.Printf("[session] dropping frame user=%s: %v", s.userID, err)
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	before := s.store.Appended()

	switch e := ev.(type) {
	case protocol.MessageEvent:
		msg := chat.NewMessage(e.SenderID, s.userID, e.Message, s.now())
		s.store.Receive(s.userID, msg)
		metrics.MessagesTotal.WithLabelValues("received").Inc()
	case protocol.MatchStatusEvent:
		s.match.HandleStatus(e)
	}

	s.unlockAndNotify(before)
}

// handleClose runs when the transport loses the connection.
func (s *Session) handleClose(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return
	}
	s.conn = nil
	metrics.Connected.Set(0)
	log.Printf("[session] connection lost user=%s: %v", s.userID, err)
}

// openMatchedRoom is the connected hand-off. It runs under the session lock.
func (s *Session) openMatchedRoom(user chat.ChatUser) {
	notice := chat.NewMessage(chat.SystemSenderID, s.userID, chat.ConnectedNotice, s.now())
	created := s.store.Open(chat.Chat{
		RoomID:      chat.RoomKey(s.userID, user.ID),
		PartnerID:   user.ID,
		User:        user,
		Messages:    []chat.Message{notice},
		LastMessage: notice,
		UnreadCount: 1,
	})
	log.Printf("[session] matched room=%s created=%t", chat.RoomKey(s.userID, user.ID), created)
}

// unlockAndNotify releases the lock and, when a message reached the mirror
// since before, lets the dispatcher look at it. Selecting a room never
// notifies. The dispatcher runs unlocked so a notification click can call
// back into the session.
func (s *Session) unlockAndNotify(before uint64) {
	changed := s.store.Appended() != before
	metrics.ActiveChats.Set(float64(s.store.Len()))

	var (
		selected *chat.Chat
		mirror   []chat.Message
	)
	if changed {
		if c, ok := s.store.Selected(); ok {
			selected = &c
		}
		mirror = s.store.Messages()
	}
	s.mu.Unlock()

	if changed {
		s.notifier.Observe(s.userID, selected, mirror)
	}
}

// emitLocked encodes and sends one frame. The caller holds s.mu.
func (s *Session) emitLocked(msgType string, payload interface{}) error {
	if s.conn == nil {
		return transport.ErrClosed
	}
	data, err := protocol.NewClientMessage(msgType, payload)
	if err != nil {
		return err
	}
	return s.conn.Send(data)
}

// emitter adapts the session to matching.Emitter. The coordinator only runs
// under the session lock, so these methods do not lock.
type emitter struct {
	s *Session
}

func (e emitter) Connected() bool { return e.s.conn != nil }

func (e emitter) Emit(msgType string, payload interface{}) error {
	return e.s.emitLocked(msgType, payload)
}
