package chat

import "sync"

// Chat is the reconciled view of one room. LastMessage always equals the
// final element of Messages, which are kept in arrival order.
type Chat struct {
	RoomID      string
	PartnerID   string
	User        ChatUser
	Messages    []Message
	LastMessage Message
	UnreadCount int
}

func (c *Chat) clone() Chat {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	return out
}

func (c *Chat) append(msg Message) {
	c.Messages = append(c.Messages, msg)
	c.LastMessage = msg
}

// Store is the in-memory state of every conversation of the signed-in user:
// the ordered room list, the selected room and a mirror of the selected
// room's messages for the open view. It is goroutine-safe; callers that need
// several operations to appear atomic serialize them themselves.
type Store struct {
	mu       sync.RWMutex
	chats    []*Chat
	byRoom   map[string]*Chat
	selected string // room id, empty when nothing is selected
	messages []Message
	version  uint64 // bumped on every mirror change
	appended uint64 // bumped when a message is appended to the mirror
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{byRoom: make(map[string]*Chat)}
}

// Replace swaps the whole room list for chats, in the given order. A selected
// room that survives the replace stays selected and is re-mirrored; otherwise
// the first room becomes selected.
func (s *Store) Replace(chats []Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chats = make([]*Chat, 0, len(chats))
	s.byRoom = make(map[string]*Chat, len(chats))
	for i := range chats {
		c := chats[i].clone()
		s.chats = append(s.chats, &c)
		s.byRoom[c.RoomID] = &c
	}

	if _, ok := s.byRoom[s.selected]; !ok {
		s.selected = ""
		s.messages = nil
	}
	if s.selected == "" && len(s.chats) > 0 {
		s.selectLocked(s.chats[0].RoomID)
		return
	}
	if s.selected != "" {
		s.messages = append([]Message(nil), s.byRoom[s.selected].Messages...)
		s.version++
	}
}

// Receive reconciles an inbound message addressed to self. The room is keyed
// by RoomKey(self, sender). An existing room gets the message appended and
// its unread count bumped unless it is selected; an unknown partner gets a
// new room with one unread message at the head of the list. The returned
// Chat is a snapshot after the update.
func (s *Store) Receive(self string, msg Message) (Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID := RoomKey(self, msg.SenderID)
	isSelected := roomID == s.selected

	c, ok := s.byRoom[roomID]
	if ok {
		c.append(msg)
		if isSelected {
			c.UnreadCount = 0
		} else {
			c.UnreadCount++
		}
	} else {
		c = &Chat{
			RoomID:      roomID,
			PartnerID:   msg.SenderID,
			User:        DeriveUser(msg.SenderID),
			Messages:    []Message{msg},
			LastMessage: msg,
			UnreadCount: 1,
		}
		s.prependLocked(c)
	}

	if isSelected {
		s.messages = append(s.messages, msg)
		s.version++
		s.appended++
	}
	return c.clone(), !ok
}

// AppendOutgoing appends a message sent by the user to the selected room and
// the mirror. It reports false when no room is selected.
func (s *Store) AppendOutgoing(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byRoom[s.selected]
	if !ok {
		return false
	}
	c.append(msg)
	s.messages = append(s.messages, msg)
	s.version++
	s.appended++
	return true
}

// Select makes roomID the selected room, clears its unread count and mirrors
// its messages. Unknown rooms are ignored.
func (s *Store) Select(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byRoom[roomID]; !ok {
		return false
	}
	s.selectLocked(roomID)
	return true
}

// Open adds c at the head of the list unless a room with the same id exists,
// then selects that room. It reports whether a room was created; only a new
// room counts as appended messages.
func (s *Store) Open(c Chat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.byRoom[c.RoomID]
	if !exists {
		nc := c.clone()
		s.prependLocked(&nc)
	}
	s.selectLocked(c.RoomID)
	if !exists {
		s.appended++
	}
	return !exists
}

// Reset empties the store.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chats = nil
	s.byRoom = make(map[string]*Chat)
	s.selected = ""
	s.messages = nil
	s.version++
}

// Chats returns a snapshot of the room list in display order.
func (s *Store) Chats() []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, c.clone())
	}
	return out
}

// Chat returns a snapshot of the room with the given id.
func (s *Store) Chat(roomID string) (Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byRoom[roomID]
	if !ok {
		return Chat{}, false
	}
	return c.clone(), true
}

// Selected returns a snapshot of the selected room.
func (s *Store) Selected() (Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byRoom[s.selected]
	if !ok {
		return Chat{}, false
	}
	return c.clone(), true
}

// Messages returns a copy of the selected room mirror.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// MirrorVersion changes whenever the mirror returned by Messages changes.
func (s *Store) MirrorVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Appended changes whenever a message lands in the mirror. Selecting a room
// or replacing the list changes the mirror but not this counter.
func (s *Store) Appended() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appended
}

// Len returns the number of rooms.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats)
}

func (s *Store) selectLocked(roomID string) {
	c := s.byRoom[roomID]
	c.UnreadCount = 0
	s.selected = roomID
	s.messages = append([]Message(nil), c.Messages...)
	s.version++
}

func (s *Store) prependLocked(c *Chat) {
	s.chats = append([]*Chat{c}, s.chats...)
	s.byRoom[c.RoomID] = c
}
