package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/orincore/CircleRJ/internal/chat"
	"github.com/orincore/CircleRJ/internal/identity"
)

// Manager keeps exactly one session alive for the signed-in user. It is
// driven by identity updates.
type Manager struct {
	opts Options

	mu      sync.Mutex
	current *Session
}

// NewManager creates a Manager whose sessions share opts.
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts}
}

// Apply reconciles the live session with id. While the identity is loading
// nothing changes; signing out closes the session; signing in as a different
// user replaces it. Re-applying the current user is a no-op.
func (m *Manager) Apply(ctx context.Context, id identity.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !id.IsLoaded {
		return nil
	}
	if !id.Ready() {
		m.closeLocked()
		return nil
	}
	if m.current != nil && m.current.UserID() == id.ID {
		return nil
	}
	if !chat.ValidUserID(id.ID) {
		m.closeLocked()
		return fmt.Errorf("session: invalid user id %q", id.ID)
	}

	m.closeLocked()
	s := New(id.ID, m.opts)
	m.current = s
	log.Printf("[session] signing in user=%s", id.ID)
	return s.Open(ctx)
}

// Current returns the live session, or nil when signed out.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close closes the live session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	if m.current == nil {
		return
	}
	if err := m.current.Close(); err != nil {
		log.Printf("[session] close user=%s: %v", m.current.UserID(), err)
	}
	m.current = nil
}
