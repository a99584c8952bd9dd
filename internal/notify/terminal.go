package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Terminal prints notifications to a writer. The CLI opens the most recent
// one with OpenLast.
type Terminal struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	last    func()
}

// NewTerminal creates a Terminal writing to w. A disabled Terminal denies
// permission.
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	return &Terminal{w: w, enabled: enabled}
}

func (t *Terminal) RequestPermission(context.Context) (Permission, error) {
	if !t.enabled {
		return PermissionDenied, nil
	}
	return PermissionGranted, nil
}

func (t *Terminal) Show(n Notification, onClick func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = onClick
	if _, err := fmt.Fprintf(t.w, "\a** %s: %s (/open to view)\n", n.Title, n.Body); err != nil {
		return fmt.Errorf("notify: write: %w", err)
	}
	return nil
}

// OpenLast activates the most recent notification. It reports false when
// there is none.
func (t *Terminal) OpenLast() bool {
	t.mu.Lock()
	click := t.last
	t.last = nil
	t.mu.Unlock()

	if click == nil {
		return false
	}
	click()
	return true
}
