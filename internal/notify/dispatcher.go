// Package notify raises a notification when a message from the partner lands
// in the open conversation. The notification surface is abstracted as a
// Platform; Terminal is the implementation used by the CLI.
package notify

import (
	"context"
	"log"
	"sync"

	"github.com/orincore/CircleRJ/internal/chat"
	"github.com/orincore/CircleRJ/internal/metrics"
)

// Permission is the platform's answer to a notification permission request.
type Permission int

const (
	PermissionDefault Permission = iota // not asked yet
	PermissionGranted
	PermissionDenied
	PermissionUnsupported
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	case PermissionUnsupported:
		return "unsupported"
	}
	return "default"
}

// Notification is one alert to show.
type Notification struct {
	Title  string
	Body   string
	Icon   string
	RoomID string
}

// Platform shows notifications.
type Platform interface {
	RequestPermission(ctx context.Context) (Permission, error)
	// Show displays n. onClick runs if the user activates it.
	Show(n Notification, onClick func()) error
}

// Selector opens a room when a notification is clicked. Unknown rooms are
// ignored by the implementation.
type Selector interface {
	SelectChat(roomID string)
}

// Dispatcher decides whether a mirror change deserves a notification.
type Dispatcher struct {
	platform Platform
	selector Selector

	once       sync.Once
	mu         sync.Mutex
	permission Permission
}

// NewDispatcher creates a Dispatcher. platform may be nil, in which case
// every dispatch is skipped.
func NewDispatcher(platform Platform, selector Selector) *Dispatcher {
	return &Dispatcher{platform: platform, selector: selector}
}

// RequestPermission asks the platform for permission. Only the first call
// reaches the platform; errors count as a denial.
func (d *Dispatcher) RequestPermission(ctx context.Context) Permission {
	d.once.Do(func() {
		perm := PermissionUnsupported
		if d.platform != nil {
			p, err := d.platform.RequestPermission(ctx)
			if err != nil {
				log.Printf("[notify] permission request failed: %v", err)
				p = PermissionDenied
			}
			perm = p
		}
		log.Printf("[notify] permission: %s", perm)

		d.mu.Lock()
		d.permission = perm
		d.mu.Unlock()
	})
	return d.Permission()
}

// Permission returns the recorded permission.
func (d *Dispatcher) Permission() Permission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.permission
}

// Observe is called after the mirror of the selected room changed. When the
// newest message was not sent by selfID it shows "New message from <name>".
// selected is nil when no room is selected.
func (d *Dispatcher) Observe(selfID string, selected *chat.Chat, mirror []chat.Message) {
	if selected == nil || len(mirror) == 0 {
		return
	}
	last := mirror[len(mirror)-1]
	if last.SenderID == selfID {
		return
	}
	if d.platform == nil || d.Permission() != PermissionGranted {
		metrics.NotificationsTotal.WithLabelValues("skipped").Inc()
		return
	}

	icon := selected.User.Avatar
	if icon == "" {
		icon = chat.AvatarURL(selected.User.Name)
	}
	n := Notification{
		Title:  "New message from " + selected.User.Name,
		Body:   last.Content,
		Icon:   icon,
		RoomID: selected.RoomID,
	}

	roomID := selected.RoomID
	onClick := func() {
		if d.selector != nil {
			d.selector.SelectChat(roomID)
		}
	}
	if err := d.platform.Show(n, onClick); err != nil {
		log.Printf("[notify] show room=%s: %v", roomID, err)
		metrics.NotificationsTotal.WithLabelValues("skipped").Inc()
		return
	}
	metrics.NotificationsTotal.WithLabelValues("shown").Inc()
}
