// Package matching negotiates a random pairing with a stranger. The
// Coordinator is a small state machine driven by user actions (start, accept,
// reject, close) and by randomMatchStatus events from the server; once both
// sides accept, it hands the matched user to its owner to open a room.
package matching

import (
	"log"
	"time"

	"github.com/orincore/CircleRJ/internal/chat"
	"github.com/orincore/CircleRJ/internal/metrics"
	"github.com/orincore/CircleRJ/internal/protocol"
)

// Status text shown while matching.
const (
	SearchingText = "Matching you with someone who shares your interests..."
	AcceptedText  = "Please wait till the other user accepts your request."
)

// Phase is the state of the match handshake.
type Phase int

const (
	PhaseIdle      Phase = iota // no match in progress
	PhaseSearching              // request sent, no status yet
	PhaseWaiting                // server queued the request
	PhasePending                // candidate proposed, awaiting decisions
	PhaseAccepted               // pending, and this side accepted
	PhaseConnected              // both sides accepted
	PhaseRejected               // the proposal was rejected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSearching:
		return "searching"
	case PhaseWaiting:
		return "waiting"
	case PhasePending:
		return "pending"
	case PhaseAccepted:
		return "accepted"
	case PhaseConnected:
		return "connected"
	case PhaseRejected:
		return "rejected"
	}
	return "unknown"
}

// Emitter sends frames on the live connection.
type Emitter interface {
	// Connected reports whether a connection is open.
	Connected() bool
	// Emit sends one frame of the given type.
	Emit(msgType string, payload interface{}) error
}

// Coordinator tracks one user's random-match handshake. It is not safe for
// concurrent use; the owning session serializes calls.
type Coordinator struct {
	emitter     Emitter
	onConnected func(user chat.ChatUser)
	now         func() time.Time

	phase      Phase
	candidate  *chat.ChatUser
	roomID     string
	visible    bool
	statusText string
	startedAt  time.Time
}

// NewCoordinator creates an idle Coordinator. onConnected runs when a
// connected status arrives for a known candidate.
func NewCoordinator(emitter Emitter, onConnected func(user chat.ChatUser)) *Coordinator {
	return &Coordinator{
		emitter:     emitter,
		onConnected: onConnected,
		now:         time.Now,
	}
}

// Start begins a new search: it forgets any previous candidate, shows the
// matching surface and sends findRandomMatch when connected.
func (c *Coordinator) Start() {
	c.candidate = nil
	c.roomID = ""
	c.phase = PhaseSearching
	c.statusText = SearchingText
	c.visible = true
	c.startedAt = c.now()

	c.emit(protocol.TypeFindRandomMatch, protocol.FindRandomMatchMsg{})
	log.Printf("[matching] search started")
}

// HandleStatus applies a status update from the server. The room id and
// matched user are recorded whenever present, regardless of phase.
func (c *Coordinator) HandleStatus(ev protocol.MatchStatusEvent) {
	metrics.MatchTransitions.WithLabelValues(ev.Status).Inc()

	if ev.RoomID != "" {
		c.roomID = ev.RoomID
	}
	if ev.MatchedUser != nil {
		u := chat.ResolveUser(chat.ChatUser{
			ID:     ev.MatchedUser.ID,
			Name:   ev.MatchedUser.Name,
			Avatar: ev.MatchedUser.Avatar,
		})
		c.candidate = &u
	}

	switch ev.Status {
	case protocol.StatusWaiting:
		if c.phase != PhaseAccepted {
			c.phase = PhaseWaiting
		}
	case protocol.StatusPending:
		if c.phase != PhaseAccepted {
			c.phase = PhasePending
		}
	case protocol.StatusRejected:
		c.phase = PhaseRejected
	case protocol.StatusConnected:
		c.phase = PhaseConnected
		if c.candidate == nil {
			log.Printf("[matching] connected without a matched user room=%q", c.roomID)
			return
		}
		c.connect()
	}
}

// connect hands the candidate to the owner, then hides the matching surface
// and forgets the match room.
func (c *Coordinator) connect() {
	if !c.startedAt.IsZero() {
		metrics.MatchDuration.Observe(c.now().Sub(c.startedAt).Seconds())
		c.startedAt = time.Time{}
	}
	log.Printf("[matching] connected with user=%s", c.candidate.ID)

	if c.onConnected != nil {
		c.onConnected(*c.candidate)
	}
	c.visible = false
	c.roomID = ""
}

// Accept accepts the proposed candidate. It is a no-op unless a candidate, a
// room and a connection exist and this side has not accepted yet. A rejected
// proposal keeps its candidate and room and may be accepted again.
func (c *Coordinator) Accept() {
	if c.candidate == nil || c.roomID == "" || !c.connected() {
		return
	}
	if c.phase == PhaseAccepted {
		return
	}

	c.emit(protocol.TypeRandomMatchAccept, protocol.MatchDecisionMsg{RoomID: c.roomID})
	c.phase = PhaseAccepted
	c.statusText = AcceptedText
	log.Printf("[matching] accepted room=%s", c.roomID)
}

// Reject declines the candidate, if any, and immediately searches again.
func (c *Coordinator) Reject() {
	if c.candidate != nil && c.roomID != "" && c.connected() {
		c.emit(protocol.TypeRandomMatchReject, protocol.MatchDecisionMsg{RoomID: c.roomID})
		log.Printf("[matching] rejected room=%s", c.roomID)
	}
	c.candidate = nil
	c.Start()
}

// Close hides the matching surface. The queued request and any pending
// match stay alive.
func (c *Coordinator) Close() {
	c.visible = false
}

// Reset forgets everything and returns to idle.
func (c *Coordinator) Reset() {
	*c = Coordinator{
		emitter:     c.emitter,
		onConnected: c.onConnected,
		now:         c.now,
	}
}

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase { return c.phase }

// Status returns the wire status: "none" before any update, otherwise one of
// waiting, pending, connected or rejected.
func (c *Coordinator) Status() string {
	switch c.phase {
	case PhaseWaiting:
		return protocol.StatusWaiting
	case PhasePending, PhaseAccepted:
		return protocol.StatusPending
	case PhaseConnected:
		return protocol.StatusConnected
	case PhaseRejected:
		return protocol.StatusRejected
	}
	return "none"
}

// Accepted reports whether this side accepted the current candidate.
func (c *Coordinator) Accepted() bool { return c.phase == PhaseAccepted }

// Visible reports whether the matching surface is shown.
func (c *Coordinator) Visible() bool { return c.visible }

// Candidate returns the proposed user, if any.
func (c *Coordinator) Candidate() (chat.ChatUser, bool) {
	if c.candidate == nil {
		return chat.ChatUser{}, false
	}
	return *c.candidate, true
}

// RoomID returns the server's match room id, or "".
func (c *Coordinator) RoomID() string { return c.roomID }

// StatusText returns the human-readable progress line.
func (c *Coordinator) StatusText() string { return c.statusText }

func (c *Coordinator) connected() bool {
	return c.emitter != nil && c.emitter.Connected()
}

func (c *Coordinator) emit(msgType string, payload interface{}) {
	if !c.connected() {
		return
	}
	if err := c.emitter.Emit(msgType, payload); err != nil {
		log.Printf("[matching] emit %s: %v", msgType, err)
	}
}
