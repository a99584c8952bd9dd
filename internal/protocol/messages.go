// Package protocol defines the realtime frames exchanged between the chat
// client and the messaging server. Every frame is a JSON object carrying a
// "type" discriminator; inbound frames are validated here and surfaced as a
// closed set of Event values so malformed input never reaches the session.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/orincore/CircleRJ/internal/chat"
)

// ---------------------------------------------------------------------------
// Frame type constants
// ---------------------------------------------------------------------------

// Client -> Server frame types.
const (
	TypeJoin              = "join"
	TypeFindRandomMatch   = "findRandomMatch"
	TypeRandomMatchAccept = "randomMatchAccept"
	TypeRandomMatchReject = "randomMatchReject"
)

// TypePrivateMessage is used in both directions with different payloads.
const TypePrivateMessage = "privateMessage"

// Server -> Client frame types.
const (
	TypeRandomMatchStatus = "randomMatchStatus"
)

// Match status values carried by randomMatchStatus.
const (
	StatusWaiting   = "waiting"
	StatusPending   = "pending"
	StatusConnected = "connected"
	StatusRejected  = "rejected"
)

// ErrMalformed is wrapped by every error ParseServerMessage returns for a
// frame that fails boundary validation.
var ErrMalformed = errors.New("protocol: malformed frame")

// ---------------------------------------------------------------------------
// Envelope: used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the frame type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so the rest of the payload can be decoded later.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server payloads
// ---------------------------------------------------------------------------

// JoinMsg registers the connection under the signed-in user id.
type JoinMsg struct {
	UserID string `json:"userId"`
}

// PrivateMessageMsg carries an outbound message to one recipient.
type PrivateMessageMsg struct {
	RecipientID string `json:"recipientId"`
	Message     string `json:"message"`
	RoomID      string `json:"roomId"`
}

// FindRandomMatchMsg enqueues the user for a random match.
type FindRandomMatchMsg struct{}

// MatchDecisionMsg accepts or rejects the proposed match room.
type MatchDecisionMsg struct {
	RoomID string `json:"roomId"`
}

// ---------------------------------------------------------------------------
// Server -> Client events
// ---------------------------------------------------------------------------

// Event is a validated inbound frame. The set of implementations is closed:
// MessageEvent and MatchStatusEvent.
type Event interface {
	eventType() string
}

// MessageEvent is an inbound private message.
type MessageEvent struct {
	SenderID string `json:"senderId"`
	Message  string `json:"message"`
}

func (MessageEvent) eventType() string { return TypePrivateMessage }

// MatchedUser is the partner proposed by a random-match status update.
type MatchedUser struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// MatchStatusEvent reports a transition of the random-match flow. RoomID and
// MatchedUser are optional.
type MatchStatusEvent struct {
	Status      string       `json:"status"`
	RoomID      string       `json:"roomId,omitempty"`
	MatchedUser *MatchedUser `json:"matchedUser,omitempty"`
}

func (MatchStatusEvent) eventType() string { return TypeRandomMatchStatus }

// ValidStatus reports whether s is a known match status.
func ValidStatus(s string) bool {
	switch s {
	case StatusWaiting, StatusPending, StatusConnected, StatusRejected:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseServerMessage parses raw transport bytes into a validated Event.
// Unknown types, missing required fields, unknown statuses and user ids that
// cannot form a room key are all reported as errors wrapping ErrMalformed.
func ParseServerMessage(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypePrivateMessage:
		var m MessageEvent
		if err := json.Unmarshal(env.Raw, &m); err != nil {
			return nil, fmt.Errorf("%w: decode %q payload: %v", ErrMalformed, env.Type, err)
		}
		if m.SenderID == "" || m.Message == "" {
			return nil, fmt.Errorf("%w: %q requires senderId and message", ErrMalformed, env.Type)
		}
		if !chat.ValidUserID(m.SenderID) {
			return nil, fmt.Errorf("%w: invalid senderId %q", ErrMalformed, m.SenderID)
		}
		return m, nil

	case TypeRandomMatchStatus:
		var m MatchStatusEvent
		if err := json.Unmarshal(env.Raw, &m); err != nil {
			return nil, fmt.Errorf("%w: decode %q payload: %v", ErrMalformed, env.Type, err)
		}
		if !ValidStatus(m.Status) {
			return nil, fmt.Errorf("%w: unknown match status %q", ErrMalformed, m.Status)
		}
		if m.MatchedUser != nil && m.MatchedUser.ID == "" {
			return nil, fmt.Errorf("%w: matchedUser without id", ErrMalformed)
		}
		if m.MatchedUser != nil && !chat.ValidUserID(m.MatchedUser.ID) {
			return nil, fmt.Errorf("%w: invalid matchedUser id %q", ErrMalformed, m.MatchedUser.ID)
		}
		return m, nil

	default:
		return nil, fmt.Errorf("%w: unknown server message type %q", ErrMalformed, env.Type)
	}
}

// NewClientMessage creates the JSON bytes of an outbound frame. msgType is
// injected into the payload under the "type" key; payload may be nil for
// frames without fields.
func NewClientMessage(msgType string, payload interface{}) ([]byte, error) {
	m := make(map[string]interface{})
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
		}
		if m == nil {
			m = make(map[string]interface{})
		}
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal client message: %w", err)
	}
	return out, nil
}
