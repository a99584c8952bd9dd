// Package chat holds the reconciled, in-memory view of a user's private
// conversations: room identity, the message and partner model, and the
// Store that live events and history loads mutate.
package chat

import "strings"

// RoomDelimiter joins the two participant ids of a room key.
const RoomDelimiter = "-"

// RoomKey returns the canonical key of the two-party room between a and b.
// The key is order-independent: RoomKey(a, b) == RoomKey(b, a).
//
// Keys are never persisted, so every caller must derive them through this
// function. Two distinct unordered pairs map to distinct keys as long as
// user ids are unique and never contain RoomDelimiter.
func RoomKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + RoomDelimiter + b
}

// Counterpart returns the participant of msg that is not self. For a message
// self sent to itself it returns self.
func Counterpart(self string, msg Message) string {
	if msg.SenderID == self {
		return msg.RecipientID
	}
	return msg.SenderID
}

// ValidUserID reports whether id satisfies the RoomKey precondition.
func ValidUserID(id string) bool {
	return id != "" && !strings.Contains(id, RoomDelimiter)
}
