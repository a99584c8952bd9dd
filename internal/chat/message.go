package chat

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxMessageBytes = 4096 // 4KB max frame size
	MaxTextChars    = 2000 // max character count

	// SystemSenderID authors locally generated notices such as the
	// random-match connect message.
	SystemSenderID = "system"

	// ConnectedNotice is the sole initial message of a room opened by a
	// completed random match.
	ConnectedNotice = "You are now connected!"

	avatarBaseURL = "https://ui-avatars.com/api/"
)

// Message is a single private message. It is immutable once created.
type Message struct {
	ID          string    `json:"id,omitempty"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewMessage builds a locally originated message with a fresh id.
func NewMessage(from, to, content string, ts time.Time) Message {
	return Message{
		ID:          uuid.New().String(),
		SenderID:    from,
		RecipientID: to,
		Content:     content,
		Timestamp:   ts,
	}
}

// ChatUser is the display identity of a conversation partner.
type ChatUser struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// DeriveUser synthesizes the display identity for a partner known only by id.
// History reconstruction and live events both go through it, so the same id
// always yields the same name and avatar.
func DeriveUser(id string) ChatUser {
	tail := idTail(id)
	return ChatUser{
		ID:     id,
		Name:   "User " + tail,
		Avatar: AvatarURL(tail),
	}
}

// ResolveUser fills the blanks of a user supplied by a match event. A missing
// name falls back to the derived name; a missing avatar is seeded by the name
// if one was supplied, otherwise by the id.
func ResolveUser(u ChatUser) ChatUser {
	out := u
	if out.Name == "" {
		out.Name = DeriveUser(u.ID).Name
	}
	if out.Avatar == "" {
		seed := u.Name
		if seed == "" {
			seed = u.ID
		}
		out.Avatar = AvatarURL(seed)
	}
	return out
}

// AvatarURL returns the generated avatar for seed.
func AvatarURL(seed string) string {
	return avatarBaseURL + "?name=" + url.QueryEscape(seed) + "&background=random"
}

func idTail(id string) string {
	r := []rune(id)
	if len(r) <= 4 {
		return id
	}
	return string(r[len(r)-4:])
}

// ValidateMessage checks outbound text and returns it trimmed of surrounding
// whitespace. Whitespace-only text is rejected as empty.
func ValidateMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return "", fmt.Errorf("message text is empty")
	}
	if len(text) > MaxMessageBytes {
		return "", fmt.Errorf("message exceeds %d byte limit", MaxMessageBytes)
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("message contains invalid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return "", fmt.Errorf("message exceeds %d character limit", MaxTextChars)
	}
	return text, nil
}
