// Package history rebuilds a user's conversations from persisted messages.
// The Loader groups a flat, time-ordered message list into chats; the
// Postgres source and migrations back it in production.
package history

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/orincore/CircleRJ/internal/chat"
	"github.com/orincore/CircleRJ/internal/metrics"
)

// Source returns every persisted message the user sent or received, in
// ascending timestamp order.
type Source interface {
	MessagesFor(ctx context.Context, userID string) ([]chat.Message, error)
}

// Loader turns a Source into reconstructed chats.
type Loader struct {
	source Source
}

// NewLoader creates a Loader reading from source.
func NewLoader(source Source) *Loader {
	return &Loader{source: source}
}

// Load fetches and groups the user's history. It fails soft: a source error
// or an empty result yields no chats and no error, and the caller keeps an
// empty list.
func (l *Loader) Load(ctx context.Context, userID string) []chat.Chat {
	start := time.Now()
	defer func() { metrics.HistoryLoadDuration.Observe(time.Since(start).Seconds()) }()

	if l.source == nil || userID == "" {
		return nil
	}

	msgs, err := l.source.MessagesFor(ctx, userID)
	if err != nil {
		log.Printf("[history] load user=%s: %v", userID, err)
		return nil
	}
	chats := Group(userID, msgs)
	log.Printf("[history] loaded user=%s messages=%d chats=%d", userID, len(msgs), len(chats))
	return chats
}

// Group buckets msgs by room, from the point of view of userID. Rows missing
// a sender or recipient are skipped. Each chat's messages keep their
// timestamp order, unread counts start at zero and chats are ordered by most
// recent last message first; ties keep first-seen order.
func Group(userID string, msgs []chat.Message) []chat.Chat {
	ordered := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID == "" || m.RecipientID == "" {
			log.Printf("[history] skipping invalid message id=%q sender=%q recipient=%q", m.ID, m.SenderID, m.RecipientID)
			continue
		}
		ordered = append(ordered, m)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var (
		rooms  []string
		byRoom = make(map[string][]chat.Message)
	)
	for _, m := range ordered {
		roomID := chat.RoomKey(userID, chat.Counterpart(userID, m))
		if _, ok := byRoom[roomID]; !ok {
			rooms = append(rooms, roomID)
		}
		byRoom[roomID] = append(byRoom[roomID], m)
	}

	chats := make([]chat.Chat, 0, len(rooms))
	for _, roomID := range rooms {
		roomMsgs := byRoom[roomID]
		last := roomMsgs[len(roomMsgs)-1]
		partner := chat.Counterpart(userID, last)
		chats = append(chats, chat.Chat{
			RoomID:      roomID,
			PartnerID:   partner,
			User:        chat.DeriveUser(partner),
			Messages:    roomMsgs,
			LastMessage: last,
		})
	}

	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].LastMessage.Timestamp.After(chats[j].LastMessage.Timestamp)
	})
	return chats
}
