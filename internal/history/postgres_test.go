package history

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/orincore/CircleRJ/internal/chat"
)

// newTestSource connects to the database named by DATABASE_URL, applies the
// migrations and returns a source. Tests are skipped when it is unset or
// unreachable.
func newTestSource(t *testing.T) *PostgresSource {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping PostgreSQL test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Running twice must be a no-op.
	if err := Migrate(dsn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	return NewPostgresSource(db)
}

// insertMessage writes m as the messaging server would.
func insertMessage(t *testing.T, src *PostgresSource, m chat.Message) {
	t.Helper()
	const query = `
		INSERT INTO messages (id, sender_id, recipient_id, content, "timestamp")
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := src.db.ExecContext(context.Background(), query, m.ID, m.SenderID, m.RecipientID, m.Content, m.Timestamp); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestPostgresSource_MessagesFor(t *testing.T) {
	src := newTestSource(t)
	ctx := context.Background()

	// Unique ids keep runs independent without truncating the table.
	a := "pga_" + uuid.NewString()[:8]
	b := "pgb_" + uuid.NewString()[:8]
	c := "pgc_" + uuid.NewString()[:8]
	now := time.Now().UTC().Truncate(time.Millisecond)

	rows := []chat.Message{
		chat.NewMessage(a, b, "first", now),
		chat.NewMessage(b, a, "second", now.Add(time.Second)),
		chat.NewMessage(b, c, "unrelated", now.Add(2*time.Second)),
	}
	for _, m := range rows {
		insertMessage(t, src, m)
	}

	msgs, err := src.MessagesFor(ctx, a)
	if err != nil {
		t.Fatalf("MessagesFor: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "first" || msgs[1].Content != "second" {
		t.Errorf("unexpected order: %q, %q", msgs[0].Content, msgs[1].Content)
	}
	if msgs[0].ID != rows[0].ID || !msgs[0].Timestamp.Equal(now) {
		t.Errorf("row not round-tripped: %+v", msgs[0])
	}

	chats := NewLoader(src).Load(ctx, a)
	if len(chats) != 1 || chats[0].PartnerID != b || len(chats[0].Messages) != 2 {
		t.Fatalf("unexpected chats: %+v", chats)
	}
}
