package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/orincore/CircleRJ/internal/chat"
)

// PostgresSource reads persisted messages from PostgreSQL.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource creates a source backed by the given database handle.
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	return db, nil
}

// MessagesFor returns every message userID sent or received, oldest first.
func (s *PostgresSource) MessagesFor(ctx context.Context, userID string) ([]chat.Message, error) {
	const query = `
		SELECT id, sender_id, recipient_id, content, "timestamp"
		FROM messages
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY "timestamp" ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("history: query messages: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var (
			m                 chat.Message
			sender, recipient sql.NullString
		)
		if err := rows.Scan(&m.ID, &sender, &recipient, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("history: scan message: %w", err)
		}
		m.SenderID = sender.String
		m.RecipientID = recipient.String
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate messages: %w", err)
	}
	return msgs, nil
}
