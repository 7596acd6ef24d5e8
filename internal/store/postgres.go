package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/zhouzirui/relay-chat/backend/internal/model/chat"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS chat_messages_created_at_idx ON chat_messages (created_at DESC);`

// PostgresStore keeps messages in the chat_messages table.
type PostgresStore struct {
	pool  *pgxpool.Pool
	limit int
}

// OpenPostgres connects to url and makes sure the schema exists.
func OpenPostgres(ctx context.Context, url string, limit int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "migrate postgres")
	}
	return &PostgresStore{pool: pool, limit: normalizeLimit(limit)}, nil
}

func (s *PostgresStore) SaveMessage(ctx context.Context, msg chat.Message) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, username, message, created_at) VALUES ($1, $2, $3, $4)`,
		msg.ID, msg.Username, msg.Text, msg.Timestamp)
	return errors.Wrap(err, "insert message")
}

func (s *PostgresStore) RecentMessages(ctx context.Context) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, message, created_at FROM chat_messages ORDER BY created_at DESC LIMIT $1`,
		s.limit)
	if err != nil {
		return nil, errors.Wrap(err, "query messages")
	}
	messages, err := pgx.CollectRows[chat.Message](rows, func(row pgx.CollectableRow) (chat.Message, error) {
		var msg chat.Message
		err := row.Scan(&msg.ID, &msg.Username, &msg.Text, &msg.Timestamp)
		return msg, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan messages")
	}
	return lo.Reverse(messages), nil
}

func (s *PostgresStore) ClearMessages(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chat_messages`)
	return errors.Wrap(err, "delete messages")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
