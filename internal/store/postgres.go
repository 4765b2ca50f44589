package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antoniostano/meera/internal/chat"
)

// PostgresStore persists chat messages in PostgreSQL, one row per message.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL,
			message_type TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_user_ts ON chat_messages (username, timestamp);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, username string) ([]chat.Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT message_type, content, timestamp
		 FROM chat_messages WHERE username=$1 ORDER BY timestamp ASC, id ASC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrStorage, username, err)
	}
	defer rows.Close()

	var turns []chat.Turn
	for rows.Next() {
		var (
			messageType string
			content     string
			ts          time.Time
		)
		if err := rows.Scan(&messageType, &content, &ts); err != nil {
			return nil, fmt.Errorf("%w: scan row for %s: %v", ErrStorage, username, err)
		}
		turns = append(turns, chat.Turn{
			Seq:       len(turns),
			Role:      chat.RoleForType(chat.EntryType(messageType)),
			Content:   content,
			Timestamp: ts,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate rows for %s: %v", ErrStorage, username, err)
	}
	return turns, nil
}

// Append writes all turns in one transaction so an exchange lands as a
// complete pair or not at all.
func (s *PostgresStore) Append(ctx context.Context, username string, turns ...chat.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin for %s: %v", ErrStorage, username, err)
	}
	defer tx.Rollback(ctx)

	for _, t := range turns {
		ts := t.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		entry := t.History()
		_, err := tx.Exec(ctx,
			`INSERT INTO chat_messages (username, message_type, content, timestamp)
			 VALUES ($1, $2, $3, $4)`,
			username,
			string(entry.Type),
			entry.Content,
			ts,
		)
		if err != nil {
			return fmt.Errorf("%w: insert for %s: %v", ErrStorage, username, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit for %s: %v", ErrStorage, username, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
