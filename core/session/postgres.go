package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const (
	selectSessionSQL = `SELECT value FROM bot_sessions WHERE key = $1`
	upsertSessionSQL = `INSERT INTO bot_sessions (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
)

// PostgresStore keeps sessions in the bot_sessions table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open database handle. The schema comes from database.RunMigrations.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, chatID int64, field Field) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, selectSessionSQL, Key(chatID, field))
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select session %s: %w", Key(chatID, field), err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, chatID int64, field Field, value string) error {
	if _, err := s.db.ExecContext(ctx, upsertSessionSQL, Key(chatID, field), value); err != nil {
		return fmt.Errorf("upsert session %s: %w", Key(chatID, field), err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
