package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parleychat/parley/internal/models"
)

// PostgresStore is the PostgreSQL message log backend, used when
// DATABASE_URL is configured.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}

	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		room TEXT NOT NULL,
		username TEXT NOT NULL,
		message TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_timestamp ON messages(room, timestamp);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append persists one message.
func (s *PostgresStore) Append(ctx context.Context, msg *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (room, username, message, timestamp)
		VALUES ($1, $2, $3, $4)
	`, msg.Room, msg.Username, msg.Body, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: append: %v", ErrStorage, err)
	}
	return nil
}

// History returns all messages for a room, oldest first.
func (s *PostgresStore) History(ctx context.Context, room string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT room, username, message, timestamp
		FROM messages
		WHERE room = $1
		ORDER BY timestamp ASC, id ASC
	`, room)
	if err != nil {
		return nil, fmt.Errorf("%w: history: %v", ErrStorage, err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.Room, &msg.Username, &msg.Body, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: history scan: %v", ErrStorage, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: history rows: %v", ErrStorage, err)
	}

	return messages, nil
}

// DeleteRoom removes all messages for a room and returns the rows deleted.
func (s *PostgresStore) DeleteRoom(ctx context.Context, room string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE room = $1`, room)
	if err != nil {
		return 0, fmt.Errorf("%w: delete room: %v", ErrStorage, err)
	}
	return tag.RowsAffected(), nil
}

// DistinctRooms returns the rooms that currently have at least one message.
func (s *PostgresStore) DistinctRooms(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT room FROM messages ORDER BY room`)
	if err != nil {
		return nil, fmt.Errorf("%w: distinct rooms: %v", ErrStorage, err)
	}
	defer rows.Close()

	rooms := make([]string, 0)
	for rows.Next() {
		var room string
		if err := rows.Scan(&room); err != nil {
			return nil, fmt.Errorf("%w: distinct rooms scan: %v", ErrStorage, err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: distinct rooms rows: %v", ErrStorage, err)
	}

	return rooms, nil
}
