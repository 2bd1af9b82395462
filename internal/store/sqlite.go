package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/parleychat/parley/internal/models"
)

// SQLiteStore is the default message log backend, backed by a local SQLite
// database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/parley.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/parley.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room TEXT NOT NULL,
		username TEXT NOT NULL,
		message TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_timestamp ON messages(room, timestamp);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append persists one message.
func (s *SQLiteStore) Append(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (room, username, message, timestamp)
		VALUES (?, ?, ?, ?)
	`, msg.Room, msg.Username, msg.Body, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: append: %v", ErrStorage, err)
	}
	return nil
}

// History returns all messages for a room, oldest first. Rows with equal
// timestamps come back in insertion order via the id tiebreak.
func (s *SQLiteStore) History(ctx context.Context, room string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room, username, message, timestamp
		FROM messages
		WHERE room = ?
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
func (s *SQLiteStore) DeleteRoom(ctx context.Context, room string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE room = ?`, room)
	if err != nil {
		return 0, fmt.Errorf("%w: delete room: %v", ErrStorage, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: delete room: %v", ErrStorage, err)
	}
	return count, nil
}

// DistinctRooms returns the rooms that currently have at least one message.
func (s *SQLiteStore) DistinctRooms(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT room FROM messages ORDER BY room`)
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
