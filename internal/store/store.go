package store

import (
	"context"
	"errors"

	"github.com/parleychat/parley/internal/models"
)

// ErrStorage wraps backend I/O failures so callers can recognize them with
// errors.Is without caring which engine is configured. Storage failures are
// never fatal to the process; the coordinator logs them and drops the
// triggering action.
var ErrStorage = errors.New("storage failure")

// MessageStore defines the interface for the durable room message log.
// SQLiteStore, PostgresStore and RedisStore all implement this interface;
// the backend is chosen at startup from configuration.
//
// All operations are synchronous write-through: when a call returns nil the
// effect is durable. History reads are point-in-time snapshots ordered
// ascending by timestamp, ties broken by insertion order.
type MessageStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Append persists one message. Existing rows are never mutated.
	Append(ctx context.Context, msg *models.Message) error

	// History returns all messages for a room in ascending timestamp
	// order. An unknown room yields an empty slice, not an error.
	History(ctx context.Context, room string) ([]models.Message, error)

	// DeleteRoom removes every message for a room and reports how many
	// rows were deleted. Deleting an empty room succeeds with count 0.
	DeleteRoom(ctx context.Context, room string) (int64, error)

	// DistinctRooms returns the set of rooms that currently have at
	// least one persisted message.
	DistinctRooms(ctx context.Context) ([]string, error)
}
