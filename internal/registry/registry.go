// Package registry tracks which connection is bound to which (username,
// room) pair. It is the in-memory membership map behind room broadcasts:
// not persisted, rebuilt empty on restart, with connections expected to
// re-join.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/models"
)

// Registry maps connection IDs to their current Session. All mutations go
// through the coordinator's event loop, but the map is mutex-guarded anyway
// so HTTP-side readers (health, stats) can inspect it safely.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]models.Session
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]models.Session),
	}
}

// Join upserts the Session for a connection. A connection that was already
// in a different room is silently rebound to the new one; no leave is
// synthesized for the old room. That mirrors the relay's long-standing
// re-join behavior, which clients depend on.
func (r *Registry) Join(connID uuid.UUID, username, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connID] = models.Session{ConnID: connID, Username: username, Room: room}
}

// Leave removes the connection's Session only if it is currently bound to
// the given room. A leave for a room the connection is not in is a no-op.
func (r *Registry) Leave(connID uuid.UUID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[connID]; ok && sess.Room == room {
		delete(r.sessions, connID)
	}
}

// Disconnect removes and returns the connection's Session. The second
// return is false if the connection had never joined a room.
func (r *Registry) Disconnect(connID uuid.UUID) (models.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[connID]
	if ok {
		delete(r.sessions, connID)
	}
	return sess, ok
}

// Get returns the connection's current Session, if any.
func (r *Registry) Get(connID uuid.UUID) (models.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[connID]
	return sess, ok
}

// InRoom returns the IDs of every connection currently joined to the room.
func (r *Registry) InRoom(room string) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []uuid.UUID
	for id, sess := range r.sessions {
		if sess.Room == room {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
