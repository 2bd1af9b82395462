package relay

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/registry"
)

func newTestRouter() (*Router, *registry.Registry, map[uuid.UUID]Conn) {
	reg := registry.New()
	conns := make(map[uuid.UUID]Conn)
	return newRouter(reg, conns, zerolog.Nop()), reg, conns
}

func TestEmitToRoomExcludesOrigin(t *testing.T) {
	r, reg, conns := newTestRouter()

	alice, bob := newTestConn(), newTestConn()
	conns[alice.id] = alice
	conns[bob.id] = bob
	reg.Join(alice.id, "alice", "lobby")
	reg.Join(bob.id, "bob", "lobby")

	failed := r.EmitToRoom("lobby", alice.id, EventUserJoined, "alice")

	assert.Empty(t, failed)
	assert.Empty(t, alice.frames)
	require.Len(t, bob.frames, 1)
	assert.Equal(t, EventUserJoined, bob.frames[0].Event)
}

func TestEmitToRoomInclusive(t *testing.T) {
	r, reg, conns := newTestRouter()

	alice, bob := newTestConn(), newTestConn()
	conns[alice.id] = alice
	conns[bob.id] = bob
	reg.Join(alice.id, "alice", "lobby")
	reg.Join(bob.id, "bob", "lobby")

	r.EmitToRoomInclusive("lobby", EventMessagesDeleted, "lobby")

	require.Len(t, alice.frames, 1)
	require.Len(t, bob.frames, 1)
}

func TestEmitToRoomOnlyReachesMembers(t *testing.T) {
	r, reg, conns := newTestRouter()

	alice, carol := newTestConn(), newTestConn()
	conns[alice.id] = alice
	conns[carol.id] = carol
	reg.Join(alice.id, "alice", "lobby")
	reg.Join(carol.id, "carol", "den")

	r.EmitToRoomInclusive("lobby", EventUserJoined, "alice")

	require.Len(t, alice.frames, 1)
	assert.Empty(t, carol.frames)
}

func TestEmitGlobalReachesEveryConnection(t *testing.T) {
	r, reg, conns := newTestRouter()

	alice, carol, lurker := newTestConn(), newTestConn(), newTestConn()
	conns[alice.id] = alice
	conns[carol.id] = carol
	conns[lurker.id] = lurker
	reg.Join(alice.id, "alice", "lobby")
	reg.Join(carol.id, "carol", "den")
	// lurker is connected but has joined no room

	r.EmitGlobal(EventActiveRooms, []string{"lobby", "den"})

	for _, c := range []*testConn{alice, carol, lurker} {
		require.Len(t, c.frames, 1)
		var rooms []string
		require.NoError(t, json.Unmarshal(c.frames[0].Data, &rooms))
		assert.Equal(t, []string{"lobby", "den"}, rooms)
	}
}

func TestFullQueueReportedWithoutAbortingBatch(t *testing.T) {
	r, reg, conns := newTestRouter()

	alice, bob := newTestConn(), newTestConn()
	bob.full = true
	conns[alice.id] = alice
	conns[bob.id] = bob
	reg.Join(alice.id, "alice", "lobby")
	reg.Join(bob.id, "bob", "lobby")

	failed := r.EmitToRoomInclusive("lobby", EventChatMessage, chatEntry{Username: "alice", Message: "hi"})

	assert.Equal(t, []uuid.UUID{bob.id}, failed)
	require.Len(t, alice.frames, 1, "one failed recipient must not abort the batch")
}

func TestUnicast(t *testing.T) {
	r, _, conns := newTestRouter()

	alice := newTestConn()
	conns[alice.id] = alice

	ok := r.Unicast(alice.id, EventChatHistory, []chatEntry{})
	assert.True(t, ok)
	require.Len(t, alice.frames, 1)
	assert.Equal(t, EventChatHistory, alice.frames[0].Event)

	assert.False(t, r.Unicast(uuid.New(), EventChatHistory, []chatEntry{}), "unknown connection")
}

func TestFrameShape(t *testing.T) {
	r, _, conns := newTestRouter()

	alice := newTestConn()
	conns[alice.id] = alice

	r.Unicast(alice.id, EventChatMessage, chatEntry{
		Username: "alice", Message: "hi", Timestamp: "2025-01-02T10:00:00.000Z",
	})

	require.Len(t, alice.frames, 1)
	f := alice.frames[0]
	assert.Equal(t, EventChatMessage, f.Event)

	var entry map[string]string
	require.NoError(t, json.Unmarshal(f.Data, &entry))
	assert.Equal(t, "alice", entry["username"])
	assert.Equal(t, "hi", entry["message"])
	assert.Equal(t, "2025-01-02T10:00:00.000Z", entry["timestamp"])
}
