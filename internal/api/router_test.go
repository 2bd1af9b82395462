package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/relay"
	"github.com/parleychat/parley/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, store.MessageStore) {
	t.Helper()

	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "parley.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)

	hub := relay.NewHub(st, zerolog.Nop())
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })

	cfg := &config.Config{Port: "0", Env: "test", AllowedOrigins: []string{"*"}}
	srv := httptest.NewServer(NewRouter(zerolog.Nop(), hub, st, cfg))
	t.Cleanup(srv.Close)

	return srv, st
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(relay.Frame{Event: event, Data: data}))
}

func readFrame(t *testing.T, conn *websocket.Conn) relay.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f relay.Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestJoinChatAndHistoryOverWebSocket(t *testing.T) {
	srv, st := newTestServer(t)

	alice := dialWS(t, srv)
	sendFrame(t, alice, relay.EventJoinRoom, map[string]string{"username": "alice", "room": "lobby"})

	f := readFrame(t, alice)
	assert.Equal(t, relay.EventChatHistory, f.Event)
	var history []map[string]string
	require.NoError(t, json.Unmarshal(f.Data, &history))
	assert.Empty(t, history)

	f = readFrame(t, alice)
	assert.Equal(t, relay.EventActiveRooms, f.Event)

	bob := dialWS(t, srv)
	sendFrame(t, bob, relay.EventJoinRoom, map[string]string{"username": "bob", "room": "lobby"})

	f = readFrame(t, alice)
	require.Equal(t, relay.EventUserJoined, f.Event)
	var username string
	require.NoError(t, json.Unmarshal(f.Data, &username))
	assert.Equal(t, "bob", username)

	f = readFrame(t, alice) // active rooms re-announced after bob's join
	assert.Equal(t, relay.EventActiveRooms, f.Event)

	readFrame(t, bob) // bob's history
	readFrame(t, bob) // bob's active rooms

	sendFrame(t, alice, relay.EventChatMessage, map[string]string{"username": "alice", "message": "hi"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		f = readFrame(t, conn)
		require.Equal(t, relay.EventChatMessage, f.Event)
		var entry map[string]string
		require.NoError(t, json.Unmarshal(f.Data, &entry))
		assert.Equal(t, "alice", entry["username"])
		assert.Equal(t, "hi", entry["message"])
		assert.NotEmpty(t, entry["timestamp"])
	}

	// The broadcast message is durably persisted.
	messages, err := st.History(context.Background(), "lobby")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].Body)
}

func TestDisconnectNotifiesPeersOverWebSocket(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dialWS(t, srv)
	sendFrame(t, alice, relay.EventJoinRoom, map[string]string{"username": "alice", "room": "lobby"})
	readFrame(t, alice) // history
	readFrame(t, alice) // active rooms

	bob := dialWS(t, srv)
	sendFrame(t, bob, relay.EventJoinRoom, map[string]string{"username": "bob", "room": "lobby"})
	readFrame(t, alice) // user joined
	readFrame(t, alice) // active rooms

	require.NoError(t, bob.Close())

	f := readFrame(t, alice)
	require.Equal(t, relay.EventUserLeft, f.Event)
	var username string
	require.NoError(t, json.Unmarshal(f.Data, &username))
	assert.Equal(t, "bob", username)
}

func TestRESTEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dialWS(t, srv)
	sendFrame(t, alice, relay.EventJoinRoom, map[string]string{"username": "alice", "room": "lobby"})
	readFrame(t, alice) // history
	readFrame(t, alice) // active rooms
	sendFrame(t, alice, relay.EventChatMessage, map[string]string{"username": "alice", "message": "hi"})
	readFrame(t, alice) // chat echo

	resp, err := http.Get(srv.URL + "/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var roomList struct {
		Rooms []string `json:"rooms"`
		Total int      `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&roomList))
	assert.Equal(t, []string{"lobby"}, roomList.Rooms)

	histResp, err := http.Get(srv.URL + "/rooms/lobby/messages")
	require.NoError(t, err)
	defer histResp.Body.Close()
	assert.Equal(t, http.StatusOK, histResp.StatusCode)

	var hist struct {
		Room     string `json:"room"`
		Messages []struct {
			Username string `json:"username"`
			Body     string `json:"message"`
		} `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(histResp.Body).Decode(&hist))
	assert.Equal(t, "lobby", hist.Room)
	require.Len(t, hist.Messages, 1)
	assert.Equal(t, "hi", hist.Messages[0].Body)

	healthResp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer healthResp.Body.Close()
	assert.Equal(t, http.StatusOK, healthResp.StatusCode)
}

func TestDeleteMessagesOverWebSocket(t *testing.T) {
	srv, st := newTestServer(t)

	alice := dialWS(t, srv)
	sendFrame(t, alice, relay.EventJoinRoom, map[string]string{"username": "alice", "room": "lobby"})
	readFrame(t, alice) // history
	readFrame(t, alice) // active rooms
	sendFrame(t, alice, relay.EventChatMessage, map[string]string{"username": "alice", "message": "hi"})
	readFrame(t, alice) // chat echo

	sendFrame(t, alice, relay.EventDeleteMessages, map[string]string{"room": "lobby"})

	f := readFrame(t, alice)
	require.Equal(t, relay.EventMessagesDeleted, f.Event)
	var room string
	require.NoError(t, json.Unmarshal(f.Data, &room))
	assert.Equal(t, "lobby", room)

	messages, err := st.History(context.Background(), "lobby")
	require.NoError(t, err)
	assert.Empty(t, messages)

	rooms, err := st.DistinctRooms(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, rooms, "lobby")
}
