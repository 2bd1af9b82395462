package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parleychat/parley/internal/metrics"
	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/registry"
	"github.com/parleychat/parley/internal/store"
)

// Hub is the session coordinator. All connection registration, event
// handling, store access and broadcast fan-out is funneled through a single
// Run goroutine, so each inbound event runs to completion before the next
// one starts. That serialization is what keeps the registry consistent and
// gives write-before-notify semantics without per-structure locking.
type Hub struct {
	store  store.MessageStore
	reg    *registry.Registry
	router *Router

	conns      map[uuid.UUID]Conn
	events     chan Event
	register   chan Conn
	unregister chan Conn

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger zerolog.Logger
}

// NewHub creates a Hub over the given message store. Call Run in its own
// goroutine before registering connections.
func NewHub(st store.MessageStore, logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	reg := registry.New()
	conns := make(map[uuid.UUID]Conn)
	hubLogger := logger.With().Str("component", "hub").Logger()

	return &Hub{
		store:      st,
		reg:        reg,
		router:     newRouter(reg, conns, logger),
		conns:      conns,
		events:     make(chan Event, 64),
		register:   make(chan Conn),
		unregister: make(chan Conn),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     hubLogger,
	}
}

// Registry exposes the membership map for read-only callers (health, stats).
func (h *Hub) Registry() *registry.Registry {
	return h.reg
}

// Register hands a new connection to the event loop.
func (h *Hub) Register(c Conn) {
	select {
	case h.register <- c:
	case <-h.ctx.Done():
	}
}

// Unregister asks the event loop to drop a connection. Safe to call more
// than once for the same connection.
func (h *Hub) Unregister(c Conn) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Dispatch hands one decoded inbound event to the event loop.
func (h *Hub) Dispatch(ev Event) {
	select {
	case h.events <- ev:
	case <-h.ctx.Done():
	}
}

// Run is the hub's event loop. It processes one registration, removal or
// client event at a time until Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			h.conns[c.ID()] = c
			metrics.ConnectionsActive.Set(float64(len(h.conns)))
			h.logger.Info().Str("conn", c.ID().String()).Int("total", len(h.conns)).Msg("connection registered")

		case c := <-h.unregister:
			h.removeConn(c.ID())

		case ev := <-h.events:
			metrics.EventsReceived.WithLabelValues(ev.Name).Inc()
			h.handleEvent(ev)
		}
	}
}

// Shutdown stops the event loop and waits for it to close all connections,
// up to the given timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()

	select {
	case <-h.done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}

func (h *Hub) closeAll() {
	for id, c := range h.conns {
		delete(h.conns, id)
		c.Close()
	}
	metrics.ConnectionsActive.Set(0)
	h.logger.Info().Msg("all connections closed")
}

// removeConn drops a connection and runs disconnect semantics for it: its
// session is removed and its room is told the user left. No-op if the
// connection is already gone.
func (h *Hub) removeConn(id uuid.UUID) {
	c, ok := h.conns[id]
	if !ok {
		return
	}
	delete(h.conns, id)
	c.Close()
	metrics.ConnectionsActive.Set(float64(len(h.conns)))
	h.logger.Info().Str("conn", id.String()).Int("total", len(h.conns)).Msg("connection unregistered")

	h.handleDisconnect(id)
}

// evict drops connections whose send queues overflowed during a broadcast.
func (h *Hub) evict(failed []uuid.UUID) {
	for _, id := range failed {
		metrics.SlowClientsDropped.Inc()
		h.logger.Warn().Str("conn", id.String()).Msg("dropping slow client")
		h.removeConn(id)
	}
}

func (h *Hub) handleEvent(ev Event) {
	switch ev.Name {
	case EventJoinRoom:
		h.handleJoin(ev)
	case EventLeaveRoom:
		h.handleLeave(ev)
	case EventChatMessage:
		h.handleChat(ev)
	case EventDeleteMessages:
		h.handleDelete(ev)
	default:
		h.logger.Warn().Str("event", ev.Name).Str("conn", ev.ConnID.String()).Msg("unknown event")
	}
}

// handleJoin binds the connection to a room, notifies the room's other
// members, sends the joiner the room history, and re-announces the active
// room set to everyone. A failed history read is logged and skipped; the
// join itself stands.
func (h *Hub) handleJoin(ev Event) {
	var p joinPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		h.logger.Warn().Err(err).Str("conn", ev.ConnID.String()).Msg("invalid join payload")
		return
	}

	h.reg.Join(ev.ConnID, p.Username, p.Room)
	h.evict(h.router.EmitToRoom(p.Room, ev.ConnID, EventUserJoined, p.Username))

	history, err := h.storeHistory(p.Room)
	if err != nil {
		h.logger.Error().Err(err).Str("room", p.Room).Msg("history read failed")
	} else {
		entries := make([]chatEntry, len(history))
		for i, msg := range history {
			entries[i] = chatEntry{Username: msg.Username, Message: msg.Body, Timestamp: msg.Timestamp}
		}
		h.router.Unicast(ev.ConnID, EventChatHistory, entries)
	}

	h.broadcastActiveRooms()
}

// handleLeave unbinds the connection from the room (if it is actually in
// it) and tells the remaining members. Always succeeds locally.
func (h *Hub) handleLeave(ev Event) {
	var p leavePayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		h.logger.Warn().Err(err).Str("conn", ev.ConnID.String()).Msg("invalid leave payload")
		return
	}

	h.reg.Leave(ev.ConnID, p.Room)
	h.evict(h.router.EmitToRoom(p.Room, ev.ConnID, EventUserLeft, p.Username))
}

// handleChat persists the message, then echoes it to every member of the
// sender's room, sender included. Persist-before-broadcast: a client that
// reconnects after seeing the echo always finds the message in history. A
// message from a connection with no session is dropped silently, as is one
// with an empty username, since every persisted row must carry a room and a
// username.
func (h *Hub) handleChat(ev Event) {
	var p chatPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		h.logger.Warn().Err(err).Str("conn", ev.ConnID.String()).Msg("invalid chat payload")
		return
	}

	sess, ok := h.reg.Get(ev.ConnID)
	if !ok || sess.Room == "" || p.Username == "" {
		h.logger.Debug().Str("conn", ev.ConnID.String()).Msg("chat message without active session; dropped")
		return
	}

	msg := &models.Message{
		Room:      sess.Room,
		Username:  p.Username,
		Body:      p.Message,
		Timestamp: models.NowTimestamp(),
	}

	if err := h.storeAppend(msg); err != nil {
		h.logger.Error().Err(err).Str("room", sess.Room).Msg("message append failed; not broadcast")
		return
	}
	metrics.MessagesPersisted.Inc()

	entry := chatEntry{Username: msg.Username, Message: msg.Body, Timestamp: msg.Timestamp}
	h.evict(h.router.EmitToRoomInclusive(sess.Room, EventChatMessage, entry))
}

// handleDelete wipes a room's history and notifies the room's members. The
// broadcast only happens once the deletion is durable.
func (h *Hub) handleDelete(ev Event) {
	var p deletePayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		h.logger.Warn().Err(err).Str("conn", ev.ConnID.String()).Msg("invalid delete payload")
		return
	}

	count, err := h.storeDeleteRoom(p.Room)
	if err != nil {
		h.logger.Error().Err(err).Str("room", p.Room).Msg("room deletion failed; not broadcast")
		return
	}
	h.logger.Info().Str("room", p.Room).Int64("deleted", count).Msg("room history deleted")

	h.evict(h.router.EmitToRoomInclusive(p.Room, EventMessagesDeleted, p.Room))
}

func (h *Hub) handleDisconnect(id uuid.UUID) {
	sess, ok := h.reg.Disconnect(id)
	if !ok {
		return
	}
	h.evict(h.router.EmitToRoom(sess.Room, id, EventUserLeft, sess.Username))
}

// broadcastActiveRooms recomputes the active room set from the store and
// announces it to every connection. Derived fresh each time rather than
// tracked incrementally, so it can never drift from what is actually
// persisted.
func (h *Hub) broadcastActiveRooms() {
	rooms, err := h.storeDistinctRooms()
	if err != nil {
		h.logger.Error().Err(err).Msg("active rooms scan failed")
		return
	}
	h.evict(h.router.EmitGlobal(EventActiveRooms, rooms))
}

// Store wrappers: each observes latency and counts failures per operation.

func (h *Hub) storeAppend(msg *models.Message) error {
	start := time.Now()
	err := h.store.Append(h.ctx, msg)
	metrics.StoreLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageFailures.WithLabelValues("append").Inc()
	}
	return err
}

func (h *Hub) storeHistory(room string) ([]models.Message, error) {
	start := time.Now()
	history, err := h.store.History(h.ctx, room)
	metrics.StoreLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageFailures.WithLabelValues("history").Inc()
	}
	return history, err
}

func (h *Hub) storeDeleteRoom(room string) (int64, error) {
	start := time.Now()
	count, err := h.store.DeleteRoom(h.ctx, room)
	metrics.StoreLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageFailures.WithLabelValues("delete_room").Inc()
	}
	return count, err
}

func (h *Hub) storeDistinctRooms() ([]string, error) {
	start := time.Now()
	rooms, err := h.store.DistinctRooms(h.ctx)
	metrics.StoreLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageFailures.WithLabelValues("distinct_rooms").Inc()
	}
	return rooms, err
}
