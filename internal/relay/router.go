package relay

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parleychat/parley/internal/metrics"
	"github.com/parleychat/parley/internal/registry"
)

// Conn is the router's view of one live connection: a non-blocking outbound
// queue plus identity. Enqueue and Close are only ever called from the hub's
// event loop, which is what makes the close-after-remove sequence safe.
type Conn interface {
	ID() uuid.UUID

	// Enqueue offers one encoded frame to the connection's send queue.
	// It returns false when the queue is full, which the hub treats as a
	// slow client to be dropped.
	Enqueue(frame []byte) bool

	// Close shuts the send queue. Idempotent.
	Close()
}

// Router delivers encoded frames to the set of connections selected by room
// membership. Delivery is fire-and-forget: a recipient whose queue is full
// is reported back to the caller and never blocks delivery to the rest of
// the batch. Frames enqueued to one connection are drained in FIFO order,
// which together with the single-threaded coordinator gives the room-scoped
// ordering guarantee.
type Router struct {
	reg    *registry.Registry
	conns  map[uuid.UUID]Conn
	logger zerolog.Logger
}

func newRouter(reg *registry.Registry, conns map[uuid.UUID]Conn, logger zerolog.Logger) *Router {
	return &Router{
		reg:    reg,
		conns:  conns,
		logger: logger.With().Str("component", "router").Logger(),
	}
}

// encode builds the wire frame for an event once, so fan-out shares a single
// marshal.
func (r *Router) encode(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error().Err(err).Str("event", event).Msg("failed to encode payload")
		return nil, false
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		r.logger.Error().Err(err).Str("event", event).Msg("failed to encode frame")
		return nil, false
	}
	return frame, true
}

// EmitToRoom delivers the event to every connection joined to the room
// except exclude (pass uuid.Nil to exclude nobody). It returns the IDs of
// connections whose queues were full.
func (r *Router) EmitToRoom(room string, exclude uuid.UUID, event string, payload any) []uuid.UUID {
	frame, ok := r.encode(event, payload)
	if !ok {
		return nil
	}
	metrics.BroadcastsSent.WithLabelValues(event).Inc()

	var failed []uuid.UUID
	for _, id := range r.reg.InRoom(room) {
		if id == exclude {
			continue
		}
		conn, ok := r.conns[id]
		if !ok {
			continue
		}
		if !conn.Enqueue(frame) {
			failed = append(failed, id)
		}
	}
	return failed
}

// EmitToRoomInclusive delivers the event to every connection in the room,
// originator included. Used for chat messages and deletions so the sender
// sees the server-accepted copy.
func (r *Router) EmitToRoomInclusive(room, event string, payload any) []uuid.UUID {
	return r.EmitToRoom(room, uuid.Nil, event, payload)
}

// EmitGlobal delivers the event to every live connection regardless of room.
func (r *Router) EmitGlobal(event string, payload any) []uuid.UUID {
	frame, ok := r.encode(event, payload)
	if !ok {
		return nil
	}
	metrics.BroadcastsSent.WithLabelValues(event).Inc()

	var failed []uuid.UUID
	for id, conn := range r.conns {
		if !conn.Enqueue(frame) {
			failed = append(failed, id)
		}
	}
	return failed
}

// Unicast delivers the event to a single connection.
func (r *Router) Unicast(connID uuid.UUID, event string, payload any) bool {
	frame, ok := r.encode(event, payload)
	if !ok {
		return false
	}
	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	metrics.BroadcastsSent.WithLabelValues(event).Inc()
	return conn.Enqueue(frame)
}
