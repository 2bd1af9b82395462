// Package relay implements the room chat core: the session coordinator that
// serializes inbound client events, the broadcast router that fans frames
// out to room members, and the WebSocket client plumbing that feeds them.
package relay

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Inbound event names (client to server).
const (
	EventJoinRoom       = "join room"
	EventLeaveRoom      = "leave room"
	EventChatMessage    = "chat message" // also the outbound echo
	EventDeleteMessages = "delete messages"
)

// Outbound event names (server to clients).
const (
	EventUserJoined      = "user joined"
	EventUserLeft        = "user left"
	EventChatHistory     = "chat history"
	EventMessagesDeleted = "messages deleted"
	EventActiveRooms     = "active rooms"
)

// Frame is the JSON envelope exchanged on the wire in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is one decoded inbound client event, tagged with the connection it
// arrived on. The coordinator processes events one at a time, to completion.
type Event struct {
	ConnID uuid.UUID
	Name   string
	Data   json.RawMessage
}

type joinPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type leavePayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type chatPayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type deletePayload struct {
	Room string `json:"room"`
}

// chatEntry is the shape broadcast for a chat message and for each history
// row sent to a freshly joined connection.
type chatEntry struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
