package models

import "github.com/google/uuid"

// Session is the (username, room) binding of one live connection. A
// connection has at most one Session at any instant; a connection with no
// Session has not yet joined a room. Sessions are held only in memory and
// are dropped on restart.
type Session struct {
	ConnID   uuid.UUID `json:"-"`
	Username string    `json:"username"`
	Room     string    `json:"room"`
}
