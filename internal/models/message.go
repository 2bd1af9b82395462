package models

import "time"

// TimestampLayout is the wire and storage format for message timestamps:
// UTC ISO-8601 with millisecond precision. Strings in this layout sort
// lexicographically in time order, which the stores rely on for history
// ordering.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Message represents one chat message persisted in the message log.
// Messages are immutable once appended; they are only ever bulk-deleted
// by room.
type Message struct {
	Room      string `json:"room"`
	Username  string `json:"username"`
	Body      string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// NowTimestamp returns the current time formatted with TimestampLayout.
func NowTimestamp() string {
	return time.Now().UTC().Format(TimestampLayout)
}
