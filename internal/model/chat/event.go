package chat

import "encoding/json"

// Client to server events.
const (
	EventJoin        = "join"
	EventChatMessage = "chat message"
)

// Server to client events.
const (
	EventLoadMessages = "load messages"
	EventUserJoined   = "user joined"
	EventUserLeft     = "user left"
	EventForceLogout  = "force logout"
	EventAuthError    = "auth error"
	EventChatCleared  = "chat cleared"
	EventError        = "error"
)

// Envelope is the frame exchanged on the event channel in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is the server side form of Envelope; Data is encoded as-is.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}
