package websocket

import (
	"encoding/json"
	"time"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventPong      Event = "pong"
	EventFinalized Event = "session_finalized"
)

// FinalizedEvent is pushed to monitoring gurus when a session closes,
// either by a student submit or by the deadline worker. Payload carries
// the raw message published on the exam's monitor channel.
type FinalizedEvent struct {
	Event      Event           `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
