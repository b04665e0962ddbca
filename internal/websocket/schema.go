package websocket

import "time"

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventFrame Event = "frame"
	EventError Event = "error"
	EventPong  Event = "pong"
)

// FrameResponse carries one webcam frame to the observing teacher.
type FrameResponse struct {
	Event      Event     `json:"event"`
	StudentID  int       `json:"student_id"`
	DataURL    string    `json:"data_url"`
	CapturedAt time.Time `json:"captured_at"`
	ReceivedAt time.Time `json:"received_at"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}
