package web

import "ConvoChat/internal/session"

// Frame types exchanged over /ws
const (
	FrameMessage  = "message"
	FrameReset    = "reset"
	FrameHistory  = "history"
	FrameThinking = "thinking"
	FrameReply    = "reply"
	FrameError    = "error"
	FrameCleared  = "cleared"
)

// ClientFrame is sent by the browser
type ClientFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ServerFrame is sent to the browser
type ServerFrame struct {
	Type  string         `json:"type"`
	Role  session.Role   `json:"role,omitempty"`
	Text  string         `json:"text,omitempty"`
	Turns []session.Turn `json:"turns,omitempty"`
}
