package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label returns the speaker prefix used when the turn is rendered into a prompt
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "Human"
	case RoleAssistant:
		return "AI"
	default:
		return string(r)
	}
}

// Turn represents a single chat message
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn creates a turn stamped with the current time
func NewTurn(role Role, text string) Turn {
	return Turn{Role: role, Text: text, Timestamp: time.Now()}
}

// Session represents one conversation and its history
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	Shell     string    `json:"shell"`
	History   *History  `json:"-"`
}

// New creates a session with a fresh identifier and an empty history
func New(shell string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		Shell:     shell,
		History:   NewHistory(),
	}
}

// NewWithID creates a session for an identifier issued elsewhere, such as a browser cookie
func NewWithID(id, shell string) *Session {
	sess := New(shell)
	sess.ID = id
	return sess
}
