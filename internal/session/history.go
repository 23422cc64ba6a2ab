package session

import (
	"errors"
	"strings"
)

// ErrEmptyText is returned when a turn without text is appended
var ErrEmptyText = errors.New("turn text is empty")

// History is the ordered, append-only list of turns in a conversation.
// It is owned by a single session and is not safe for concurrent mutation;
// the turn controller serializes access.
type History struct {
	turns []Turn
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{turns: []Turn{}}
}

// Append adds a turn to the end of the history
func (h *History) Append(turn Turn) error {
	if turn.Text == "" {
		return ErrEmptyText
	}
	h.turns = append(h.turns, turn)
	return nil
}

// Render serializes the history as "<Label>: <text>" lines in append order
func (h *History) Render() string {
	if len(h.turns) == 0 {
		return ""
	}
	lines := make([]string, len(h.turns))
	for i, turn := range h.turns {
		lines[i] = turn.Role.Label() + ": " + turn.Text
	}
	return strings.Join(lines, "\n")
}

// Reset discards every turn
func (h *History) Reset() {
	h.turns = []Turn{}
}

// Turns returns a copy of the history
func (h *History) Turns() []Turn {
	turns := make([]Turn, len(h.turns))
	copy(turns, h.turns)
	return turns
}

// Len returns the number of turns
func (h *History) Len() int {
	return len(h.turns)
}
