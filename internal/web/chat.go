package web

import (
	"errors"
	"fmt"
	"net/http"

	"ConvoChat/internal/chatbot"
	"ConvoChat/internal/session"

	"github.com/gorilla/websocket"
)

// handleChat upgrades to a WebSocket and runs the session's turns one frame
// at a time. Frames on one connection are handled strictly in order.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.configErr != nil {
		http.Error(w, s.configErr.Error(), http.StatusServiceUnavailable)
		return
	}

	id, ok := sessionID(r)
	if !ok {
		http.Error(w, "missing session cookie; load / first", http.StatusBadRequest)
		return
	}

	conv, release, err := s.store.Acquire(id)
	if errors.Is(err, ErrUnknownSession) {
		http.Error(w, "unknown session; reload / first", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.logger.Error("failed to load conversation", "session_id", id, "error", err)
		http.Error(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}
	defer release()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("session_id", id)
	logger.Info("chat connected", "remote_addr", r.RemoteAddr)

	if err := conn.WriteJSON(ServerFrame{Type: FrameHistory, Turns: conv.Turns()}); err != nil {
		logger.Warn("failed to send history", "error", err)
		return
	}

	for {
		var frame ClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("chat connection lost", "error", err)
			}
			return
		}

		if err := s.dispatch(r, conv, frame, conn.WriteJSON); err != nil {
			logger.Warn("failed to write frame", "error", err)
			return
		}
	}
}

// dispatch handles one client frame, writing responses through send
func (s *Server) dispatch(r *http.Request, conv *chatbot.Conversation, frame ClientFrame, send func(v any) error) error {
	switch frame.Type {
	case FrameMessage:
		return s.converse(r, conv, frame.Text, send)
	case FrameReset:
		conv.Reset()
		return send(ServerFrame{Type: FrameCleared})
	default:
		return send(ServerFrame{Type: FrameError, Text: fmt.Sprintf("unknown frame type %q", frame.Type)})
	}
}

func (s *Server) converse(r *http.Request, conv *chatbot.Conversation, text string, send func(v any) error) error {
	if err := send(ServerFrame{Type: FrameThinking}); err != nil {
		return err
	}

	reply, err := conv.Submit(r.Context(), text)
	switch {
	case err == nil:
		return send(ServerFrame{Type: FrameReply, Role: session.RoleAssistant, Text: reply})
	case errors.Is(err, chatbot.ErrEmptyInput):
		return send(ServerFrame{Type: FrameError, Text: "Please type a message first."})
	case errors.Is(err, chatbot.ErrBusy):
		return send(ServerFrame{Type: FrameError, Text: "Still thinking about your last message."})
	default:
		s.logger.Warn("turn failed", "session_id", conv.Session().ID, "error", err)
		msg := fmt.Sprintf("An error occurred: %v. %s", err, chatbot.ErrorHint(err))
		return send(ServerFrame{Type: FrameError, Role: session.RoleAssistant, Text: msg})
	}
}
