package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"ConvoChat/internal/chatbot"
	"ConvoChat/internal/session"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// CookieName carries the browser's session identifier
	CookieName = "convochat_session"

	sweepInterval = time.Minute
)

//go:embed assets/index.html
var assets embed.FS

// pageData feeds assets/index.html
type pageData struct {
	Warning string
	Turns   []session.Turn
}

// Server is the browser chat shell
type Server struct {
	store     *Store
	configErr error
	logger    *slog.Logger
	page      *template.Template
	upgrader  websocket.Upgrader
}

// NewServer creates the web shell. When configErr is set every page shows the
// warning and the chat endpoint refuses connections.
func NewServer(store *Store, configErr error, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	page, err := template.ParseFS(assets, "assets/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}

	return &Server{
		store:     store,
		configErr: configErr,
		logger:    logger,
		page:      page,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}, nil
}

// Handler returns the HTTP routes of the shell
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ws", s.handleChat)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.store.Run(ctx, sweepInterval, s.logger)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web shell listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web shell stopped: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down web shell: %w", err)
		}
		return nil
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if s.configErr != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		s.render(w, pageData{Warning: chatbot.ConfigWarning(s.configErr)})
		return
	}

	// the page never builds a conversation; that waits for the chat connection
	var turns []session.Turn
	id, ok := sessionID(r)
	if ok {
		var conv *chatbot.Conversation
		conv, ok = s.store.Lookup(id)
		if conv != nil {
			turns = conv.Turns()
		}
	}
	if !ok {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    s.store.Issue(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}

	s.render(w, pageData{Turns: turns})
}

func (s *Server) render(w http.ResponseWriter, data pageData) {
	if err := s.page.Execute(w, data); err != nil {
		s.logger.Error("failed to render page", "error", err)
	}
}

// sessionID returns the identifier from the session cookie if it is well formed
func sessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return "", false
	}
	return cookie.Value, true
}
