package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"ConvoChat/internal/backend"
	"ConvoChat/internal/config"
	"ConvoChat/internal/prompt"
	"ConvoChat/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrEmptyInput is returned for blank submissions
	ErrEmptyInput = errors.New("input is empty")
	// ErrBusy is returned when a turn is already in flight for the session
	ErrBusy = errors.New("a reply is already being generated")
)

// State is the turn controller state
type State int32

const (
	StateIdle State = iota
	StateProcessing
)

func (s State) String() string {
	if s == StateProcessing {
		return "processing"
	}
	return "idle"
}

// Recorder receives completed turns and resets
type Recorder interface {
	RecordSession(sess *session.Session) error
	RecordTurns(sessionID string, turns ...session.Turn) error
	RecordReset(sessionID string) error
}

// Options carries the collaborators of a Conversation
type Options struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter
	// Archive may be nil
	Archive Recorder
	// ConfigErr, when set, blocks every completion call
	ConfigErr error
}

// Conversation drives the turns of one session
type Conversation struct {
	session   *session.Session
	client    backend.Completer
	configErr error
	archive   Recorder
	logger    *slog.Logger
	tracer    trace.Tracer
	turns     metric.Int64Counter

	// mu is held for the whole of a turn
	mu    sync.Mutex
	state atomic.Int32
	// histMu guards the history itself so readers never wait on the network call
	histMu sync.RWMutex
}

// New creates the turn controller for sess
func New(sess *session.Session, client backend.Completer, opts Options) (*Conversation, error) {
	if sess == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("completion client cannot be nil")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	turns, err := opts.Meter.Int64Counter(
		"chat.turns",
		metric.WithDescription("Conversation turns by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create turn counter: %w", err)
	}

	c := &Conversation{
		session:   sess,
		client:    client,
		configErr: opts.ConfigErr,
		archive:   opts.Archive,
		logger:    opts.Logger.With("session_id", sess.ID),
		tracer:    opts.Tracer,
		turns:     turns,
	}

	if c.archive != nil {
		if err := c.archive.RecordSession(sess); err != nil {
			c.logger.Warn("failed to archive session", "error", err)
		}
	}

	c.logger.Info("created new session", "shell", sess.Shell)
	return c, nil
}

// Session returns the session this conversation belongs to
func (c *Conversation) Session() *session.Session {
	return c.session
}

// State reports whether a turn is in flight
func (c *Conversation) State() State {
	return State(c.state.Load())
}

// Submit runs one turn: the prompt is assembled from the current history and
// input, the model is called, and on success the user and assistant turns are
// appended. On failure the history is left untouched.
func (c *Conversation) Submit(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}

	if !c.mu.TryLock() {
		return "", ErrBusy
	}
	defer c.mu.Unlock()

	c.state.Store(int32(StateProcessing))
	defer c.state.Store(int32(StateIdle))

	ctx, span := c.tracer.Start(ctx, "conversation_turn", trace.WithAttributes(
		attribute.String("session.id", c.session.ID),
		attribute.Int("history.turns", c.session.History.Len()),
	))
	defer span.End()

	if c.configErr != nil {
		c.record(ctx, "config_error")
		span.SetStatus(codes.Error, c.configErr.Error())
		return "", c.configErr
	}

	c.histMu.RLock()
	rendered := c.session.History.Render()
	c.histMu.RUnlock()

	p := prompt.Assemble(rendered, input)
	sha := prompt.Fingerprint(p)
	span.SetAttributes(attribute.String("prompt.sha256", sha))
	c.logger.Debug("sending prompt", "prompt_sha", sha[:16], "prompt_len", len(p))

	result, err := c.client.Complete(ctx, p, config.Temperature, config.ModelID)
	if err != nil {
		c.record(ctx, outcome(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("completion failed", "prompt_sha", sha[:16], "error", err)
		return "", err
	}

	user := session.NewTurn(session.RoleUser, input)
	assistant := session.NewTurn(session.RoleAssistant, result.Text)
	c.histMu.Lock()
	err = c.session.History.Append(user)
	if err == nil {
		err = c.session.History.Append(assistant)
	}
	historyLen := c.session.History.Len()
	c.histMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("failed to append turns: %w", err)
	}

	if c.archive != nil {
		if err := c.archive.RecordTurns(c.session.ID, user, assistant); err != nil {
			c.logger.Warn("failed to archive turns", "error", err)
		}
	}

	c.record(ctx, "ok")
	c.logger.Info("turn completed",
		"prompt_sha", sha[:16],
		"history_turns", historyLen,
		"completion_tokens", result.Usage.CompletionTokens,
	)
	return result.Text, nil
}

// Reset clears the session history. It waits for an in-flight turn to finish.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.histMu.Lock()
	c.session.History.Reset()
	c.histMu.Unlock()

	if c.archive != nil {
		if err := c.archive.RecordReset(c.session.ID); err != nil {
			c.logger.Warn("failed to archive reset", "error", err)
		}
	}
	c.logger.Info("history cleared")
}

// Turns returns a snapshot of the history without waiting for an in-flight turn
func (c *Conversation) Turns() []session.Turn {
	c.histMu.RLock()
	defer c.histMu.RUnlock()
	return c.session.History.Turns()
}

func (c *Conversation) record(ctx context.Context, result string) {
	c.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", result)))
}

func outcome(err error) string {
	var upErr *backend.UpstreamError
	if errors.As(err, &upErr) {
		return "upstream_" + string(upErr.Kind)
	}
	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return "config_error"
	}
	return "error"
}

// IsExit reports whether input is the exit command
func IsExit(input string) bool {
	return strings.EqualFold(strings.TrimSpace(input), "exit")
}
