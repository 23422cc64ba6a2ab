package chatbot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"ConvoChat/internal/backend"
	"ConvoChat/internal/config"
	"ConvoChat/internal/session"
	"ConvoChat/internal/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubCompleter replies from a fixed function and remembers every prompt
type stubCompleter struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (s *stubCompleter) Complete(_ context.Context, prompt string, temperature float64, modelID string) (backend.Result, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	text, err := s.reply(prompt)
	if err != nil {
		return backend.Result{}, err
	}
	return backend.Result{Text: text}, nil
}

func (s *stubCompleter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func replyWith(text string) *stubCompleter {
	return &stubCompleter{reply: func(string) (string, error) { return text, nil }}
}

// memoryRecorder is an in-memory Recorder
type memoryRecorder struct {
	sessions []string
	turns    []session.Turn
	resets   int
}

func (r *memoryRecorder) RecordSession(sess *session.Session) error {
	r.sessions = append(r.sessions, sess.ID)
	return nil
}

func (r *memoryRecorder) RecordTurns(_ string, turns ...session.Turn) error {
	r.turns = append(r.turns, turns...)
	return nil
}

func (r *memoryRecorder) RecordReset(string) error {
	r.resets++
	return nil
}

func newConversation(t *testing.T, client backend.Completer, archive Recorder, configErr error) *Conversation {
	t.Helper()
	tracer, meter := telemetry.Noop()
	conv, err := New(session.New(config.ShellCLI), client, Options{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Tracer:    tracer,
		Meter:     meter,
		Archive:   archive,
		ConfigErr: configErr,
	})
	require.NoError(t, err)
	return conv
}

func TestSubmit_Success(t *testing.T) {
	client := replyWith("Hello!")
	conv := newConversation(t, client, nil, nil)

	reply, err := conv.Submit(context.Background(), "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply)

	turns := conv.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, "Hi", turns[0].Text)
	assert.Equal(t, session.RoleAssistant, turns[1].Role)
	assert.Equal(t, "Hello!", turns[1].Text)
	assert.Equal(t, StateIdle, conv.State())
}

func TestSubmit_PromptCarriesHistory(t *testing.T) {
	client := replyWith("ok")
	conv := newConversation(t, client, nil, nil)

	_, err := conv.Submit(context.Background(), "first")
	require.NoError(t, err)
	_, err = conv.Submit(context.Background(), "second")
	require.NoError(t, err)

	require.Len(t, client.prompts, 2)
	assert.Contains(t, client.prompts[0], "Current conversation:\n\nHuman: first\nAI:")
	assert.Contains(t, client.prompts[1], "Current conversation:\nHuman: first\nAI: ok\nHuman: second\nAI:")
}

func TestSubmit_UpstreamErrorLeavesHistoryUnchanged(t *testing.T) {
	fail := false
	client := &stubCompleter{reply: func(string) (string, error) {
		if fail {
			return "", &backend.UpstreamError{Kind: backend.KindRateLimit, StatusCode: 429, Message: "slow down"}
		}
		return "Hello!", nil
	}}
	conv := newConversation(t, client, nil, nil)

	_, err := conv.Submit(context.Background(), "warm up")
	require.NoError(t, err)
	before := conv.Turns()

	fail = true
	reply, err := conv.Submit(context.Background(), "Hi")
	assert.Empty(t, reply)

	var upErr *backend.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, backend.KindRateLimit, upErr.Kind)
	assert.Equal(t, before, conv.Turns())
	assert.Equal(t, StateIdle, conv.State())
}

func TestSubmit_ConfigErrorNeverCallsClient(t *testing.T) {
	client := replyWith("unreachable")
	cfgErr := config.Default().Validate()
	require.Error(t, cfgErr)

	conv := newConversation(t, client, nil, cfgErr)
	_, err := conv.Submit(context.Background(), "Hi")

	var target *config.ConfigurationError
	require.ErrorAs(t, err, &target)
	assert.Zero(t, client.calls())
	assert.Empty(t, conv.Turns())
}

func TestSubmit_EmptyInput(t *testing.T) {
	client := replyWith("unreachable")
	conv := newConversation(t, client, nil, nil)

	_, err := conv.Submit(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Zero(t, client.calls())
}

func TestSubmit_BusyWhileProcessing(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	client := &stubCompleter{reply: func(string) (string, error) {
		close(started)
		<-release
		return "done", nil
	}}
	conv := newConversation(t, client, nil, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := conv.Submit(context.Background(), "slow")
		assert.NoError(t, err)
	}()

	<-started
	assert.Equal(t, StateProcessing, conv.State())
	_, err := conv.Submit(context.Background(), "impatient")
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	wg.Wait()
	assert.Equal(t, 1, client.calls())
	assert.Len(t, conv.Turns(), 2)
}

func TestReset_NoResidualTurnsInNextPrompt(t *testing.T) {
	client := replyWith("sure")
	recorder := &memoryRecorder{}
	conv := newConversation(t, client, recorder, nil)

	_, err := conv.Submit(context.Background(), "remember the number 42")
	require.NoError(t, err)

	conv.Reset()
	assert.Empty(t, conv.Turns())

	_, err = conv.Submit(context.Background(), "what number?")
	require.NoError(t, err)

	last := client.prompts[len(client.prompts)-1]
	assert.NotContains(t, last, "42")
	assert.Contains(t, last, "Current conversation:\n\nHuman: what number?\nAI:")

	assert.Len(t, recorder.sessions, 1)
	assert.Len(t, recorder.turns, 4)
	assert.Equal(t, 1, recorder.resets)
}

func TestIsExit(t *testing.T) {
	for _, in := range []string{"exit", "EXIT", "Exit", "  eXiT  "} {
		assert.True(t, IsExit(in), in)
	}
	for _, in := range []string{"", "exit now", "quit", "/exit"} {
		assert.False(t, IsExit(in), in)
	}
}

func TestRunCLI_Conversation(t *testing.T) {
	client := replyWith("Hello!")
	conv := newConversation(t, client, nil, nil)

	var out strings.Builder
	err := conv.RunCLI(context.Background(), strings.NewReader("Hi\n\nexit\n"), &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "AI: Hello!\n")
	assert.True(t, strings.HasSuffix(out.String(), "Goodbye!\n"))
	assert.Equal(t, 1, client.calls())
}

func TestRunCLI_ExitVariantsSkipClient(t *testing.T) {
	for _, word := range []string{"exit", "EXIT", "Exit"} {
		t.Run(word, func(t *testing.T) {
			client := replyWith("unreachable")
			conv := newConversation(t, client, nil, nil)

			var out strings.Builder
			require.NoError(t, conv.RunCLI(context.Background(), strings.NewReader(word+"\nHi\n"), &out))

			assert.Zero(t, client.calls())
			assert.Contains(t, out.String(), "Goodbye!")
		})
	}
}

func TestRunCLI_ErrorLineThenContinue(t *testing.T) {
	calls := 0
	client := &stubCompleter{reply: func(string) (string, error) {
		calls++
		if calls == 1 {
			return "", &backend.UpstreamError{Kind: backend.KindNetwork, Err: errors.New("connection refused")}
		}
		return "back online", nil
	}}
	conv := newConversation(t, client, nil, nil)

	var out strings.Builder
	require.NoError(t, conv.RunCLI(context.Background(), strings.NewReader("Hi\nHi again\n"), &out))

	assert.Contains(t, out.String(), "An error occurred: upstream network error: connection refused\n")
	assert.Contains(t, out.String(), "active internet connection")
	assert.Contains(t, out.String(), "AI: back online\n")
	assert.Len(t, conv.Turns(), 2)
}

func TestRunCLI_ConfigErrorKeepsRunning(t *testing.T) {
	client := replyWith("unreachable")
	conv := newConversation(t, client, nil, &config.ConfigurationError{Field: "OPENAI_API_KEY", Reason: "is not set"})

	var out strings.Builder
	require.NoError(t, conv.RunCLI(context.Background(), strings.NewReader("Hi\nexit\n"), &out))

	assert.Contains(t, out.String(), "An error occurred: configuration error: OPENAI_API_KEY is not set")
	assert.Contains(t, out.String(), "Please set OPENAI_API_KEY")
	assert.Zero(t, client.calls())
}

func TestRunCLI_CancelledContextSkipsClient(t *testing.T) {
	client := replyWith("Hello!")
	conv := newConversation(t, client, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out strings.Builder
	require.NoError(t, conv.RunCLI(ctx, strings.NewReader("Hi\nHi\nHi\n"), &out))

	assert.Zero(t, client.calls())
	assert.NotContains(t, out.String(), "AI:")
	assert.True(t, strings.HasSuffix(out.String(), "Goodbye!\n"))
}

func TestRunCLI_CancelDuringConversationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &stubCompleter{reply: func(string) (string, error) {
		cancel()
		return "Hello!", nil
	}}
	conv := newConversation(t, client, nil, nil)

	var out strings.Builder
	require.NoError(t, conv.RunCLI(ctx, strings.NewReader("Hi\nHi\nHi\n"), &out))

	assert.Equal(t, 1, client.calls())
	assert.Equal(t, 1, strings.Count(out.String(), "AI: Hello!"))
	assert.True(t, strings.HasSuffix(out.String(), "Goodbye!\n"))
}

func TestRunCLI_StopsWaitingOnBlockedInput(t *testing.T) {
	client := replyWith("unreachable")
	conv := newConversation(t, client, nil, nil)

	// a pipe that never receives data stands in for an idle terminal
	reader, writer := io.Pipe()
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- conv.RunCLI(ctx, reader, io.Discard)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunCLI kept waiting for input after cancellation")
	}
	assert.Zero(t, client.calls())

	// unblock the reader goroutine so nothing outlives the test
	writer.CloseWithError(io.EOF)
}

func TestTurns_DoesNotWaitForInFlightReply(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	client := &stubCompleter{reply: func(string) (string, error) {
		close(started)
		<-release
		return "done", nil
	}}
	conv := newConversation(t, client, nil, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := conv.Submit(context.Background(), "slow")
		assert.NoError(t, err)
	}()
	<-started

	snapshot := make(chan []session.Turn, 1)
	go func() { snapshot <- conv.Turns() }()

	select {
	case turns := <-snapshot:
		assert.Empty(t, turns)
	case <-time.After(2 * time.Second):
		t.Fatal("Turns blocked behind the in-flight completion")
	}

	close(release)
	wg.Wait()
	assert.Len(t, conv.Turns(), 2)
}
