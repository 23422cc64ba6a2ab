package chatbot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"ConvoChat/internal/config"
)

// ConfigWarning is the text shown when the credential is unusable
func ConfigWarning(err error) string {
	return fmt.Sprintf("WARNING: %v. Please set it as an environment variable 'OPENAI_API_KEY' "+
		"or in a .env or %s file.\nThe chatbot will not be able to answer without a valid API key.",
		err, config.DefaultSettingsFile)
}

// ErrorHint returns the follow-up line printed after a failed turn
func ErrorHint(err error) string {
	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return "Please set OPENAI_API_KEY and restart the chatbot."
	}
	return "Please ensure your OpenAI API key is correctly set and you have an active internet connection."
}

// RunCLI reads one line per turn from in and writes replies to out until the
// user types "exit", input ends, or ctx is cancelled.
func (c *Conversation) RunCLI(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Welcome to ConvoChat! Type 'exit' to end the conversation.")

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	lines, readErr := readLines(readCtx, in)

loop:
	for {
		fmt.Fprint(out, "You: ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			break loop
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(out)
			break
		}

		input := strings.TrimSpace(line)
		if IsExit(input) {
			break
		}
		if input == "" {
			continue
		}
		if ctx.Err() != nil {
			fmt.Fprintln(out)
			break
		}

		reply, err := c.Submit(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(out)
				break
			}
			fmt.Fprintf(out, "An error occurred: %v\n", err)
			fmt.Fprintln(out, ErrorHint(err))
			continue
		}

		fmt.Fprintf(out, "AI: %s\n", reply)
	}

	c.logger.Info("conversation ended", "history_turns", len(c.Turns()), "cancelled", ctx.Err() != nil)
	fmt.Fprintln(out, "Goodbye!")

	select {
	case err := <-readErr:
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
	default:
	}
	return nil
}

// readLines scans in on its own goroutine so the caller can stop waiting on
// ctx. The lines channel is closed at end of input; a scan error, if any, is
// delivered on the second channel before that.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	return lines, errs
}
