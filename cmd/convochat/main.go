package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ConvoChat/internal/app"
	"ConvoChat/internal/chatbot"
	"ConvoChat/internal/config"
	"ConvoChat/internal/session"
)

func main() {
	cfg, err := config.Load(config.DefaultSettingsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize chatbot: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	// the command-line shell warns and carries on; every turn then reports the problem
	if a.ConfigErr != nil {
		fmt.Println(chatbot.ConfigWarning(a.ConfigErr))
	}

	conv, err := a.Conversation(session.New(config.ShellCLI))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start conversation: %v\n", err)
		os.Exit(1)
	}

	if err := conv.RunCLI(ctx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}
