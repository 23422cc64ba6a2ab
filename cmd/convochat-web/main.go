package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ConvoChat/internal/app"
	"ConvoChat/internal/config"
	"ConvoChat/internal/web"

	"github.com/spf13/cobra"
)

var (
	addr         string
	settingsPath string
	debug        bool
)

var rootCmd = &cobra.Command{
	Use:   "convochat-web",
	Short: "Browser chat front-end for ConvoChat",
	Long: `Serves a single-page chat UI. Each browser gets its own conversation,
keyed by a session cookie, that lives until it is cleared or the server exits.`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", "", "Listen address (default "+config.DefaultAddr+")")
	rootCmd.Flags().StringVar(&settingsPath, "settings", config.DefaultSettingsFile, "Path to the YAML settings file")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(settingsPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if debug {
		cfg.Debug = true
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize chatbot: %w", err)
	}
	defer a.Close()

	if a.ConfigErr != nil {
		fmt.Fprintf(os.Stderr, "WARNING: %v; the chat UI will stay disabled\n", a.ConfigErr)
	}

	srv, err := web.NewServer(web.NewStore(a.Conversation, cfg.SessionTTL), a.ConfigErr, a.Logger)
	if err != nil {
		return err
	}

	fmt.Printf("ConvoChat is listening on %s\n", cfg.Addr)
	return srv.ListenAndServe(ctx, cfg.Addr)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
