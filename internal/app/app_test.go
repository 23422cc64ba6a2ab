package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ConvoChat/internal/config"
	"ConvoChat/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.LogDir = filepath.Join(dir, "logs")
	cfg.ArchivePath = filepath.Join(dir, "convochat.db")
	return cfg
}

func TestNew_ValidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.APIKey = "sk-test"

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.NoError(t, a.ConfigErr)
	assert.NotNil(t, a.Archive)
	assert.NotNil(t, a.Client)

	conv, err := a.Conversation(session.New(config.ShellCLI))
	require.NoError(t, err)
	assert.Empty(t, conv.Turns())

	_, err = os.Stat(cfg.ArchivePath)
	assert.NoError(t, err)
}

func TestNew_MissingKeyIsKeptNotReturned(t *testing.T) {
	cfg := testConfig(t)
	cfg.ArchivePath = ""

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, a.ConfigErr, &cfgErr)
	assert.Nil(t, a.Archive)

	conv, err := a.Conversation(session.New(config.ShellCLI))
	require.NoError(t, err)
	_, err = conv.Submit(context.Background(), "Hi")
	assert.ErrorAs(t, err, &cfgErr)
}
