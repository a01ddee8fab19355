package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewConsoleOnly(t *testing.T) {
	logger, err := New(Options{Level: "debug"})
	require.NoError(t, err)
	logger.Debug("hello")
	// Sync on stderr can fail on some platforms, only flush best effort.
	_ = logger.Sync()
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, err := New(Options{Level: "info", File: path})
	require.NoError(t, err)

	logger.Info("training started")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "training started")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	require.Error(t, err)
}
