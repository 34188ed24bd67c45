// ABOUTME: Tests for gateway process management
// ABOUTME: Uses the test binary's own process as the find target

package process

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/gateway-sentry/internal/config"
)

func newManager(t *testing.T, cfg config.GatewayConfig) *Manager {
	t.Helper()
	return NewManager(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFind_SelfProcess(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	m := newManager(t, config.GatewayConfig{ProcessMatch: filepath.Base(exe)})

	pids, err := m.Find()
	require.NoError(t, err)
	assert.Contains(t, pids, os.Getpid())
}

func TestFind_NoMatch(t *testing.T) {
	m := newManager(t, config.GatewayConfig{ProcessMatch: "no-such-process-xyzzy"})

	pids, err := m.Find()
	require.NoError(t, err)
	assert.Empty(t, pids)
}

func TestFind_UnconfiguredPattern(t *testing.T) {
	m := newManager(t, config.GatewayConfig{})

	_, err := m.Find()
	assert.Error(t, err)
}

func TestStart_UnconfiguredDir(t *testing.T) {
	m := newManager(t, config.GatewayConfig{ProcessMatch: "x"})

	err := m.Start(context.Background())
	assert.Error(t, err)
}

func TestEnsureStarted_AlreadyRunning(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	m := newManager(t, config.GatewayConfig{
		ProcessMatch: filepath.Base(exe),
		StartupGrace: 10 * time.Millisecond,
	})

	pid, started, err := m.EnsureStarted(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, pid)
	assert.False(t, started)
}

func TestEnsureStarted_NeverAppears(t *testing.T) {
	tmpDir := t.TempDir()
	// A launcher that exits immediately without producing a matching process.
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "bin", "run.sh"), []byte("#!/bin/sh\nexit 0\n"), 0755))

	m := newManager(t, config.GatewayConfig{
		Dir:          tmpDir,
		ProcessMatch: "no-such-process-xyzzy",
		StartupGrace: 10 * time.Millisecond,
	})

	_, _, err := m.EnsureStarted(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestKill_NoMatches(t *testing.T) {
	m := newManager(t, config.GatewayConfig{ProcessMatch: "no-such-process-xyzzy"})

	err := m.Kill(context.Background())
	assert.NoError(t, err)
}
