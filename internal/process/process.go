// ABOUTME: Gateway process lifecycle: find by name, start in its directory, terminate
// ABOUTME: The daemon only ever manages processes matching the configured pattern

package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	ps "github.com/mitchellh/go-ps"

	"github.com/2389/gateway-sentry/internal/config"
)

// ErrNotStarted is returned when the gateway did not appear within the
// startup grace period.
var ErrNotStarted = errors.New("gateway process did not start")

// startCommand is the launcher script, relative to the gateway directory.
var startCommand = []string{"bash", "bin/run.sh", "root/conf.yaml"}

// Manager starts, finds and terminates the gateway process.
type Manager struct {
	dir    string
	match  string
	grace  time.Duration
	logger *slog.Logger
}

// NewManager creates a process manager from gateway configuration.
func NewManager(cfg config.GatewayConfig, logger *slog.Logger) *Manager {
	return &Manager{
		dir:    cfg.Dir,
		match:  cfg.ProcessMatch,
		grace:  cfg.StartupGrace,
		logger: logger.With("component", "process"),
	}
}

// Find returns the pids of processes whose executable name contains the
// configured pattern.
func (m *Manager) Find() ([]int, error) {
	if m.match == "" {
		return nil, errors.New("gateway.process_match is not configured")
	}

	procs, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	var pids []int
	for _, p := range procs {
		if strings.Contains(p.Executable(), m.match) {
			pids = append(pids, p.Pid())
		}
	}
	return pids, nil
}

// Start spawns the gateway launcher in the gateway directory and detaches
// from it. It does not wait for the gateway to become reachable.
func (m *Manager) Start(ctx context.Context) error {
	if m.dir == "" {
		return errors.New("gateway.dir is not configured")
	}

	cmd := exec.CommandContext(ctx, startCommand[0], startCommand[1:]...)
	cmd.Dir = m.dir
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting gateway in %s: %w", m.dir, err)
	}
	m.logger.Info("Gateway launcher started", "pid", cmd.Process.Pid, "dir", m.dir)

	// The launcher forks the real gateway; don't leave a zombie behind.
	go func() {
		_ = cmd.Wait()
	}()

	return nil
}

// EnsureStarted makes sure a gateway process exists, starting one if needed
// and waiting out the startup grace period. It returns the pid of the first
// matching process and whether a new process was launched.
func (m *Manager) EnsureStarted(ctx context.Context) (int, bool, error) {
	pids, err := m.Find()
	if err != nil {
		return 0, false, err
	}
	if len(pids) > 0 {
		return pids[0], false, nil
	}

	m.logger.Info("Gateway not found, starting new one")
	if err := m.Start(ctx); err != nil {
		return 0, false, err
	}

	select {
	case <-ctx.Done():
		return 0, false, ctx.Err()
	case <-time.After(m.grace):
	}

	pids, err = m.Find()
	if err != nil {
		return 0, false, err
	}
	if len(pids) == 0 {
		return 0, false, ErrNotStarted
	}

	m.logger.Info("Gateway started", "pid", pids[0])
	return pids[0], true, nil
}

// Kill terminates all matching gateway processes. A process that survives
// SIGTERM gets SIGKILL after a short wait. Failure to kill individual
// processes is logged but only returned if nothing could be signalled.
func (m *Manager) Kill(ctx context.Context) error {
	pids, err := m.Find()
	if err != nil {
		return err
	}
	if len(pids) == 0 {
		m.logger.Info("No gateway process to kill")
		return nil
	}

	for _, pid := range pids {
		if err := m.signal(pid, syscall.SIGTERM); err != nil {
			m.logger.Warn("Failed to terminate gateway process", "pid", pid, "error", err)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
	}

	remaining, err := m.Find()
	if err != nil {
		return err
	}
	for _, pid := range remaining {
		m.logger.Warn("Gateway process survived SIGTERM, killing", "pid", pid)
		if err := m.signal(pid, syscall.SIGKILL); err != nil {
			m.logger.Error("Failed to kill gateway process", "pid", pid, "error", err)
		}
	}

	m.logger.Info("Gateway processes terminated", "count", len(pids))
	return nil
}

func (m *Manager) signal(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}
