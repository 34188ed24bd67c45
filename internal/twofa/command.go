// ABOUTME: Command two-factor handler running a user-supplied executable
// ABOUTME: The subprocess boundary is how custom handlers plug in

package twofa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/2389/gateway-sentry/internal/browser"
	"github.com/2389/gateway-sentry/internal/config"
)

// commandHandler runs an external program and reads the code from its
// standard output. The program receives no arguments beyond those in the
// configured command line and must exit zero on success; an empty output
// means no code was available.
type commandHandler struct {
	argv   []string
	logger *slog.Logger
}

func newCommand(cfg config.TwoFAConfig, logger *slog.Logger) (Handler, error) {
	argv := strings.Fields(cfg.Command)
	if len(argv) == 0 {
		return nil, fmt.Errorf("COMMAND handler requires two_fa.command")
	}
	return &commandHandler{argv: argv, logger: logger}, nil
}

func (h *commandHandler) Acquire(ctx context.Context, _ browser.Session) (Outcome, error) {
	cmd := exec.CommandContext(ctx, h.argv[0], h.argv[1:]...)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			h.logger.Error("Two-factor command failed",
				"command", h.argv[0], "exit_code", exitErr.ExitCode(), "stderr", strings.TrimSpace(string(exitErr.Stderr)))
			return Outcome{}, nil
		}
		return Outcome{}, fmt.Errorf("running two-factor command: %w", err)
	}

	return Outcome{Code: strings.TrimSpace(string(output))}, nil
}

func (h *commandHandler) Name() string { return "COMMAND" }
