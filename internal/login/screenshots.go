// ABOUTME: Best-effort diagnostic screenshot capture for failed login attempts
// ABOUTME: Writes PNGs into the configured outputs directory with unique names

package login

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/2389/gateway-sentry/internal/browser"
)

// Screenshots captures login page screenshots into the outputs directory.
// Capture is best effort: failures are logged and never affect the login
// outcome. A nil *Screenshots is valid and captures nothing.
type Screenshots struct {
	dir     string
	enabled bool
	logger  *slog.Logger
}

// NewScreenshots builds the capture helper from the outputs configuration.
func NewScreenshots(dir string, enabled bool, logger *slog.Logger) *Screenshots {
	return &Screenshots{
		dir:     dir,
		enabled: enabled && dir != "",
		logger:  logger.With("component", "screenshots"),
	}
}

// Save captures the current page and writes it as a PNG named after the
// capture time and the given label.
func (s *Screenshots) Save(ctx context.Context, session browser.Session, label string) {
	if s == nil || !s.enabled {
		return
	}

	png, err := session.Screenshot(ctx)
	if err != nil {
		s.logger.Error("Failed to capture screenshot", "label", label, "error", err)
		return
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Error("Failed to create outputs directory", "dir", s.dir, "error", err)
		return
	}

	name := fmt.Sprintf("%s__%s__%s.png",
		time.Now().Format("2006-01-02_15-04-05"), label, uuid.NewString()[:8])
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, png, 0o644); err != nil {
		s.logger.Error("Failed to write screenshot", "path", path, "error", err)
		return
	}
	s.logger.Info("Saved screenshot", "path", path)
}
