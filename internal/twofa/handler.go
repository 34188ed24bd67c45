// ABOUTME: Two-factor capability interface and handler registry
// ABOUTME: Handlers are selected by configuration name; custom ones register themselves

package twofa

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/gateway-sentry/internal/browser"
	"github.com/2389/gateway-sentry/internal/config"
)

// Outcome is what a handler produced. Exactly one of Code or Confirmed is
// meaningful: code-based handlers return the code to type, notification-style
// handlers confirm that the user approved out-of-band.
type Outcome struct {
	Code      string
	Confirmed bool
}

// Handler acquires the second authentication factor. Acquire owns any
// polling of the user's out-of-band channel; it returns a zero Outcome (no
// code, not confirmed) when the factor could not be obtained without that
// being an infrastructure error.
type Handler interface {
	Acquire(ctx context.Context, session browser.Session) (Outcome, error)
	Name() string
}

// Factory builds a handler from configuration.
type Factory func(cfg config.TwoFAConfig, logger *slog.Logger) (Handler, error)

var registry = map[string]Factory{
	"TOTP":                newTOTP,
	"EXTERNAL_REQUEST":    newExternalRequest,
	"NOTIFICATION_RESEND": newNotificationResend,
	"COMMAND":             newCommand,
}

// Register adds a handler factory under a configuration name. Built-ins are
// pre-registered; calling Register with an existing name replaces it.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// New builds the configured handler. An empty handler name means two-factor
// authentication is not configured and returns (nil, nil).
func New(cfg config.TwoFAConfig, logger *slog.Logger) (Handler, error) {
	if cfg.Handler == "" {
		return nil, nil
	}

	factory, ok := registry[cfg.Handler]
	if !ok {
		return nil, fmt.Errorf("unknown two-factor handler %q", cfg.Handler)
	}
	return factory(cfg, logger.With("component", "twofa"))
}
