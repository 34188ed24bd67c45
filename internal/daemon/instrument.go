// ABOUTME: Metric and audit decorators around the strategy engine collaborators
// ABOUTME: Keep instrumentation out of the strategy and login packages

package daemon

import (
	"context"
	"log/slog"

	"github.com/2389/gateway-sentry/internal/health"
	"github.com/2389/gateway-sentry/internal/login"
	"github.com/2389/gateway-sentry/internal/store"
	"github.com/2389/gateway-sentry/internal/strategy"
)

// InstrumentedGateway counts reauthenticate calls.
type InstrumentedGateway struct {
	strategy.Gateway
	Metrics *health.Metrics
}

func (g InstrumentedGateway) Reauthenticate(ctx context.Context) error {
	g.Metrics.Reauths.Inc()
	return g.Gateway.Reauthenticate(ctx)
}

// InstrumentedLogin counts browser login invocations.
type InstrumentedLogin struct {
	strategy.Authenticator
	Metrics *health.Metrics
}

func (l InstrumentedLogin) Login(ctx context.Context) login.Result {
	l.Metrics.LoginAttempts.Inc()
	return l.Authenticator.Login(ctx)
}

// InstrumentedKiller counts gateway kills.
type InstrumentedKiller struct {
	strategy.Killer
	Metrics *health.Metrics
}

func (k InstrumentedKiller) Kill(ctx context.Context) error {
	k.Metrics.GatewayKills.Inc()
	return k.Killer.Kill(ctx)
}

// RecordingKiller appends an audit event for every gateway kill. Kills are
// rare enough that each one deserves a durable trace.
type RecordingKiller struct {
	strategy.Killer
	Recorder Recorder
	Strategy string
	Logger   *slog.Logger
}

func (k RecordingKiller) Kill(ctx context.Context) error {
	err := k.Killer.Kill(ctx)

	e := &store.AuthEvent{Event: store.EventGatewayKilled, Strategy: k.Strategy}
	if err != nil {
		e.Detail = map[string]any{"error": err.Error()}
	}
	if recordErr := k.Recorder.Append(ctx, e); recordErr != nil {
		k.Logger.Error("Failed to record gateway kill", "error", recordErr)
	}
	return err
}
