// ABOUTME: Maintenance scheduler tying the gateway process, strategy engine and health server together
// ABOUTME: Runs the periodic authentication cycle and propagates protective shutdowns to process exit

package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/gateway-sentry/internal/config"
	"github.com/2389/gateway-sentry/internal/health"
	"github.com/2389/gateway-sentry/internal/store"
	"github.com/2389/gateway-sentry/internal/strategy"
)

// ErrShutdownRequested is returned by Run when a maintenance cycle demanded
// a protective shutdown. The process must exit with a distinguishable
// status so supervisors do not blindly restart it into the same lockout.
var ErrShutdownRequested = errors.New("shutdown requested by maintenance cycle")

// Authenticator runs one authentication cycle.
type Authenticator interface {
	TryAuthenticating(ctx context.Context, statusAttempts int) strategy.Outcome
}

// Starter ensures the gateway process is running before a cycle. The bool
// reports whether a new process was launched.
type Starter interface {
	EnsureStarted(ctx context.Context) (int, bool, error)
}

// Recorder appends to the authentication audit log.
type Recorder interface {
	Append(ctx context.Context, e *store.AuthEvent) error
}

// Daemon owns the maintenance cadence. Exactly one cycle runs at a time;
// overlapping cycles would race two logins against the same gateway.
type Daemon struct {
	cfg      *config.Config
	auth     Authenticator
	procs    Starter
	health   *health.Server
	metrics  *health.Metrics
	recorder Recorder // nil disables the audit log
	logger   *slog.Logger
}

// New assembles the daemon. recorder may be nil.
func New(cfg *config.Config, auth Authenticator, procs Starter, healthSrv *health.Server, metrics *health.Metrics, recorder Recorder, logger *slog.Logger) *Daemon {
	return &Daemon{
		cfg:      cfg,
		auth:     auth,
		procs:    procs,
		health:   healthSrv,
		metrics:  metrics,
		recorder: recorder,
		logger:   logger.With("component", "daemon"),
	}
}

// Run serves the health endpoints and the maintenance loop until the context
// is cancelled or a cycle requests shutdown. A cancelled context drains
// gracefully and returns nil; a protective shutdown returns
// ErrShutdownRequested.
func (d *Daemon) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return d.health.Run(gctx)
	})

	group.Go(func() error {
		return d.maintenanceLoop(gctx)
	})

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// maintenanceLoop runs cycles on the configured interval. The in-flight
// cycle always finishes; cancellation is only observed between cycles and
// at the browser engine's own suspension points.
func (d *Daemon) maintenanceLoop(ctx context.Context) error {
	if d.cfg.Maintenance.StartActive {
		if err := d.cycle(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(d.cfg.Maintenance.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Maintenance loop stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := d.cycle(ctx); err != nil {
				return err
			}
		}
	}
}

// cycle ensures the gateway process is up and runs one authentication pass.
func (d *Daemon) cycle(ctx context.Context) error {
	d.logger.Info("Maintenance cycle starting")

	pid, started, err := d.procs.EnsureStarted(ctx)
	switch {
	case err != nil:
		// The gateway may be managed externally; authentication is still
		// worth attempting.
		d.logger.Warn("Could not ensure the gateway process is running", "error", err)
	case started:
		d.logger.Info("Gateway process launched", "pid", pid)
		d.append(ctx, &store.AuthEvent{Event: store.EventGatewayStart, Strategy: d.cfg.Auth.Strategy})
	default:
		d.logger.Debug("Gateway process running", "pid", pid)
	}

	outcome := d.auth.TryAuthenticating(ctx, d.cfg.Gateway.RequestRetries)

	if d.metrics != nil {
		d.metrics.ObserveCycle(outcome.Success)
	}
	d.record(ctx, outcome)

	switch {
	case outcome.Shutdown:
		d.logger.Error("Maintenance cycle requested shutdown")
		d.health.RequestShutdown()
		return ErrShutdownRequested
	case outcome.Success:
		d.logger.Info("Gateway session authenticated",
			"session_id", outcome.Status.SessionID,
			"server_name", outcome.Status.ServerName,
			"server_version", outcome.Status.ServerVersion)
	default:
		d.logger.Warn("Maintenance cycle failed to authenticate",
			"status", outcome.Status.String())
	}
	return nil
}

// record appends the cycle outcome to the audit log, best effort.
func (d *Daemon) record(ctx context.Context, outcome strategy.Outcome) {
	event := store.EventCycleFailure
	switch {
	case outcome.Shutdown:
		event = store.EventShutdown
	case outcome.Success:
		event = store.EventCycleSuccess
	}

	d.append(ctx, &store.AuthEvent{
		Event:          event,
		Strategy:       d.cfg.Auth.Strategy,
		Classification: string(outcome.Status.Classify()),
		SessionID:      outcome.Status.SessionID,
		ServerName:     outcome.Status.ServerName,
	})
}

// append writes one audit event, best effort. No-op without a recorder.
func (d *Daemon) append(ctx context.Context, e *store.AuthEvent) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.Append(ctx, e); err != nil {
		d.logger.Error("Failed to record auth event", "error", err)
	}
}
