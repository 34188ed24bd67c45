// ABOUTME: Authentication strategy engine invoked by every maintenance cycle
// ABOUTME: Dispatches between the two recovery policies and escalates exhausted retries

package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/gateway-sentry/internal/config"
	"github.com/2389/gateway-sentry/internal/login"
	"github.com/2389/gateway-sentry/internal/status"
)

// Gateway is the HTTP surface the strategies drive.
type Gateway interface {
	Status(ctx context.Context) status.Status
	Reauthenticate(ctx context.Context) error
	Logout(ctx context.Context) (bool, error)
}

// Authenticator performs a full browser login.
type Authenticator interface {
	Login(ctx context.Context) login.Result
}

// Killer terminates the gateway process so the next cycle starts it fresh.
type Killer interface {
	Kill(ctx context.Context) error
}

// Condition reports whether a status is terminal for a status-check loop,
// meaning further polling cannot improve it. Both the happy case and the
// unrecoverable cases are terminal.
type Condition func(status.Status) bool

// ConditionAuthenticated is terminal once authenticated, or once the gateway
// is unreachable or the session is gone.
func ConditionAuthenticated(s status.Status) bool {
	if !s.Running || !s.Session {
		return true
	}
	return s.Authenticated
}

// ConditionLoggedOut is terminal once the session is disconnected and
// unauthenticated, or once nothing is left to log out of.
func ConditionLoggedOut(s status.Status) bool {
	if !s.Running || !s.Session || s.Competing {
		return true
	}
	return !s.Connected && !s.Authenticated
}

// ConditionNotCompeting is terminal once the session is fully healthy, or
// once the gateway is unreachable or the session is gone.
func ConditionNotCompeting(s status.Status) bool {
	if !s.Running || !s.Session {
		return true
	}
	return !s.Competing && s.Connected && s.Authenticated
}

// Outcome is the result of one authentication cycle. Shutdown is terminal
// and must stop the maintenance scheduler.
type Outcome struct {
	Success  bool
	Shutdown bool
	Status   status.Status
}

// Engine decides how to recover an unhealthy session: strategy A performs a
// full browser relogin, strategy B prefers reauthenticate calls and kills
// the gateway when they stop working.
type Engine struct {
	cfg     config.AuthConfig
	gateway Gateway
	login   Authenticator
	procs   Killer
	logger  *slog.Logger

	// pause spaces out repeated status checks; settle is the post-login
	// grace before the session is expected to report authenticated.
	pause  time.Duration
	settle time.Duration
}

// NewEngine builds the strategy engine around its collaborators.
func NewEngine(cfg config.AuthConfig, gateway Gateway, auth Authenticator, procs Killer, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		gateway: gateway,
		login:   auth,
		procs:   procs,
		logger:  logger.With("component", "strategy"),
		pause:   time.Second,
		settle:  3 * time.Second,
	}
}

// TryAuthenticating polls the session status and, unless it is already
// healthy, runs the configured strategy. statusAttempts bounds the initial
// status poll when the gateway is still coming up.
func (e *Engine) TryAuthenticating(ctx context.Context, statusAttempts int) Outcome {
	// Strategy A may request one full retry after restarting a failed
	// session; the loop caps that at a single extra round.
	for round := 0; ; round++ {
		st := e.pollStatus(ctx, statusAttempts)
		if st.Healthy() {
			return Outcome{Success: true, Status: st}
		}

		e.logger.Info("Gateway session unhealthy", "status", st.String())

		if !st.Running {
			e.logger.Error("Cannot communicate with the gateway. Consider increasing the startup grace period")
			return Outcome{Status: st}
		}

		name := e.cfg.Strategy
		if name != "A" && name != "B" {
			e.logger.Error("Unknown authentication strategy, defaulting to strategy A", "strategy", name)
			name = "A"
		}
		e.logger.Info("Authentication strategy selected", "strategy", name)

		if name == "B" {
			return e.strategyB(ctx, st)
		}

		outcome, retry := e.strategyA(ctx, st, statusAttempts)
		if retry && round == 0 {
			continue
		}
		return outcome
	}
}

// strategyA performs a full browser relogin and double-checks the result.
// The second return value requests one retry of the whole cycle after a
// failed session was restarted.
func (e *Engine) strategyA(ctx context.Context, st status.Status, statusAttempts int) (Outcome, bool) {
	if st.Session {
		if !st.Connected || st.Competing {
			e.logger.Info("Competing or disconnected gateway session found, logging out first")
			e.logout(ctx)
		}
		e.logger.Info("Gateway session found but not authenticated, logging in")
	} else {
		e.logger.Info("No active sessions, logging in")
	}

	result := e.login.Login(ctx)
	e.logger.Info("Login finished", "success", result.Success)
	if result.Shutdown {
		return Outcome{Shutdown: true, Status: st}, false
	}
	if !result.Success {
		return Outcome{Status: st}, false
	}

	// Buffer for the new session to become authenticated.
	if err := sleep(ctx, e.settle); err != nil {
		return Outcome{Status: st}, false
	}

	if statusAttempts < 2 {
		statusAttempts = 2
	}
	st = e.pollStatus(ctx, statusAttempts)

	if !st.Authenticated {
		switch {
		case st.Session:
			e.logger.Error("Login succeeded, but the active session is still not authenticated")
			e.reauthenticate(ctx)

			if e.cfg.ReauthenticateWait > 0 {
				e.logger.Info("Waiting for the reauthentication to take effect", "wait", e.cfg.ReauthenticateWait)
				if err := sleep(ctx, e.cfg.ReauthenticateWait); err != nil {
					return Outcome{Status: st}, false
				}
			}

			if e.cfg.RestartFailedSessions {
				e.logger.Info("Logging out and reattempting full authentication")
				e.logout(ctx)
				return Outcome{Status: st}, true
			}
		case st.Running:
			e.logger.Error("Login succeeded but there are still no active sessions")
		default:
			e.logger.Error("Login succeeded but now cannot communicate with the gateway")
		}
		return Outcome{Status: st}, false
	}

	if !st.Connected || st.Competing {
		e.logger.Info("Login succeeded, session is authenticated but competing, reauthenticating")
		e.reauthenticate(ctx)
		if err := sleep(ctx, e.cfg.RestartWait); err != nil {
			return Outcome{Status: st}, false
		}
		return Outcome{Status: st}, false
	}

	return Outcome{Success: true, Status: st}, false
}

// strategyB logs in only when no session exists; otherwise it leans on
// reauthenticate calls, verified by the repeated-reauthenticate loop.
func (e *Engine) strategyB(ctx context.Context, st status.Status) Outcome {
	switch {
	case !st.Session:
		e.logger.Info("No active sessions, logging in")

		result := e.login.Login(ctx)
		e.logger.Info("Login finished", "success", result.Success)
		if result.Shutdown || !result.Success {
			return Outcome{Shutdown: result.Shutdown, Status: st}
		}

	case !st.Connected || st.Competing:
		e.logger.Info("Competing or disconnected gateway session found, logging out and reauthenticating")
		e.logout(ctx)
		e.reauthenticate(ctx)

	default:
		e.logger.Info("Active session found but not authenticated, reauthenticating")
		e.reauthenticate(ctx)
	}

	return e.postAuthentication(ctx)
}

// postAuthentication verifies that authentication took effect, retrying
// reauthenticate calls up to the configured ceiling and killing the gateway
// when they are exhausted.
func (e *Engine) postAuthentication(ctx context.Context) Outcome {
	st := e.repeatedlyReauthenticate(ctx, e.cfg.MaxReauthRetries, ConditionAuthenticated)

	if !st.Running || !st.Session {
		return Outcome{Status: st}
	}

	if !st.Connected || st.Competing || !st.Authenticated {
		e.logger.Error("Repeated reauthentication failed, killing the gateway so the next cycle restarts it",
			"retries", e.cfg.MaxReauthRetries)
		if err := e.procs.Kill(ctx); err != nil {
			e.logger.Error("Failed to kill the gateway process", "error", err)
		}
		return Outcome{Status: st}
	}

	return Outcome{Success: true, Status: st}
}

// repeatedlyReauthenticate polls until the terminal condition holds, issuing
// another reauthenticate call whenever a status-check loop exhausts without
// reaching it.
func (e *Engine) repeatedlyReauthenticate(ctx context.Context, maxAttempts int, terminal Condition) status.Status {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var st status.Status
	for attempt := 0; attempt < maxAttempts; attempt++ {
		st = e.repeatedlyCheckStatus(ctx, e.cfg.MaxStatusCheckRetries, terminal)
		e.logger.Info("Gateway status", "status", st.String())

		if terminal(st) {
			return st
		}

		if attempt < maxAttempts-1 {
			e.reauthenticate(ctx)
			e.logger.Info("Repeated reauthentication attempt", "attempt", attempt+2)
		}
	}

	e.logger.Info("Max reauthenticate retries reached. Consider increasing max_reauthenticate_retries",
		"attempts", maxAttempts)
	return st
}

// repeatedlyCheckStatus polls the status endpoint until the terminal
// condition holds or the attempts run out.
func (e *Engine) repeatedlyCheckStatus(ctx context.Context, maxAttempts int, terminal Condition) status.Status {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var st status.Status
	for attempt := 0; attempt < maxAttempts; attempt++ {
		st = e.gateway.Status(ctx)
		if terminal(st) {
			return st
		}

		if attempt < maxAttempts-1 {
			if attempt == 0 {
				e.logger.Info("Repeating status check", "remaining", maxAttempts-attempt-1)
			}
			if err := sleep(ctx, e.pause); err != nil {
				return st
			}
		}
	}

	e.logger.Info("Max status check retries reached. Consider increasing max_status_check_retries",
		"attempts", maxAttempts)
	return st
}

// pollStatus retries the status poll while the gateway is unreachable, up to
// the given number of attempts.
func (e *Engine) pollStatus(ctx context.Context, attempts int) status.Status {
	if attempts < 1 {
		attempts = 1
	}

	var st status.Status
	for attempt := 0; attempt < attempts; attempt++ {
		st = e.gateway.Status(ctx)
		if st.Running {
			return st
		}
		if attempt < attempts-1 {
			if err := sleep(ctx, e.pause); err != nil {
				return st
			}
		}
	}
	return st
}

// logout is best effort; failures are logged and never block the strategy.
func (e *Engine) logout(ctx context.Context) {
	ok, err := e.gateway.Logout(ctx)
	if err != nil {
		e.logger.Error("Error logging out", "error", err)
		return
	}
	e.logger.Info("Gateway logout finished", "success", ok)
}

// reauthenticate is best effort; the follow-up status polls decide whether
// it worked.
func (e *Engine) reauthenticate(ctx context.Context) {
	if err := e.gateway.Reauthenticate(ctx); err != nil {
		e.logger.Error("Error reauthenticating", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
