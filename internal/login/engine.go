// ABOUTME: Credential submission state machine driving the gateway login page
// ABOUTME: Owns the adaptive presubmit buffer and the failed-attempt lockout counter

package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/gateway-sentry/internal/browser"
	"github.com/2389/gateway-sentry/internal/config"
	"github.com/2389/gateway-sentry/internal/secrets"
	"github.com/2389/gateway-sentry/internal/twofa"
)

// Error banner texts the gateway is known to display.
const (
	invalidCredentialsText = "Invalid username password combination"
	failedText             = "failed"
)

// versionProbeTimeout bounds each per-version username-field probe.
const versionProbeTimeout = 5 * time.Second

// AttemptOutcome is what one pass of the attempt loop decided. The loop
// switches on it; no control flow is signalled through errors.
type AttemptOutcome int

const (
	// OutcomeContinue retries the attempt loop.
	OutcomeContinue AttemptOutcome = iota
	// OutcomeSuccess ends the login successfully.
	OutcomeSuccess
	// OutcomeShutdown is terminal: the daemon must stop to protect the account.
	OutcomeShutdown
	// OutcomeBreak abandons the remaining attempts without success.
	OutcomeBreak
)

func (o AttemptOutcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeSuccess:
		return "success"
	case OutcomeShutdown:
		return "shutdown"
	case OutcomeBreak:
		return "break"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the login contract consumed by the strategy engine. Shutdown is
// terminal and propagates unmodified to process exit.
type Result struct {
	Success  bool
	Shutdown bool
}

// Engine drives browser login attempts. The adaptive submission state
// (presubmit buffer, failed-attempt counter) lives on the Engine and
// persists across maintenance cycles; construct exactly one per process.
type Engine struct {
	cfg          config.LoginConfig
	loginURL     string
	creds        secrets.Credentials
	opener       browser.Opener
	twoFA        twofa.Handler
	selectTarget string
	strictCode   bool
	pageLoad     time.Duration
	shots        *Screenshots
	logger       *slog.Logger

	presubmitBuffer time.Duration
	failedAttempts  int

	// errorPause spaces out retries after a rejected attempt.
	errorPause time.Duration
}

// NewEngine creates the login engine. The two-factor handler may be nil when
// the account has no second factor configured.
func NewEngine(cfg *config.Config, loginURL string, creds secrets.Credentials, opener browser.Opener, handler twofa.Handler, shots *Screenshots, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:             cfg.Login,
		loginURL:        loginURL,
		creds:           creds,
		opener:          opener,
		twoFA:           handler,
		selectTarget:    cfg.TwoFA.SelectTarget,
		strictCode:      cfg.TwoFA.StrictCode,
		pageLoad:        cfg.Browser.PageLoadTimeout,
		shots:           shots,
		logger:          logger.With("component", "login"),
		presubmitBuffer: cfg.Login.MinPresubmitBuffer,
		errorPause:      time.Second,
	}
}

// Login performs one bounded series of login attempts. All failures are
// folded into the Result; nothing panics out of a maintenance cycle. The
// browser session is always released, whatever the outcome.
func (e *Engine) Login(ctx context.Context) Result {
	e.logger.Info("Loading auth webpage", "url", e.loginURL)

	session, err := e.opener.Open(ctx)
	if err != nil {
		e.logger.Error("Failed to open browser session", "error", err)
		return Result{}
	}
	defer session.Close()

	if err := session.Navigate(ctx, e.loginURL); err != nil {
		e.logger.Error("Failed to load auth webpage", "url", e.loginURL, "error", err)
		return Result{}
	}

	version := e.detectVersion(ctx, session)

	targets, err := browser.ResolveTargets(version, e.cfg.Targets, e.logger)
	if err != nil {
		e.logger.Error("Failed to resolve login targets", "version", version, "error", err)
		return Result{}
	}

	// Wait for the page to load.
	if err := session.WaitFor(ctx, e.pageLoad, targets[browser.RoleUserName]); err != nil {
		e.diagnoseTimeout(ctx, session, targets)
		return Result{}
	}
	e.logger.Info("Gateway auth webpage loaded", "version", version)

	maxAttempts := e.cfg.MaxImmediateAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		e.logger.Info("Login attempt", "attempt", attempt)

		outcome := e.attempt(ctx, session, targets)
		e.logger.Debug("Attempt finished", "outcome", outcome.String())

		switch outcome {
		case OutcomeSuccess:
			return Result{Success: true}
		case OutcomeShutdown:
			return Result{Shutdown: true}
		case OutcomeBreak:
			return Result{}
		case OutcomeContinue:
			// next attempt
		}
	}

	return Result{}
}

// attempt runs one pass of the attempt loop: fill the form, submit, follow
// whatever sub-flow the page presents, and resolve the final trigger.
func (e *Engine) attempt(ctx context.Context, session browser.Session, targets browser.TargetSet) AttemptOutcome {
	if outcome := e.fillAndSubmit(ctx, session, targets); outcome != OutcomeContinue {
		return outcome
	}

	// Wait for the first of the simultaneous trigger conditions.
	trigger, err := session.WaitAny(ctx, e.cfg.TriggerTimeout, triggersOf(targets,
		browser.RoleSuccess, browser.RoleTwoFA, browser.RoleTwoFASelect,
		browser.RoleTwoFANotification, browser.RoleError, browser.RoleIBKeyPromo))
	if err != nil {
		return e.waitFailed(ctx, session, err, targets)
	}

	if trigger == browser.RoleTwoFASelect {
		trigger, err = e.selectTwoFAMethod(ctx, session, targets)
		if err != nil {
			return e.waitFailed(ctx, session, err, targets)
		}
	}

	if trigger == browser.RoleTwoFANotification {
		next, outcome := e.handleNotification(ctx, session, targets)
		if outcome != OutcomeContinue {
			return outcome
		}
		if next == "" {
			// Handler reported failure; the refresh already happened.
			return OutcomeContinue
		}
		trigger = next
	}

	if trigger == browser.RoleTwoFA {
		next, outcome := e.handleTwoFACode(ctx, session, targets)
		if outcome != OutcomeContinue {
			return outcome
		}
		if next != "" {
			trigger = next
		}
	}

	if trigger == browser.RoleIBKeyPromo {
		e.logger.Info("Handling promotional interstitial")
		if err := session.Click(ctx, targets[browser.RoleIBKeyPromo]); err != nil {
			e.logger.Error("Failed to click through interstitial", "error", err)
			return OutcomeBreak
		}
		trigger, err = session.WaitAny(ctx, 10*time.Second, triggersOf(targets,
			browser.RoleSuccess, browser.RoleError))
		if err != nil {
			return e.waitFailed(ctx, session, err, targets)
		}
	}

	return e.resolveTrigger(ctx, session, trigger, targets)
}

// fillAndSubmit enters credentials and clicks submit. The password is
// decrypted immediately before typing and never retained.
func (e *Engine) fillAndSubmit(ctx context.Context, session browser.Session, targets browser.TargetSet) AttemptOutcome {
	userLoc := targets[browser.RoleUserName]
	passLoc := targets[browser.RolePassword]

	password, err := e.creds.Plaintext()
	if err != nil {
		e.logger.Error("Failed to decrypt password", "error", err)
		return OutcomeShutdown
	}

	steps := []error{
		session.Clear(ctx, userLoc),
		session.Clear(ctx, passLoc),
		session.Type(ctx, userLoc, e.creds.Account),
		session.Type(ctx, passLoc, password),
		session.Type(ctx, passLoc, "\t"),
	}
	for _, err := range steps {
		if err != nil {
			e.logger.Error("Failed to fill login form", "error", err)
			return OutcomeBreak
		}
	}

	// Small buffer to prevent a race condition on the client side.
	if err := sleep(ctx, e.presubmitBuffer); err != nil {
		return OutcomeBreak
	}

	e.logger.Info("Submitting the form", "presubmit_buffer", e.presubmitBuffer)
	if err := session.Click(ctx, targets[browser.RoleSubmit]); err != nil {
		e.logger.Error("Failed to click submit", "error", err)
		return OutcomeBreak
	}
	return OutcomeContinue
}

// selectTwoFAMethod picks the configured method from the select element and
// re-waits for the next trigger.
func (e *Engine) selectTwoFAMethod(ctx context.Context, session browser.Session, targets browser.TargetSet) (browser.Role, error) {
	e.logger.Info("Required to select a two-factor method", "target", e.selectTarget)

	if err := session.SelectByText(ctx, targets[browser.RoleTwoFASelect], e.selectTarget); err != nil {
		return "", err
	}

	trigger, err := session.WaitAny(ctx, e.cfg.TriggerTimeout, triggersOf(targets,
		browser.RoleSuccess, browser.RoleTwoFA, browser.RoleTwoFANotification,
		browser.RoleError, browser.RoleIBKeyPromo))
	if err != nil {
		return "", err
	}

	e.logger.Info("Two-factor method selected", "target", e.selectTarget)
	return trigger, nil
}

// handleNotification lets the handler drive the out-of-band approval. On
// handler failure the page is refreshed and the attempt restarts; otherwise
// it returns the next trigger.
func (e *Engine) handleNotification(ctx context.Context, session browser.Session, targets browser.TargetSet) (browser.Role, AttemptOutcome) {
	e.logger.Info("Credentials correct, gateway requires notification two-factor authentication")

	if e.twoFA != nil {
		outcome, err := e.twoFA.Acquire(ctx, session)
		if err != nil {
			e.logger.Error("Two-factor handler failed", "handler", e.twoFA.Name(), "error", err)
		}
		if err != nil || !outcome.Confirmed {
			if err := session.Refresh(ctx); err != nil {
				e.logger.Error("Failed to refresh page", "error", err)
				return "", OutcomeBreak
			}
			return "", OutcomeContinue
		}
	}

	trigger, err := session.WaitAny(ctx, e.cfg.TriggerTimeout, triggersOf(targets,
		browser.RoleSuccess, browser.RoleIBKeyPromo, browser.RoleError))
	if err != nil {
		return "", e.waitFailed(ctx, session, err, targets)
	}
	return trigger, OutcomeContinue
}

// handleTwoFACode obtains a code from the handler and submits it. A missing
// handler is a fatal misconfiguration. An unusable code leaves the trigger
// unchanged, which resolveTrigger turns into a refresh-and-retry.
func (e *Engine) handleTwoFACode(ctx context.Context, session browser.Session, targets browser.TargetSet) (browser.Role, AttemptOutcome) {
	e.logger.Info("Credentials correct, gateway requires two-factor authentication")

	if e.twoFA == nil {
		e.logger.Error("No two-factor handler configured but the gateway requires one; shutting down so the operator can configure a handler")
		return "", OutcomeShutdown
	}

	code := e.acquireCode(ctx, session)
	if code == "" {
		e.logger.Warn("No two-factor code returned, aborting authentication")
		return "", OutcomeContinue
	}

	inputLoc := targets[browser.RoleTwoFAInput]
	if err := session.WaitFor(ctx, e.cfg.TriggerTimeout, inputLoc); err != nil {
		return "", e.waitFailed(ctx, session, err, targets)
	}
	if err := session.Clear(ctx, inputLoc); err != nil {
		e.logger.Error("Failed to clear two-factor input", "error", err)
		return "", OutcomeBreak
	}

	e.logger.Info("Submitting the two-factor form")
	if err := session.Type(ctx, inputLoc, code+"\n"); err != nil {
		e.logger.Error("Failed to enter two-factor code", "error", err)
		return "", OutcomeBreak
	}

	trigger, err := session.WaitAny(ctx, e.cfg.TriggerTimeout, triggersOf(targets,
		browser.RoleSuccess, browser.RoleIBKeyPromo, browser.RoleError))
	if err != nil {
		return "", e.waitFailed(ctx, session, err, targets)
	}
	return trigger, OutcomeContinue
}

// acquireCode asks the handler for a code and applies strict validation.
func (e *Engine) acquireCode(ctx context.Context, session browser.Session) string {
	e.logger.Info("Acquiring two-factor code", "handler", e.twoFA.Name())

	outcome, err := e.twoFA.Acquire(ctx, session)
	if err != nil {
		e.logger.Error("Error acquiring two-factor code", "handler", e.twoFA.Name(), "error", err)
		return ""
	}

	if e.strictCode && outcome.Code != "" && !isSixDigits(outcome.Code) {
		e.logger.Error("Illegal two-factor code returned; expected exactly 6 digits",
			"length", len(outcome.Code))
		return ""
	}
	return outcome.Code
}

// resolveTrigger turns the final trigger into an attempt outcome, updating
// the adaptive submission state.
func (e *Engine) resolveTrigger(ctx context.Context, session browser.Session, trigger browser.Role, targets browser.TargetSet) AttemptOutcome {
	switch trigger {
	case browser.RoleError:
		text, err := session.Text(ctx, targets[browser.RoleError])
		if err != nil {
			e.logger.Error("Failed to read error banner", "error", err)
		}
		e.logger.Error("Error displayed by the login webpage", "text", text)
		e.shots.Save(ctx, session, "failed_attempt")

		if text == invalidCredentialsText && e.presubmitBuffer < e.cfg.MaxPresubmitBuffer {
			e.growPresubmitBuffer()
		}

		if (text == failedText || text == invalidCredentialsText) && e.cfg.MaxFailedAuth > 0 {
			e.failedAttempts++
			if e.failedAttempts >= e.cfg.MaxFailedAuth {
				e.logger.Error("Maximum number of failed authentication attempts reached; shutting down to prevent an account lock-out. Authenticate manually to reset the counter",
					"failed_attempts", e.failedAttempts, "max_failed_auth", e.cfg.MaxFailedAuth)
				return OutcomeShutdown
			}
		}

		if err := sleep(ctx, e.errorPause); err != nil {
			return OutcomeBreak
		}
		return OutcomeContinue

	case browser.RoleTwoFA:
		// No code was submitted and the trigger never changed.
		if err := sleep(ctx, e.errorPause); err != nil {
			return OutcomeBreak
		}
		if err := session.Refresh(ctx); err != nil {
			e.logger.Error("Failed to refresh page", "error", err)
			return OutcomeBreak
		}
		return OutcomeContinue

	case browser.RoleSuccess:
		e.logger.Info("Webpage displayed the login success message")
		e.failedAttempts = 0
		e.presubmitBuffer = e.cfg.MinPresubmitBuffer
		return OutcomeSuccess

	default:
		e.logger.Error("Unhandled login trigger", "trigger", string(trigger))
		return OutcomeBreak
	}
}

// growPresubmitBuffer widens the delay before form submission, capped at the
// configured maximum.
func (e *Engine) growPresubmitBuffer() {
	e.presubmitBuffer += e.cfg.PresubmitBufferStep
	if e.presubmitBuffer >= e.cfg.MaxPresubmitBuffer {
		e.presubmitBuffer = e.cfg.MaxPresubmitBuffer
		e.logger.Warn("Presubmit buffer set to maximum", "buffer", e.presubmitBuffer)
	} else {
		e.logger.Warn("Increased presubmit buffer", "buffer", e.presubmitBuffer)
	}
}

// detectVersion probes the page for each version's username field and
// defaults to version 1 when none matches.
func (e *Engine) detectVersion(ctx context.Context, session browser.Session) int {
	for _, version := range browser.Versions() {
		loc, ok := browser.UserNameLocator(version)
		if !ok {
			continue
		}
		if err := session.WaitFor(ctx, versionProbeTimeout, loc); err == nil {
			return version
		}
	}

	e.logger.Warn("Cannot determine the website version, assuming version 1")
	return 1
}

// waitFailed classifies a failed wait. Timeouts get the page-load diagnosis;
// everything else is logged with a screenshot. Either way the attempt loop
// stops.
func (e *Engine) waitFailed(ctx context.Context, session browser.Session, err error, targets browser.TargetSet) AttemptOutcome {
	if errors.Is(err, browser.ErrWaitTimeout) {
		e.diagnoseTimeout(ctx, session, targets)
		return OutcomeBreak
	}

	e.logger.Error("Error encountered during authentication", "error", err)
	e.shots.Save(ctx, session, "generic_error")
	return OutcomeBreak
}

// pageShellLocator detects whether the login page shell rendered at all,
// used to tell configuration problems from layout changes.
var pageShellLocator = browser.MustParse("CLASS_NAME@@login")

// diagnoseTimeout distinguishes "page never loaded" (connectivity or
// configuration problem) from "page loaded but elements never appeared"
// (likely a website layout change).
func (e *Engine) diagnoseTimeout(ctx context.Context, session browser.Session, targets browser.TargetSet) {
	loaded := session.WaitFor(ctx, versionProbeTimeout, pageShellLocator) == nil

	if loaded {
		e.logger.Error("Timeout searching for website elements, but the website seems loaded; the page layout may have changed",
			"targets", fmt.Sprintf("%v", targets))
	} else {
		e.logger.Error("Timeout waiting for authentication; the website does not seem to be loaded. Consider increasing the page load timeout",
			"url", e.loginURL, "page_load_timeout", e.pageLoad)
	}
	e.shots.Save(ctx, session, "timeout")
}

// triggersOf selects the named roles out of a target set.
func triggersOf(targets browser.TargetSet, roles ...browser.Role) []browser.Trigger {
	triggers := make([]browser.Trigger, 0, len(roles))
	for _, role := range roles {
		triggers = append(triggers, browser.Trigger{Role: role, Locator: targets[role]})
	}
	return triggers
}

func isSixDigits(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
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
