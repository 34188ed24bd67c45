// ABOUTME: Tests for the login engine attempt loop and adaptive state
// ABOUTME: Drives the engine with scripted fake browser sessions

package login

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/gateway-sentry/internal/browser"
	"github.com/2389/gateway-sentry/internal/config"
	"github.com/2389/gateway-sentry/internal/secrets"
	"github.com/2389/gateway-sentry/internal/twofa"
)

type fakeOpener struct {
	session browser.Session
	err     error
}

func (f fakeOpener) Open(context.Context) (browser.Session, error) {
	return f.session, f.err
}

type fakeHandler struct {
	outcome twofa.Outcome
	err     error
	calls   int
}

func (f *fakeHandler) Acquire(context.Context, browser.Session) (twofa.Outcome, error) {
	f.calls++
	return f.outcome, f.err
}

func (f *fakeHandler) Name() string { return "fake" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig returns defaults with the waits shrunk so tests run fast.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Login.MinPresubmitBuffer = 0
	cfg.Login.MaxPresubmitBuffer = 8 * time.Millisecond
	cfg.Login.PresubmitBufferStep = 5 * time.Millisecond
	cfg.Login.MaxFailedAuth = 0
	cfg.TwoFA.SelectTarget = "IB Key"
	return cfg
}

func newTestEngine(cfg *config.Config, session browser.Session, handler twofa.Handler) *Engine {
	creds := secrets.Credentials{Account: "user1", Password: "hunter2"}
	e := NewEngine(cfg, "https://localhost:5000/sso/Login", creds,
		fakeOpener{session: session}, handler, nil, testLogger())
	e.errorPause = 0
	return e
}

// loaded returns the script prefix for a page that loads as website
// version 1: the version probe plus the page-load wait.
func loaded() []browser.FakeWait {
	return []browser.FakeWait{{}, {}}
}

func TestLogin_Success(t *testing.T) {
	session := &browser.FakeSession{
		Script: append(loaded(), browser.FakeWait{Role: browser.RoleSuccess}),
	}
	engine := newTestEngine(testConfig(), session, nil)

	result := engine.Login(context.Background())

	require.Equal(t, Result{Success: true}, result)
	assert.Equal(t, []string{"https://localhost:5000/sso/Login"}, session.Navigated)
	assert.Equal(t, 1, session.Closes)
	assert.Equal(t, 0, engine.failedAttempts)

	// Username, password, then a tab to commit the password field.
	require.Len(t, session.Typed, 3)
	assert.Equal(t, browser.TypedText{Locator: "NAME@@user_name", Text: "user1"}, session.Typed[0])
	assert.Equal(t, browser.TypedText{Locator: "NAME@@password", Text: "hunter2"}, session.Typed[1])
	assert.Equal(t, "\t", session.Typed[2].Text)
	assert.Contains(t, session.Clicked, "CSS_SELECTOR@@.btn.btn-lg.btn-primary")
}

func TestLogin_VersionTwoDetected(t *testing.T) {
	session := &browser.FakeSession{
		Script: []browser.FakeWait{
			{Err: browser.ErrWaitTimeout}, // version 1 probe
			{},                            // version 2 probe
			{},                            // page load
			{Role: browser.RoleSuccess},
		},
	}
	engine := newTestEngine(testConfig(), session, nil)

	result := engine.Login(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, "NAME@@username", session.Typed[0].Locator)
}

func TestLogin_OpenError(t *testing.T) {
	engine := NewEngine(testConfig(), "https://localhost:5000/sso/Login",
		secrets.Credentials{Account: "u", Password: "p"},
		fakeOpener{err: errors.New("no chrome binary")}, nil, nil, testLogger())

	result := engine.Login(context.Background())

	assert.Equal(t, Result{}, result)
}

func TestLogin_PageNeverLoads(t *testing.T) {
	session := &browser.FakeSession{
		Script: []browser.FakeWait{
			{Err: browser.ErrWaitTimeout}, // version 1 probe
			{Err: browser.ErrWaitTimeout}, // version 2 probe
			{Err: browser.ErrWaitTimeout}, // page load
			// page shell diagnosis: script exhausted, times out
		},
	}
	engine := newTestEngine(testConfig(), session, nil)

	result := engine.Login(context.Background())

	assert.Equal(t, Result{}, result)
	assert.Empty(t, session.Typed)
	assert.Equal(t, 1, session.Closes)
}

func TestLogin_TriggerTimeout(t *testing.T) {
	// The form submits but no trigger condition ever appears.
	session := &browser.FakeSession{Script: loaded()}
	engine := newTestEngine(testConfig(), session, nil)

	result := engine.Login(context.Background())

	assert.Equal(t, Result{}, result)
	assert.Equal(t, 1, session.Closes)
}

func TestLogin_ErrorGrowsPresubmitBuffer(t *testing.T) {
	cfg := testConfig()
	cfg.Login.MaxImmediateAttempts = 1
	session := &browser.FakeSession{
		Script: append(loaded(), browser.FakeWait{Role: browser.RoleError}),
		Texts: map[string]string{
			"CLASS_NAME@@alert.alert-danger.margin-top-10": "Invalid username password combination",
		},
	}
	engine := newTestEngine(cfg, session, nil)

	result := engine.Login(context.Background())

	assert.Equal(t, Result{}, result)
	assert.Equal(t, 5*time.Millisecond, engine.presubmitBuffer)
	assert.Equal(t, 0, engine.failedAttempts) // lockout guard disabled
}

func TestLogin_BufferCappedThenResetOnSuccess(t *testing.T) {
	cfg := testConfig()
	cfg.Login.MaxImmediateAttempts = 3
	session := &browser.FakeSession{
		Script: append(loaded(),
			browser.FakeWait{Role: browser.RoleError},
			browser.FakeWait{Role: browser.RoleError},
			browser.FakeWait{Role: browser.RoleSuccess}),
		Texts: map[string]string{
			"CLASS_NAME@@alert.alert-danger.margin-top-10": "Invalid username password combination",
		},
	}
	engine := newTestEngine(cfg, session, nil)

	result := engine.Login(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, cfg.Login.MinPresubmitBuffer, engine.presubmitBuffer)
}

func TestGrowPresubmitBuffer_Cap(t *testing.T) {
	engine := newTestEngine(testConfig(), &browser.FakeSession{}, nil)

	engine.growPresubmitBuffer()
	assert.Equal(t, 5*time.Millisecond, engine.presubmitBuffer)

	// 0 + 5ms + 5ms exceeds the 8ms maximum and is capped.
	engine.growPresubmitBuffer()
	assert.Equal(t, 8*time.Millisecond, engine.presubmitBuffer)
}

func TestLogin_UnrecognisedErrorDoesNotGrowBuffer(t *testing.T) {
	cfg := testConfig()
	cfg.Login.MaxImmediateAttempts = 2
	cfg.Login.MaxFailedAuth = 5
	session := &browser.FakeSession{
		Script: append(loaded(),
			browser.FakeWait{Role: browser.RoleError},
			browser.FakeWait{Role: browser.RoleError}),
		Texts: map[string]string{
			"CLASS_NAME@@alert.alert-danger.margin-top-10": "Something went wrong",
		},
	}
	engine := newTestEngine(cfg, session, nil)

	result := engine.Login(context.Background())

	assert.Equal(t, Result{}, result)
	assert.Equal(t, time.Duration(0), engine.presubmitBuffer)
	assert.Equal(t, 0, engine.failedAttempts)
}

func TestLogin_FailedAuthCeilingShutsDown(t *testing.T) {
	cfg := testConfig()
	cfg.Login.MaxImmediateAttempts = 5
	cfg.Login.MaxFailedAuth = 2
	session := &browser.FakeSession{
		Script: append(loaded(),
			browser.FakeWait{Role: browser.RoleError},
			browser.FakeWait{Role: browser.RoleError}),
		Texts: map[string]string{
			"CLASS_NAME@@alert.alert-danger.margin-top-10": "failed",
		},
	}
	engine := newTestEngine(cfg, session, nil)

	result := engine.Login(context.Background())

	require.Equal(t, Result{Shutdown: true}, result)
	assert.Equal(t, 2, engine.failedAttempts)
}

func TestLogin_FailedAuthCounterResetOnSuccess(t *testing.T) {
	cfg := testConfig()
	cfg.Login.MaxImmediateAttempts = 3
	cfg.Login.MaxFailedAuth = 5
	session := &browser.FakeSession{
		Script: append(loaded(),
			browser.FakeWait{Role: browser.RoleError},
			browser.FakeWait{Role: browser.RoleSuccess}),
		Texts: map[string]string{
			"CLASS_NAME@@alert.alert-danger.margin-top-10": "failed",
		},
	}
	engine := newTestEngine(cfg, session, nil)

	result := engine.Login(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 0, engine.failedAttempts)
}

func TestLogin_TwoFAWithoutHandlerShutsDown(t *testing.T) {
	session := &browser.FakeSession{
		Script: append(loaded(), browser.FakeWait{Role: browser.RoleTwoFA}),
	}
	engine := newTestEngine(testConfig(), session, nil)

	result := engine.Login(context.Background())

	assert.Equal(t, Result{Shutdown: true}, result)
}

func TestLogin_TwoFACodeSubmitted(t *testing.T) {
	handler := &fakeHandler{outcome: twofa.Outcome{Code: "123456"}}
	session := &browser.FakeSession{
		Script: append(loaded(),
			browser.FakeWait{Role: browser.RoleTwoFA},
			browser.FakeWait{}, // two-factor input appears
			browser.FakeWait{Role: browser.RoleSuccess}),
	}
	engine := newTestEngine(testConfig(), session, handler)

	result := engine.Login(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 1, handler.calls)
	assert.Contains(t, session.Cleared, "ID@@chlginput")

	var codeTyped bool
	for _, typed := range session.Typed {
		if typed.Locator == "ID@@chlginput" && typed.Text == "123456\n" {
			codeTyped = true
		}
	}
	assert.True(t, codeTyped, "expected the code to be typed followed by a newline")
}

func TestLogin_StrictCodeRejectsMalformed(t *testing.T) {
	cfg := testConfig()
	cfg.Login.MaxImmediateAttempts = 2
	handler := &fakeHandler{outcome: twofa.Outcome{Code: "12345"}}
	session := &browser.FakeSession{
		Script: append(loaded(),
			browser.FakeWait{Role: browser.RoleTwoFA},
			// rejected code: page refreshed, second attempt succeeds
			browser.FakeWait{Role: browser.RoleSuccess}),
	}
	engine := newTestEngine(cfg, session, handler)

	result := engine.Login(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 1, session.Refreshes)
	for _, typed := range session.Typed {
		assert.False(t, strings.HasPrefix(typed.Text, "12345"),
			"malformed code must never reach the form")
	}
}

func TestLogin_MethodSelectThenCode(t *testing.T) {
	handler := &fakeHandler{outcome: twofa.Outcome{Code: "654321"}}
	session := &browser.FakeSession{
		Script: append(loaded(),
			browser.FakeWait{Role: browser.RoleTwoFASelect},
			browser.FakeWait{Role: browser.RoleTwoFA},
			browser.FakeWait{}, // two-factor input appears
			browser.FakeWait{Role: browser.RoleSuccess}),
	}
	engine := newTestEngine(testConfig(), session, handler)

	result := engine.Login(context.Background())

	require.True(t, result.Success)
	require.Len(t, session.Selections, 1)
	assert.Equal(t, browser.Selection{Locator: "ID@@sf_select", Text: "IB Key"}, session.Selections[0])
}

func TestLogin_NotificationConfirmed(t *testing.T) {
	handler := &fakeHandler{outcome: twofa.Outcome{Confirmed: true}}
	session := &browser.FakeSession{
		Script: append(loaded(),
			browser.FakeWait{Role: browser.RoleTwoFANotification},
			browser.FakeWait{Role: browser.RoleSuccess}),
	}
	engine := newTestEngine(testConfig(), session, handler)

	result := engine.Login(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 1, handler.calls)
	assert.Equal(t, 0, session.Refreshes)
}

func TestLogin_NotificationNotConfirmedRefreshesAndRetries(t *testing.T) {
	cfg := testConfig()
	cfg.Login.MaxImmediateAttempts = 2
	handler := &fakeHandler{outcome: twofa.Outcome{}}
	session := &browser.FakeSession{
		Script: append(loaded(),
			browser.FakeWait{Role: browser.RoleTwoFANotification},
			browser.FakeWait{Role: browser.RoleSuccess}),
	}
	engine := newTestEngine(cfg, session, handler)

	result := engine.Login(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 1, handler.calls)
	assert.Equal(t, 1, session.Refreshes)
}

func TestLogin_PromoClickThrough(t *testing.T) {
	session := &browser.FakeSession{
		Script: append(loaded(),
			browser.FakeWait{Role: browser.RoleIBKeyPromo},
			browser.FakeWait{Role: browser.RoleSuccess}),
	}
	engine := newTestEngine(testConfig(), session, nil)

	result := engine.Login(context.Background())

	require.True(t, result.Success)
	assert.Contains(t, session.Clicked, "CLASS_NAME@@ibkey-promo-skip")
}

func TestLogin_ExhaustedAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.Login.MaxImmediateAttempts = 2
	session := &browser.FakeSession{
		Script: append(loaded(),
			browser.FakeWait{Role: browser.RoleError},
			browser.FakeWait{Role: browser.RoleError}),
		Texts: map[string]string{
			"CLASS_NAME@@alert.alert-danger.margin-top-10": "Something went wrong",
		},
	}
	engine := newTestEngine(cfg, session, nil)

	result := engine.Login(context.Background())

	assert.Equal(t, Result{}, result)
	assert.Equal(t, 1, session.Closes)
}

func TestIsSixDigits(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"123456", true},
		{"000000", true},
		{"12345", false},
		{"1234567", false},
		{"12345a", false},
		{"12 456", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isSixDigits(tt.code), "code %q", tt.code)
	}
}

func TestScreenshots_Save(t *testing.T) {
	dir := t.TempDir()
	shots := NewScreenshots(dir, true, testLogger())
	session := &browser.FakeSession{}

	shots.Save(context.Background(), session, "failed_attempt")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "failed_attempt")
	assert.Equal(t, ".png", filepath.Ext(entries[0].Name()))

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
}

func TestScreenshots_Disabled(t *testing.T) {
	dir := t.TempDir()
	shots := NewScreenshots(dir, false, testLogger())
	session := &browser.FakeSession{}

	shots.Save(context.Background(), session, "failed_attempt")

	assert.Equal(t, 0, session.Screenshots)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
