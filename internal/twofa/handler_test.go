// ABOUTME: Tests for two-factor handlers and the registry
// ABOUTME: Covers TOTP generation, HTTP code fetch, resend loop, and command execution

package twofa

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/gateway-sentry/internal/browser"
	"github.com/2389/gateway-sentry/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_Unconfigured(t *testing.T) {
	handler, err := New(config.TwoFAConfig{}, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, handler)
}

func TestNew_UnknownHandler(t *testing.T) {
	_, err := New(config.TwoFAConfig{Handler: "CARRIER_PIGEON"}, discardLogger())
	assert.ErrorContains(t, err, "unknown two-factor handler")
}

func TestRegister_CustomHandler(t *testing.T) {
	Register("TEST_CUSTOM", func(cfg config.TwoFAConfig, logger *slog.Logger) (Handler, error) {
		return &totpHandler{secret: "JBSWY3DPEHPK3PXP", logger: logger}, nil
	})

	handler, err := New(config.TwoFAConfig{Handler: "TEST_CUSTOM"}, discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, handler)
}

func TestTOTP(t *testing.T) {
	cfg := config.TwoFAConfig{Handler: "TOTP", TOTPSecret: "jbswy3dpehpk3pxp"}

	handler, err := New(cfg, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "TOTP", handler.Name())

	outcome, err := handler.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, outcome.Code, 6)
	assert.False(t, outcome.Confirmed)

	// The generated code must validate against the (normalized) secret.
	assert.True(t, totp.Validate(outcome.Code, "JBSWY3DPEHPK3PXP"))
}

func TestTOTP_InvalidSecret(t *testing.T) {
	_, err := New(config.TwoFAConfig{Handler: "TOTP", TOTPSecret: "not-base32!"}, discardLogger())
	assert.ErrorContains(t, err, "invalid TOTP secret")
}

func TestExternalRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "secret-token", r.Header.Get("X-Auth"))
		w.Write([]byte("123456\n"))
	}))
	defer srv.Close()

	cfg := config.TwoFAConfig{
		Handler:                "EXTERNAL_REQUEST",
		ExternalRequestURL:     srv.URL,
		ExternalRequestHeaders: map[string]string{"X-Auth": "secret-token"},
		ExternalRequestTimeout: 2 * time.Second,
	}

	handler, err := New(cfg, discardLogger())
	require.NoError(t, err)

	outcome, err := handler.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "123456", outcome.Code)
}

func TestExternalRequest_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := config.TwoFAConfig{
		Handler:                "EXTERNAL_REQUEST",
		ExternalRequestURL:     srv.URL,
		ExternalRequestTimeout: 2 * time.Second,
	}

	handler, err := New(cfg, discardLogger())
	require.NoError(t, err)

	outcome, err := handler.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, outcome.Code, "non-OK response yields no code, not an error")
}

func TestNotificationResend_ConfirmedOnFirstTry(t *testing.T) {
	handler := &notificationResendHandler{
		retries:  3,
		interval: time.Second,
		logger:   discardLogger(),
	}

	session := &browser.FakeSession{Script: []browser.FakeWait{
		{}, // resend link clickable
		{}, // success text appears
	}}

	outcome, err := handler.Acquire(context.Background(), session)
	require.NoError(t, err)
	assert.True(t, outcome.Confirmed)
	assert.Equal(t, []string{resendLocator.String()}, session.Clicked)
}

func TestNotificationResend_RetriesThenConfirms(t *testing.T) {
	handler := &notificationResendHandler{
		retries:  3,
		interval: time.Second,
		logger:   discardLogger(),
	}

	session := &browser.FakeSession{Script: []browser.FakeWait{
		{},                            // resend link
		{Err: browser.ErrWaitTimeout}, // not approved yet
		{},                            // resend link
		{},                            // approved
	}}

	outcome, err := handler.Acquire(context.Background(), session)
	require.NoError(t, err)
	assert.True(t, outcome.Confirmed)
	assert.Len(t, session.Clicked, 2)
}

func TestNotificationResend_Exhausted(t *testing.T) {
	handler := &notificationResendHandler{
		retries:  2,
		interval: time.Second,
		logger:   discardLogger(),
	}

	session := &browser.FakeSession{Script: []browser.FakeWait{
		{}, {Err: browser.ErrWaitTimeout},
		{}, {Err: browser.ErrWaitTimeout},
	}}

	outcome, err := handler.Acquire(context.Background(), session)
	require.NoError(t, err)
	assert.False(t, outcome.Confirmed)
}

func TestNotificationResend_LinkNeverAppears(t *testing.T) {
	handler := &notificationResendHandler{
		retries:  3,
		interval: time.Second,
		logger:   discardLogger(),
	}

	// Empty script: every wait times out.
	session := &browser.FakeSession{}

	outcome, err := handler.Acquire(context.Background(), session)
	require.NoError(t, err)
	assert.False(t, outcome.Confirmed)
	assert.Empty(t, session.Clicked)
}

func TestCommand(t *testing.T) {
	cfg := config.TwoFAConfig{Handler: "COMMAND", Command: "echo 654321"}

	handler, err := New(cfg, discardLogger())
	require.NoError(t, err)

	outcome, err := handler.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "654321", outcome.Code)
}

func TestCommand_Failure(t *testing.T) {
	cfg := config.TwoFAConfig{Handler: "COMMAND", Command: "false"}

	handler, err := New(cfg, discardLogger())
	require.NoError(t, err)

	outcome, err := handler.Acquire(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, outcome.Code, "failing command yields no code, not an error")
}
