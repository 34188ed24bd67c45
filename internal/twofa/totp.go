// ABOUTME: TOTP two-factor handler generating time-based codes from a shared secret
// ABOUTME: Needs no out-of-band channel; the secret comes from configuration

package twofa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/2389/gateway-sentry/internal/browser"
	"github.com/2389/gateway-sentry/internal/config"
)

type totpHandler struct {
	secret string
	logger *slog.Logger
}

func newTOTP(cfg config.TwoFAConfig, logger *slog.Logger) (Handler, error) {
	secret := strings.ToUpper(strings.ReplaceAll(cfg.TOTPSecret, " ", ""))
	if secret == "" {
		return nil, fmt.Errorf("TOTP handler requires two_fa.totp_secret")
	}

	// Reject malformed secrets at startup rather than mid-login.
	if _, err := totp.GenerateCode(secret, time.Now()); err != nil {
		return nil, fmt.Errorf("invalid TOTP secret: %w", err)
	}

	return &totpHandler{secret: secret, logger: logger}, nil
}

func (h *totpHandler) Acquire(_ context.Context, _ browser.Session) (Outcome, error) {
	code, err := totp.GenerateCode(h.secret, time.Now())
	if err != nil {
		return Outcome{}, fmt.Errorf("generating TOTP code: %w", err)
	}
	h.logger.Info("Generated TOTP code", "suffix", code[len(code)-2:])
	return Outcome{Code: code}, nil
}

func (h *totpHandler) Name() string { return "TOTP" }
