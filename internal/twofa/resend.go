// ABOUTME: Notification-resend two-factor handler
// ABOUTME: Repeatedly re-triggers the push notification until the login succeeds

package twofa

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/gateway-sentry/internal/browser"
	"github.com/2389/gateway-sentry/internal/config"
)

// resendLocator is the resend link on the notification screen.
var resendLocator = browser.MustParse("CSS_SELECTOR@@a[onclick*='resendNotification()']")

// successLocator is the text shown once the user approves the notification.
var successLocator = browser.MustParse("TAG_NAME@@Client login succeeds")

type notificationResendHandler struct {
	retries  int
	interval time.Duration
	logger   *slog.Logger

	// initialDelay gives the first notification a chance to arrive before
	// any resend. Shortened in tests.
	initialDelay time.Duration
	linkTimeout  time.Duration
}

func newNotificationResend(cfg config.TwoFAConfig, logger *slog.Logger) (Handler, error) {
	return &notificationResendHandler{
		retries:      cfg.NotificationResendRetries,
		interval:     cfg.NotificationResendInterval,
		logger:       logger,
		initialDelay: 2 * time.Second,
		linkTimeout:  30 * time.Second,
	}, nil
}

// Acquire waits for the user to approve the push notification, re-sending it
// on an interval. It confirms (no code involved) once the success text
// appears, and gives up after the configured number of resends.
func (h *notificationResendHandler) Acquire(ctx context.Context, session browser.Session) (Outcome, error) {
	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-time.After(h.initialDelay):
	}

	for attempt := 0; attempt < h.retries; attempt++ {
		if err := session.WaitFor(ctx, h.linkTimeout, resendLocator); err != nil {
			if errors.Is(err, browser.ErrWaitTimeout) {
				h.logger.Error("Notification resend link not found", "locator", resendLocator.String())
				return Outcome{}, nil
			}
			return Outcome{}, err
		}

		if err := session.Click(ctx, resendLocator); err != nil {
			return Outcome{}, err
		}

		err := session.WaitFor(ctx, h.interval, successLocator)
		if err == nil {
			return Outcome{Confirmed: true}, nil
		}
		if !errors.Is(err, browser.ErrWaitTimeout) {
			return Outcome{}, err
		}
		h.logger.Info("Notification not yet approved, resending",
			"remaining", h.retries-attempt-1)
	}

	h.logger.Error("Reached maximum notification resend retries", "retries", h.retries)
	return Outcome{}, nil
}

func (h *notificationResendHandler) Name() string { return "NOTIFICATION_RESEND" }
