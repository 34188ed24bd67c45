// ABOUTME: chromedp-backed implementation of the Session interface
// ABOUTME: Drives a headless Chrome against the gateway login page

package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/2389/gateway-sentry/internal/config"
)

// matchPollInterval is how often WaitAny re-evaluates its triggers.
const matchPollInterval = 250 * time.Millisecond

// Chrome opens chromedp-backed sessions configured from BrowserConfig.
type Chrome struct {
	cfg    config.BrowserConfig
	logger *slog.Logger
}

// NewChrome creates a Chrome session opener.
func NewChrome(cfg config.BrowserConfig, logger *slog.Logger) *Chrome {
	return &Chrome{cfg: cfg, logger: logger.With("component", "browser")}
}

// Open launches a browser and returns a live session. The caller owns the
// session and must Close it.
func (c *Chrome) Open(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("force-device-scale-factor", fmt.Sprintf("%g", c.cfg.UIScaling)),
	)
	if c.cfg.Incognito {
		opts = append(opts, chromedp.Flag("incognito", true))
	}
	if c.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(c.cfg.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Starting the browser is the expensive part; surface failures here
	// rather than on the first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	c.logger.Debug("Browser session opened", "headless", c.cfg.Headless, "incognito", c.cfg.Incognito)

	return &chromeSession{
		ctx:     browserCtx,
		cancels: []context.CancelFunc{browserCancel, allocCancel},
		logger:  c.logger,
	}, nil
}

type chromeSession struct {
	ctx     context.Context
	cancels []context.CancelFunc
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// run executes chromedp actions, stopping early if the caller's context ends.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) Refresh(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("refreshing page: %w", err)
	}
	return nil
}

func (s *chromeSession) WaitAny(ctx context.Context, timeout time.Duration, triggers []Trigger) (Role, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, tr := range triggers {
			ok, err := s.matches(ctx, tr.Locator)
			if err != nil {
				return "", fmt.Errorf("checking %s: %w", tr.Locator, err)
			}
			if ok {
				return tr.Role, nil
			}
		}

		if time.Now().After(deadline) {
			return "", ErrWaitTimeout
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(matchPollInterval):
		}
	}
}

func (s *chromeSession) WaitFor(ctx context.Context, timeout time.Duration, loc Locator) error {
	_, err := s.WaitAny(ctx, timeout, []Trigger{{Locator: loc}})
	return err
}

// matches evaluates whether a locator currently matches a visible element.
func (s *chromeSession) matches(ctx context.Context, loc Locator) (bool, error) {
	var script string
	if loc.MatchesText() {
		script = fmt.Sprintf(`(() => {
			for (const el of document.querySelectorAll(%q)) {
				if (el.innerText && el.innerText.includes(%q)) { return true; }
			}
			return false;
		})()`, loc.Selector(), loc.Identifier)
	} else {
		script = fmt.Sprintf(`(() => {
			const el = document.querySelector(%q);
			if (!el) { return false; }
			const style = window.getComputedStyle(el);
			return style.display !== 'none' && style.visibility !== 'hidden';
		})()`, loc.Selector())
	}

	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return false, err
	}
	return ok, nil
}

func (s *chromeSession) Clear(ctx context.Context, loc Locator) error {
	if err := s.run(ctx, chromedp.Clear(loc.Selector(), chromedp.ByQuery)); err != nil {
		return fmt.Errorf("clearing %s: %w", loc, err)
	}
	return nil
}

func (s *chromeSession) Type(ctx context.Context, loc Locator, text string) error {
	if err := s.run(ctx, chromedp.SendKeys(loc.Selector(), text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("typing into %s: %w", loc, err)
	}
	return nil
}

func (s *chromeSession) Click(ctx context.Context, loc Locator) error {
	if err := s.run(ctx, chromedp.Click(loc.Selector(), chromedp.ByQuery)); err != nil {
		return fmt.Errorf("clicking %s: %w", loc, err)
	}
	return nil
}

func (s *chromeSession) SelectByText(ctx context.Context, loc Locator, text string) error {
	// chromedp has no select-by-visible-text action; set the value and fire
	// a change event the way a real selection would.
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el || !el.options) { return false; }
		for (const opt of el.options) {
			if (opt.text.trim() === %q) {
				el.value = opt.value;
				el.dispatchEvent(new Event('change', {bubbles: true}));
				return true;
			}
		}
		return false;
	})()`, loc.Selector(), text)

	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("selecting %q in %s: %w", text, loc, err)
	}
	if !ok {
		return fmt.Errorf("selecting %q in %s: no option with that text", text, loc)
	}
	return nil
}

func (s *chromeSession) Text(ctx context.Context, loc Locator) (string, error) {
	var text string
	if err := s.run(ctx, chromedp.Text(loc.Selector(), &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading text of %s: %w", loc, err)
	}
	return strings.TrimSpace(text), nil
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return buf, nil
}

// Close shuts the browser down. Safe to call more than once.
func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		// Give Chrome a moment to exit cleanly before tearing the
		// allocator down.
		if err := chromedp.Cancel(s.ctx); err != nil {
			s.logger.Debug("Browser did not exit cleanly", "error", err)
			s.closeErr = err
		}
		for _, cancel := range s.cancels {
			cancel()
		}
	})
	return s.closeErr
}
