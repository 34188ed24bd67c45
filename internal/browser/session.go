// ABOUTME: Abstract browser session consumed by the login engine
// ABOUTME: Narrow operation surface so the engine can be driven by fakes in tests

package browser

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout is returned by WaitAny and WaitFor when no candidate
// matched within the timeout.
var ErrWaitTimeout = errors.New("no element matched within timeout")

// Trigger pairs a logical role with the locator to watch for it.
type Trigger struct {
	Role    Role
	Locator Locator
}

// Session is one open browser page. Implementations must be safe to Close
// more than once; the login engine closes sessions in a deferred cleanup
// path that can race an explicit close.
type Session interface {
	// Navigate loads the given URL and waits for the page load to settle.
	Navigate(ctx context.Context, url string) error

	// Refresh reloads the current page.
	Refresh(ctx context.Context) error

	// WaitAny blocks until one of the triggers matches and returns its role,
	// or ErrWaitTimeout after the timeout.
	WaitAny(ctx context.Context, timeout time.Duration, triggers []Trigger) (Role, error)

	// WaitFor blocks until the locator matches, or ErrWaitTimeout.
	WaitFor(ctx context.Context, timeout time.Duration, loc Locator) error

	// Clear empties an input field.
	Clear(ctx context.Context, loc Locator) error

	// Type sends keystrokes into an input field.
	Type(ctx context.Context, loc Locator, text string) error

	// Click clicks an element.
	Click(ctx context.Context, loc Locator) error

	// SelectByText picks the option with the given visible text from a
	// select element.
	SelectByText(ctx context.Context, loc Locator, text string) error

	// Text returns an element's visible text.
	Text(ctx context.Context, loc Locator) (string, error)

	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close releases the page and the browser resources backing it.
	Close() error
}

// Opener creates sessions. The chromedp implementation is the production
// Opener; tests substitute their own.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}
