// ABOUTME: Scripted in-memory Session used by tests across packages
// ABOUTME: Wait results are consumed in order; interactions are recorded

package browser

import (
	"context"
	"fmt"
	"time"
)

// FakeWait is one scripted WaitAny/WaitFor result.
type FakeWait struct {
	Role Role
	Err  error
}

// FakeSession is a Session whose wait results are scripted up front and whose
// interactions are recorded for assertions. It is not safe for concurrent
// use; the login engine is strictly sequential.
type FakeSession struct {
	// Script is consumed front to back by WaitAny and WaitFor. An exhausted
	// script times out.
	Script []FakeWait

	// Texts maps locator strings to the text Text returns for them.
	Texts map[string]string

	// Errors to inject per operation.
	NavigateErr   error
	ScreenshotErr error

	// Recorded interactions.
	Navigated   []string
	Refreshes   int
	Cleared     []string
	Typed       []TypedText
	Clicked     []string
	Selections  []Selection
	Screenshots int
	Closes      int
}

// TypedText records one Type call.
type TypedText struct {
	Locator string
	Text    string
}

// Selection records one SelectByText call.
type Selection struct {
	Locator string
	Text    string
}

var _ Session = (*FakeSession)(nil)

func (f *FakeSession) Navigate(_ context.Context, url string) error {
	f.Navigated = append(f.Navigated, url)
	return f.NavigateErr
}

func (f *FakeSession) Refresh(context.Context) error {
	f.Refreshes++
	return nil
}

func (f *FakeSession) WaitAny(_ context.Context, _ time.Duration, triggers []Trigger) (Role, error) {
	if len(f.Script) == 0 {
		return "", ErrWaitTimeout
	}
	next := f.Script[0]
	f.Script = f.Script[1:]
	if next.Err != nil {
		return "", next.Err
	}
	for _, tr := range triggers {
		if tr.Role == next.Role {
			return next.Role, nil
		}
	}
	return "", fmt.Errorf("scripted role %s not among triggers", next.Role)
}

func (f *FakeSession) WaitFor(_ context.Context, _ time.Duration, _ Locator) error {
	if len(f.Script) == 0 {
		return ErrWaitTimeout
	}
	next := f.Script[0]
	f.Script = f.Script[1:]
	return next.Err
}

func (f *FakeSession) Clear(_ context.Context, loc Locator) error {
	f.Cleared = append(f.Cleared, loc.String())
	return nil
}

func (f *FakeSession) Type(_ context.Context, loc Locator, text string) error {
	f.Typed = append(f.Typed, TypedText{Locator: loc.String(), Text: text})
	return nil
}

func (f *FakeSession) Click(_ context.Context, loc Locator) error {
	f.Clicked = append(f.Clicked, loc.String())
	return nil
}

func (f *FakeSession) SelectByText(_ context.Context, loc Locator, text string) error {
	f.Selections = append(f.Selections, Selection{Locator: loc.String(), Text: text})
	return nil
}

func (f *FakeSession) Text(_ context.Context, loc Locator) (string, error) {
	return f.Texts[loc.String()], nil
}

func (f *FakeSession) Screenshot(context.Context) ([]byte, error) {
	f.Screenshots++
	if f.ScreenshotErr != nil {
		return nil, f.ScreenshotErr
	}
	return []byte("png"), nil
}

func (f *FakeSession) Close() error {
	f.Closes++
	return nil
}
