// ABOUTME: Package documentation for the browser login engine
// ABOUTME: Documents the attempt loop and the adaptive submission state

// Package login drives credential submission against the gateway's login
// webpage.
//
// # Overview
//
// The [Engine] opens a browser session, detects the website version, fills
// in the credential form and follows whatever flow the page presents:
// direct success, an error banner, a two-factor code prompt, a method
// selector, an out-of-band notification, or a promotional interstitial.
// Each maintenance cycle calls [Engine.Login] at most once; the result says
// whether authentication succeeded and whether the daemon must shut down.
//
// Two pieces of state adapt across calls and live on the Engine:
//
//   - the presubmit buffer, a delay before clicking submit that grows each
//     time the page rejects credentials it should have accepted, and resets
//     on success
//   - the failed-attempt counter, which triggers a protective shutdown
//     before the account can be locked out
//
// Every attempt resolves to an [AttemptOutcome]; failures fold into the
// returned [Result] rather than propagating as errors, so one bad cycle
// never kills the daemon.
package login
