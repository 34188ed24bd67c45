// ABOUTME: Package documentation for the authentication strategy engine
// ABOUTME: Explains the two recovery policies and their escalation rules

// Package strategy decides how to recover an unhealthy gateway session.
//
// # Overview
//
// Every maintenance cycle calls [Engine.TryAuthenticating]. If the session
// is already authenticated and not competing, it returns immediately with
// no side effects. If the gateway is unreachable, it reports failure and
// leaves restarting to the process manager. Otherwise one of two policies
// runs:
//
//   - Strategy A performs a full browser relogin, then double-checks the
//     status. A session that still refuses to authenticate gets a
//     reauthenticate call and, when restart_failed_sessions is set, one
//     logout-and-retry of the whole cycle.
//   - Strategy B logs in only when no session exists at all. Otherwise it
//     issues reauthenticate calls, verified by bounded status-check loops,
//     and kills the gateway process once the retries are exhausted so the
//     next cycle starts fresh.
//
// The two policies differ deliberately in how they treat a competing
// session: A reauthenticates in place, B always logs out first. Which one
// fits is operator policy, selected in the configuration.
package strategy
