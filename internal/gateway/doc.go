// Package gateway provides the HTTP client for the gateway's session API.
//
// # Overview
//
// The gateway exposes its session state over a local HTTPS port with a
// self-signed certificate. This package wraps the handful of endpoints the
// daemon needs: tickle (status probe), validate, logout, reauthenticate and
// session initialisation.
//
// # Failure folding
//
// The status probe never returns an error. Every transport-level failure is
// information about the gateway's health and is folded into the returned
// status.Status snapshot:
//
//   - connection refused: the gateway process is not running
//   - request timeout: the process is up but the API is hung
//   - HTTP 401 or a no-session body: no brokerage session exists
//   - HTTP 5xx or a malformed body: logged, treated as no session
//
// Callers branch on status.Classify(), not on error values.
package gateway
