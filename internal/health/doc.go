// ABOUTME: Package documentation for the health endpoints
// ABOUTME: Summarizes the liveness and readiness semantics

// Package health serves the daemon's observability surface.
//
// # Overview
//
// Three endpoints are exposed:
//
//   - /livez returns 200 while the daemon intends to keep maintaining the
//     session, and 500 once a protective shutdown has been requested.
//   - /readyz polls the gateway's session status and returns 200 only when
//     it is authenticated and not competing, 503 otherwise with the
//     classification in the body.
//   - /metrics serves the Prometheus collectors in [Metrics].
//
// The readiness probe is an independent read-only poll against the same
// endpoint the maintenance loop uses; statuses are immutable snapshots so
// the two never interfere.
package health
