// ABOUTME: Package documentation for the audit store
// ABOUTME: Describes the auth_events table and its intended use

// Package store persists a per-cycle authentication audit log to SQLite.
//
// # Overview
//
// Every maintenance cycle appends one [AuthEvent] describing its outcome:
// success, failure, a protective shutdown, or a gateway start or kill. The
// log is the primary tool for diagnosing authentication problems after the
// fact, since the browser session itself is long gone by then.
//
// The store is optional; an empty path in the configuration disables it and
// the daemon runs without persistence.
package store
