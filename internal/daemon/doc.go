// ABOUTME: Package documentation for the maintenance daemon
// ABOUTME: Describes the cadence, shutdown semantics and run group

// Package daemon runs the periodic maintenance cadence.
//
// # Overview
//
// [Daemon.Run] starts two long-lived tasks in an error group: the health
// server and the maintenance loop. Each cycle first ensures the gateway
// process is running, then hands control to the strategy engine, records
// the outcome to metrics and the audit log, and schedules the next cycle.
//
// Two distinct stop paths exist. An external cancellation (interrupt
// signal) stops issuing new cycles, lets the in-flight one finish, shuts
// the health server down and returns nil. A cycle that reports shutdown is
// a one-way internal signal: the health server's liveness flips to failing
// and Run returns [ErrShutdownRequested] so the process can exit with a
// distinguishable status.
package daemon
