// Package twofa provides pluggable two-factor authentication handlers.
//
// A handler owns acquiring the second factor however its channel works:
// generating a TOTP code locally, fetching a code from an HTTP endpoint,
// re-sending a push notification until the user approves it, or running a
// user-supplied executable that prints the code. Handlers are selected by
// name from configuration through a registry; custom handlers plug in either
// via Register or, without recompiling, through the COMMAND handler's
// subprocess boundary.
package twofa
