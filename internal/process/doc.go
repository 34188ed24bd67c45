// Package process manages the gateway's operating system process: starting
// it via its launcher script, finding it by executable name, and terminating
// it when the strategy engine escalates to a restart.
package process
