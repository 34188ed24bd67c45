// Package browser abstracts the automated browser used for gateway login.
//
// # Overview
//
// The login engine never talks to Chrome directly. It works against the
// Session interface: navigate, wait for one of several locators, type, click,
// read text, screenshot. The chromedp-backed Chrome type is the production
// implementation; tests drive the engine with fakes.
//
// # Locators and targets
//
// Elements are referenced by typed Locators parsed from KIND@@identifier
// strings (for example "NAME@@username"). The set of kinds is closed and
// parse failures are configuration errors surfaced at startup.
//
// Logical roles (username field, submit button, error banner, the various
// two-factor elements) map to concrete locators through a TargetSet. The
// built-in tables differ by detected website version; explicit configuration
// overrides win over both, with a warning when they disagree.
package browser
