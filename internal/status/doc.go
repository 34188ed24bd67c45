// ABOUTME: Package status models gateway/session health snapshots
// ABOUTME: One Status per poll, classified into a single priority-ordered label

// Package status defines the Status snapshot produced by each poll of the
// gateway's tickle endpoint, and the strict-priority classification the
// strategy engine branches on.
package status
