// ABOUTME: Tests for the SQLite audit store
// ABOUTME: Exercises append, listing, filtering and limits against a temp database

package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sub", "audit.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendGeneratesIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)

	e := &AuthEvent{
		Event:          EventCycleSuccess,
		Strategy:       "A",
		Classification: "AUTHENTICATED",
		SessionID:      "abc123",
	}
	require.NoError(t, s.Append(context.Background(), e))

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
}

func TestAppendAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, &AuthEvent{
		Event:          EventCycleFailure,
		Strategy:       "B",
		Classification: "NO SESSION",
		Timestamp:      time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
		Detail:         map[string]any{"attempt": float64(2)},
	}))
	require.NoError(t, s.Append(ctx, &AuthEvent{
		Event:          EventCycleSuccess,
		Strategy:       "B",
		Classification: "AUTHENTICATED",
		SessionID:      "abc123",
		ServerName:     "gw-east",
		Timestamp:      time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC),
	}))

	events, err := s.List(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Newest first.
	assert.Equal(t, EventCycleSuccess, events[0].Event)
	assert.Equal(t, "gw-east", events[0].ServerName)
	assert.Equal(t, EventCycleFailure, events[1].Event)
	assert.Equal(t, map[string]any{"attempt": float64(2)}, events[1].Detail)
}

func TestListFilterByEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, ev := range []Event{EventCycleSuccess, EventCycleFailure, EventCycleSuccess} {
		require.NoError(t, s.Append(ctx, &AuthEvent{Event: ev, Strategy: "A", Classification: "x"}))
	}

	want := EventCycleSuccess
	events, err := s.List(ctx, EventFilter{Event: &want})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, EventCycleSuccess, e.Event)
	}
}

func TestListFilterByTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(ctx, &AuthEvent{Event: EventCycleFailure, Strategy: "A", Classification: "x", Timestamp: older}))
	require.NoError(t, s.Append(ctx, &AuthEvent{Event: EventCycleSuccess, Strategy: "A", Classification: "x", Timestamp: newer}))

	cutoff := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	events, err := s.List(ctx, EventFilter{Since: &cutoff})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventCycleSuccess, events[0].Event)

	events, err = s.List(ctx, EventFilter{Until: &cutoff})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventCycleFailure, events[0].Event)
}

func TestListLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, &AuthEvent{Event: EventCycleFailure, Strategy: "A", Classification: "x"}))
	}

	events, err := s.List(ctx, EventFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestListEmptyReturnsEmptySlice(t *testing.T) {
	s := newTestStore(t)

	events, err := s.List(context.Background(), EventFilter{})
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeLimit(0))
	assert.Equal(t, 100, normalizeLimit(-1))
	assert.Equal(t, 1000, normalizeLimit(5000))
	assert.Equal(t, 42, normalizeLimit(42))
}
