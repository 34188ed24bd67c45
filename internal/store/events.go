// ABOUTME: Authentication event entity and store methods
// ABOUTME: Records maintenance cycle outcomes for post-mortem diagnosis

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event classifies an auditable authentication event.
type Event string

const (
	EventCycleSuccess  Event = "cycle_success"
	EventCycleFailure  Event = "cycle_failure"
	EventShutdown      Event = "shutdown_requested"
	EventGatewayStart  Event = "gateway_started"
	EventGatewayKilled Event = "gateway_killed"
)

// AuthEvent is a single recorded authentication event.
type AuthEvent struct {
	ID             string // UUID v4
	Event          Event
	Strategy       string // authentication strategy in effect
	Classification string // session classification at the time
	SessionID      string
	ServerName     string
	Timestamp      time.Time
	Detail         map[string]any // additional context
}

// EventFilter specifies filtering options for listing events.
type EventFilter struct {
	Since *time.Time
	Until *time.Time
	Event *Event
	Limit int // max results (default 100, max 1000)
}

// Append records a new authentication event.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) Append(ctx context.Context, e *AuthEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling event detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	query := `
		INSERT INTO auth_events (event_id, event, strategy, classification, session_id, server_name, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.Event,
		e.Strategy,
		e.Classification,
		e.SessionID,
		e.ServerName,
		e.Timestamp.UTC().Format(time.RFC3339),
		detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting auth event: %w", err)
	}

	s.logger.Debug("appended auth event",
		"id", e.ID,
		"event", e.Event,
		"classification", e.Classification,
	)
	return nil
}

// normalizeLimit applies default (100) and cap (1000) to the list limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const listEventsQuery = `
	SELECT event_id, event, strategy, classification, session_id, server_name, ts, detail_json
	FROM auth_events
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR ts <= ?)
	  AND (? IS NULL OR event = ?)
	ORDER BY ts DESC
	LIMIT ?
`

// List returns events matching the filter criteria, newest first.
func (s *SQLiteStore) List(ctx context.Context, f EventFilter) ([]AuthEvent, error) {
	limit := normalizeLimit(f.Limit)

	var sinceStr, untilStr, eventStr *string
	if f.Since != nil {
		v := f.Since.UTC().Format(time.RFC3339)
		sinceStr = &v
	}
	if f.Until != nil {
		v := f.Until.UTC().Format(time.RFC3339)
		untilStr = &v
	}
	if f.Event != nil {
		v := string(*f.Event)
		eventStr = &v
	}

	rows, err := s.db.QueryContext(ctx, listEventsQuery,
		sinceStr, sinceStr,
		untilStr, untilStr,
		eventStr, eventStr,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying auth events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []AuthEvent
	for rows.Next() {
		e, err := scanAuthEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating auth events: %w", err)
	}

	if events == nil {
		events = []AuthEvent{}
	}
	return events, nil
}

// scanAuthEvent scans a row into an AuthEvent.
func scanAuthEvent(scanner interface{ Scan(dest ...any) error }) (AuthEvent, error) {
	var e AuthEvent
	var eventStr, tsStr string
	var detailJSON *string

	if err := scanner.Scan(
		&e.ID,
		&eventStr,
		&e.Strategy,
		&e.Classification,
		&e.SessionID,
		&e.ServerName,
		&tsStr,
		&detailJSON,
	); err != nil {
		return e, fmt.Errorf("scanning auth event: %w", err)
	}

	e.Event = Event(eventStr)
	var err error
	e.Timestamp, err = time.Parse(time.RFC3339, tsStr)
	if err != nil {
		return e, fmt.Errorf("parsing timestamp: %w", err)
	}

	if detailJSON != nil {
		if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshaling detail: %w", err)
		}
	}
	return e, nil
}
