// Package eventlog implements the append-only event log that is the sole
// source of truth for incident state. All reads elsewhere in this module
// (projections, commands) are pure functions over what this package
// returns; nothing upstream is allowed to hold derived state longer than a
// single call.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"
)

// EventType enumerates the fixed set of event kinds the log accepts.
type EventType string

const (
	FactAsserted           EventType = "FactAsserted"
	FactRetracted          EventType = "FactRetracted"
	FactSuggested          EventType = "FactSuggested"
	FactSuggestionResolved EventType = "FactSuggestionResolved"
	PlanSelected           EventType = "PlanSelected"
	ActionIntent           EventType = "ActionIntent"
	ActionResult           EventType = "ActionResult"
	Escalated              EventType = "Escalated"
	EscalationResponded    EventType = "EscalationResponded"
	Resolved               EventType = "Resolved"
)

// Event is a single row of the append-only log. ID is nil until the event
// has been assigned one by Append.
type Event struct {
	ID          *int64          `json:"id,omitempty"`
	IncidentID  string          `json:"incident_id"`
	EventType   EventType       `json:"event_type"`
	Description string          `json:"description"`
	Details     json.RawMessage `json:"details,omitempty"`
	Timestamp   string          `json:"timestamp"`
}

// StorageError wraps any failure from the underlying store. It is the one
// error kind this package ever returns; malformed rows are surfaced as a
// StorageError rather than silently dropped.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("eventlog: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Log is a durable, process-local, append-only event log backed by a
// write-ahead-logged SQLite database with normal synchronous durability.
// It is safe for concurrent use by multiple goroutines; the driver
// serializes writers.
type Log struct {
	db *sql.DB
}

// Open opens or creates the database at path, creating parent directories
// as needed, and ensures the events table and its indices exist. Open is
// idempotent: calling it again on an existing file is a no-op beyond
// re-running the CREATE IF NOT EXISTS statements.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storageErr("open", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storageErr("open", err)
	}

	// A single shared *sql.DB connection pool is used rather than one
	// connection per call (unlike the reference implementation's
	// open-a-connection-per-operation style) because database/sql already
	// pools and serializes access; this also lets SQLite's WAL mode work
	// as intended across concurrent readers and a single writer.
	schema := `
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			incident_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			description TEXT NOT NULL,
			details TEXT,
			timestamp TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_incident ON events(incident_id);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(timestamp);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, storageErr("open", err)
	}

	return &Log{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append assigns event a fresh id strictly greater than every previously
// assigned id and writes it durably.
func (l *Log) Append(ctx context.Context, event Event) (int64, error) {
	var details sql.NullString
	if len(event.Details) > 0 {
		details = sql.NullString{String: string(event.Details), Valid: true}
	}

	res, err := l.db.ExecContext(ctx,
		`INSERT INTO events (incident_id, event_type, description, details, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		event.IncidentID, string(event.EventType), event.Description, details, event.Timestamp,
	)
	if err != nil {
		return 0, storageErr("append", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("append", err)
	}
	return id, nil
}

// EventsForIncident returns every event recorded for incidentID, in
// ascending id order.
func (l *Log) EventsForIncident(ctx context.Context, incidentID string) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, incident_id, event_type, description, details, timestamp
		 FROM events WHERE incident_id = ? ORDER BY id ASC`,
		incidentID,
	)
	if err != nil {
		return nil, storageErr("events_for_incident", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsAfter returns every event with id strictly greater than afterID,
// in ascending id order.
func (l *Log) EventsAfter(ctx context.Context, afterID int64) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, incident_id, event_type, description, details, timestamp
		 FROM events WHERE id > ? ORDER BY id ASC`,
		afterID,
	)
	if err != nil {
		return nil, storageErr("events_after", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ActiveIncidents returns every incident id that has at least one event and
// no Resolved event, sorted in ascending lexical order.
func (l *Log) ActiveIncidents(ctx context.Context) ([]string, error) {
	all := make(map[string]struct{})
	resolved := make(map[string]struct{})

	rows, err := l.db.QueryContext(ctx, `SELECT DISTINCT incident_id FROM events`)
	if err != nil {
		return nil, storageErr("active_incidents", err)
	}
	if err := collectIDs(rows, all); err != nil {
		return nil, storageErr("active_incidents", err)
	}

	rows, err = l.db.QueryContext(ctx,
		`SELECT DISTINCT incident_id FROM events WHERE event_type = ?`, string(Resolved))
	if err != nil {
		return nil, storageErr("active_incidents", err)
	}
	if err := collectIDs(rows, resolved); err != nil {
		return nil, storageErr("active_incidents", err)
	}

	var out []string
	for id := range all {
		if _, isResolved := resolved[id]; !isResolved {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// AllIncidents returns unique incident ids ordered by descending
// max(event id) per incident, i.e. most recently active first.
func (l *Log) AllIncidents(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT incident_id FROM events GROUP BY incident_id ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, storageErr("all_incidents", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("all_incidents", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("all_incidents", err)
	}
	return out, nil
}

// LatestEventID returns the highest assigned id, or nil if the log is empty.
func (l *Log) LatestEventID(ctx context.Context) (*int64, error) {
	var id sql.NullInt64
	err := l.db.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id)
	if err != nil {
		return nil, storageErr("latest_event_id", err)
	}
	if !id.Valid {
		return nil, nil
	}
	return &id.Int64, nil
}

func collectIDs(rows *sql.Rows, into map[string]struct{}) error {
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		into[id] = struct{}{}
	}
	return rows.Err()
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			id          int64
			incidentID  string
			eventType   string
			description string
			details     sql.NullString
			timestamp   string
		)
		if err := rows.Scan(&id, &incidentID, &eventType, &description, &details, &timestamp); err != nil {
			return nil, storageErr("scan", err)
		}
		ev := Event{
			ID:          &id,
			IncidentID:  incidentID,
			EventType:   EventType(eventType),
			Description: description,
			Timestamp:   timestamp,
		}
		if details.Valid {
			ev.Details = json.RawMessage(details.String)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan", err)
	}
	return events, nil
}
