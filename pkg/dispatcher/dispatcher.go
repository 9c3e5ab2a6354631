// Package dispatcher polls the event log and republishes a small set of
// named events to an EventSink, so a UI or notification layer never has to
// read the log directly.
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/sgunadhya/incident-agent/pkg/eventlog"
)

// EventSink receives named, JSON-serializable payloads. Implementations must
// be safe for concurrent use; Dispatcher calls it from its own goroutine.
type EventSink interface {
	EmitJSON(event string, payload any)
}

// DefaultInterval is how often Dispatcher polls the log when no interval is
// configured.
const DefaultInterval = 750 * time.Millisecond

// Dispatcher polls an eventlog.Log on a fixed interval and emits named
// events for the event types a subscriber cares about.
type Dispatcher struct {
	Log      *eventlog.Log
	Sink     EventSink
	Interval time.Duration

	lastID int64
}

// New builds a Dispatcher seeded with the log's current latest event id, so
// the first poll only emits events appended after Dispatcher started.
func New(ctx context.Context, log *eventlog.Log, sink EventSink, interval time.Duration) (*Dispatcher, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	d := &Dispatcher{Log: log, Sink: sink, Interval: interval}
	last, err := log.LatestEventID(ctx)
	if err != nil {
		return nil, err
	}
	if last != nil {
		d.lastID = *last
	}
	return d, nil
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()
	for {
		d.emitUpdates(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) emitUpdates(ctx context.Context) {
	active, err := d.Log.ActiveIncidents(ctx)
	if err != nil {
		slog.Error("dispatcher: list active incidents", "error", err)
	} else {
		d.Sink.EmitJSON("beliefs-updated", map[string]any{"active_incident_count": len(active)})
	}

	events, err := d.Log.EventsAfter(ctx, d.lastID)
	if err != nil {
		slog.Error("dispatcher: events after", "last_id", d.lastID, "error", err)
		return
	}

	for _, e := range events {
		if e.ID != nil && *e.ID > d.lastID {
			d.lastID = *e.ID
		}

		var eventName string
		switch e.EventType {
		case eventlog.PlanSelected:
			eventName = "plan-selected"
		case eventlog.ActionResult:
			eventName = "action-completed"
		case eventlog.Escalated:
			eventName = "escalation-required"
		case eventlog.Resolved:
			eventName = "incident-resolved"
		default:
			continue
		}
		d.Sink.EmitJSON(eventName, map[string]any{
			"incident_id": e.IncidentID,
			"description": e.Description,
		})
	}
}
