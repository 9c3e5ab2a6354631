package dispatcher

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgunadhya/incident-agent/pkg/eventlog"
)

type captureSink struct {
	mu   sync.Mutex
	seen []string
}

func (c *captureSink) EmitJSON(event string, _ any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, event)
}

func (c *captureSink) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seen...)
}

func openTestLog(t *testing.T) *eventlog.Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	log, err := eventlog.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func TestEmitUpdatesEmitsRequiredEventNames(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	seed := func(eventType eventlog.EventType, description string) {
		_, err := log.Append(ctx, eventlog.Event{IncidentID: "inc-runtime", EventType: eventType, Description: description, Timestamp: "1"})
		require.NoError(t, err)
	}
	seed(eventlog.FactAsserted, "fact")
	seed(eventlog.PlanSelected, "plan")
	seed(eventlog.ActionResult, "action")
	seed(eventlog.Escalated, "escalate")

	sink := &captureSink{}
	d, err := New(ctx, log, sink, 0)
	require.NoError(t, err)
	d.lastID = 0
	d.emitUpdates(ctx)

	names := sink.names()
	assert.Contains(t, names, "beliefs-updated")
	assert.Contains(t, names, "plan-selected")
	assert.Contains(t, names, "action-completed")
	assert.Contains(t, names, "escalation-required")
}

func TestNewSeedsLastIDFromLog(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)
	lastID, err := log.Append(ctx, eventlog.Event{IncidentID: "inc-1", EventType: eventlog.FactAsserted, Description: "x", Timestamp: "1"})
	require.NoError(t, err)

	sink := &captureSink{}
	d, err := New(ctx, log, sink, 0)
	require.NoError(t, err)
	assert.Equal(t, lastID, d.lastID)

	d.emitUpdates(ctx)
	assert.Equal(t, []string{"beliefs-updated"}, sink.names())
}

func TestEmitUpdatesOnlyEmitsEventsAfterLastID(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)
	_, err := log.Append(ctx, eventlog.Event{IncidentID: "inc-1", EventType: eventlog.PlanSelected, Description: "old", Timestamp: "1"})
	require.NoError(t, err)

	sink := &captureSink{}
	d, err := New(ctx, log, sink, 0)
	require.NoError(t, err)

	_, err = log.Append(ctx, eventlog.Event{IncidentID: "inc-1", EventType: eventlog.Resolved, Description: "new", Timestamp: "2"})
	require.NoError(t, err)

	d.emitUpdates(ctx)
	names := sink.names()
	assert.NotContains(t, names, "plan-selected")
	assert.Contains(t, names, "incident-resolved")
}
