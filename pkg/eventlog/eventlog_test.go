package eventlog

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	log, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func TestAppendAndQueryRoundtrip(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	id, err := log.Append(ctx, Event{
		IncidentID:  "inc-a",
		EventType:   FactAsserted,
		Description: "fact",
		Details:     json.RawMessage(`{"k":"v"}`),
		Timestamp:   "1",
	})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	events, err := log.EventsForIncident(ctx, "inc-a")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "inc-a", events[0].IncidentID)
	assert.Equal(t, FactAsserted, events[0].EventType)
	assert.JSONEq(t, `{"k":"v"}`, string(events[0].Details))
}

func TestAppendedIDsStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := log.Append(ctx, Event{IncidentID: "inc-a", EventType: FactAsserted, Description: "x", Timestamp: "1"})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}

	events, err := log.EventsForIncident(ctx, "inc-a")
	require.NoError(t, err)
	for i, e := range events {
		assert.Equal(t, ids[i], *e.ID)
	}
}

func TestEventsAfterTracksIncrementalStream(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	a, err := log.Append(ctx, Event{IncidentID: "inc-a", EventType: FactAsserted, Description: "fact", Timestamp: "1"})
	require.NoError(t, err)
	b, err := log.Append(ctx, Event{IncidentID: "inc-a", EventType: Resolved, Description: "resolved", Timestamp: "2"})
	require.NoError(t, err)

	events, err := log.EventsAfter(ctx, a)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, b, *events[0].ID)
}

func TestEventsAfterForEveryK(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)
	var ids []int64
	for i := 0; i < 4; i++ {
		id, err := log.Append(ctx, Event{IncidentID: "inc-a", EventType: FactAsserted, Description: "x", Timestamp: "1"})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, k := range ids {
		events, err := log.EventsAfter(ctx, k)
		require.NoError(t, err)
		for _, e := range events {
			assert.Greater(t, *e.ID, k)
		}
	}
}

func TestActiveIncidentsExcludesResolved(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	_, err := log.Append(ctx, Event{IncidentID: "inc-1", EventType: FactAsserted, Description: "fact", Timestamp: "1"})
	require.NoError(t, err)
	_, err = log.Append(ctx, Event{IncidentID: "inc-1", EventType: Resolved, Description: "resolved", Timestamp: "2"})
	require.NoError(t, err)
	_, err = log.Append(ctx, Event{IncidentID: "inc-2", EventType: FactAsserted, Description: "fact", Timestamp: "3"})
	require.NoError(t, err)

	active, err := log.ActiveIncidents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"inc-2"}, active)
}

func TestAllIncidentsOrderedByMostRecentActivity(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	_, err := log.Append(ctx, Event{IncidentID: "inc-1", EventType: FactAsserted, Description: "fact", Timestamp: "1"})
	require.NoError(t, err)
	_, err = log.Append(ctx, Event{IncidentID: "inc-2", EventType: FactAsserted, Description: "fact", Timestamp: "2"})
	require.NoError(t, err)
	_, err = log.Append(ctx, Event{IncidentID: "inc-1", EventType: Resolved, Description: "resolved", Timestamp: "3"})
	require.NoError(t, err)

	all, err := log.AllIncidents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"inc-1", "inc-2"}, all)
}

func TestLatestEventIDEmptyLog(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)
	id, err := log.LatestEventID(ctx)
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestLatestEventIDTracksAppends(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)
	last, err := log.Append(ctx, Event{IncidentID: "inc-1", EventType: FactAsserted, Description: "fact", Timestamp: "1"})
	require.NoError(t, err)

	id, err := log.LatestEventID(ctx)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, last, *id)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.db")
	log1, err := Open(path)
	require.NoError(t, err)
	_, err = log1.Append(context.Background(), Event{IncidentID: "inc-1", EventType: FactAsserted, Description: "x", Timestamp: "1"})
	require.NoError(t, err)
	require.NoError(t, log1.Close())

	log2, err := Open(path)
	require.NoError(t, err)
	defer log2.Close()
	events, err := log2.EventsForIncident(context.Background(), "inc-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
