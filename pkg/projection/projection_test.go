package projection

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgunadhya/incident-agent/pkg/effect"
	"github.com/sgunadhya/incident-agent/pkg/eventlog"
	"github.com/sgunadhya/incident-agent/pkg/fact"
	"github.com/sgunadhya/incident-agent/pkg/incident"
)

func id(v int64) *int64 { return &v }

func factAssertedEvent(eid int64, ts string, f fact.Fact) eventlog.Event {
	details, _ := json.Marshal(f)
	return eventlog.Event{ID: id(eid), IncidentID: "inc-1", EventType: eventlog.FactAsserted, Description: "fact asserted", Details: details, Timestamp: ts}
}

func stepEvent(eid int64, eventType eventlog.EventType, ts string, d incident.StepDetails) eventlog.Event {
	details, _ := json.Marshal(d)
	return eventlog.Event{ID: id(eid), IncidentID: "inc-1", EventType: eventType, Description: "x", Details: details, Timestamp: ts}
}

func TestMaterializeFactsAppliesRetraction(t *testing.T) {
	f := fact.NewAlertFact(fact.Alert{ID: "a1", Source: fact.SourceGeneric, Severity: fact.High, Title: "oops"})
	retractDetails, _ := json.Marshal(incident.FactRetractedDetails{FactID: "a1"})
	events := []eventlog.Event{
		factAssertedEvent(1, "1", f),
		{ID: id(2), IncidentID: "inc-1", EventType: eventlog.FactRetracted, Details: retractDetails, Timestamp: "2"},
	}
	assert.Empty(t, MaterializeFacts(events))
}

func TestBeliefsReflectsLatestAssertion(t *testing.T) {
	f1 := fact.NewAlertFact(fact.Alert{ID: "a1", Source: fact.SourceGeneric, Severity: fact.Low, Title: "first"})
	f2 := fact.NewAlertFact(fact.Alert{ID: "a1", Source: fact.SourceGeneric, Severity: fact.Critical, Title: "second"})
	events := []eventlog.Event{factAssertedEvent(1, "1", f1), factAssertedEvent(2, "2", f2)}

	beliefs := Beliefs(events)
	require.Len(t, beliefs, 1)
	assert.Equal(t, "second", beliefs[0].Summary)
	assert.Equal(t, "critical", beliefs[0].Severity)
}

func TestSummarizeIncidentTracksPhaseAndStatus(t *testing.T) {
	f := fact.NewAlertFact(fact.Alert{ID: "inc-1", Source: fact.SourceGeneric, Severity: fact.Medium, Title: "disk full"})
	events := []eventlog.Event{
		factAssertedEvent(1, "100", f),
		{ID: id(2), IncidentID: "inc-1", EventType: eventlog.PlanSelected, Timestamp: "101"},
		{ID: id(3), IncidentID: "inc-1", EventType: eventlog.Resolved, Timestamp: "102"},
	}
	summary := SummarizeIncident("inc-1", events)
	assert.Equal(t, "resolved", summary.Status)
	assert.Equal(t, "resolved", summary.CurrentPhase)
	assert.Equal(t, "disk full", summary.Title)
	assert.Equal(t, "medium", summary.Severity)
	assert.Equal(t, "100", summary.StartedAt)
}

func TestCurrentPlanFoldsRepeatedStepUpdatesAndTracksRunningStep(t *testing.T) {
	events := []eventlog.Event{
		stepEvent(1, eventlog.ActionIntent, "1", incident.StepDetails{Name: "inspect-pod-logs", Effect: effect.Observe, Status: "running"}),
		stepEvent(2, eventlog.ActionResult, "2", incident.StepDetails{Name: "inspect-pod-logs", Effect: effect.Observe, Status: "done"}),
		stepEvent(3, eventlog.ActionIntent, "3", incident.StepDetails{Name: "rollback-deployment", Effect: effect.Mutate, Status: "running"}),
	}
	plan := CurrentPlan(events)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "done", plan.Steps[0].Status)
	assert.Equal(t, "running", plan.Steps[1].Status)
	assert.Equal(t, 1, plan.CurrentStep)
}

func TestCurrentPlanDefaultsToLastStepWhenNoneRunning(t *testing.T) {
	events := []eventlog.Event{
		stepEvent(1, eventlog.ActionIntent, "1", incident.StepDetails{Name: "a", Status: "running"}),
		stepEvent(2, eventlog.ActionResult, "2", incident.StepDetails{Name: "a", Status: "done"}),
	}
	plan := CurrentPlan(events)
	assert.Equal(t, 0, plan.CurrentStep)
}

func TestToolCallsTagsIntentAndResultPhases(t *testing.T) {
	events := []eventlog.Event{
		stepEvent(1, eventlog.ActionIntent, "1", incident.StepDetails{Name: "inspect-pod-logs", Effect: effect.Observe, Status: "running"}),
		stepEvent(2, eventlog.ActionResult, "2", incident.StepDetails{Name: "inspect-pod-logs", Effect: effect.Observe, Status: "done"}),
	}
	calls := ToolCalls(events)
	require.Len(t, calls, 2)
	assert.Equal(t, "intent", calls[0].Phase)
	assert.Equal(t, "result", calls[1].Phase)
}

func TestSuggestedFactsExcludesResolved(t *testing.T) {
	suggested, _ := json.Marshal(incident.FactSuggestedDetails{FactID: "f1", Title: "maybe", Severity: "high", Rationale: "r"})
	resolved, _ := json.Marshal(incident.FactSuggestionResolvedDetails{SuggestionEventID: 1, Decision: incident.DecisionApprove})
	events := []eventlog.Event{
		{ID: id(1), IncidentID: "inc-1", EventType: eventlog.FactSuggested, Details: suggested, Timestamp: "1"},
		{ID: id(2), IncidentID: "inc-1", EventType: eventlog.FactSuggestionResolved, Details: resolved, Timestamp: "2"},
	}
	assert.Empty(t, SuggestedFacts(events))
}

func TestSuggestedFactsReturnsUnresolved(t *testing.T) {
	suggested, _ := json.Marshal(incident.FactSuggestedDetails{FactID: "f1", Title: "maybe", Severity: "high", Rationale: "r"})
	events := []eventlog.Event{
		{ID: id(1), IncidentID: "inc-1", EventType: eventlog.FactSuggested, Details: suggested, Timestamp: "1"},
	}
	out := SuggestedFacts(events)
	require.Len(t, out, 1)
	assert.Equal(t, "f1", out[0].FactID)
}
