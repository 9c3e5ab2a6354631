package incident

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sgunadhya/incident-agent/pkg/eventlog"
)

func ev(eventType eventlog.EventType) eventlog.Event {
	return eventlog.Event{IncidentID: "inc-1", EventType: eventType, Description: "x", Timestamp: "1"}
}

func TestDerivePhaseDefaultsToMatching(t *testing.T) {
	assert.Equal(t, PhaseMatching, DerivePhase(nil))
}

func TestDerivePhaseFollowsLastEvent(t *testing.T) {
	events := []eventlog.Event{
		ev(eventlog.FactAsserted),
		ev(eventlog.PlanSelected),
		ev(eventlog.ActionIntent),
		ev(eventlog.ActionResult),
	}
	assert.Equal(t, PhaseExecuting, DerivePhase(events))
}

func TestDerivePhaseReachesEscalatingThenHumanResponse(t *testing.T) {
	events := []eventlog.Event{
		ev(eventlog.FactAsserted),
		ev(eventlog.Escalated),
	}
	assert.Equal(t, PhaseEscalating, DerivePhase(events))

	events = append(events, ev(eventlog.EscalationResponded))
	assert.Equal(t, PhaseHumanResponse, DerivePhase(events))
}

func TestDerivePhaseResolvedIsTerminal(t *testing.T) {
	events := []eventlog.Event{
		ev(eventlog.FactAsserted),
		ev(eventlog.PlanSelected),
		ev(eventlog.ActionIntent),
		ev(eventlog.ActionResult),
		ev(eventlog.Resolved),
	}
	assert.Equal(t, PhaseResolved, DerivePhase(events))
}

func TestDerivePhaseFactActivityAfterPlanningReturnsToMatching(t *testing.T) {
	events := []eventlog.Event{
		ev(eventlog.PlanSelected),
		ev(eventlog.FactSuggested),
	}
	assert.Equal(t, PhaseMatching, DerivePhase(events))
}

func TestDeriveStatusActiveByDefault(t *testing.T) {
	assert.Equal(t, StatusActive, DeriveStatus(nil))
	assert.False(t, IsResolved(nil))
}

func TestDeriveStatusEscalatedWithoutResolution(t *testing.T) {
	events := []eventlog.Event{ev(eventlog.FactAsserted), ev(eventlog.Escalated)}
	assert.Equal(t, StatusEscalated, DeriveStatus(events))
	assert.False(t, IsResolved(events))
}

func TestDeriveStatusResolvedAfterEscalation(t *testing.T) {
	events := []eventlog.Event{
		ev(eventlog.FactAsserted),
		ev(eventlog.Escalated),
		ev(eventlog.EscalationResponded),
		ev(eventlog.Resolved),
	}
	assert.Equal(t, StatusResolved, DeriveStatus(events))
	assert.True(t, IsResolved(events))
}
