// Package incident holds the event_type-specific "details" payload shapes
// the rest of the system writes into eventlog.Event.Details, plus the pure
// functions that derive incident-level state (lifecycle phase, status) by
// replaying those payloads. Nothing in this package talks to storage;
// everything here is a projection over an already-loaded event slice.
package incident

import (
	"encoding/json"

	"github.com/sgunadhya/incident-agent/pkg/effect"
	"github.com/sgunadhya/incident-agent/pkg/eventlog"
)

// MCPBlock is the side-channel block embedded in ActionIntent/ActionResult
// details, describing the underlying tool-executor call.
type MCPBlock struct {
	ToolName string          `json:"tool_name"`
	Phase    string          `json:"phase"`
	Request  json.RawMessage `json:"request,omitempty"`
	OK       *bool           `json:"ok,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// StepDetails is the details payload for ActionIntent, ActionResult, and
// the Escalated event raised by an executor failure. Name and Effect are
// empty for the "no matching runbook"/"no valid llm plan" escalations,
// which never named a step.
type StepDetails struct {
	Name   string        `json:"name,omitempty"`
	Effect effect.Effect `json:"effect,omitempty"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Reason string          `json:"reason,omitempty"`
	MCP    *MCPBlock       `json:"mcp,omitempty"`
}

// PlanSelectedDetails names a selected runbook. The PlanSelected events this
// module writes do not use it: their details hold the selected plan's
// action list (a JSON array of runbook.ActionSchema), and the runbook name
// appears only in the event description.
type PlanSelectedDetails struct {
	RunbookName string `json:"runbook_name"`
}

// FactRetractedDetails is the details payload for FactRetracted.
type FactRetractedDetails struct {
	FactID string `json:"fact_id"`
}

// EscalationResponse is the human decision recorded by EscalationResponded.
type EscalationResponse string

const (
	Approve EscalationResponse = "approve"
	Reject  EscalationResponse = "reject"
)

// EscalationRespondedDetails is the details payload for EscalationResponded.
type EscalationRespondedDetails struct {
	Response EscalationResponse `json:"response"`
}

// FactSuggestedDetails is the details payload for FactSuggested.
type FactSuggestedDetails struct {
	FactID    string   `json:"fact_id"`
	Title     string   `json:"title"`
	Severity  string   `json:"severity"`
	Tags      []string `json:"tags"`
	Rationale string   `json:"rationale"`
}

// SuggestionDecision is the human decision recorded by
// FactSuggestionResolved.
type SuggestionDecision string

const (
	DecisionApprove SuggestionDecision = "approve"
	DecisionReject  SuggestionDecision = "reject"
)

// FactSuggestionResolvedDetails is the details payload for
// FactSuggestionResolved.
type FactSuggestionResolvedDetails struct {
	SuggestionEventID int64              `json:"suggestion_event_id"`
	Decision          SuggestionDecision `json:"decision"`
}

// Phase is the single-valued, last-writer-wins lifecycle phase of an
// incident as its events replay.
type Phase string

const (
	PhaseMatching      Phase = "matching"
	PhasePlanning      Phase = "planning"
	PhaseExecuting     Phase = "executing"
	PhaseEscalating    Phase = "escalating"
	PhaseHumanResponse Phase = "human-response"
	PhaseResolved      Phase = "resolved"
)

// DerivePhase replays events in order and returns the phase of the final
// event, per the lifecycle table: FactAsserted/FactRetracted/FactSuggested/
// FactSuggestionResolved -> matching; PlanSelected -> planning;
// ActionIntent/ActionResult -> executing; Escalated -> escalating;
// EscalationResponded -> human-response; Resolved -> resolved.
func DerivePhase(events []eventlog.Event) Phase {
	phase := PhaseMatching
	for _, e := range events {
		switch e.EventType {
		case eventlog.FactAsserted, eventlog.FactRetracted, eventlog.FactSuggested, eventlog.FactSuggestionResolved:
			phase = PhaseMatching
		case eventlog.PlanSelected:
			phase = PhasePlanning
		case eventlog.ActionIntent, eventlog.ActionResult:
			phase = PhaseExecuting
		case eventlog.Escalated:
			phase = PhaseEscalating
		case eventlog.EscalationResponded:
			phase = PhaseHumanResponse
		case eventlog.Resolved:
			phase = PhaseResolved
		}
	}
	return phase
}

// Status is the coarse incident status derived from its events.
type Status string

const (
	StatusResolved  Status = "resolved"
	StatusEscalated Status = "escalated"
	StatusActive    Status = "active"
)

// DeriveStatus reports "resolved" if any Resolved event exists, else
// "escalated" if any Escalated event exists with no subsequent Resolved,
// else "active".
func DeriveStatus(events []eventlog.Event) Status {
	status := StatusActive
	for _, e := range events {
		switch e.EventType {
		case eventlog.Escalated:
			status = StatusEscalated
		case eventlog.Resolved:
			return StatusResolved
		}
	}
	return status
}

// IsResolved reports whether the event slice contains at least one Resolved
// event.
func IsResolved(events []eventlog.Event) bool {
	for _, e := range events {
		if e.EventType == eventlog.Resolved {
			return true
		}
	}
	return false
}
