// Package projection implements every read model the rest of the system
// exposes, as pure functions over an already-loaded event slice. Nothing
// here talks to storage; callers fetch events via eventlog and pass them in.
package projection

import (
	"encoding/json"
	"sort"

	"github.com/sgunadhya/incident-agent/pkg/eventlog"
	"github.com/sgunadhya/incident-agent/pkg/fact"
	"github.com/sgunadhya/incident-agent/pkg/incident"
)

// IncidentSummary is the one-line view of an incident shown in a list.
type IncidentSummary struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Severity     string `json:"severity"`
	Title        string `json:"title"`
	StartedAt    string `json:"started_at"`
	CurrentPhase string `json:"current_phase"`
}

// BeliefFact is the materialized view of one currently-asserted fact.
type BeliefFact struct {
	FactID    string   `json:"fact_id"`
	FactType  string   `json:"fact_type"`
	Summary   string   `json:"summary"`
	Severity  string   `json:"severity"`
	Tags      []string `json:"tags"`
	Timestamp string   `json:"timestamp"`
}

// TimelineEvent is a single row in the raw event timeline view.
type TimelineEvent struct {
	ID          int64  `json:"id"`
	EventType   string `json:"event_type"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

// PlanStep is one step of the most recently selected plan, with its latest
// known status.
type PlanStep struct {
	Name   string `json:"name"`
	Effect string `json:"effect"`
	Status string `json:"status"`
}

// Plan is the current plan view: its steps in declaration order and the
// index of the step currently running (or the last step, once finished).
type Plan struct {
	Steps       []PlanStep `json:"steps"`
	CurrentStep int        `json:"current_step"`
}

// ToolCall is one ActionIntent or ActionResult event, reshaped for display.
type ToolCall struct {
	EventID    int64  `json:"event_id"`
	IncidentID string `json:"incident_id"`
	ToolName   string `json:"tool_name"`
	Phase      string `json:"phase"`
	Status     string `json:"status"`
	Effect     string `json:"effect"`
	Summary    string `json:"summary"`
	Timestamp  string `json:"timestamp"`
}

// SuggestedFact is one FactSuggested event not yet resolved by a matching
// FactSuggestionResolved event.
type SuggestedFact struct {
	SuggestionEventID int64    `json:"suggestion_event_id"`
	FactID            string   `json:"fact_id"`
	Summary           string   `json:"summary"`
	Severity          string   `json:"severity"`
	Tags              []string `json:"tags"`
	Rationale         string   `json:"rationale"`
	Timestamp         string   `json:"timestamp"`
}

// MaterializedFact pairs a currently-asserted fact with the timestamp of the
// FactAsserted event that last (re-)asserted it.
type MaterializedFact struct {
	Fact      fact.Fact
	Timestamp string
}

// MaterializeFacts replays FactAsserted/FactRetracted events and returns the
// facts still present, keyed by fact id, ordered by id for determinism.
func MaterializeFacts(events []eventlog.Event) []MaterializedFact {
	current := make(map[string]MaterializedFact)
	for _, e := range events {
		switch e.EventType {
		case eventlog.FactAsserted:
			var f fact.Fact
			if err := json.Unmarshal(e.Details, &f); err != nil {
				continue
			}
			id := f.ID()
			if id == "" {
				continue
			}
			current[id] = MaterializedFact{Fact: f, Timestamp: e.Timestamp}
		case eventlog.FactRetracted:
			var details incident.FactRetractedDetails
			if err := json.Unmarshal(e.Details, &details); err != nil {
				continue
			}
			delete(current, details.FactID)
		}
	}

	ids := make([]string, 0, len(current))
	for id := range current {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]MaterializedFact, 0, len(ids))
	for _, id := range ids {
		out = append(out, current[id])
	}
	return out
}

// Beliefs returns the currently-asserted facts reshaped as BeliefFact rows.
func Beliefs(events []eventlog.Event) []BeliefFact {
	materialized := MaterializeFacts(events)
	out := make([]BeliefFact, 0, len(materialized))
	for _, m := range materialized {
		if m.Fact.Alert == nil {
			continue
		}
		out = append(out, BeliefFact{
			FactID:    m.Fact.Alert.ID,
			FactType:  "Alert",
			Summary:   m.Fact.Alert.Title,
			Severity:  string(m.Fact.Alert.Severity),
			Tags:      m.Fact.Alert.Tags,
			Timestamp: m.Timestamp,
		})
	}
	return out
}

// Timeline reshapes every event for incidentID into its raw display form.
func Timeline(events []eventlog.Event) []TimelineEvent {
	out := make([]TimelineEvent, 0, len(events))
	for _, e := range events {
		var id int64
		if e.ID != nil {
			id = *e.ID
		}
		out = append(out, TimelineEvent{
			ID:          id,
			EventType:   string(e.EventType),
			Description: e.Description,
			Timestamp:   e.Timestamp,
		})
	}
	return out
}

// SummarizeIncident derives the one-line IncidentDto-equivalent summary by
// replaying every event for incidentID in order.
func SummarizeIncident(incidentID string, events []eventlog.Event) IncidentSummary {
	summary := IncidentSummary{
		ID:           incidentID,
		Status:       "active",
		Severity:     "high",
		CurrentPhase: "matching",
	}

	for _, e := range events {
		if summary.StartedAt == "" {
			summary.StartedAt = e.Timestamp
		}

		switch e.EventType {
		case eventlog.Resolved:
			summary.Status = "resolved"
			summary.CurrentPhase = "resolved"
		case eventlog.Escalated:
			summary.Status = "escalated"
			summary.CurrentPhase = "escalating"
		case eventlog.EscalationResponded:
			summary.CurrentPhase = "human-response"
		case eventlog.FactRetracted, eventlog.FactSuggested, eventlog.FactSuggestionResolved:
			summary.CurrentPhase = "matching"
		case eventlog.PlanSelected:
			summary.CurrentPhase = "planning"
		case eventlog.ActionIntent, eventlog.ActionResult:
			summary.CurrentPhase = "executing"
		case eventlog.FactAsserted:
			summary.CurrentPhase = "matching"
			var f fact.Fact
			if err := json.Unmarshal(e.Details, &f); err == nil && f.Alert != nil {
				summary.Title = f.Alert.Title
				summary.Severity = string(f.Alert.Severity)
			}
		}
	}
	return summary
}

// CurrentPlan replays ActionIntent/ActionResult/Escalated events, folding
// repeated updates to the same step name into its latest status, and
// reports the index of the step currently running (or the last step once
// the plan has finished).
func CurrentPlan(events []eventlog.Event) Plan {
	var steps []PlanStep
	for _, e := range events {
		if e.EventType != eventlog.ActionIntent && e.EventType != eventlog.ActionResult && e.EventType != eventlog.Escalated {
			continue
		}
		var details incident.StepDetails
		if err := json.Unmarshal(e.Details, &details); err != nil || details.Name == "" {
			continue
		}
		status := details.Status
		if status == "" {
			status = "pending"
		}
		effect := string(details.Effect)
		if effect == "" {
			effect = "Observe"
		}

		updated := false
		for i := len(steps) - 1; i >= 0; i-- {
			if steps[i].Name == details.Name {
				steps[i].Status = status
				steps[i].Effect = effect
				updated = true
				break
			}
		}
		if !updated {
			steps = append(steps, PlanStep{Name: details.Name, Effect: effect, Status: status})
		}
	}

	currentStep := len(steps) - 1
	if currentStep < 0 {
		currentStep = 0
	}
	for i, s := range steps {
		if s.Status == "running" {
			currentStep = i
			break
		}
	}
	return Plan{Steps: steps, CurrentStep: currentStep}
}

// ToolCalls reshapes every ActionIntent/ActionResult event for incidentID
// into a ToolCall row.
func ToolCalls(events []eventlog.Event) []ToolCall {
	var out []ToolCall
	for _, e := range events {
		if e.EventType != eventlog.ActionIntent && e.EventType != eventlog.ActionResult {
			continue
		}
		var details incident.StepDetails
		if err := json.Unmarshal(e.Details, &details); err != nil {
			continue
		}
		name := details.Name
		if name == "" {
			name = "unknown"
		}
		effect := string(details.Effect)
		if effect == "" {
			effect = "Observe"
		}
		status := details.Status
		if status == "" {
			status = "pending"
		}
		phase := "result"
		if e.EventType == eventlog.ActionIntent {
			phase = "intent"
		}

		var id int64
		if e.ID != nil {
			id = *e.ID
		}
		out = append(out, ToolCall{
			EventID:    id,
			IncidentID: e.IncidentID,
			ToolName:   name,
			Phase:      phase,
			Status:     status,
			Effect:     effect,
			Summary:    e.Description,
			Timestamp:  e.Timestamp,
		})
	}
	return out
}

// SuggestedFacts returns every FactSuggested event not yet resolved by a
// matching FactSuggestionResolved event, ordered by suggestion event id.
func SuggestedFacts(events []eventlog.Event) []SuggestedFact {
	active := make(map[int64]SuggestedFact)
	for _, e := range events {
		switch e.EventType {
		case eventlog.FactSuggested:
			if e.ID == nil {
				continue
			}
			var details incident.FactSuggestedDetails
			if err := json.Unmarshal(e.Details, &details); err != nil {
				continue
			}
			factID := details.FactID
			if factID == "" {
				factID = "suggested"
			}
			title := details.Title
			if title == "" {
				title = "Suggested fact"
			}
			severity := details.Severity
			if severity == "" {
				severity = "high"
			}
			rationale := details.Rationale
			if rationale == "" {
				rationale = "llm suggestion"
			}
			active[*e.ID] = SuggestedFact{
				SuggestionEventID: *e.ID,
				FactID:            factID,
				Summary:           title,
				Severity:          severity,
				Tags:              details.Tags,
				Rationale:         rationale,
				Timestamp:         e.Timestamp,
			}
		case eventlog.FactSuggestionResolved:
			var details incident.FactSuggestionResolvedDetails
			if err := json.Unmarshal(e.Details, &details); err != nil {
				continue
			}
			delete(active, details.SuggestionEventID)
		}
	}

	ids := make([]int64, 0, len(active))
	for id := range active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]SuggestedFact, 0, len(ids))
	for _, id := range ids {
		out = append(out, active[id])
	}
	return out
}
