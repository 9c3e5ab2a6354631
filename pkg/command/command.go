// Package command implements every operation that mutates the event log or
// reads a materialized projection of it on behalf of an operator: listing
// incidents, reading beliefs/timeline/plan/tool-calls, responding to an
// escalation, and the manual fact and reprocessing commands.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sgunadhya/incident-agent/pkg/eventlog"
	"github.com/sgunadhya/incident-agent/pkg/executor"
	"github.com/sgunadhya/incident-agent/pkg/fact"
	"github.com/sgunadhya/incident-agent/pkg/incident"
	"github.com/sgunadhya/incident-agent/pkg/llm"
	"github.com/sgunadhya/incident-agent/pkg/pattern"
	"github.com/sgunadhya/incident-agent/pkg/projection"
	"github.com/sgunadhya/incident-agent/pkg/runbook"
)

// ValidationError reports a request that fails a command's own precondition
// (no active facts, unknown suggestion, malformed decision string), as
// distinct from a StorageError bubbling up from eventlog.
type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return e.Message }

// EscalationDecision is the payload handed to the channel respond_to_escalation
// writes to; a consumer goroutine applies it via ApplyEscalationResponse.
type EscalationDecision struct {
	IncidentID string
	Response   incident.EscalationResponse
}

// Commands bundles the collaborators every command needs: the event log,
// the runbook registry reprocess_incident replans against, the optional LLM
// client generate_fact_suggestions calls, and the channel respond_to_escalation
// publishes decisions to.
type Commands struct {
	Log         *eventlog.Log
	Runbooks    *runbook.Registry
	LLM         *llm.Client
	Escalations chan<- EscalationDecision
	// Now is overridable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

func (c *Commands) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Commands) nowString() string {
	return strconv.FormatInt(c.now().Unix(), 10)
}

// ListIncidents returns every known incident, most recently active first.
func (c *Commands) ListIncidents(ctx context.Context) ([]projection.IncidentSummary, error) {
	ids, err := c.Log.AllIncidents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]projection.IncidentSummary, 0, len(ids))
	for _, id := range ids {
		events, err := c.Log.EventsForIncident(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, projection.SummarizeIncident(id, events))
	}
	return out, nil
}

// GetBeliefs returns the currently-asserted facts for incidentID.
func (c *Commands) GetBeliefs(ctx context.Context, incidentID string) ([]projection.BeliefFact, error) {
	events, err := c.Log.EventsForIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	return projection.Beliefs(events), nil
}

// GetTimeline returns the raw event timeline for incidentID.
func (c *Commands) GetTimeline(ctx context.Context, incidentID string) ([]projection.TimelineEvent, error) {
	events, err := c.Log.EventsForIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	return projection.Timeline(events), nil
}

// GetCurrentPlan returns the current plan view for incidentID.
func (c *Commands) GetCurrentPlan(ctx context.Context, incidentID string) (projection.Plan, error) {
	events, err := c.Log.EventsForIncident(ctx, incidentID)
	if err != nil {
		return projection.Plan{}, err
	}
	return projection.CurrentPlan(events), nil
}

// GetToolCalls returns every tool call recorded for incidentID.
func (c *Commands) GetToolCalls(ctx context.Context, incidentID string) ([]projection.ToolCall, error) {
	events, err := c.Log.EventsForIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	return projection.ToolCalls(events), nil
}

// GetSuggestedFacts returns every unresolved LLM fact suggestion for incidentID.
func (c *Commands) GetSuggestedFacts(ctx context.Context, incidentID string) ([]projection.SuggestedFact, error) {
	events, err := c.Log.EventsForIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	return projection.SuggestedFacts(events), nil
}

// UpsertAlertFact writes a manually-provided alert fact as a FactAsserted
// event, sourced as fact.SourceGeneric.
func (c *Commands) UpsertAlertFact(ctx context.Context, incidentID, factID, title, severity string, tags []string) error {
	alert := fact.Alert{
		ID:         factID,
		Source:     fact.SourceGeneric,
		Severity:   fact.ParseSeverity(severity),
		Title:      title,
		Tags:       tags,
		ReceivedAt: c.nowString(),
	}
	payload, err := json.Marshal(fact.NewAlertFact(alert))
	if err != nil {
		return fmt.Errorf("marshal fact: %w", err)
	}
	_, err = c.Log.Append(ctx, eventlog.Event{
		IncidentID:  incidentID,
		EventType:   eventlog.FactAsserted,
		Description: "fact upserted: " + factID,
		Details:     payload,
		Timestamp:   c.nowString(),
	})
	return err
}

// RetractFact marks factID retracted for incidentID.
func (c *Commands) RetractFact(ctx context.Context, incidentID, factID string) error {
	payload, err := json.Marshal(incident.FactRetractedDetails{FactID: factID})
	if err != nil {
		return fmt.Errorf("marshal fact retraction: %w", err)
	}
	_, err = c.Log.Append(ctx, eventlog.Event{
		IncidentID:  incidentID,
		EventType:   eventlog.FactRetracted,
		Description: "fact retracted: " + factID,
		Details:     payload,
		Timestamp:   c.nowString(),
	})
	return err
}

// GenerateFactSuggestions asks the configured LLM to propose up to three
// additional facts for incidentID given its currently-asserted facts, and
// records each as a FactSuggested event.
func (c *Commands) GenerateFactSuggestions(ctx context.Context, incidentID string) error {
	if c.LLM == nil {
		return &ValidationError{Message: "LLM is not configured (missing API key env)"}
	}
	events, err := c.Log.EventsForIncident(ctx, incidentID)
	if err != nil {
		return err
	}
	materialized := projection.MaterializeFacts(events)
	if len(materialized) == 0 {
		return &ValidationError{Message: "no active facts for incident"}
	}
	currentFacts := make([]fact.Fact, len(materialized))
	for i, m := range materialized {
		currentFacts[i] = m.Fact
	}

	suggestions, err := c.LLM.SuggestFacts(ctx, currentFacts)
	if err != nil {
		return err
	}

	for _, s := range suggestions {
		payload, err := json.Marshal(incident.FactSuggestedDetails{
			FactID: s.FactID, Title: s.Title, Severity: s.Severity, Tags: s.Tags, Rationale: s.Rationale,
		})
		if err != nil {
			return fmt.Errorf("marshal fact suggestion: %w", err)
		}
		if _, err := c.Log.Append(ctx, eventlog.Event{
			IncidentID:  incidentID,
			EventType:   eventlog.FactSuggested,
			Description: "llm suggested fact: " + s.FactID,
			Details:     payload,
			Timestamp:   c.nowString(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// DecideFactSuggestion resolves one pending suggestion. decision must be
// "approve" or "reject" (case-insensitive); approving asserts the suggested
// fact before recording the resolution.
func (c *Commands) DecideFactSuggestion(ctx context.Context, incidentID string, suggestionEventID int64, decision string) error {
	events, err := c.Log.EventsForIncident(ctx, incidentID)
	if err != nil {
		return err
	}

	var suggested *eventlog.Event
	for i := range events {
		e := events[i]
		if e.ID != nil && *e.ID == suggestionEventID && e.EventType == eventlog.FactSuggested {
			suggested = &e
			break
		}
	}
	if suggested == nil {
		return &ValidationError{Message: "suggestion event not found"}
	}

	normalized := strings.ToLower(strings.TrimSpace(decision))
	var decisionValue incident.SuggestionDecision
	switch normalized {
	case "approve":
		decisionValue = incident.DecisionApprove
	case "reject":
		decisionValue = incident.DecisionReject
	default:
		return &ValidationError{Message: fmt.Sprintf("unknown decision %q", decision)}
	}

	if decisionValue == incident.DecisionApprove {
		var details incident.FactSuggestedDetails
		if err := json.Unmarshal(suggested.Details, &details); err != nil {
			return &ValidationError{Message: "suggestion payload missing"}
		}
		alert := fact.Alert{
			ID:         orDefault(details.FactID, "suggested"),
			Source:     fact.SourceGeneric,
			Severity:   fact.ParseSeverity(orDefault(details.Severity, "high")),
			Title:      orDefault(details.Title, "Suggested fact"),
			Tags:       details.Tags,
			ReceivedAt: c.nowString(),
		}
		payload, err := json.Marshal(fact.NewAlertFact(alert))
		if err != nil {
			return fmt.Errorf("marshal accepted fact: %w", err)
		}
		if _, err := c.Log.Append(ctx, eventlog.Event{
			IncidentID:  incidentID,
			EventType:   eventlog.FactAsserted,
			Description: "approved llm suggested fact",
			Details:     payload,
			Timestamp:   c.nowString(),
		}); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(incident.FactSuggestionResolvedDetails{
		SuggestionEventID: suggestionEventID,
		Decision:          decisionValue,
	})
	if err != nil {
		return fmt.Errorf("marshal suggestion resolution: %w", err)
	}
	_, err = c.Log.Append(ctx, eventlog.Event{
		IncidentID:  incidentID,
		EventType:   eventlog.FactSuggestionResolved,
		Description: "fact suggestion resolved",
		Details:     payload,
		Timestamp:   c.nowString(),
	})
	return err
}

// RespondToEscalation hands a human decision off to the channel a
// decision-applying goroutine drains; see ApplyEscalationResponse.
func (c *Commands) RespondToEscalation(ctx context.Context, incidentID string, response incident.EscalationResponse) error {
	select {
	case c.Escalations <- EscalationDecision{IncidentID: incidentID, Response: response}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyEscalationResponse records an EscalationResponded event for the
// decision, and resolves the incident outright when the response is
// Approve. It is meant to be called by the goroutine draining the
// Escalations channel, not directly by request handlers.
func ApplyEscalationResponse(ctx context.Context, log *eventlog.Log, now func() time.Time, decision EscalationDecision) error {
	if now == nil {
		now = time.Now
	}
	ts := strconv.FormatInt(now().Unix(), 10)

	payload, err := json.Marshal(incident.EscalationRespondedDetails{Response: decision.Response})
	if err != nil {
		return fmt.Errorf("marshal escalation response: %w", err)
	}
	if _, err := log.Append(ctx, eventlog.Event{
		IncidentID:  decision.IncidentID,
		EventType:   eventlog.EscalationResponded,
		Description: "escalation responded",
		Details:     payload,
		Timestamp:   ts,
	}); err != nil {
		return err
	}

	if decision.Response == incident.Approve {
		_, err := log.Append(ctx, eventlog.Event{
			IncidentID:  decision.IncidentID,
			EventType:   eventlog.Resolved,
			Description: "resolved by human approval",
			Timestamp:   ts,
		})
		return err
	}
	return nil
}

// ReprocessIncident replans incidentID from scratch against the
// deterministic runbook registry, picking the most recently asserted fact
// still present in the belief set (ties broken by the higher event id) and
// ignoring any earlier LLM-proposed plan. The tool executor used here is a
// stub that reports every step as immediately successful; reprocessing
// exists to retry a deterministic runbook, not to re-run real side effects.
func (c *Commands) ReprocessIncident(ctx context.Context, incidentID string) error {
	events, err := c.Log.EventsForIncident(ctx, incidentID)
	if err != nil {
		return err
	}

	f, found := mostRecentFact(events)
	if !found {
		return &ValidationError{Message: "no active facts for incident"}
	}

	detected := pattern.Detect(f)
	runbookName, selected, ok := c.Runbooks.Select(detected)
	if !ok {
		return &ValidationError{Message: "no matching deterministic runbook"}
	}

	details, err := json.Marshal(selected)
	if err != nil {
		return fmt.Errorf("marshal selected runbook: %w", err)
	}
	if _, err := c.Log.Append(ctx, eventlog.Event{
		IncidentID:  incidentID,
		EventType:   eventlog.PlanSelected,
		Description: "reprocess selected runbook: " + runbookName,
		Details:     details,
		Timestamp:   c.nowString(),
	}); err != nil {
		return err
	}

	exec := &executor.Executor{Log: c.Log, Now: c.Now}
	stub := func(step runbook.ActionSchema) (json.RawMessage, error) {
		return json.Marshal(map[string]string{"status": "ok", "tool": step.Name})
	}

	if err := exec.ExecutePlan(ctx, incidentID, selected, stub); err != nil {
		var pfe *executor.PlanFailedError
		if !errors.As(err, &pfe) {
			return err
		}
		payload, marshalErr := json.Marshal(incident.StepDetails{
			Name: pfe.Step.Name, Effect: pfe.Step.Effect, Status: "failed", Reason: pfe.Reason,
		})
		if marshalErr != nil {
			return fmt.Errorf("marshal reprocess escalation: %w", marshalErr)
		}
		_, appendErr := c.Log.Append(ctx, eventlog.Event{
			IncidentID:  incidentID,
			EventType:   eventlog.Escalated,
			Description: "reprocess escalation required",
			Details:     payload,
			Timestamp:   c.nowString(),
		})
		return appendErr
	}

	_, err = c.Log.Append(ctx, eventlog.Event{
		IncidentID:  incidentID,
		EventType:   eventlog.Resolved,
		Description: "incident resolved by reprocess",
		Timestamp:   c.nowString(),
	})
	return err
}

// mostRecentFact replays FactAsserted/FactRetracted events and returns the
// fact whose most recent assertion has the highest event id among facts
// still present, breaking the non-determinism a plain map iteration would
// have.
func mostRecentFact(events []eventlog.Event) (fact.Fact, bool) {
	type entry struct {
		fact    fact.Fact
		eventID int64
	}
	current := make(map[string]entry)

	for _, e := range events {
		switch e.EventType {
		case eventlog.FactAsserted:
			var f fact.Fact
			if err := json.Unmarshal(e.Details, &f); err != nil {
				continue
			}
			id := f.ID()
			if id == "" || e.ID == nil {
				continue
			}
			current[id] = entry{fact: f, eventID: *e.ID}
		case eventlog.FactRetracted:
			var details incident.FactRetractedDetails
			if err := json.Unmarshal(e.Details, &details); err != nil {
				continue
			}
			delete(current, details.FactID)
		}
	}

	var best entry
	found := false
	for _, v := range current {
		if !found || v.eventID > best.eventID {
			best = v
			found = true
		}
	}
	return best.fact, found
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
