// Package agent implements the belief-desire-intention control loop: it
// consumes facts from a FactQueue, matches them against known incident
// patterns, selects or synthesizes a plan, runs it through the executor, and
// escalates to a human whenever no plan can be found or the plan fails.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sgunadhya/incident-agent/pkg/eventlog"
	"github.com/sgunadhya/incident-agent/pkg/executor"
	"github.com/sgunadhya/incident-agent/pkg/fact"
	"github.com/sgunadhya/incident-agent/pkg/incident"
	"github.com/sgunadhya/incident-agent/pkg/llm"
	"github.com/sgunadhya/incident-agent/pkg/pattern"
	"github.com/sgunadhya/incident-agent/pkg/runbook"
)

// factWindowSize bounds the sliding window of recent facts handed to the LLM
// interpreter; the oldest fact is evicted once the window is full.
const factWindowSize = 16

// EscalationRequest is emitted whenever the loop cannot resolve an incident
// on its own and a human needs to look at it. CorrelationID lets a UI or
// notification layer match this request to the EscalationResponded event a
// human eventually produces, since a single incident can escalate more than
// once over its lifetime.
type EscalationRequest struct {
	IncidentID    string
	Reason        string
	CorrelationID string
}

// Config controls how the loop matches patterns to runbooks and whether it
// falls back to an LLM when no runbook matches.
type Config struct {
	Runbooks *runbook.Registry
	// LLM is nil when no provider key is configured; the loop then
	// escalates immediately instead of attempting interpretation.
	LLM *llm.Client
	// MaxReplanAttempts is carried for forward compatibility with a future
	// replanning loop; the current control flow attempts exactly one plan
	// per fact and does not use this field.
	MaxReplanAttempts int
	// FactWindowSize bounds the sliding window of recent facts handed to
	// the LLM interpreter. Zero means factWindowSize (16).
	FactWindowSize int
}

func (cfg Config) factWindowSize() int {
	if cfg.FactWindowSize > 0 {
		return cfg.FactWindowSize
	}
	return factWindowSize
}

// ToolExecutor performs one action named by a runbook step.
type ToolExecutor func(step runbook.ActionSchema) (json.RawMessage, error)

// Loop is the running BDI control loop. Build one with New, then call Run in
// its own goroutine.
type Loop struct {
	queue       *FactQueue
	log         *eventlog.Log
	cfg         Config
	tool        ToolExecutor
	escalations chan<- EscalationRequest
	exec        *executor.Executor

	mu          sync.Mutex
	recentFacts []fact.Fact
}

// New builds a Loop. escalations is a send-only channel the caller drains;
// the loop blocks on sending to it, so callers must keep it serviced.
func New(queue *FactQueue, log *eventlog.Log, cfg Config, tool ToolExecutor, escalations chan<- EscalationRequest) *Loop {
	return &Loop{
		queue:       queue,
		log:         log,
		cfg:         cfg,
		tool:        tool,
		escalations: escalations,
		exec:        &executor.Executor{Log: log},
	}
}

// Run drains the queue until it is closed or ctx is cancelled, processing
// one fact at a time in arrival order.
func (l *Loop) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		f, ok := l.queue.Pop()
		if !ok {
			return
		}
		l.handleFact(ctx, f)
	}
}

func (l *Loop) handleFact(ctx context.Context, f fact.Fact) {
	incidentID := f.ID()
	if incidentID == "" {
		slog.Warn("dropping fact with no incident id")
		return
	}

	l.mu.Lock()
	l.recentFacts = append(l.recentFacts, f)
	if len(l.recentFacts) > l.cfg.factWindowSize() {
		l.recentFacts = l.recentFacts[1:]
	}
	window := append([]fact.Fact(nil), l.recentFacts...)
	l.mu.Unlock()

	factJSON, err := json.Marshal(f)
	if err != nil {
		slog.Error("marshal fact for log", "incident_id", incidentID, "error", err)
		factJSON = nil
	}
	if _, err := l.log.Append(ctx, eventlog.Event{
		IncidentID:  incidentID,
		EventType:   eventlog.FactAsserted,
		Description: "fact asserted",
		Details:     factJSON,
		Timestamp:   nowString(),
	}); err != nil {
		slog.Error("append fact_asserted", "incident_id", incidentID, "error", err)
	}

	detected := pattern.Detect(f)
	selected, runbookName, ok := l.selectPlan(ctx, incidentID, detected, window)
	if !ok {
		return
	}

	if err := l.exec.ExecutePlan(ctx, incidentID, selected, l.tool); err != nil {
		l.handlePlanFailure(ctx, incidentID, runbookName, err)
		return
	}

	if _, err := l.log.Append(ctx, eventlog.Event{
		IncidentID:  incidentID,
		EventType:   eventlog.Resolved,
		Description: "incident resolved",
		Timestamp:   nowString(),
	}); err != nil {
		slog.Error("append resolved", "incident_id", incidentID, "error", err)
	}
}

// selectPlan returns the plan to execute and its declared name, trying the
// pattern-matched runbook first and falling back to an LLM-proposed plan. ok
// is false when neither produced a plan and the incident has already been
// escalated.
func (l *Loop) selectPlan(ctx context.Context, incidentID string, p pattern.Pattern, window []fact.Fact) (runbook.Runbook, string, bool) {
	if name, rb, found := l.cfg.Runbooks.Select(p); found {
		l.logPlanSelected(ctx, incidentID, name, rb)
		return rb, name, true
	}

	if l.cfg.LLM == nil {
		l.escalate(ctx, incidentID, "no matching runbook", incident.StepDetails{Status: "failed", Reason: "no matching runbook"})
		return nil, "", false
	}

	allActions := l.cfg.Runbooks.AllActions()
	if len(allActions) == 0 {
		allActions = runbook.CrashloopRunbook()
	}

	interp, err := l.cfg.LLM.Interpret(ctx, window)
	if err != nil {
		slog.Warn("llm interpret failed", "incident_id", incidentID, "error", err)
		l.escalate(ctx, incidentID, "no valid llm plan", incident.StepDetails{Status: "failed", Reason: "no valid llm plan"})
		return nil, "", false
	}

	actions, err := l.cfg.LLM.ProposeAndValidate(ctx, interp.Hypothesis, interp.Goal, interp.CandidateActions, allActions)
	if err != nil || len(actions) == 0 {
		if err != nil {
			slog.Warn("llm propose failed", "incident_id", incidentID, "error", err)
		}
		l.escalate(ctx, incidentID, "no valid llm plan", incident.StepDetails{Status: "failed", Reason: "no valid llm plan"})
		return nil, "", false
	}

	rb := runbook.Runbook(actions)
	description := fmt.Sprintf("LLM-proposed plan: %d steps (%s)", len(actions), interp.Hypothesis)
	details, _ := json.Marshal(rb)
	if _, err := l.log.Append(ctx, eventlog.Event{
		IncidentID:  incidentID,
		EventType:   eventlog.PlanSelected,
		Description: description,
		Details:     details,
		Timestamp:   nowString(),
	}); err != nil {
		slog.Error("append plan_selected", "incident_id", incidentID, "error", err)
	}
	return rb, "llm-proposed", true
}

func (l *Loop) logPlanSelected(ctx context.Context, incidentID, name string, rb runbook.Runbook) {
	details, _ := json.Marshal(rb)
	if _, err := l.log.Append(ctx, eventlog.Event{
		IncidentID:  incidentID,
		EventType:   eventlog.PlanSelected,
		Description: "selected runbook: " + name,
		Details:     details,
		Timestamp:   nowString(),
	}); err != nil {
		slog.Error("append plan_selected", "incident_id", incidentID, "error", err)
	}
}

func (l *Loop) handlePlanFailure(ctx context.Context, incidentID, runbookName string, err error) {
	reason := err.Error()
	details := incident.StepDetails{Status: "failed", Reason: reason}
	var pfe *executor.PlanFailedError
	if errors.As(err, &pfe) {
		details.Name = pfe.Step.Name
		details.Effect = pfe.Step.Effect
		details.Error = pfe.Reason
		details.Reason = pfe.Reason
		reason = pfe.Reason
	}
	l.escalate(ctx, incidentID, reason, details)
}

func (l *Loop) escalate(ctx context.Context, incidentID, reason string, details incident.StepDetails) {
	select {
	case l.escalations <- EscalationRequest{IncidentID: incidentID, Reason: reason, CorrelationID: uuid.NewString()}:
	case <-ctx.Done():
		return
	}

	payload, _ := json.Marshal(details)
	if _, err := l.log.Append(ctx, eventlog.Event{
		IncidentID:  incidentID,
		EventType:   eventlog.Escalated,
		Description: "escalation required",
		Details:     payload,
		Timestamp:   nowString(),
	}); err != nil {
		slog.Error("append escalated", "incident_id", incidentID, "error", err)
	}
}

func nowString() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}
