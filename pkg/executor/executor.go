// Package executor sequentially runs plan steps against a tool-executor
// function, appending ActionIntent/ActionResult events for each step. It
// never retries; retry and compensation decisions belong to a higher layer.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sgunadhya/incident-agent/pkg/eventlog"
	"github.com/sgunadhya/incident-agent/pkg/incident"
	"github.com/sgunadhya/incident-agent/pkg/runbook"
)

// ToolFunc performs one named action and returns its output or an error
// reason string. It is supplied by the process-level tool executor, which
// is out of scope for this module.
type ToolFunc func(step runbook.ActionSchema) (json.RawMessage, error)

// PlanFailedError carries the step that failed and the raw reason string
// the tool function returned.
type PlanFailedError struct {
	Step   runbook.ActionSchema
	Reason string
}

func (e *PlanFailedError) Error() string {
	return fmt.Sprintf("plan failed at step %q: %s", e.Step.Name, e.Reason)
}

// Executor runs plans against an event log.
type Executor struct {
	Log *eventlog.Log
	// Now is overridable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ExecutePlan runs steps in order against tool, appending ActionIntent and
// ActionResult events for each. Execution is strictly sequential: a step
// never starts before the previous step's result has been appended.
// Returns a *PlanFailedError on the first failing step and stops; no
// further steps run.
func (e *Executor) ExecutePlan(ctx context.Context, incidentID string, steps []runbook.ActionSchema, tool ToolFunc) error {
	for _, step := range steps {
		ok := true
		reqDetails, _ := json.Marshal(map[string]any{"name": step.Name, "effect": step.Effect})
		intent := incident.StepDetails{
			Name:   step.Name,
			Effect: step.Effect,
			Status: "running",
			MCP: &incident.MCPBlock{
				ToolName: step.Name,
				Phase:    "intent",
				Request:  reqDetails,
			},
		}
		if err := e.append(ctx, incidentID, eventlog.ActionIntent, "intent: "+step.Name, intent); err != nil {
			return err
		}

		output, toolErr := tool(step)
		if toolErr == nil {
			result := incident.StepDetails{
				Name:   step.Name,
				Effect: step.Effect,
				Status: "done",
				Result: output,
				MCP: &incident.MCPBlock{
					ToolName: step.Name,
					Phase:    "result",
					OK:       &ok,
					Output:   output,
				},
			}
			if err := e.append(ctx, incidentID, eventlog.ActionResult, "action succeeded: "+step.Name, result); err != nil {
				return err
			}
			continue
		}

		ok = false
		reason := toolErr.Error()
		result := incident.StepDetails{
			Name:   step.Name,
			Effect: step.Effect,
			Status: "failed",
			Error:  reason,
			MCP: &incident.MCPBlock{
				ToolName: step.Name,
				Phase:    "result",
				OK:       &ok,
				Error:    reason,
			},
		}
		if err := e.append(ctx, incidentID, eventlog.ActionResult, "action failed: "+step.Name, result); err != nil {
			return err
		}
		return &PlanFailedError{Step: step, Reason: reason}
	}
	return nil
}

func (e *Executor) append(ctx context.Context, incidentID string, eventType eventlog.EventType, description string, details incident.StepDetails) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal step details: %w", err)
	}
	_, err = e.Log.Append(ctx, eventlog.Event{
		IncidentID:  incidentID,
		EventType:   eventType,
		Description: description,
		Details:     payload,
		Timestamp:   strconv.FormatInt(e.now().Unix(), 10),
	})
	return err
}
