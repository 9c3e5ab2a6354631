// Package adapter normalizes source-specific alert payloads into
// canonical.AlertV1 records, and wraps validated records as fact.Fact
// values for consumption by the agent loop.
package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sgunadhya/incident-agent/pkg/canonical"
	"github.com/sgunadhya/incident-agent/pkg/fact"
)

// AdapterError reports that a raw payload was missing a field the adapter
// requires to construct a canonical alert.
type AdapterError struct {
	Reason string
}

func (e *AdapterError) Error() string {
	return e.Reason
}

func newAdapterError(reason string) error {
	return &AdapterError{Reason: reason}
}

// Adapter maps a raw JSON payload to a validated canonical.AlertV1.
type Adapter interface {
	Parse(payload map[string]any) (canonical.AlertV1, error)
}

// Generic reads id|incident_id, title|alert_title, severity and tags with
// permissive defaults; it never fails on a missing field, only on the
// resulting record failing canonical.Validate.
type Generic struct {
	// Now is overridable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

func (g Generic) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g Generic) Parse(payload map[string]any) (canonical.AlertV1, error) {
	alert := canonical.AlertV1{
		Schema:     canonical.SchemaAlertV1,
		ID:         firstString(payload, "unknown", "id", "incident_id"),
		Title:      firstString(payload, "", "title", "alert_title"),
		Severity:   firstString(payload, "high", "severity"),
		Tags:       stringSlice(payload["tags"]),
		Source:     "generic",
		OccurredAt: strconv.FormatInt(g.now().Unix(), 10),
	}
	if err := canonical.Validate(alert); err != nil {
		return canonical.AlertV1{}, err
	}
	return alert, nil
}

// Alertmanager maps a Prometheus Alertmanager webhook payload (the first
// entry of its alerts array) into a canonical alert.
type Alertmanager struct {
	Now func() time.Time
}

func (a Alertmanager) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a Alertmanager) Parse(payload map[string]any) (canonical.AlertV1, error) {
	alerts, _ := payload["alerts"].([]any)
	if len(alerts) == 0 {
		return canonical.AlertV1{}, newAdapterError("alertmanager payload missing alerts[0]")
	}
	first, _ := alerts[0].(map[string]any)
	labels, _ := first["labels"].(map[string]any)
	annotations, _ := first["annotations"].(map[string]any)

	title := firstString(annotations, "", "summary", "description")
	if title == "" {
		title = firstString(labels, "alertmanager alert", "alertname")
	}
	severity := firstString(labels, "high", "severity")

	id := stringOr(first["fingerprint"], "")
	if id == "" {
		id = firstString(labels, "unknown", "alertname")
	}

	var tags []string
	for k, v := range labels {
		if s, ok := v.(string); ok {
			tags = append(tags, fmt.Sprintf("%s:%s", k, s))
		}
	}

	alert := canonical.AlertV1{
		Schema:     canonical.SchemaAlertV1,
		ID:         id,
		Title:      title,
		Severity:   severity,
		Tags:       tags,
		Source:     "alertmanager",
		OccurredAt: strconv.FormatInt(a.now().Unix(), 10),
	}
	if err := canonical.Validate(alert); err != nil {
		return canonical.AlertV1{}, err
	}
	return alert, nil
}

// ToFact wraps a validated canonical alert as a fact.Alert, labeling the
// source variant by the ingest endpoint rather than trusting whatever the
// adapter wrote into the canonical record's Source field.
func ToFact(a canonical.AlertV1, source fact.AlertSource) fact.Fact {
	return fact.NewAlertFact(fact.Alert{
		ID:         a.ID,
		Source:     source,
		Severity:   fact.ParseSeverity(a.Severity),
		Title:      a.Title,
		Tags:       a.Tags,
		ReceivedAt: a.OccurredAt,
	})
}

// ParseJSON decodes a raw JSON body into the untyped map shape Parse expects.
func ParseJSON(body []byte) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, newAdapterError(fmt.Sprintf("invalid json body: %v", err))
	}
	return payload, nil
}

func firstString(m map[string]any, def string, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return def
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

