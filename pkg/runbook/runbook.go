// Package runbook defines named, ordered action lists and the registry and
// selection logic that map an incident pattern to one of them.
package runbook

import (
	"strings"
	"sync"

	"github.com/sgunadhya/incident-agent/pkg/effect"
	"github.com/sgunadhya/incident-agent/pkg/pattern"
)

// ActionSchema is an opaque, named action tagged with its effect
// classification. Two schemas are equal iff their names are equal.
type ActionSchema struct {
	Name   string        `json:"name"`
	Effect effect.Effect `json:"effect"`
}

// Runbook is an ordered sequence of actions to execute in order.
type Runbook []ActionSchema

// Names returns the action names in the runbook, in order.
func (r Runbook) Names() []string {
	names := make([]string, len(r))
	for i, a := range r {
		names[i] = a.Name
	}
	return names
}

// CrashloopRunbook is the built-in remediation for pattern.CrashLoop.
func CrashloopRunbook() Runbook {
	return Runbook{
		{Name: "inspect-pod-logs", Effect: effect.Observe},
		{Name: "rollback-deployment", Effect: effect.Mutate},
	}
}

// OomkillRunbook is the built-in remediation for pattern.OomKill.
func OomkillRunbook() Runbook {
	return Runbook{
		{Name: "inspect-memory-metrics", Effect: effect.Observe},
		{Name: "tune-memory-limits", Effect: effect.Mutate},
	}
}

// entry pairs a declared name with its runbook; Registry keeps entries in a
// slice so declaration order is preserved.
type entry struct {
	name    string
	runbook Runbook
}

// Registry holds the ordered set of named runbooks the planner selects
// from. It is safe for concurrent reads; writes (Register) are expected at
// startup only, following the thread-safe registry pattern used elsewhere
// in this codebase for configuration state shared across goroutines.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry builds a registry seeded with the built-in crashloop and
// oomkill runbooks, in that order.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register("crashloop_runbook", CrashloopRunbook())
	r.Register("oomkill_runbook", OomkillRunbook())
	return r
}

// Register appends a named runbook. Registering the same name twice keeps
// both entries; selection is first-declared-wins, so the earlier
// registration always takes priority.
func (r *Registry) Register(name string, rb Runbook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{name: name, runbook: rb})
}

// NamedRunbook pairs a registered runbook with its declared name.
type NamedRunbook struct {
	Name    string
	Runbook Runbook
}

// All returns a defensive copy of the registered (name, runbook) pairs in
// declaration order.
func (r *Registry) All() []NamedRunbook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NamedRunbook, len(r.entries))
	for i, e := range r.entries {
		out[i] = NamedRunbook{Name: e.name, Runbook: e.runbook}
	}
	return out
}

// AllActionNames returns the union of action names across every registered
// runbook, in declaration order with duplicates removed. This is the
// default whitelist handed to the LLM validator when no explicit action
// list is configured.
func (r *Registry) AllActionNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var names []string
	for _, e := range r.entries {
		for _, a := range e.runbook {
			if !seen[a.Name] {
				seen[a.Name] = true
				names = append(names, a.Name)
			}
		}
	}
	return names
}

// AllActions returns the union of ActionSchema values across every
// registered runbook, deduplicated by name in declaration order.
func (r *Registry) AllActions() []ActionSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var actions []ActionSchema
	for _, e := range r.entries {
		for _, a := range e.runbook {
			if !seen[a.Name] {
				seen[a.Name] = true
				actions = append(actions, a)
			}
		}
	}
	return actions
}

// Select picks the first registered runbook whose name, lowercased,
// contains the pattern's preferred substring ("crashloop" or "oomkill").
// pattern.Generic never selects a runbook.
func (r *Registry) Select(p pattern.Pattern) (name string, rb Runbook, ok bool) {
	var preferred string
	switch p {
	case pattern.CrashLoop:
		preferred = "crashloop"
	case pattern.OomKill:
		preferred = "oomkill"
	default:
		return "", nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if strings.Contains(strings.ToLower(e.name), preferred) {
			return e.name, e.runbook, true
		}
	}
	return "", nil, false
}
