// Package effect classifies the side-effect severity of actions the agent
// can take, and derives recovery policy and planner cost from that
// classification. Effect is a sum type rather than a boolean flag because
// downstream decisions (retry policy, backtrackability, plan cost) all
// branch on it.
package effect

// Effect orders operations by the severity of their side effects.
type Effect string

const (
	// Pure has no side effects. Safe to retry, reorder, cache.
	Pure Effect = "pure"
	// Observe reads external state. Idempotent but results may differ.
	Observe Effect = "observe"
	// Mutate changes external state. Can be undone via compensation.
	Mutate Effect = "mutate"
	// Irreversible cannot be undone. A commitment point.
	Irreversible Effect = "irreversible"
)

// IsValid reports whether e is one of the four declared effect levels.
func (e Effect) IsValid() bool {
	switch e {
	case Pure, Observe, Mutate, Irreversible:
		return true
	default:
		return false
	}
}

// rank gives the total order Pure < Observe < Mutate < Irreversible.
func (e Effect) rank() int {
	switch e {
	case Pure:
		return 0
	case Observe:
		return 1
	case Mutate:
		return 2
	case Irreversible:
		return 3
	default:
		return -1
	}
}

// Less reports whether e is strictly less severe than other.
func (e Effect) Less(other Effect) bool {
	return e.rank() < other.rank()
}

// Recovery is the strategy for handling a failed step, derived from Effect.
type Recovery string

const (
	// Retry means the step is safe to re-execute as-is.
	Retry Recovery = "retry"
	// CheckAndRetry means external state must be verified before retrying.
	CheckAndRetry Recovery = "check_and_retry"
	// ManualReview means the step requires human review before any further action.
	ManualReview Recovery = "manual_review"
)

// Recovery derives the recovery strategy for a step carrying this effect.
func (e Effect) Recovery() Recovery {
	switch e {
	case Pure, Observe:
		return Retry
	case Mutate:
		return CheckAndRetry
	case Irreversible:
		return ManualReview
	default:
		return ManualReview
	}
}

// Backtrackable reports whether the planner may safely backtrack past a step
// with this effect. False only for Irreversible.
func (e Effect) Backtrackable() bool {
	return e != Irreversible
}

// CostWeight is the planner cost multiplier for a step with this effect;
// plans with fewer, less severe effects should be preferred.
func (e Effect) CostWeight() int {
	switch e {
	case Pure:
		return 1
	case Observe:
		return 2
	case Mutate:
		return 10
	case Irreversible:
		return 100
	default:
		return 100
	}
}
