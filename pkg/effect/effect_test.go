package effect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPureIsRetryable(t *testing.T) {
	assert.Equal(t, Retry, Pure.Recovery())
	assert.True(t, Pure.Backtrackable())
}

func TestIrreversibleRequiresReview(t *testing.T) {
	assert.Equal(t, ManualReview, Irreversible.Recovery())
	assert.False(t, Irreversible.Backtrackable())
}

func TestCostOrdering(t *testing.T) {
	assert.Less(t, Pure.CostWeight(), Observe.CostWeight())
	assert.Less(t, Observe.CostWeight(), Mutate.CostWeight())
	assert.Less(t, Mutate.CostWeight(), Irreversible.CostWeight())
}

func TestTotalOrder(t *testing.T) {
	ordered := []Effect{Pure, Observe, Mutate, Irreversible}
	for i := range ordered {
		for j := i + 1; j < len(ordered); j++ {
			assert.True(t, ordered[i].Less(ordered[j]), "%v should be less than %v", ordered[i], ordered[j])
		}
	}
}

func TestIsValid(t *testing.T) {
	for _, e := range []Effect{Pure, Observe, Mutate, Irreversible} {
		assert.True(t, e.IsValid())
	}
	assert.False(t, Effect("bogus").IsValid())
}
