package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    State
		to      State
		allowed bool
	}{
		{StatePending, StateApproved, true},
		{StatePending, StateEvaluating, true},
		{StateEvaluating, StatePending, true},
		{StateApproved, StateProcessing, true},
		{StateProcessing, StateShipped, true},
		{StateProcessing, StateReceived, true},
		{StateShipped, StateReceived, true},
		{StateReceived, StateComplete, true},
		{StateApproved, StateTimeout, false},
		{StatePending, StateReceived, false},
		{StateComplete, StateRejected, false},
		{StateRejected, StatePending, false},
		{StateTimeout, StatePending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestSweepableStates(t *testing.T) {
	excluded := []State{StateApproved, StateComplete, StateTimeout, StateShipped, StateReceived, StateRejected}
	for _, s := range SweepableStates() {
		assert.NotContains(t, excluded, s)
		assert.True(t, s.CanTransitionTo(StateTimeout), "sweep target must be reachable from %s", s)
	}
}

func TestState_IsDeleteRestricted(t *testing.T) {
	for _, s := range []State{StateComplete, StatePending, StateEvaluating, StateTimeout} {
		assert.True(t, s.IsDeleteRestricted(), s)
	}
	for _, s := range []State{StateApproved, StateProcessing, StateShipped, StateReceived, StateRejected} {
		assert.False(t, s.IsDeleteRestricted(), s)
	}
}

func TestScope(t *testing.T) {
	assert.True(t, ScopeOnward.IsValid())
	assert.False(t, ScopeOnward.IsImplemented())
	assert.True(t, ScopeInternal.IsImplemented())
	assert.False(t, Scope("").IsValid())
}
