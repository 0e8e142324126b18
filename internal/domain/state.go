package domain

// State represents the lifecycle state of a transfer order
type State string

const (
	StatePending    State = "PENDING"
	StateEvaluating State = "EVALUATING"
	StateRejected   State = "REJECTED"
	StateApproved   State = "APPROVED"
	StateProcessing State = "PROCESSING"
	StateShipped    State = "SHIPPED"
	StateReceived   State = "RECEIVED"
	StateComplete   State = "COMPLETE"
	StateTimeout    State = "TIMEOUT"
)

var transitions = map[State][]State{
	StatePending:    {StateEvaluating, StateApproved, StateRejected, StateTimeout},
	StateEvaluating: {StatePending, StateRejected, StateTimeout},
	StateApproved:   {StateProcessing, StateRejected},
	StateProcessing: {StateShipped, StateReceived, StateRejected, StateTimeout},
	StateShipped:    {StateReceived, StateRejected},
	StateReceived:   {StateComplete},
}

// IsValid checks if the state is one of the known states
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateEvaluating, StateRejected, StateApproved, StateProcessing,
		StateShipped, StateReceived, StateComplete, StateTimeout:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the transition table allows s -> target
func (s State) CanTransitionTo(target State) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further inventory movement may happen.
// RECEIVED still allows the archival close.
func (s State) IsTerminal() bool {
	switch s {
	case StateReceived, StateComplete, StateRejected, StateTimeout:
		return true
	default:
		return false
	}
}

// IsInTransit reports whether goods have left the source station
func (s State) IsInTransit() bool {
	return s == StateProcessing || s == StateShipped
}

// SweepableStates are the states the timeout sweep may move to TIMEOUT
func SweepableStates() []State {
	return []State{StatePending, StateEvaluating, StateProcessing}
}

// IsDeleteRestricted reports whether an order in s may never be deleted
func (s State) IsDeleteRestricted() bool {
	switch s {
	case StateComplete, StatePending, StateEvaluating, StateTimeout:
		return true
	default:
		return false
	}
}

// Scope describes who controls the counterparty inventory
type Scope string

const (
	ScopeInternal Scope = "internal"
	ScopeExternal Scope = "external"
	ScopeOnward   Scope = "onward"
)

// IsValid checks if the scope is recognised
func (s Scope) IsValid() bool {
	switch s {
	case ScopeInternal, ScopeExternal, ScopeOnward:
		return true
	default:
		return false
	}
}

// IsImplemented reports whether transitions are supported for the scope
func (s Scope) IsImplemented() bool {
	return s == ScopeInternal || s == ScopeExternal
}
