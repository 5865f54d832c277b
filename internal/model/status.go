package model

import "fmt"

type RunState string

const (
	StateIdle        RunState = "idle"
	StateEnumerating RunState = "enumerating"
	StateDispatching RunState = "dispatching"
	StateDraining    RunState = "draining"
	StateCompleted   RunState = "completed"
	StateCancelled   RunState = "cancelled"
)

var allowedTransitions = map[RunState]map[RunState]bool{
	StateIdle: {
		StateEnumerating: true,
	},
	StateEnumerating: {
		StateDispatching: true,
		StateDraining:    true, // cancelled before any dispatch
	},
	StateDispatching: {
		StateDraining: true,
	},
	StateDraining: {
		StateCompleted: true,
		StateCancelled: true,
	},
	StateCompleted: {},
	StateCancelled: {},
}

func IsKnownState(state RunState) bool {
	_, ok := allowedTransitions[state]
	return ok
}

func IsTerminal(state RunState) bool {
	return state == StateCompleted || state == StateCancelled
}

// IsActive reports whether a run in this state is doing work.
func IsActive(state RunState) bool {
	switch state {
	case StateEnumerating, StateDispatching, StateDraining:
		return true
	default:
		return false
	}
}

func CanTransition(from, to RunState) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionRunState(state *RunState, to RunState) error {
	from := *state
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid run state transition: %q -> %q", from, to)
	}
	*state = to
	return nil
}
