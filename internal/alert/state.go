package alert

import "fmt"

// State is the position of one alert within a batch run.
//
//	ELIGIBLE ──► EXECUTING ──► SUCCEEDED ──► NOTIFICATION_PENDING ──► NOTIFICATION_SENT
//	    │            │              (terminal when              │
//	    │            └──► FAILED     nothing is due)            └──► NOTIFICATION_FAILED
//	    └──► CANCELLED
//
// FAILED, CANCELLED, NOTIFICATION_SENT and NOTIFICATION_FAILED are terminal.
type State string

const (
	StateEligible            State = "ELIGIBLE"
	StateExecuting           State = "EXECUTING"
	StateSucceeded           State = "SUCCEEDED"
	StateFailed              State = "FAILED"
	StateNotificationPending State = "NOTIFICATION_PENDING"
	StateNotificationSent    State = "NOTIFICATION_SENT"
	StateNotificationFailed  State = "NOTIFICATION_FAILED"
	StateCancelled           State = "CANCELLED"
)

var validTransitions = map[State][]State{
	StateEligible:            {StateExecuting, StateCancelled},
	StateExecuting:           {StateSucceeded, StateFailed},
	StateSucceeded:           {StateNotificationPending},
	StateNotificationPending: {StateNotificationSent, StateNotificationFailed},
}

// ParseState converts a raw string to a State, returning an error for
// unknown values.
func ParseState(s string) (State, error) {
	st := State(s)
	switch st {
	case StateEligible, StateExecuting, StateSucceeded, StateFailed,
		StateNotificationPending, StateNotificationSent, StateNotificationFailed, StateCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown alert run state %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted.
func IsTransitionAllowed(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can follow s. SUCCEEDED
// is not terminal here even though a run may end in it.
func IsTerminal(s State) bool {
	_, ok := validTransitions[s]
	return !ok
}

// tracker walks one alert through the state graph.
type tracker struct{ state State }

func (t *tracker) move(to State) error {
	if !IsTransitionAllowed(t.state, to) {
		return fmt.Errorf("invalid alert run transition %s → %s", t.state, to)
	}
	t.state = to
	return nil
}
