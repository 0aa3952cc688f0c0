package pipeline

import "fmt"

// State is a step of a single run
type State string

const (
	StateReceived  State = "received"
	StateParsed    State = "parsed"
	StateValidated State = "validated"
	StateFetched   State = "fetched"
	StateExecuted  State = "executed"
	StateResponded State = "responded"
	StateFailed    State = "failed"
)

// transitions is linear; every non-terminal state may also fail.
var transitions = map[State]State{
	StateReceived:  StateParsed,
	StateParsed:    StateValidated,
	StateValidated: StateFetched,
	StateFetched:   StateExecuted,
	StateExecuted:  StateResponded,
}

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return s == StateResponded || s == StateFailed
}

// CanTransition reports whether a run may move from s to next
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	return next == StateFailed || transitions[s] == next
}

// machine tracks the state of one run
type machine struct {
	state State
	trail []State
}

func newMachine() *machine {
	return &machine{state: StateReceived, trail: []State{StateReceived}}
}

func (m *machine) advance(next State) error {
	if !m.state.CanTransition(next) {
		return fmt.Errorf("invalid pipeline transition %s -> %s", m.state, next)
	}
	m.state = next
	m.trail = append(m.trail, next)
	return nil
}
