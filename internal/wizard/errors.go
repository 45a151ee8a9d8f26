package wizard

import "fmt"

// ErrUnknownStep indicates a step name outside the fixed sequence.
type ErrUnknownStep struct {
	Step string
}

func (e *ErrUnknownStep) Error() string {
	return fmt.Sprintf("unknown wizard step %q", e.Step)
}

// ErrInvalidStep indicates a navigation request from a stale client whose
// view of the current step no longer matches the state.
type ErrInvalidStep struct {
	From    string
	Current string
}

func (e *ErrInvalidStep) Error() string {
	return fmt.Sprintf("cannot advance from %q: current step is %q", e.From, e.Current)
}
