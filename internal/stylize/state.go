package stylize

// State is the lifecycle stage of a Run.
type State int

// Run states. Converged, BudgetExhausted, Failed and Canceled are terminal.
const (
	StateNew State = iota
	StateInitialized
	StateRunning
	StateConverged
	StateBudgetExhausted
	StateFailed
	StateCanceled
)

var stateNames = [...]string{
	StateNew:             "new",
	StateInitialized:     "initialized",
	StateRunning:         "running",
	StateConverged:       "converged",
	StateBudgetExhausted: "budget_exhausted",
	StateFailed:          "failed",
	StateCanceled:        "canceled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further iterations can run.
func (s State) Terminal() bool {
	return s >= StateConverged
}

// Succeeded reports whether the result image is a finished stylization.
func (s State) Succeeded() bool {
	return s == StateConverged || s == StateBudgetExhausted
}
