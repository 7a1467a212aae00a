package domain

// State is the observable state of a long task's promotion state machine.
type State int

const (
	// Idle: neither a delayed promotion is scheduled nor is the long-task
	// token held.
	Idle State = iota
	// Pending: a delayed promotion is scheduled but has not yet acquired
	// the long-task token.
	Pending
	// Promoted: the long-task token is held.
	Promoted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Promoted:
		return "promoted"
	default:
		return "unknown"
	}
}
