// Package connstate implements the Connection State Machine: a small,
// explicit transition table validating the per-connection lifecycle
// closed → idle → active → preparing → committed/rolled-back → idle.
//
// Grounded on the Sink lifecycle shape in design notes §9 generalised
// to the connection's own (wider) event set, and on
// other_examples/hupe1980-vecgo__tx.go's explicit state-guard idiom
// (a small map-based transition table checked on every event rather
// than scattered if-chains).
package connstate

import "fmt"

// State is one of the connection's lifecycle states.
type State int

const (
	Closed State = iota
	Idle
	Active
	Preparing
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Preparing:
		return "preparing"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

// Event is one transition trigger a connection can receive.
type Event int

const (
	EventOpen Event = iota
	EventBegin
	EventPrepare
	EventCommit
	EventRollback
	EventClose
)

func (e Event) String() string {
	switch e {
	case EventOpen:
		return "open"
	case EventBegin:
		return "begin"
	case EventPrepare:
		return "prepare"
	case EventCommit:
		return "commit"
	case EventRollback:
		return "rollback"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// transitions maps (state, event) to the resulting state. Missing
// entries are illegal transitions.
var transitions = map[State]map[Event]State{
	Closed: {
		EventOpen: Idle,
	},
	Idle: {
		EventBegin: Active,
		EventClose: Closed,
	},
	Active: {
		EventPrepare:  Preparing,
		EventRollback: RolledBack,
		EventClose:    Closed,
	},
	Preparing: {
		EventCommit:   Committed,
		EventRollback: RolledBack,
		EventClose:    Closed,
	},
	Committed: {
		EventBegin: Active, // fallback edge "committed -> idle" collapses begin/idle into one hop
		EventClose: Closed,
	},
	RolledBack: {
		EventBegin: Active,
		EventClose: Closed,
	},
}

// ErrIllegalTransition is wrapped with the offending state and event by
// Machine.Fire.
type ErrIllegalTransition struct {
	From  State
	Event Event
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("connstate: illegal event %s in state %s", e.Event, e.From)
}

// Machine is one connection's current state. Not safe for concurrent
// use: a connection is single-owner, matching §5 "sinks and datasets
// are NOT thread-safe internally."
type Machine struct {
	state State
}

func New() *Machine {
	return &Machine{state: Closed}
}

func (m *Machine) State() State { return m.state }

// Fire applies event, returning ErrIllegalTransition if the current
// state has no edge for it. Committed and RolledBack auto-collapse to
// Idle on the *next* Begin per the fallback edges in §4.8; a caller that
// wants to observe Idle explicitly should treat Committed/RolledBack as
// "idle, transaction just ended" rather than firing anything further.
func (m *Machine) Fire(event Event) error {
	next, ok := transitions[m.state][event]
	if !ok {
		return &ErrIllegalTransition{From: m.state, Event: event}
	}
	m.state = next
	return nil
}

// Reset forces the machine back to Idle, used after a Committed or
// RolledBack connection settles without an explicit Begin.
func (m *Machine) Reset() {
	if m.state == Committed || m.state == RolledBack {
		m.state = Idle
	}
}
