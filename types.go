package fsm

import "github.com/enetx/g"

type (
	// State identifies one state slot within a machine.
	State g.String
	// Event identifies one kind of event payload.
	Event g.String

	// Constructor builds a state instance when its slot is entered.
	// It receives the owning machine, so the instance can call back into
	// Advance, Post or TakeEvent, and the machine's shared parameter record.
	Constructor[P any] func(m *FSM[P], params P) any
)

// EventHandler is the capability the engine looks for on a state instance
// whenever the instance's slot holds buffered payloads. Instances that do
// not implement it have their buffered payloads silently discarded.
type EventHandler interface {
	OnFSMEvent()
}

// verdict is the interruption policy's decision for an incoming event.
type verdict int

const (
	verdictReject verdict = iota // drop the event, no side effects
	verdictDefer                 // buffer on the target, transition later
	verdictAccept                // transition now
)
