package fsm

import (
	"sync"

	"github.com/enetx/g"
)

// slot owns one state's configuration and, while the state is live, its
// instance and buffered event payloads.
//
// The chain successor, interruption lists, reuse flag and constructor are
// written during registration only and read lock-free afterwards. The mutex
// guards the instance pointer, the stored parameters and the pending map.
// User code (constructors, OnFSMEvent) always runs with the mutex released,
// so an instance may re-enter the machine from inside its own constructor or
// event handler without deadlocking.
type slot[P any] struct {
	m     *FSM[P]
	id    State
	next  State
	reuse bool
	ctor  Constructor[P]

	whitelist g.Set[Event]
	blacklist g.Set[Event]
	deferlist g.Set[Event]

	mu       sync.Mutex
	instance any
	params   P
	pending  g.Map[Event, any]
}

func newSlot[P any](m *FSM[P], id State) *slot[P] {
	return &slot[P]{
		m:         m,
		id:        id,
		whitelist: g.NewSet[Event](),
		blacklist: g.NewSet[Event](),
		deferlist: g.NewSet[Event](),
		pending:   g.NewMap[Event, any](),
	}
}

// decide applies the interruption policy to an incoming event:
// a non-empty whitelist admits only its members, the blacklist drops,
// the deferlist postpones, anything else is accepted.
func (s *slot[P]) decide(event Event) verdict {
	switch {
	case s.whitelist.Len() != 0 && !s.whitelist.Contains(event):
		return verdictReject
	case s.blacklist.Contains(event):
		return verdictReject
	case s.deferlist.Contains(event):
		return verdictDefer
	default:
		return verdictAccept
	}
}

// buffer stores a payload under its event identity. A payload already
// buffered for the same event is overwritten.
func (s *slot[P]) buffer(event Event, payload any) {
	s.mu.Lock()
	s.pending.Set(event, payload)
	s.mu.Unlock()
}

func (s *slot[P]) setParams(params P) {
	s.mu.Lock()
	s.params = params
	s.mu.Unlock()
}

// enter makes the slot live: a stale instance is first torn down unless the
// slot is reusable, a missing instance is constructed from the stored
// parameters, and any payloads buffered before entry are dispatched.
func (s *slot[P]) enter() {
	s.mu.Lock()

	if s.instance != nil && !s.reuse {
		s.leaveLocked()
	}

	if s.instance == nil {
		ctor := s.ctor
		params := s.params
		s.mu.Unlock()

		var instance any
		if ctor != nil {
			instance = ctor(s.m, params)
		}

		s.mu.Lock()
		s.instance = instance
	}

	pending := s.pending.Len() != 0
	s.mu.Unlock()

	if pending {
		s.dispatch()
	}
}

// leave clears buffered payloads unconditionally and, unless the slot is
// reusable, drops the instance. Buffered work never survives a state exit.
func (s *slot[P]) leave() {
	s.mu.Lock()
	s.leaveLocked()
	s.mu.Unlock()
}

func (s *slot[P]) leaveLocked() {
	s.pending = g.NewMap[Event, any]()
	if !s.reuse {
		s.instance = nil
	}
}

// dispatch hands buffered payloads to the live instance. An instance
// without the EventHandler capability discards them instead.
func (s *slot[P]) dispatch() {
	s.mu.Lock()

	if s.instance == nil {
		s.mu.Unlock()
		return
	}

	handler, ok := s.instance.(EventHandler)
	if !ok {
		s.pending = g.NewMap[Event, any]()
		s.mu.Unlock()
		return
	}

	s.mu.Unlock()
	handler.OnFSMEvent()
}

func (s *slot[P]) hasEvents() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pending.Len() != 0
}

// reset tears the slot down at machine close, reuse flag notwithstanding.
func (s *slot[P]) reset() {
	s.mu.Lock()
	s.pending = g.NewMap[Event, any]()
	s.instance = nil
	s.mu.Unlock()
}
