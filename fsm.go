// Package fsm provides a generic, thread-safe, event-driven finite state
// machine engine. States are registered under string identities, wired into
// chains that auto-advance on voluntary step-down, and given per-state
// interruption policies (whitelist, blacklist, deferlist) that decide whether
// an incoming event preempts the active state, is postponed until it steps
// down, or is dropped. It is built with types and utilities from the
// github.com/enetx/g library.
//
// All operations are synchronous and run on the calling thread; a state's
// constructor or event handler may call back into the machine (for example
// Advance from inside a constructor) without deadlocking, because the engine
// never holds a lock while running user code. The active identity is swapped
// under the machine's lock before enter/leave side effects run, so a
// concurrent reader can briefly observe the new identity while the new
// instance is still being constructed.
package fsm

import (
	"sync"

	"github.com/enetx/g"
)

// FSM is a state machine whose states all share one construction parameter
// record of type P, supplied on every Enter, Advance and Post call.
//
// Registration (RegisterState, RegisterChain, RegisterEvents, the list
// setters and Reuse) is single-threaded setup; once concurrent operation
// begins only Enter, Advance, Post, the read accessors and Close may be
// called.
type FSM[P any] struct {
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup

	current  *slot[P]
	deferred g.Slice[State]
	states   g.Map[State, *slot[P]]
	routes   g.Map[Event, State]
}

// New creates an empty machine.
func New[P any]() *FSM[P] {
	return &FSM[P]{
		states: g.NewMap[State, *slot[P]](),
		routes: g.NewMap[Event, State](),
	}
}

func (m *FSM[P]) ensure(id State) *slot[P] {
	if s := m.states.Get(id); s.IsSome() {
		return s.Some()
	}

	s := newSlot(m, id)
	m.states.Set(id, s)

	return s
}

// RegisterState registers a state under id. Registration is idempotent: a
// second call for the same identity is a no-op, except that it attaches the
// constructor to a slot previously created implicitly by a chain, route or
// list registration.
func (m *FSM[P]) RegisterState(id State, ctor Constructor[P]) *FSM[P] {
	s := m.ensure(id)
	if s.ctor == nil {
		s.ctor = ctor
	}

	return m
}

// RegisterChain links the given states into a chain: each one's successor is
// the next in sequence, the last has none. States not yet registered are
// created implicitly; attach their constructors with RegisterState.
func (m *FSM[P]) RegisterChain(ids ...State) *FSM[P] {
	var prev *slot[P]

	for _, id := range ids {
		s := m.ensure(id)
		if prev != nil {
			prev.next = id
		}
		prev = s
	}

	return m
}

// RegisterEvents routes the given events to target. The last registration
// wins per event identity. The target is registered implicitly if needed.
func (m *FSM[P]) RegisterEvents(target State, events ...Event) *FSM[P] {
	m.ensure(target)
	for _, event := range events {
		m.routes.Set(event, target)
	}

	return m
}

// Whitelist restricts which events may interrupt id while it is active:
// once non-empty, only listed events pass the interruption policy.
func (m *FSM[P]) Whitelist(id State, events ...Event) *FSM[P] {
	s := m.ensure(id)
	for _, event := range events {
		s.whitelist.Insert(event)
	}

	return m
}

// Blacklist marks events that may never interrupt id; they are dropped
// without side effects while id is active.
func (m *FSM[P]) Blacklist(id State, events ...Event) *FSM[P] {
	s := m.ensure(id)
	for _, event := range events {
		s.blacklist.Insert(event)
	}

	return m
}

// Deferlist marks events that do not interrupt id but are postponed: their
// payload is buffered on the routed target, which becomes the destination of
// id's next voluntary Advance, ahead of the chain successor.
func (m *FSM[P]) Deferlist(id State, events ...Event) *FSM[P] {
	s := m.ensure(id)
	for _, event := range events {
		s.deferlist.Insert(event)
	}

	return m
}

// Reuse marks states whose instance survives leave. A reused instance keeps
// its internal state across exits, but its buffered payloads are still
// cleared on every leave.
func (m *FSM[P]) Reuse(ids ...State) *FSM[P] {
	for _, id := range ids {
		m.ensure(id).reuse = true
	}

	return m
}

// Enter transitions to id unconditionally: whatever is active is left and id
// is entered with the given parameters. Entering the already active state,
// an unknown identity or a closed machine is a no-op.
func (m *FSM[P]) Enter(id State, params P) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return
	}

	found := m.states.Get(id)
	if found.IsNone() {
		m.mu.Unlock()
		return
	}

	target := found.Some()
	old := m.current
	if old == target {
		m.mu.Unlock()
		return
	}

	m.current = target
	m.inflight.Add(1)
	m.mu.Unlock()
	defer m.inflight.Done()

	if old != nil {
		old.leave()
	}

	target.setParams(params)
	target.enter()
}

// Advance is the voluntary step-down, called from within a state's own
// logic. It is a no-op unless self is the currently active identity, so a
// stale call from an instance that has already been superseded is discarded.
// The destination is the front of the deferred-target queue if any,
// otherwise the caller's chain successor; with neither, nothing happens.
func (m *FSM[P]) Advance(self State, params P) {
	m.mu.Lock()

	if m.closed || m.current == nil || m.current.id != self {
		m.mu.Unlock()
		return
	}

	old := m.current

	var dest State
	switch {
	case m.deferred.Len() != 0:
		dest = m.deferred[0]
		m.deferred = m.deferred[1:]
	case old.next != "":
		dest = old.next
	default:
		m.mu.Unlock()
		return
	}

	found := m.states.Get(dest)
	if found.IsNone() {
		m.mu.Unlock()
		return
	}

	target := found.Some()
	m.current = target
	if target == old {
		m.mu.Unlock()
		return
	}

	m.inflight.Add(1)
	m.mu.Unlock()
	defer m.inflight.Done()

	old.leave()
	target.setParams(params)
	target.enter()
}

// Post delivers an event. If the event is routed to the currently active
// identity, or not routed at all, the payload is buffered on the active slot
// and dispatched to it without a transition. Otherwise the active state's
// interruption policy decides: accepted events transition to the routed
// target with the payload buffered there, deferred events buffer the payload
// and queue the target for the next Advance, rejected events are dropped.
// With no active state, any routed event transitions immediately; an
// unrouted event with no active state is a no-op.
func (m *FSM[P]) Post(event Event, payload any, params P) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return
	}

	route := m.routes.Get(event)
	active := m.current

	if route.IsNone() && active == nil {
		m.mu.Unlock()
		return
	}

	if active != nil && (route.IsNone() || route.Some() == active.id) {
		active.buffer(event, payload)
		m.inflight.Add(1)
		m.mu.Unlock()
		defer m.inflight.Done()

		active.dispatch()
		return
	}

	dest := route.Some()
	found := m.states.Get(dest)
	if found.IsNone() {
		m.mu.Unlock()
		return
	}

	target := found.Some()

	code := verdictAccept
	if active != nil {
		code = active.decide(event)
	}

	if code != verdictReject {
		target.buffer(event, payload)
	}
	if code == verdictDefer {
		m.deferred.Push(dest)
	}
	if code != verdictAccept {
		m.mu.Unlock()
		return
	}

	m.current = target
	m.inflight.Add(1)
	m.mu.Unlock()
	defer m.inflight.Done()

	if active != nil {
		active.leave()
	}

	target.setParams(params)
	target.enter()
}

// Active returns the currently active identity, if any.
func (m *FSM[P]) Active() g.Option[State] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return g.None[State]()
	}

	return g.Some(m.current.id)
}

// InState reports whether id is the currently active identity.
func (m *FSM[P]) InState(id State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current != nil && m.current.id == id
}

// Instance returns the live instance owned by id's slot, if any.
func (m *FSM[P]) Instance(id State) g.Option[any] {
	found := m.states.Get(id)
	if found.IsNone() {
		return g.None[any]()
	}

	s := found.Some()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.instance == nil {
		return g.None[any]()
	}

	return g.Some(s.instance)
}

// HasEvents reports whether id's slot holds buffered payloads.
func (m *FSM[P]) HasEvents(id State) bool {
	found := m.states.Get(id)
	if found.IsNone() {
		return false
	}

	return found.Some().hasEvents()
}

// Registered reports whether every given identity has a slot.
func (m *FSM[P]) Registered(ids ...State) bool {
	for _, id := range ids {
		if !m.states.Contains(id) {
			return false
		}
	}

	return true
}

// Routed reports whether every given event has a registered target.
func (m *FSM[P]) Routed(events ...Event) bool {
	for _, event := range events {
		if !m.routes.Contains(event) {
			return false
		}
	}

	return true
}

// TakeEvent removes and returns the payload buffered for event on id's slot.
// It returns None when no payload is buffered, and also when a payload is
// buffered but its concrete type is not T; in the latter case the mismatched
// entry stays buffered.
func TakeEvent[T any, P any](m *FSM[P], id State, event Event) g.Option[T] {
	found := m.states.Get(id)
	if found.IsNone() {
		return g.None[T]()
	}

	s := found.Some()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.pending.Get(event)
	if stored.IsNone() {
		return g.None[T]()
	}

	payload, ok := stored.Some().(T)
	if !ok {
		return g.None[T]()
	}

	s.pending.Delete(event)

	return g.Some(payload)
}

// Close finalizes the machine: the active identity is neutralized so that
// in-flight and later operations observe end-of-life and no-op, already
// running operations are waited out, and every slot is torn down. Close is
// idempotent. It must not be called from inside a state's constructor or
// event handler.
func (m *FSM[P]) Close() {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return
	}

	m.closed = true
	m.current = nil
	m.deferred = nil
	m.mu.Unlock()

	m.inflight.Wait()

	for _, s := range m.states.Iter() {
		s.reset()
	}
}
