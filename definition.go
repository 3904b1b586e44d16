package fsm

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Definition is a declarative description of a machine's wiring: chains,
// event routes, interruption lists and reuse flags. Constructors stay in
// code and are attached with RegisterState; the document only carries
// wiring, so one machine layout can be shipped as configuration.
type Definition struct {
	Chains [][]string              `yaml:"chains,omitempty"`
	States map[string]*StateConfig `yaml:"states"`
}

// StateConfig is the per-state wiring of a Definition.
type StateConfig struct {
	// Events routed to this state.
	Events []string `yaml:"events,omitempty"`

	Whitelist []string `yaml:"whitelist,omitempty"`
	Blacklist []string `yaml:"blacklist,omitempty"`
	Deferlist []string `yaml:"defer,omitempty"`

	Reuse bool `yaml:"reuse,omitempty"`
}

// ErrNoStates is returned by Validate when a definition declares no states.
var ErrNoStates = errors.New("fsm: definition declares no states")

// ParseDefinition unmarshals and validates a YAML definition document.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("fsm: parse definition: %w", err)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return &def, nil
}

// Validate checks the document shape: at least one declared state, chains of
// two or more declared states, and no event routed to two different states.
// Last-writer-wins routing is an engine property for imperative registration;
// in a declarative document a duplicate route is a mistake, not an override.
func (d *Definition) Validate() error {
	if len(d.States) == 0 {
		return ErrNoStates
	}

	for i, chain := range d.Chains {
		if len(chain) < 2 {
			return fmt.Errorf("fsm: chain %d needs at least two states", i)
		}

		for _, id := range chain {
			if _, ok := d.States[id]; !ok {
				return fmt.Errorf("fsm: chain %d references undeclared state %q", i, id)
			}
		}
	}

	owner := make(map[string]string)
	for id, sc := range d.States {
		if sc == nil {
			continue
		}

		for _, event := range sc.Events {
			if prev, ok := owner[event]; ok && prev != id {
				return fmt.Errorf("fsm: event %q routed to both %q and %q", event, prev, id)
			}
			owner[event] = id
		}
	}

	return nil
}

// Configure applies a validated definition's wiring to m. It is meant for
// the single-threaded setup phase, alongside the RegisterState calls that
// attach constructors.
func Configure[P any](m *FSM[P], def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	for _, chain := range def.Chains {
		m.RegisterChain(toStates(chain)...)
	}

	for id, sc := range def.States {
		state := State(id)
		m.RegisterState(state, nil)

		if sc == nil {
			continue
		}

		m.RegisterEvents(state, toEvents(sc.Events)...)
		m.Whitelist(state, toEvents(sc.Whitelist)...)
		m.Blacklist(state, toEvents(sc.Blacklist)...)
		m.Deferlist(state, toEvents(sc.Deferlist)...)

		if sc.Reuse {
			m.Reuse(state)
		}
	}

	return nil
}

func toStates(ids []string) []State {
	states := make([]State, len(ids))
	for i, id := range ids {
		states[i] = State(id)
	}

	return states
}

func toEvents(names []string) []Event {
	events := make([]Event, len(names))
	for i, name := range names {
		events[i] = Event(name)
	}

	return events
}
