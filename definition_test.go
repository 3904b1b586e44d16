package fsm_test

import (
	"errors"
	"testing"

	. "github.com/statechain/fsm"
)

const robotDefinition = `
chains:
  - [ready, build]
  - [clean, recharge]
states:
  ready: {}
  build: {}
  clean:
    events: [clean_cmd]
  recharge:
    blacklist: [clean_cmd]
    reuse: true
`

func TestDefinition_Parse(t *testing.T) {
	def, err := ParseDefinition([]byte(robotDefinition))
	assertNoError(t, err)
	assertEqual(t, len(def.States), 4)
	assertEqual(t, len(def.Chains), 2)
	assertTrue(t, def.States["recharge"].Reuse)
}

func TestDefinition_ParseInvalidYAML(t *testing.T) {
	_, err := ParseDefinition([]byte("{chains: ["))
	assertError(t, err)
}

func TestDefinition_ValidateNoStates(t *testing.T) {
	_, err := ParseDefinition([]byte("chains: []"))
	assertTrue(t, errors.Is(err, ErrNoStates))
}

func TestDefinition_ValidateShortChain(t *testing.T) {
	def := &Definition{
		Chains: [][]string{{"a"}},
		States: map[string]*StateConfig{"a": {}},
	}

	assertError(t, def.Validate())
}

func TestDefinition_ValidateUndeclaredChainMember(t *testing.T) {
	def := &Definition{
		Chains: [][]string{{"a", "b"}},
		States: map[string]*StateConfig{"a": {}},
	}

	assertError(t, def.Validate())
}

func TestDefinition_ValidateDuplicateRoute(t *testing.T) {
	def := &Definition{
		States: map[string]*StateConfig{
			"a": {Events: []string{"e"}},
			"b": {Events: []string{"e"}},
		},
	}

	assertError(t, def.Validate())
}

func TestDefinition_Configure(t *testing.T) {
	def, err := ParseDefinition([]byte(robotDefinition))
	assertNoError(t, err)

	m := New[string]()
	assertNoError(t, Configure(m, def))

	m.RegisterState("ready", func(m *FSM[string], arg string) any {
		m.Advance("ready", arg)
		return &idleState{}
	})
	m.RegisterState("recharge", func(*FSM[string], string) any {
		return &reactorState{fn: func() {}}
	})

	assertTrue(t, m.Registered("ready", "build", "clean", "recharge"))
	assertTrue(t, m.Routed("clean_cmd"))

	// Chain wiring took effect.
	m.Enter("ready", "")
	assertTrue(t, m.InState("build"))

	// Blacklist wiring took effect.
	m.Enter("recharge", "")
	m.Post("clean_cmd", 1, "")
	assertTrue(t, m.InState("recharge"))
	assertFalse(t, m.HasEvents("clean"))

	// Reuse wiring took effect.
	inst := m.Instance("recharge").Unwrap()
	m.Enter("ready", "")
	m.Enter("recharge", "")
	assertTrue(t, m.Instance("recharge").Unwrap() == inst)
}
