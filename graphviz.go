package fsm

import (
	"github.com/enetx/g"
	"github.com/enetx/g/cmp"
)

// ToDOT generates a DOT language string representation of the machine for
// visualization: chain links as solid edges, event routes as dashed edges
// from a posting point, and per-state policy annotations as tooltips.
// Output is deterministic for a given registration.
func (m *FSM[P]) ToDOT() g.String {
	b := g.NewBuilder()

	b.WriteString("digraph FSM {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString(
		"  node [shape=circle, style=filled, fillcolor=\"#f8f8f8\", color=\"#444444\", fontname=\"Helvetica\"];\n",
	)
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	b.WriteString("  __post [shape=point, style=invis];\n\n")

	m.mu.Lock()
	active := m.current
	m.mu.Unlock()

	ids := m.states.Keys()
	ids.SortBy(cmp.Cmp)

	for id := range ids.Iter() {
		s := m.states.Get(id).Some()

		var attrs g.Slice[g.String]
		attrs.Push(g.Format("label=\"{}\"", id))

		if s == active {
			attrs.Push("fillcolor=\"#90ee90\"", "shape=doublecircle")
		}

		var tooltips g.Slice[g.String]

		if s.reuse {
			tooltips.Push("reuse")
		}

		if s.whitelist.Len() != 0 {
			tooltips.Push(g.Format("whitelist: {}", eventNames(s.whitelist).Join(", ")))
		}

		if s.blacklist.Len() != 0 {
			tooltips.Push(g.Format("blacklist: {}", eventNames(s.blacklist).Join(", ")))
		}

		if s.deferlist.Len() != 0 {
			tooltips.Push(g.Format("defer: {}", eventNames(s.deferlist).Join(", ")))
		}

		if tooltips.NotEmpty() {
			attrs.Push(g.Format("tooltip=\"{}\"", tooltips.Join("\\n")))
		}

		b.WriteString(g.Format("  \"{}\" [{}];\n", id, attrs.Join(", ")))
	}

	b.WriteByte('\n')

	for id := range ids.Iter() {
		s := m.states.Get(id).Some()
		if s.next != "" {
			b.WriteString(g.Format("  \"{}\" -> \"{}\";\n", id, s.next))
		}
	}

	grouped := g.NewMap[State, g.Slice[g.String]]()

	for event, target := range m.routes.Iter() {
		grouped.Entry(target).
			AndModify(func(s *g.Slice[g.String]) { s.Push(g.String(event)) }).
			OrInsert(g.SliceOf(g.String(event)))
	}

	targets := grouped.Keys()
	targets.SortBy(cmp.Cmp)

	for target := range targets.Iter() {
		labels := grouped.Get(target).Some()
		labels.SortBy(cmp.Cmp)

		b.WriteString(g.Format("  __post -> \"{}\" [label=\" {} \", style=dashed];\n", target, labels.Join("\\n")))
	}

	b.WriteString("}\n")

	return b.String()
}

func eventNames(set g.Set[Event]) g.Slice[g.String] {
	var names g.Slice[g.String]
	for event := range set.Iter() {
		names.Push(g.String(event))
	}

	names.SortBy(cmp.Cmp)

	return names
}
