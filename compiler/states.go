package compiler

import (
	"strconv"

	"github.com/stealthrocket/resumable/ir"
	"github.com/stealthrocket/resumable/lir"
)

// StateTable maps the suspension points of a procedure to the states of its
// lowered form.
type StateTable struct {
	// Points lists the suspension points, indexed by state.
	Points []*SuspensionPoint

	states map[*ir.AwaitStmt]lir.State
}

// AllocateStates assigns states to the suspension points of a region tree:
// increasing integers starting at 0, in document order. The same tree always
// yields the same numbering.
func AllocateStates(tree *RegionTree) *StateTable {
	t := &StateTable{
		Points: tree.Points,
		states: make(map[*ir.AwaitStmt]lir.State, len(tree.Points)),
	}
	for i, p := range tree.Points {
		t.states[p.Await] = lir.State(i)
	}
	return t
}

// Len returns the number of suspension states.
func (t *StateTable) Len() int { return len(t.Points) }

// State returns the state of an await statement.
func (t *StateTable) State(a *ir.AwaitStmt) (lir.State, bool) {
	s, ok := t.states[a]
	return s, ok
}

// ResumeLabel returns the label at which the lowered procedure resumes in
// state s.
func (t *StateTable) ResumeLabel(s lir.State) string {
	return "_r" + strconv.Itoa(int(s))
}

// Dispatch returns the dispatch table: the resume label of every state.
func (t *StateTable) Dispatch() map[lir.State]string {
	m := make(map[lir.State]string, len(t.Points))
	for i := range t.Points {
		s := lir.State(i)
		m[s] = t.ResumeLabel(s)
	}
	return m
}
