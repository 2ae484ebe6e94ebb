package compiler

import (
	"strconv"

	"github.com/stealthrocket/resumable/ir"
)

// SpillSlot is a durable field holding values of one type across
// suspensions.
type SpillSlot struct {
	Name string
	Type ir.Type
}

// Spill moves a variable to a slot before suspending, and back after
// resuming.
type Spill struct {
	Var  string
	Slot int
}

// SpillPlan lists, for every suspension point, the variables that must be
// moved to durable storage across the suspension, and the slots holding
// them.
type SpillPlan struct {
	Slots  []SpillSlot
	Spills map[*ir.AwaitStmt][]Spill
}

// PlanSpills computes the spill plan of a procedure whose handlers have been
// rewritten (see rewriteHandlers). durable reports the variables that
// already live in durable storage and never need to be spilled.
//
// A variable is spilled at a suspension point when it is live across it.
// Variables of the same type share a slot unless they are both spilled at
// the same suspension point; reuse disables the sharing entirely when false.
func PlanSpills(fn *ir.Func, body *ir.Block, durable func(*ir.Var) bool, reuse bool) *SpillPlan {
	l := analyzeLiveness(fn, body, func(v *ir.Var) bool { return !durable(v) })

	plan := &SpillPlan{Spills: map[*ir.AwaitStmt][]Spill{}}
	var awaits []*ir.AwaitStmt
	ir.Inspect(body, func(n ir.Node) bool {
		if a, ok := n.(*ir.AwaitStmt); ok {
			awaits = append(awaits, a)
		}
		return true
	})

	// Two variables interfere when they are spilled at the same suspension
	// point.
	live := make([][]int, len(awaits))
	interfere := make([]*bitSet, len(l.vars))
	spilled := newBitSet(len(l.vars))
	for i := range interfere {
		interfere[i] = newBitSet(len(l.vars))
	}
	for i, a := range awaits {
		live[i] = l.liveAcross(a)
		for _, v := range live[i] {
			spilled.set(v)
			for _, w := range live[i] {
				if v != w {
					interfere[v].set(w)
				}
			}
		}
	}

	// Greedy coloring, in declaration order.
	slotOf := make([]int, len(l.vars))
	for _, v := range spilled.slice() {
		slotOf[v] = -1
		if reuse {
			for s, slot := range plan.Slots {
				if slot.Type != l.vars[v].Type {
					continue
				}
				free := true
				for _, w := range interfere[v].slice() {
					if spilled.has(w) && slotOf[w] == s && w < v {
						free = false
						break
					}
				}
				if free {
					slotOf[v] = s
					break
				}
			}
		}
		if slotOf[v] < 0 {
			slotOf[v] = len(plan.Slots)
			plan.Slots = append(plan.Slots, SpillSlot{
				Name: "_s" + strconv.Itoa(len(plan.Slots)),
				Type: l.vars[v].Type,
			})
		}
	}

	for i, a := range awaits {
		spills := make([]Spill, 0, len(live[i]))
		for _, v := range live[i] {
			spills = append(spills, Spill{Var: l.vars[v].Name, Slot: slotOf[v]})
		}
		plan.Spills[a] = spills
	}
	return plan
}
