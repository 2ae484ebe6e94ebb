package compiler

import (
	"github.com/stealthrocket/resumable/ir"
	"github.com/stealthrocket/resumable/lir"
)

const (
	stateField   = "_state"
	awaiterField = "_awaiter"
	awaiterLocal = "_aw"
	faultLocal   = "_fault"
	exitLabel    = "_exit"
)

// assemble builds the lowered procedure: its durable fields, its locals, and
// a body of the form:
//
//	try {
//		dispatch state [...]
//		<lowered body>
//		goto _exit
//	} catch _fault {
//		state = -2
//		fault _fault
//		leave
//	}
//	_exit:
//	state = -2
//	complete _ret
//
// Fields are laid out in a fixed order: the state field, the parameters,
// the hoisted variables, the pending slots, the spill slots and the awaiter.
func assemble(fn *ir.Func, body *ir.Block, tree *RegionTree, states *StateTable, spills *SpillPlan, roles map[string]lir.FieldRole) *lir.Procedure {
	l := &lowerer{
		fn:     fn,
		tree:   tree,
		states: states,
		spills: spills,
		proc:   &lir.Procedure{Name: fn.Name, States: make([]lir.StateInfo, states.Len())},
		fields: map[string]int{},
		locals: map[string]int{},
		exit:   exitLabel,
	}

	l.field(stateField, lir.RoleState, ir.Int)
	for _, p := range fn.Params {
		l.proc.Params = append(l.proc.Params, l.field(p.Name, lir.RoleParam, p.Type))
	}
	for _, v := range fn.Vars {
		if v.Hoisted {
			l.field(v.Name, lir.RoleHoisted, v.Type)
		}
	}
	for _, v := range fn.Vars {
		if role, ok := roles[v.Name]; ok && !v.Hoisted {
			l.field(v.Name, role, v.Type)
		}
	}
	for _, slot := range spills.Slots {
		l.slots = append(l.slots, l.field(slot.Name, lir.RoleValue, slot.Type))
	}
	if states.Len() > 0 {
		l.awaiterField = l.field(awaiterField, lir.RoleAwaiter, ir.Any)
	}

	for _, v := range fn.Vars {
		if _, durable := l.fields[v.Name]; !durable {
			l.local(v.Name, v.Type)
		}
	}
	if states.Len() > 0 {
		l.awaiterLocal = l.local(awaiterLocal, ir.Any)
	}
	fault := &lir.LocalRef{Index: l.local(faultLocal, ir.Exception)}

	inner := &seqBuilder{}
	l.block(body, inner)
	inner.add(&lir.Goto{Label: exitLabel})
	entry := &lir.Seq{List: append([]lir.Stmt{&lir.Switch{Cases: inner.cases, Total: true}}, inner.list...)}

	var result lir.Expr
	if fn.Lookup(returnVar) != nil {
		result = l.ref(returnVar)
	}

	l.proc.Body = &lir.Seq{List: []lir.Stmt{
		&lir.Try{
			Region: -1,
			Body:   entry,
			Handlers: []*lir.Handler{{
				Var: fault,
				Body: &lir.Seq{List: []lir.Stmt{
					lir.SetState(lir.RunningToCompletion),
					&lir.Fault{X: fault},
					&lir.Leave{},
				}},
			}},
		},
		&lir.Label{Name: exitLabel},
		lir.SetState(lir.RunningToCompletion),
		&lir.Complete{X: result},
	}}
	return l.proc
}
