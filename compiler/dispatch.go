package compiler

import (
	"fmt"
	"strconv"

	"github.com/stealthrocket/resumable/ir"
	"github.com/stealthrocket/resumable/lir"
)

// lowerer turns a handler-rewritten statement tree into the body of a
// lowered procedure.
//
// Structured control flow (blocks, conditionals, loops) is flattened into
// labels and jumps within the current sequence. Only protected regions open
// a nested sequence, since they are the only constructs a backend has to
// keep as native blocks.
//
// The dispatch mechanism is used when resuming: each sequence containing
// resume points starts with a switch on the state field. A case either
// targets the resume label of a state directly, or the label placed right
// before a nested protected region, which is re-entered and dispatches
// again. Protected regions are thus re-entered outward-in, and the switch
// values funnel down to the innermost region still active for the state.
type lowerer struct {
	fn     *ir.Func
	tree   *RegionTree
	states *StateTable
	spills *SpillPlan
	proc   *lir.Procedure

	fields   map[string]int
	locals   map[string]int
	slots    []int // field of each spill slot
	override map[string]lir.Ref

	awaiterField int
	awaiterLocal int
	exit         string
	labels       int

	// native lists the regions of the native protected regions enclosing
	// the statement being lowered, innermost last.
	native []RegionID
}

// seqBuilder accumulates the statements of a sequence and the dispatch
// cases of the states resumed within it.
type seqBuilder struct {
	list  []lir.Stmt
	cases []lir.Case
}

func (sb *seqBuilder) add(stmts ...lir.Stmt) { sb.list = append(sb.list, stmts...) }

// finish returns the sequence, starting with its dispatch switch when it
// contains resume points.
func (sb *seqBuilder) finish() *lir.Seq {
	if len(sb.cases) == 0 {
		return &lir.Seq{List: sb.list}
	}
	return &lir.Seq{List: append([]lir.Stmt{&lir.Switch{Cases: sb.cases}}, sb.list...)}
}

func (l *lowerer) newLabel(prefix string) string {
	name := prefix + strconv.Itoa(l.labels)
	l.labels++
	return name
}

func (l *lowerer) field(name string, role lir.FieldRole, t ir.Type) int {
	l.proc.Fields = append(l.proc.Fields, lir.Field{Name: name, Role: role, Type: t})
	i := len(l.proc.Fields) - 1
	l.fields[name] = i
	return i
}

func (l *lowerer) local(name string, t ir.Type) int {
	l.proc.Locals = append(l.proc.Locals, lir.Local{Name: name, Type: t})
	i := len(l.proc.Locals) - 1
	l.locals[name] = i
	return i
}

// ref returns the storage location of a variable.
func (l *lowerer) ref(name string) lir.Ref {
	if r, ok := l.override[name]; ok {
		return r
	}
	if i, ok := l.fields[name]; ok {
		return &lir.FieldRef{Index: i}
	}
	if i, ok := l.locals[name]; ok {
		return &lir.LocalRef{Index: i}
	}
	internalf(PhaseLower, fmt.Sprintf("variable %q has no storage", name))
	return nil
}

func (l *lowerer) expr(e ir.Expr) lir.Expr {
	switch e := e.(type) {
	case nil:
		return nil
	case *ir.Const:
		return &lir.Const{Value: e.Value}
	case *ir.Local:
		return l.ref(e.Name)
	case *ir.Call:
		args := make([]lir.Expr, len(e.Args))
		for i, arg := range e.Args {
			args[i] = l.expr(arg)
		}
		return &lir.Call{Fn: e.Fn, Args: args}
	case *ir.Binary:
		return &lir.Binary{Op: e.Op, X: l.expr(e.X), Y: l.expr(e.Y)}
	case *ir.Not:
		return &lir.Not{X: l.expr(e.X)}
	}
	internalf(PhaseLower, fmt.Sprintf("unexpected expression %s", e))
	return nil
}

func (l *lowerer) site(s ir.Stmt) string {
	return l.fn.Name + ": " + ir.Format(s)
}

func (l *lowerer) block(b *ir.Block, sb *seqBuilder) {
	if b == nil {
		return
	}
	for _, s := range b.List {
		l.stmt(s, sb)
	}
}

func (l *lowerer) stmt(s ir.Stmt, sb *seqBuilder) {
	switch s := s.(type) {
	case *ir.Block:
		l.block(s, sb)

	case *ir.If:
		end := l.newLabel("_endif")
		if s.Else == nil {
			sb.add(&lir.CondGoto{Cond: &lir.Not{X: l.expr(s.Cond)}, Label: end})
			l.block(s.Then, sb)
		} else {
			els := l.newLabel("_else")
			sb.add(&lir.CondGoto{Cond: &lir.Not{X: l.expr(s.Cond)}, Label: els})
			l.block(s.Then, sb)
			sb.add(&lir.Goto{Label: end}, &lir.Label{Name: els})
			l.block(s.Else, sb)
		}
		sb.add(&lir.Label{Name: end})

	case *ir.Loop:
		sb.add(&lir.Label{Name: s.Label})
		l.block(s.Body, sb)
		sb.add(&lir.Goto{Label: s.Label}, &lir.Label{Name: breakLabel(s.Label)})

	case *ir.Try:
		l.try(s, sb)

	case *ir.Labeled:
		sb.add(&lir.Label{Name: s.Label})

	case *ir.Assign:
		sb.add(&lir.Assign{Dst: l.ref(s.Var), X: l.expr(s.X)})

	case *ir.ExprStmt:
		sb.add(&lir.Eval{X: l.expr(s.X)})

	case *ir.AwaitStmt:
		l.await(s, sb)

	case *ir.Throw:
		sb.add(&lir.Throw{X: l.expr(s.X), Site: l.site(s)})

	case *ir.Rethrow:
		sb.add(&lir.Rethrow{X: l.expr(s.X), Site: l.site(s)})

	case *ir.Return:
		sb.add(&lir.Goto{Label: l.exit})

	case *ir.Break:
		sb.add(&lir.Goto{Label: breakLabel(s.Label)})

	case *ir.Continue:
		sb.add(&lir.Goto{Label: s.Label})

	case *ir.Goto:
		sb.add(&lir.Goto{Label: s.Label})

	case *ir.EndFinally:
		l.endFinally(s, sb)

	default:
		internalf(PhaseLower, fmt.Sprintf("unexpected statement %T", s))
	}
}

func breakLabel(loop string) string { return loop + ".end" }

// region returns the id of the source region a protected region derives
// from.
func (l *lowerer) region(t *ir.Try) RegionID {
	r := l.tree.Lookup(origin(t))
	if r == nil || r.Kind != RegionTry {
		internalf(PhaseLower, "protected region missing from the region tree")
	}
	return r.ID
}

// unprotected lowers a block which must not contain resume points: handler
// bodies, native finally blocks and deferred branches.
func (l *lowerer) unprotected(b *ir.Block, sb *seqBuilder) *lir.Seq {
	if sb == nil {
		sb = &seqBuilder{}
	}
	l.block(b, sb)
	if len(sb.cases) != 0 {
		internalf(PhaseLower, "suspension point left in a native handler")
	}
	return sb.finish()
}

func (l *lowerer) try(t *ir.Try, sb *seqBuilder) {
	id := l.region(t)
	lt := &lir.Try{Region: int(id)}

	body := &seqBuilder{}
	l.native = append(l.native, id)
	l.block(t.Body, body)
	l.native = l.native[:len(l.native)-1]
	lt.Body = body.finish()

	for _, c := range t.Catches {
		h := &lir.Handler{Type: c.Type}
		hb := &seqBuilder{}
		if c.Var != "" {
			switch ref := l.ref(c.Var).(type) {
			case *lir.LocalRef:
				h.Var = ref
			case *lir.FieldRef:
				// The exception is bound to a local, and copied to the
				// durable variable before the handler body runs.
				tmp := &lir.LocalRef{Index: l.local(l.newLabel("_h"), ir.Exception)}
				h.Var = tmp
				l.override = map[string]lir.Ref{c.Var: tmp}
				h.Filter = l.expr(c.Filter)
				l.override = nil
				hb.add(&lir.Assign{Dst: ref, X: tmp})
			}
		}
		if h.Filter == nil && c.Filter != nil {
			h.Filter = l.expr(c.Filter)
		}
		h.Body = l.unprotected(c.Body, hb)
		lt.Handlers = append(lt.Handlers, h)
	}

	if t.Finally != nil {
		fb := &seqBuilder{}
		var skip string
		if len(body.cases) > 0 {
			// Leaving the region to suspend must not run the finally block.
			skip = l.newLabel("_skip")
			fb.add(&lir.CondGoto{Cond: &lir.Suspending{}, Label: skip})
		}
		l.block(t.Finally, fb)
		if skip != "" {
			fb.add(&lir.Label{Name: skip})
		}
		lt.Finally = l.unprotected(nil, fb)
	}

	if len(body.cases) > 0 {
		entry := l.newLabel("_try")
		sb.add(&lir.Label{Name: entry})
		for _, c := range body.cases {
			sb.cases = append(sb.cases, lir.Case{State: c.State, Label: entry})
		}
	}
	sb.add(lt)
}

// await lowers a suspension point:
//
//	_aw = X
//	if completed(_aw) goto _done
//	state = s
//	@slot = v ...            (spills)
//	@awaiter = _aw
//	suspend s _aw
//	_r<s>:
//	_aw = @awaiter
//	@awaiter = nil
//	state = -1
//	v = @slot ...            (restores)
//	_done:
//	dst = result(_aw)
func (l *lowerer) await(a *ir.AwaitStmt, sb *seqBuilder) {
	s, ok := l.states.State(a)
	if !ok {
		internalf(PhaseLower, "suspension point without a state")
	}
	point := l.states.Points[s]
	l.checkActive(s, point)

	aw := &lir.LocalRef{Index: l.awaiterLocal}
	awField := &lir.FieldRef{Index: l.awaiterField}
	resume := l.states.ResumeLabel(s)
	done := "_done" + strconv.Itoa(int(s))

	info := lir.StateInfo{State: s, Resume: resume}
	for _, id := range point.Active {
		info.Active = append(info.Active, int(id))
	}

	sb.add(
		&lir.Assign{Dst: aw, X: l.expr(a.X)},
		&lir.CondGoto{Cond: &lir.Completed{X: aw}, Label: done},
		lir.SetState(s),
	)
	spills := l.spills.Spills[a]
	for _, sp := range spills {
		local, ok := l.ref(sp.Var).(*lir.LocalRef)
		if !ok {
			internalf(PhaseLower, fmt.Sprintf("spilled variable %q is durable", sp.Var))
		}
		field := l.slots[sp.Slot]
		info.Spills = append(info.Spills, lir.Spill{Local: local.Index, Field: field})
		sb.add(&lir.Assign{Dst: &lir.FieldRef{Index: field}, X: local})
	}
	sb.add(
		&lir.Assign{Dst: awField, X: aw},
		&lir.Suspend{State: s, Awaiter: aw},
		&lir.Label{Name: resume},
		&lir.Assign{Dst: aw, X: awField},
		&lir.Assign{Dst: awField, X: &lir.Const{}},
		lir.SetState(lir.NotStarted),
	)
	for _, sp := range info.Spills {
		sb.add(&lir.Assign{Dst: &lir.LocalRef{Index: sp.Local}, X: &lir.FieldRef{Index: sp.Field}})
	}
	sb.add(&lir.Label{Name: done})
	if a.Var != "" {
		sb.add(&lir.Assign{Dst: l.ref(a.Var), X: &lir.Result{X: aw}})
	} else {
		sb.add(&lir.Eval{X: &lir.Result{X: aw}})
	}

	sb.cases = append(sb.cases, lir.Case{State: s, Label: resume})
	l.proc.States[s] = info
}

// checkActive verifies that the native protected regions enclosing a
// suspension point are among the regions active at that point, in the same
// order. A mismatch means the handler rewrite and the state allocation
// disagree on the shape of the procedure.
func (l *lowerer) checkActive(s lir.State, p *SuspensionPoint) {
	j := 0
	for i := len(l.native) - 1; i >= 0; i-- {
		if i < len(l.native)-1 && l.native[i] == l.native[i+1] {
			continue // a split region is entered twice
		}
		for j < len(p.Active) && p.Active[j] != l.native[i] {
			j++
		}
		if j == len(p.Active) {
			internalf(PhaseLower, fmt.Sprintf("region stack mismatch at state %d: native %v, active %v", s, l.native, p.Active))
		}
		j++
	}
}

// endFinally lowers the completion of a finally block. Deferred branches
// which lower to a single jump are targeted directly, the others are
// emitted after the statement.
func (l *lowerer) endFinally(s *ir.EndFinally, sb *seqBuilder) {
	exception, ok1 := l.ref(s.Exception).(*lir.FieldRef)
	branch, ok2 := l.ref(s.Branch).(*lir.FieldRef)
	if !ok1 || !ok2 {
		internalf(PhaseLower, "pending slots are not durable")
	}
	end := &lir.EndFinally{Region: int(l.region(s.Region)), Exception: exception, Branch: branch}

	var tail []lir.Stmt
	for _, b := range s.Branches {
		bb := &seqBuilder{}
		l.stmt(b.Stmt, bb)
		if len(bb.cases) != 0 {
			internalf(PhaseLower, "suspension point in a deferred branch")
		}
		if len(bb.list) == 1 {
			if g, ok := bb.list[0].(*lir.Goto); ok {
				end.Cases = append(end.Cases, lir.BranchCase{Tag: b.Tag, Kind: b.Kind, Label: g.Label})
				continue
			}
		}
		label := l.newLabel("_pending")
		end.Cases = append(end.Cases, lir.BranchCase{Tag: b.Tag, Kind: b.Kind, Label: label})
		tail = append(tail, &lir.Label{Name: label})
		tail = append(tail, bb.list...)
	}

	sb.add(end)
	if len(tail) > 0 {
		after := l.newLabel("_endfinally")
		sb.add(&lir.Goto{Label: after})
		sb.add(tail...)
		sb.add(&lir.Label{Name: after})
	}
}
