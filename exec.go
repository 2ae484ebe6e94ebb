package resumable

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/stealthrocket/resumable/ir"
	"github.com/stealthrocket/resumable/lir"
)

// completionKind is the way a statement completed.
type completionKind uint8

const (
	normal completionKind = iota
	jump                  // goto a label of an enclosing sequence
	throw                 // an exception is propagating
	suspend               // the turn ends to wait on an awaitable
	leave                 // the turn ends after the instance faulted
	fatal                 // the procedure is malformed
)

type completion struct {
	kind      completionKind
	label     string
	exception *Exception
	err       error
}

func jumpTo(label string) completion { return completion{kind: jump, label: label} }

func thrown(ex *Exception) completion { return completion{kind: throw, exception: ex} }

func failure(err error) completion { return completion{kind: fatal, err: err} }

func (c completion) abrupt() bool { return c.kind != normal }

func malformed(format string, args ...any) completion {
	return failure(fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...)))
}

// program caches the label positions of every sequence of a procedure.
type program struct {
	labels map[*lir.Seq]map[string]int
}

var programs sync.Map // *lir.Procedure => *program

func programOf(proc *lir.Procedure) *program {
	if p, ok := programs.Load(proc); ok {
		return p.(*program)
	}
	p := &program{labels: map[*lir.Seq]map[string]int{}}
	p.index(proc.Body)
	actual, _ := programs.LoadOrStore(proc, p)
	return actual.(*program)
}

func (p *program) index(s *lir.Seq) {
	if s == nil {
		return
	}
	labels := map[string]int{}
	for i, stmt := range s.List {
		switch stmt := stmt.(type) {
		case *lir.Label:
			labels[stmt.Name] = i
		case *lir.Seq:
			p.index(stmt)
		case *lir.Try:
			p.index(stmt.Body)
			for _, h := range stmt.Handlers {
				p.index(h.Body)
			}
			p.index(stmt.Finally)
		}
	}
	p.labels[s] = labels
}

// turn is one execution of the procedure body. Locals are fresh on every
// turn.
type turn struct {
	inst    *Instance
	locals  []Value
	awaiter Awaitable
}

func (t *turn) seq(s *lir.Seq) completion {
	if s == nil {
		return completion{}
	}
	labels := t.inst.prog.labels[s]
	for pc := 0; pc < len(s.List); {
		c := t.stmt(s.List[pc])
		if c.kind == jump {
			if i, ok := labels[c.label]; ok {
				pc = i + 1
				continue
			}
		}
		if c.abrupt() {
			return c
		}
		pc++
	}
	return completion{}
}

func (t *turn) stmt(s lir.Stmt) completion {
	inst := t.inst
	switch s := s.(type) {
	case *lir.Seq:
		return t.seq(s)

	case *lir.Label:
		return completion{}

	case *lir.Goto:
		return jumpTo(s.Label)

	case *lir.CondGoto:
		v, c := t.eval(s.Cond)
		if c.abrupt() {
			return c
		}
		if truthy(v) {
			return jumpTo(s.Label)
		}
		return completion{}

	case *lir.Switch:
		return t.dispatch(s)

	case *lir.Assign:
		v, c := t.eval(s.X)
		if c.abrupt() {
			return c
		}
		return t.store(s.Dst, v)

	case *lir.Eval:
		_, c := t.eval(s.X)
		return c

	case *lir.Try:
		return t.try(s)

	case *lir.Throw:
		v, c := t.eval(s.X)
		if c.abrupt() {
			return c
		}
		return thrown(toException(v).throw(s.Site))

	case *lir.Rethrow:
		v, c := t.eval(s.X)
		if c.abrupt() {
			return c
		}
		return thrown(Capture(toException(v)).Throw(s.Site))

	case *lir.Suspend:
		v, c := t.eval(s.Awaiter)
		if c.abrupt() {
			return c
		}
		aw, ok := v.(Awaitable)
		if !ok {
			return malformed("suspending on %T which is not awaitable", v)
		}
		t.awaiter = aw
		return completion{kind: suspend}

	case *lir.EndFinally:
		return t.endFinally(s)

	case *lir.Complete:
		v, c := t.eval(s.X)
		if c.abrupt() {
			return c
		}
		inst.log.Debug("instance completed")
		inst.sink.Succeed(v)
		return completion{}

	case *lir.Fault:
		v, c := t.eval(s.X)
		if c.abrupt() {
			return c
		}
		ex := toException(v)
		inst.log.Debug("instance faulted", zap.String("exception", ex.Error()))
		inst.sink.Fail(ex)
		return completion{}

	case *lir.Leave:
		return completion{kind: leave}
	}
	return malformed("unexpected statement %T", s)
}

func (t *turn) dispatch(s *lir.Switch) completion {
	state := t.inst.State()
	for _, c := range s.Cases {
		if c.State == state {
			return jumpTo(c.Label)
		}
	}
	if s.Total && state != lir.NotStarted {
		return failure(fmt.Errorf("%w: %d in %s", ErrUnmappedState, state, t.inst.proc.Name))
	}
	return completion{}
}

func (t *turn) try(s *lir.Try) completion {
	c := t.seq(s.Body)

	if c.kind == throw {
		for _, h := range s.Handlers {
			if t.match(h, c.exception) {
				c = t.seq(h.Body)
				break
			}
		}
	}

	if s.Finally != nil && c.kind != fatal {
		// A finally block completing abruptly supersedes the way the
		// region was left.
		if fc := t.seq(s.Finally); fc.abrupt() {
			return fc
		}
	}
	return c
}

// match binds the exception and evaluates the filter of a handler. A filter
// that throws does not match.
func (t *turn) match(h *lir.Handler, ex *Exception) bool {
	if !ex.Matches(h.Type) {
		return false
	}
	if h.Var != nil {
		if c := t.store(h.Var, ex); c.abrupt() {
			return false
		}
	}
	if h.Filter == nil {
		return true
	}
	v, c := t.eval(h.Filter)
	if c.abrupt() {
		if c.kind == throw {
			t.inst.log.Debug("exception filter threw", zap.String("exception", c.exception.Error()))
		}
		return false
	}
	return truthy(v)
}

func (t *turn) endFinally(s *lir.EndFinally) completion {
	inst := t.inst
	pending := inst.fields.Get(s.Exception.Index)
	branch, _ := inst.fields.Get(s.Branch.Index).(int64)

	state := lir.Settle(pending != nil, branch)
	inst.log.Debug("finally settled", zap.Int("region", s.Region), zap.Stringer("state", state))

	switch state {
	case lir.FinallyCompletedWithPendingException:
		inst.fields.Set(s.Exception.Index, nil)
		ex, ok := pending.(*Exception)
		if !ok {
			return malformed("pending exception of type %T", pending)
		}
		site := fmt.Sprintf("%s: endfinally #%d", inst.proc.Name, s.Region)
		return thrown(Capture(ex).Throw(site))

	case lir.FinallyCompletedWithPendingBranch:
		inst.fields.Set(s.Branch.Index, int64(0))
		for _, c := range s.Cases {
			if int64(c.Tag) == branch {
				return jumpTo(c.Label)
			}
		}
		return malformed("pending branch %d of region %d has no target", branch, s.Region)
	}
	return completion{}
}

func (t *turn) store(dst lir.Ref, v Value) completion {
	switch r := dst.(type) {
	case *lir.LocalRef:
		if r.Index < 0 || r.Index >= len(t.locals) {
			return malformed("local %d out of range", r.Index)
		}
		t.locals[r.Index] = v
	case *lir.FieldRef:
		if r.Index < 0 || r.Index >= len(t.inst.proc.Fields) {
			return malformed("field %d out of range", r.Index)
		}
		t.inst.fields.Set(r.Index, v)
	default:
		return malformed("unexpected destination %T", dst)
	}
	return completion{}
}

func (t *turn) eval(e lir.Expr) (Value, completion) {
	inst := t.inst
	switch e := e.(type) {
	case nil:
		return nil, completion{}

	case *lir.Const:
		return normalize(e.Value), completion{}

	case *lir.LocalRef:
		if e.Index < 0 || e.Index >= len(t.locals) {
			return nil, malformed("local %d out of range", e.Index)
		}
		return t.locals[e.Index], completion{}

	case *lir.FieldRef:
		if e.Index < 0 || e.Index >= len(inst.proc.Fields) {
			return nil, malformed("field %d out of range", e.Index)
		}
		return inst.fields.Get(e.Index), completion{}

	case *lir.Call:
		return t.call(e)

	case *lir.Binary:
		x, c := t.eval(e.X)
		if c.abrupt() {
			return nil, c
		}
		switch e.Op {
		case ir.And:
			if !truthy(x) {
				return false, completion{}
			}
			y, c := t.eval(e.Y)
			return truthy(y), c
		case ir.Or:
			if truthy(x) {
				return true, completion{}
			}
			y, c := t.eval(e.Y)
			return truthy(y), c
		}
		y, c := t.eval(e.Y)
		if c.abrupt() {
			return nil, c
		}
		v, ex := binary(e.Op, x, y)
		if ex != nil {
			return nil, thrown(ex.throw(inst.proc.Name + ": " + e.Op.String()))
		}
		return v, completion{}

	case *lir.Not:
		x, c := t.eval(e.X)
		if c.abrupt() {
			return nil, c
		}
		return !truthy(x), completion{}

	case *lir.Completed:
		aw, c := t.awaitable(e.X)
		if c.abrupt() {
			return nil, c
		}
		return aw.IsCompleted(), completion{}

	case *lir.Result:
		aw, c := t.awaitable(e.X)
		if c.abrupt() {
			return nil, c
		}
		v, err := aw.GetResult()
		if err != nil {
			site := inst.proc.Name + ": await"
			ex, ok := err.(*Exception)
			if !ok || len(ex.Trace) == 0 {
				return nil, thrown(hostException(err, site))
			}
			return nil, thrown(Capture(ex).Throw(site))
		}
		return normalize(v), completion{}

	case *lir.Suspending:
		return inst.State() >= 0, completion{}
	}
	return nil, malformed("unexpected expression %T", e)
}

func (t *turn) awaitable(e lir.Expr) (Awaitable, completion) {
	v, c := t.eval(e)
	if c.abrupt() {
		return nil, c
	}
	aw, ok := v.(Awaitable)
	if !ok {
		ex := NewException("InvalidOperation", fmt.Sprintf("value of type %T is not awaitable", v))
		return nil, thrown(ex.throw(t.inst.proc.Name + ": await"))
	}
	return aw, completion{}
}

func (t *turn) call(e *lir.Call) (Value, completion) {
	site := t.inst.proc.Name + ": " + e.Fn + "()"
	fn, ok := t.inst.env.lookup(e.Fn)
	if !ok {
		ex := NewException("MissingMethod", "undefined function "+e.Fn)
		return nil, thrown(ex.throw(site))
	}
	args := make([]Value, len(e.Args))
	for i, arg := range e.Args {
		v, c := t.eval(arg)
		if c.abrupt() {
			return nil, c
		}
		args[i] = v
	}
	v, err := fn(args...)
	if err != nil {
		return nil, thrown(hostException(err, site))
	}
	return normalize(v), completion{}
}
