package lir

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Check verifies the structural invariants of a lowered procedure:
//
//   - labels are unique within the procedure,
//   - every goto targets a label of its own sequence or of an enclosing one,
//   - every dispatch case targets a label of the sequence holding the switch,
//   - every state is reachable from the entry dispatch and resumes at a
//     declared label,
//   - local and field references are in range.
//
// All violations are reported, combined in a single error.
func Check(p *Procedure) error {
	c := &checker{proc: p, labels: map[string]*Seq{}}
	if p.Body == nil {
		return fmt.Errorf("procedure %s: missing body", p.Name)
	}
	if len(p.Fields) == 0 || p.Fields[StateField].Role != RoleState {
		c.errorf("field %d is not the state field", StateField)
	}
	c.declare(p.Body)
	c.seq(p.Body, nil)

	for i, s := range p.States {
		if int(s.State) != i {
			c.errorf("state %d is listed at index %d", s.State, i)
		}
		if _, ok := c.labels[s.Resume]; !ok {
			c.errorf("state %d resumes at undeclared label %q", s.State, s.Resume)
		}
		for _, spill := range s.Spills {
			c.checkLocal(spill.Local)
			c.checkField(spill.Field)
		}
		if !c.dispatched[s.State] {
			c.errorf("state %d is not reachable from the entry dispatch", s.State)
		}
	}
	if c.err != nil {
		return fmt.Errorf("procedure %s: %w", p.Name, c.err)
	}
	return nil
}

type checker struct {
	proc       *Procedure
	labels     map[string]*Seq
	dispatched map[State]bool
	err        *multierror.Error
}

func (c *checker) errorf(format string, args ...any) {
	c.err = multierror.Append(c.err, fmt.Errorf(format, args...))
}

// declare records the sequence owning each label.
func (c *checker) declare(s *Seq) {
	if s == nil {
		return
	}
	for _, stmt := range s.List {
		switch stmt := stmt.(type) {
		case *Label:
			if _, dup := c.labels[stmt.Name]; dup {
				c.errorf("duplicate label %q", stmt.Name)
			}
			c.labels[stmt.Name] = s
		case *Seq:
			c.declare(stmt)
		case *Try:
			c.declare(stmt.Body)
			for _, h := range stmt.Handlers {
				c.declare(h.Body)
			}
			c.declare(stmt.Finally)
		}
	}
}

// seq checks the statements of s; scope lists the enclosing sequences.
func (c *checker) seq(s *Seq, scope []*Seq) {
	if s == nil {
		return
	}
	scope = append(scope, s)
	for _, stmt := range s.List {
		c.stmt(stmt, s, scope)
	}
}

func (c *checker) target(label string, scope []*Seq) {
	owner, ok := c.labels[label]
	if !ok {
		c.errorf("undeclared label %q", label)
		return
	}
	for _, s := range scope {
		if s == owner {
			return
		}
	}
	c.errorf("label %q is not visible from the jump", label)
}

func (c *checker) stmt(stmt Stmt, s *Seq, scope []*Seq) {
	switch stmt := stmt.(type) {
	case *Seq:
		c.seq(stmt, scope)
	case *Goto:
		c.target(stmt.Label, scope)
	case *CondGoto:
		c.expr(stmt.Cond)
		c.target(stmt.Label, scope)
	case *Switch:
		for _, k := range stmt.Cases {
			if c.labels[k.Label] != s {
				c.errorf("dispatch of state %d targets label %q outside of its sequence", k.State, k.Label)
			}
			if stmt.Total {
				if c.dispatched == nil {
					c.dispatched = map[State]bool{}
				}
				c.dispatched[k.State] = true
			}
		}
	case *Assign:
		c.expr(stmt.Dst)
		c.expr(stmt.X)
	case *Eval:
		c.expr(stmt.X)
	case *Try:
		c.seq(stmt.Body, scope)
		for _, h := range stmt.Handlers {
			if h.Var != nil {
				c.checkLocal(h.Var.Index)
			}
			c.expr(h.Filter)
			c.seq(h.Body, scope)
		}
		c.seq(stmt.Finally, scope)
	case *Throw:
		c.expr(stmt.X)
	case *Rethrow:
		c.expr(stmt.X)
	case *Suspend:
		if int(stmt.State) < 0 || int(stmt.State) >= len(c.proc.States) {
			c.errorf("suspension with unknown state %d", stmt.State)
		}
		c.expr(stmt.Awaiter)
	case *EndFinally:
		if stmt.Exception == nil || stmt.Branch == nil {
			c.errorf("endfinally of region %d without pending slots", stmt.Region)
			return
		}
		c.expr(stmt.Exception)
		c.expr(stmt.Branch)
		for _, k := range stmt.Cases {
			if k.Tag == 0 {
				c.errorf("endfinally of region %d uses the reserved tag 0", stmt.Region)
			}
			c.target(k.Label, scope)
		}
	case *Complete:
		c.expr(stmt.X)
	case *Fault:
		c.expr(stmt.X)
	}
}

func (c *checker) expr(e Expr) {
	switch e := e.(type) {
	case *LocalRef:
		c.checkLocal(e.Index)
	case *FieldRef:
		if e != nil {
			c.checkField(e.Index)
		}
	case *Call:
		for _, arg := range e.Args {
			c.expr(arg)
		}
	case *Binary:
		c.expr(e.X)
		c.expr(e.Y)
	case *Not:
		c.expr(e.X)
	case *Completed:
		c.expr(e.X)
	case *Result:
		c.expr(e.X)
	}
}

func (c *checker) checkLocal(i int) {
	if i < 0 || i >= len(c.proc.Locals) {
		c.errorf("local %d out of range", i)
	}
}

func (c *checker) checkField(i int) {
	if i < 0 || i >= len(c.proc.Fields) {
		c.errorf("field %d out of range", i)
	}
}
