package lir

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Format returns the textual form of a procedure.
func Format(p *Procedure) string {
	var b strings.Builder
	Fprint(&b, p)
	return b.String()
}

// Fprint writes the textual form of a procedure to w: its field and local
// tables, its resume states, then its body.
func Fprint(w io.Writer, p *Procedure) {
	f := &formatter{w: w, proc: p}
	f.printf("procedure %s\n", p.Name)
	for i, field := range p.Fields {
		f.printf("  field %d %s %s (%s)\n", i, field.Name, field.Type, field.Role)
	}
	for i, local := range p.Locals {
		f.printf("  local %d %s %s\n", i, local.Name, local.Type)
	}
	for _, s := range p.States {
		f.printf("  state %d resume=%s active=%v", s.State, s.Resume, s.Active)
		for _, spill := range s.Spills {
			f.printf(" %s->%s", f.local(spill.Local), f.field(spill.Field))
		}
		f.printf("\n")
	}
	f.seq(p.Body)
}

type formatter struct {
	w     io.Writer
	proc  *Procedure
	depth int
}

func (f *formatter) printf(format string, args ...any) {
	fmt.Fprintf(f.w, format, args...)
}

func (f *formatter) line(format string, args ...any) {
	f.printf("%s", strings.Repeat("  ", f.depth))
	f.printf(format, args...)
	f.printf("\n")
}

func (f *formatter) seq(s *Seq) {
	if s == nil {
		return
	}
	f.depth++
	for _, stmt := range s.List {
		f.stmt(stmt)
	}
	f.depth--
}

func (f *formatter) stmt(s Stmt) {
	switch s := s.(type) {
	case *Seq:
		f.line("{")
		f.seq(s)
		f.line("}")
	case *Label:
		f.depth--
		f.line("%s:", s.Name)
		f.depth++
	case *Goto:
		f.line("goto %s", s.Label)
	case *CondGoto:
		f.line("if %s goto %s", f.expr(s.Cond), s.Label)
	case *Switch:
		cases := make([]string, len(s.Cases))
		for i, c := range s.Cases {
			cases[i] = fmt.Sprintf("%d:%s", c.State, c.Label)
		}
		kind := "switch"
		if s.Total {
			kind = "dispatch"
		}
		f.line("%s state [%s]", kind, strings.Join(cases, " "))
	case *Assign:
		f.line("%s = %s", f.expr(s.Dst), f.expr(s.X))
	case *Eval:
		f.line("%s", f.expr(s.X))
	case *Try:
		f.line("try #%d {", s.Region)
		f.seq(s.Body)
		for _, h := range s.Handlers {
			head := "catch"
			if h.Type != "" {
				head += " " + h.Type
			}
			if h.Var != nil {
				head += " " + f.expr(h.Var)
			}
			if h.Filter != nil {
				head += " when " + f.expr(h.Filter)
			}
			f.line("} %s {", head)
			f.seq(h.Body)
		}
		if s.Finally != nil {
			f.line("} finally {")
			f.seq(s.Finally)
		}
		f.line("}")
	case *Throw:
		f.line("throw %s", f.expr(s.X))
	case *Rethrow:
		f.line("rethrow %s", f.expr(s.X))
	case *Suspend:
		f.line("suspend %d %s", s.State, f.expr(s.Awaiter))
	case *EndFinally:
		cases := make([]string, len(s.Cases))
		for i, c := range s.Cases {
			cases[i] = fmt.Sprintf("%d:%s:%s", c.Tag, c.Kind, c.Label)
		}
		f.line("endfinally #%d %s %s [%s]", s.Region, f.expr(s.Exception), f.expr(s.Branch), strings.Join(cases, " "))
	case *Complete:
		if s.X == nil {
			f.line("complete")
		} else {
			f.line("complete %s", f.expr(s.X))
		}
	case *Fault:
		f.line("fault %s", f.expr(s.X))
	case *Leave:
		f.line("leave")
	default:
		f.line("<%T>", s)
	}
}

func (f *formatter) local(i int) string {
	if i >= 0 && i < len(f.proc.Locals) {
		return f.proc.Locals[i].Name
	}
	return "local" + strconv.Itoa(i)
}

func (f *formatter) field(i int) string {
	if i >= 0 && i < len(f.proc.Fields) {
		return "@" + f.proc.Fields[i].Name
	}
	return "@field" + strconv.Itoa(i)
}

func (f *formatter) expr(e Expr) string {
	switch e := e.(type) {
	case nil:
		return "nil"
	case *Const:
		switch v := e.Value.(type) {
		case nil:
			return "nil"
		case string:
			return strconv.Quote(v)
		default:
			return fmt.Sprint(v)
		}
	case *LocalRef:
		return f.local(e.Index)
	case *FieldRef:
		if e == nil {
			return "nil"
		}
		return f.field(e.Index)
	case *Call:
		args := make([]string, len(e.Args))
		for i, arg := range e.Args {
			args[i] = f.expr(arg)
		}
		return e.Fn + "(" + strings.Join(args, ", ") + ")"
	case *Binary:
		return "(" + f.expr(e.X) + " " + e.Op.String() + " " + f.expr(e.Y) + ")"
	case *Not:
		return "!" + f.expr(e.X)
	case *Completed:
		return "completed(" + f.expr(e.X) + ")"
	case *Result:
		return "result(" + f.expr(e.X) + ")"
	case *Suspending:
		return "suspending"
	default:
		return fmt.Sprintf("<%T>", e)
	}
}
