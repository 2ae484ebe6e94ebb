package compiler

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/stealthrocket/resumable/ir"
)

// validate checks a procedure for constructs the rewriter does not support
// and for malformed trees. Every problem found is reported.
func validate(fn *ir.Func) error {
	v := &validator{fn: fn, declared: map[string]bool{}, labels: map[string]bool{}}
	if fn.Body == nil {
		v.errorf(KindInvalidTree, "missing body")
		return v.err.ErrorOrNil()
	}
	for _, p := range fn.Params {
		v.declare(p.Name)
	}
	for _, x := range fn.Vars {
		v.declare(x.Name)
	}
	// Catch variables are declared implicitly by their clause.
	ir.Inspect(fn.Body, func(n ir.Node) bool {
		if c, ok := n.(*ir.Catch); ok && c.Var != "" {
			v.declared[c.Var] = true
		}
		return true
	})
	v.block(fn.Body, scope{finallyBlocks: -1, finallyLoops: -1})
	return v.err.ErrorOrNil()
}

type validator struct {
	fn       *ir.Func
	declared map[string]bool
	labels   map[string]bool
	err      *multierror.Error
}

// scope is the lexical context of a statement.
type scope struct {
	blocks []map[string]bool // labels of the enclosing blocks, outermost first
	loops  []string          // labels of the enclosing loops, outermost first
	catch  bool              // within a catch body (rethrow is allowed)

	// Number of blocks and loops entered before the innermost finally body,
	// or -1 when not in a finally body.
	finallyBlocks int
	finallyLoops  int
}

func (v *validator) errorf(kind Kind, format string, args ...any) {
	v.err = multierror.Append(v.err, &Error{
		Phase:  PhaseValidate,
		Kind:   kind,
		Func:   v.fn.Name,
		Detail: fmt.Sprintf(format, args...),
	})
}

func (v *validator) declare(name string) {
	if strings.HasPrefix(name, "_") {
		v.errorf(KindInvalidTree, "identifier %q uses the reserved prefix _", name)
	}
	if v.declared[name] {
		v.errorf(KindInvalidTree, "variable %q declared twice", name)
	}
	v.declared[name] = true
}

func (v *validator) label(name string) {
	if strings.HasPrefix(name, "_") {
		v.errorf(KindInvalidTree, "label %q uses the reserved prefix _", name)
	}
	if v.labels[name] {
		v.errorf(KindInvalidTree, "label %q declared twice", name)
	}
	v.labels[name] = true
}

func (v *validator) block(b *ir.Block, s scope) {
	if b == nil {
		v.errorf(KindInvalidTree, "missing block")
		return
	}
	labels := map[string]bool{}
	for _, stmt := range b.List {
		if l, ok := stmt.(*ir.Labeled); ok {
			v.label(l.Label)
			labels[l.Label] = true
		}
	}
	s.blocks = append(s.blocks[:len(s.blocks):len(s.blocks)], labels)
	for _, stmt := range b.List {
		v.stmt(stmt, s)
	}
}

func (v *validator) loop(label string, body *ir.Block, s scope) {
	if label != "" {
		v.label(label)
	}
	s.loops = append(s.loops[:len(s.loops):len(s.loops)], label)
	v.block(body, s)
}

func (v *validator) stmt(stmt ir.Stmt, s scope) {
	switch n := stmt.(type) {
	case *ir.Block:
		v.block(n, s)
	case *ir.If:
		v.expr(n.Cond, true)
		v.block(n.Then, s)
		if n.Else != nil {
			v.block(n.Else, s)
		}
	case *ir.While:
		v.expr(n.Cond, true)
		v.loop(n.Label, n.Body, s)
	case *ir.Loop:
		v.loop(n.Label, n.Body, s)
	case *ir.Try:
		if len(n.Catches) == 0 && n.Finally == nil {
			v.errorf(KindInvalidTree, "try without catch or finally")
		}
		v.block(n.Body, s)
		for _, c := range n.Catches {
			if c.Filter != nil {
				if ir.ContainsAwait(c.Filter) {
					v.errorf(KindUnsupported, "await in catch filter %q", c.Filter)
				}
				v.expr(c.Filter, false)
			}
			cs := s
			cs.catch = true
			v.block(c.Body, cs)
		}
		if n.Finally != nil {
			fs := s
			fs.catch = false
			fs.finallyBlocks = len(s.blocks)
			fs.finallyLoops = len(s.loops)
			v.block(n.Finally, fs)
		}
	case *ir.Labeled:
	case *ir.Assign:
		v.use(n.Var)
		v.expr(n.X, true)
	case *ir.ExprStmt:
		v.expr(n.X, true)
	case *ir.AwaitStmt:
		if n.Var != "" {
			v.use(n.Var)
		}
		v.expr(n.X, true)
	case *ir.Throw:
		if n.X == nil {
			v.errorf(KindInvalidTree, "throw without operand")
			return
		}
		v.expr(n.X, true)
	case *ir.Rethrow:
		if !s.catch {
			v.errorf(KindInvalidBranch, "rethrow outside of a catch clause")
		}
	case *ir.Return:
		if s.finallyBlocks >= 0 {
			v.errorf(KindInvalidBranch, "return inside a finally block")
		}
		if n.X != nil {
			v.expr(n.X, true)
		}
	case *ir.Break:
		v.branch("break", n.Label, s)
	case *ir.Continue:
		v.branch("continue", n.Label, s)
	case *ir.Goto:
		depth := -1
		for i := len(s.blocks) - 1; i >= 0; i-- {
			if s.blocks[i][n.Label] {
				depth = i
				break
			}
		}
		switch {
		case depth < 0:
			v.errorf(KindInvalidBranch, "goto %s: label not visible", n.Label)
		case depth < s.finallyBlocks:
			v.errorf(KindInvalidBranch, "goto %s leaves a finally block", n.Label)
		}
	default:
		v.errorf(KindInvalidTree, "unexpected statement %T", stmt)
	}
}

func (v *validator) branch(tok, label string, s scope) {
	depth := len(s.loops) - 1
	if label != "" {
		for depth >= 0 && s.loops[depth] != label {
			depth--
		}
	}
	switch {
	case depth < 0 && label == "":
		v.errorf(KindInvalidBranch, "%s outside of a loop", tok)
	case depth < 0:
		v.errorf(KindInvalidBranch, "%s %s: no enclosing loop with this label", tok, label)
	case depth < s.finallyLoops:
		v.errorf(KindInvalidBranch, "%s leaves a finally block", tok)
	}
}

func (v *validator) use(name string) {
	if !v.declared[name] {
		v.errorf(KindInvalidTree, "undeclared variable %q", name)
	}
}

func (v *validator) expr(e ir.Expr, awaitAllowed bool) {
	if e == nil {
		v.errorf(KindInvalidTree, "missing expression")
		return
	}
	ir.Inspect(e, func(n ir.Node) bool {
		switch n := n.(type) {
		case *ir.Local:
			v.use(n.Name)
		case *ir.Await:
			if !awaitAllowed {
				return false
			}
		}
		return true
	})
}
