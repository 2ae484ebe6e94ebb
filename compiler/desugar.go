package compiler

import (
	"strconv"

	"github.com/stealthrocket/resumable/ir"
)

// returnVar holds the return value of a procedure between the return
// statement and the completion of the procedure.
const returnVar = "_ret"

// desugar returns a copy of a procedure in which sugared constructs are
// replaced with simpler ones.
//
// While loops are rewritten as `loop { if !cond { break } ... }` so that a
// suspension point in the condition can be hoisted into the loop body.
//
// Implicit branch targets are made explicit: every loop gets a label and
// every break/continue names the loop it targets, so that later passes can
// move statements around without changing what the branches refer to.
//
// Await expressions are hoisted out of the expressions containing them into
// await statements assigning temporary variables (_v0, _v1, ...). Operands
// with side effects that are evaluated before a suspension point are hoisted
// as well, so that the evaluation order is preserved.
//
// Return values are assigned to _ret before returning, and rethrow
// statements are bound to the exception variable of their catch clause
// (a variable is synthesized when the clause does not declare one).
//
// The input procedure is not modified.
func desugar(fn *ir.Func) *ir.Func {
	out := &ir.Func{Name: fn.Name}
	for _, p := range fn.Params {
		cp := *p
		cp.Param = true
		out.Params = append(out.Params, &cp)
	}
	for _, v := range fn.Vars {
		cp := *v
		out.Vars = append(out.Vars, &cp)
	}
	d := desugarer{fn: out}
	out.Body = d.block(fn.Body, nil, "")
	return out
}

type desugarer struct {
	fn     *ir.Func
	vars   int
	labels int
}

func (d *desugarer) newVar(t ir.Type) string {
	name := "_v" + strconv.Itoa(d.vars)
	d.vars++
	d.fn.Declare(&ir.Var{Name: name, Type: t, Synthetic: true})
	return name
}

func (d *desugarer) newLabel() string {
	name := "_l" + strconv.Itoa(d.labels)
	d.labels++
	return name
}

// block desugars a block. loops lists the labels of the enclosing loops,
// innermost last; catchVar is the exception variable rethrow refers to.
func (d *desugarer) block(b *ir.Block, loops []string, catchVar string) *ir.Block {
	if b == nil {
		return nil
	}
	out := &ir.Block{}
	for _, stmt := range b.List {
		out.List = append(out.List, d.stmt(stmt, loops, catchVar)...)
	}
	return out
}

func (d *desugarer) stmt(stmt ir.Stmt, loops []string, catchVar string) []ir.Stmt {
	switch s := stmt.(type) {
	case *ir.Block:
		return []ir.Stmt{d.block(s, loops, catchVar)}

	case *ir.If:
		var pre []ir.Stmt
		cond := d.decompose(s.Cond, &pre)
		return append(pre, &ir.If{
			Cond: cond,
			Then: d.block(s.Then, loops, catchVar),
			Else: d.block(s.Else, loops, catchVar),
		})

	case *ir.While:
		// while cond { body } => loop { if !cond { break } body }
		label := s.Label
		if label == "" {
			label = d.newLabel()
		}
		guard := &ir.If{
			Cond: &ir.Not{X: s.Cond},
			Then: ir.Seq(&ir.Break{Label: label}),
		}
		body := &ir.Block{List: append([]ir.Stmt{guard}, s.Body.List...)}
		return []ir.Stmt{&ir.Loop{
			Label: label,
			Body:  d.block(body, append(loops[:len(loops):len(loops)], label), catchVar),
		}}

	case *ir.Loop:
		label := s.Label
		if label == "" {
			label = d.newLabel()
		}
		return []ir.Stmt{&ir.Loop{
			Label: label,
			Body:  d.block(s.Body, append(loops[:len(loops):len(loops)], label), catchVar),
		}}

	case *ir.Try:
		t := &ir.Try{Body: d.block(s.Body, loops, catchVar)}
		for _, c := range s.Catches {
			name := c.Var
			if name == "" && containsRethrow(c.Body) {
				name = d.newVar(ir.Exception)
			}
			if name != "" {
				d.fn.Declare(&ir.Var{Name: name, Type: ir.Exception})
			}
			t.Catches = append(t.Catches, &ir.Catch{
				Type:   c.Type,
				Var:    name,
				Filter: c.Filter,
				Body:   d.block(c.Body, loops, name),
			})
		}
		if s.Finally != nil {
			t.Finally = d.block(s.Finally, loops, "")
		}
		return []ir.Stmt{t}

	case *ir.Labeled:
		return []ir.Stmt{&ir.Labeled{Label: s.Label}}

	case *ir.Assign:
		var pre []ir.Stmt
		if await, ok := s.X.(*ir.Await); ok {
			x := d.decompose(await.X, &pre)
			return append(pre, &ir.AwaitStmt{Var: s.Var, X: x})
		}
		x := d.decompose(s.X, &pre)
		return append(pre, &ir.Assign{Var: s.Var, X: x})

	case *ir.ExprStmt:
		var pre []ir.Stmt
		if await, ok := s.X.(*ir.Await); ok {
			x := d.decompose(await.X, &pre)
			return append(pre, &ir.AwaitStmt{X: x})
		}
		x := d.decompose(s.X, &pre)
		return append(pre, &ir.ExprStmt{X: x})

	case *ir.AwaitStmt:
		var pre []ir.Stmt
		x := d.decompose(s.X, &pre)
		return append(pre, &ir.AwaitStmt{Var: s.Var, X: x})

	case *ir.Throw:
		var pre []ir.Stmt
		x := d.decompose(s.X, &pre)
		return append(pre, &ir.Throw{X: x})

	case *ir.Rethrow:
		return []ir.Stmt{&ir.Rethrow{X: ir.Ref(catchVar)}}

	case *ir.Return:
		if s.X == nil {
			return []ir.Stmt{&ir.Return{}}
		}
		d.fn.Declare(&ir.Var{Name: returnVar, Type: ir.Any, Synthetic: true})
		var pre []ir.Stmt
		x := d.decompose(s.X, &pre)
		return append(pre, &ir.Assign{Var: returnVar, X: x}, &ir.Return{})

	case *ir.Break:
		return []ir.Stmt{&ir.Break{Label: target(s.Label, loops)}}

	case *ir.Continue:
		return []ir.Stmt{&ir.Continue{Label: target(s.Label, loops)}}

	case *ir.Goto:
		return []ir.Stmt{&ir.Goto{Label: s.Label}}
	}
	return []ir.Stmt{stmt}
}

func target(label string, loops []string) string {
	if label != "" || len(loops) == 0 {
		return label
	}
	return loops[len(loops)-1]
}

// decompose hoists the suspension points of an expression into pre and
// returns the remaining expression.
func (d *desugarer) decompose(e ir.Expr, pre *[]ir.Stmt) ir.Expr {
	if e == nil || !ir.ContainsAwait(e) {
		return e
	}
	switch x := e.(type) {
	case *ir.Await:
		operand := d.decompose(x.X, pre)
		tmp := d.newVar(ir.Any)
		*pre = append(*pre, &ir.AwaitStmt{Var: tmp, X: operand})
		return ir.Ref(tmp)

	case *ir.Call:
		return &ir.Call{Fn: x.Fn, Args: d.operands(x.Args, pre)}

	case *ir.Binary:
		if (x.Op == ir.And || x.Op == ir.Or) && ir.ContainsAwait(x.Y) {
			// The right operand only suspends when it is evaluated:
			//
			//	_v0 = x
			//	if _v0 { _v0 = y }   (if !_v0 for ||)
			tmp := d.newVar(ir.Bool)
			*pre = append(*pre, &ir.Assign{Var: tmp, X: d.decompose(x.X, pre)})
			var then []ir.Stmt
			y := d.decompose(x.Y, &then)
			then = append(then, &ir.Assign{Var: tmp, X: y})
			var cond ir.Expr = ir.Ref(tmp)
			if x.Op == ir.Or {
				cond = &ir.Not{X: cond}
			}
			*pre = append(*pre, &ir.If{Cond: cond, Then: &ir.Block{List: then}})
			return ir.Ref(tmp)
		}
		ops := d.operands([]ir.Expr{x.X, x.Y}, pre)
		return &ir.Binary{Op: x.Op, X: ops[0], Y: ops[1]}

	case *ir.Not:
		return &ir.Not{X: d.decompose(x.X, pre)}
	}
	return e
}

// operands decomposes a list of operands evaluated from left to right.
// Operands with side effects that precede a suspension point are evaluated
// into temporaries before it.
func (d *desugarer) operands(args []ir.Expr, pre *[]ir.Stmt) []ir.Expr {
	last := -1
	for i, arg := range args {
		if ir.ContainsAwait(arg) {
			last = i
		}
	}
	out := make([]ir.Expr, len(args))
	for i, arg := range args {
		x := d.decompose(arg, pre)
		if i < last && hasCall(x) {
			tmp := d.newVar(ir.Any)
			*pre = append(*pre, &ir.Assign{Var: tmp, X: x})
			x = ir.Ref(tmp)
		}
		out[i] = x
	}
	return out
}

func hasCall(e ir.Expr) (found bool) {
	ir.Inspect(e, func(n ir.Node) bool {
		if _, ok := n.(*ir.Call); ok {
			found = true
		}
		return !found
	})
	return
}

func containsRethrow(b *ir.Block) (found bool) {
	ir.Inspect(b, func(n ir.Node) bool {
		switch n.(type) {
		case *ir.Rethrow:
			found = true
		case *ir.Catch:
			// A rethrow in a nested catch clause refers to that clause.
			return false
		}
		return !found
	})
	return
}
