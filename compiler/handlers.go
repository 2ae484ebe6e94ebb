package compiler

import (
	"strconv"

	"github.com/stealthrocket/resumable/ir"
	"github.com/stealthrocket/resumable/lir"
)

// rewriteHandlers moves the catch and finally blocks containing suspension
// points out of their protected regions. A native protected region cannot
// stay open across a suspension: after the rewrite, the only suspension
// points left within a Try are in its body, and they are handled by
// re-entering the region on resume (see lowering).
//
// A catch clause containing a suspension point keeps a native handler which
// records the index of the clause in a selector variable; the catch body
// runs after the protected region when the selector matches. The exception
// stays bound to the catch variable, which gets spilled like any other
// variable when it is live across a suspension point.
//
// A finally block containing a suspension point is rewritten by
// rewriteFinally. A Try with both catch clauses and a finally block, where
// one of the handlers suspends, is first split into a try/finally around a
// try/catch.
//
// The rewrite is applied post-order: nested regions are rewritten before the
// regions enclosing them.
func rewriteHandlers(fn *ir.Func, tree *RegionTree) *handlerRewriter {
	r := &handlerRewriter{fn: fn, tree: tree, roles: map[string]lir.FieldRole{}}
	r.body = r.block(fn.Body, 0)
	return r
}

type handlerRewriter struct {
	fn   *ir.Func
	tree *RegionTree
	body *ir.Block

	// roles records the durable variables synthesized by the rewrite.
	roles map[string]lir.FieldRole

	// pending slots by handler nesting depth
	pending []pendingSlots

	selectors  int
	exceptions int
	labels     int
}

type pendingSlots struct {
	exception string
	branch    string
}

// slots returns the pending slots of a handler nesting depth.
//
// The depth of a region is the number of finally blocks containing a
// suspension point that enclose it. Regions at the same depth never need
// their slots at the same time: a region nested in the body of another one
// only uses the slots while it is being left, and the enclosing region only
// sets them when its own body is left.
func (r *handlerRewriter) slots(depth int) pendingSlots {
	for len(r.pending) <= depth {
		n := strconv.Itoa(len(r.pending))
		s := pendingSlots{exception: "_pex" + n, branch: "_pb" + n}
		r.fn.Declare(&ir.Var{Name: s.exception, Type: ir.Exception, Synthetic: true})
		r.fn.Declare(&ir.Var{Name: s.branch, Type: ir.Int, Synthetic: true})
		r.roles[s.exception] = lir.RolePendingException
		r.roles[s.branch] = lir.RolePendingBranch
		r.pending = append(r.pending, s)
	}
	return r.pending[depth]
}

func (r *handlerRewriter) newVar(prefix string, n *int, t ir.Type) string {
	name := prefix + strconv.Itoa(*n)
	*n++
	r.fn.Declare(&ir.Var{Name: name, Type: t, Synthetic: true})
	return name
}

func (r *handlerRewriter) newLabel() string {
	name := "_fin" + strconv.Itoa(r.labels)
	r.labels++
	return name
}

func (r *handlerRewriter) block(b *ir.Block, depth int) *ir.Block {
	if b == nil {
		return nil
	}
	if !ir.ContainsAwait(b) {
		return b
	}
	out := &ir.Block{List: make([]ir.Stmt, 0, len(b.List))}
	for _, s := range b.List {
		out.List = append(out.List, r.stmt(s, depth))
	}
	return out
}

func (r *handlerRewriter) stmt(s ir.Stmt, depth int) ir.Stmt {
	if !ir.ContainsAwait(s) {
		return s
	}
	switch s := s.(type) {
	case *ir.Block:
		return r.block(s, depth)
	case *ir.If:
		return &ir.If{Cond: s.Cond, Then: r.block(s.Then, depth), Else: r.block(s.Else, depth)}
	case *ir.Loop:
		return &ir.Loop{Label: s.Label, Body: r.block(s.Body, depth)}
	case *ir.Try:
		return r.try(s, depth)
	}
	return s
}

// origin returns the source region a (possibly synthesized) Try derives from.
func origin(t *ir.Try) *ir.Try {
	if t.Origin != nil {
		return t.Origin
	}
	return t
}

func (r *handlerRewriter) try(t *ir.Try, depth int) ir.Stmt {
	suspendingCatch := false
	for _, c := range t.Catches {
		if ir.ContainsAwait(c.Body) {
			suspendingCatch = true
		}
	}
	suspendingFinally := t.Finally != nil && ir.ContainsAwait(t.Finally)

	switch {
	case !suspendingCatch && !suspendingFinally:
		// Suspension points only in the body: the native region is kept and
		// re-entered on resume.
		return &ir.Try{
			Body:    r.block(t.Body, depth),
			Catches: t.Catches,
			Finally: t.Finally,
			Origin:  origin(t),
		}

	case len(t.Catches) > 0 && t.Finally != nil:
		// try { B } catch { C } finally { F }
		// =>
		// try { try { B } catch { C } } finally { F }
		inner := &ir.Try{Body: t.Body, Catches: t.Catches, Origin: origin(t)}
		outer := &ir.Try{Body: ir.Seq(inner), Finally: t.Finally, Origin: origin(t)}
		return r.try(outer, depth)

	case suspendingFinally:
		return r.rewriteFinally(t, depth)

	default:
		return r.rewriteCatches(t, depth)
	}
}

// rewriteCatches rewrites a try/catch where at least one catch body contains
// a suspension point:
//
//	_c0 = 0
//	try {
//		B
//	} catch T1 e1 when f1 {
//		_c0 = 1           (suspending catch)
//	} catch T2 e2 {
//		C2                (catch without suspension point)
//	}
//	if _c0 == 1 {
//		C1
//	}
//
// Catch types and filters are still evaluated by the native handler, once
// per exception, in source order.
func (r *handlerRewriter) rewriteCatches(t *ir.Try, depth int) ir.Stmt {
	sel := r.newVar("_c", &r.selectors, ir.Int)
	native := &ir.Try{Body: r.block(t.Body, depth), Origin: origin(t)}
	out := &ir.Block{List: []ir.Stmt{
		&ir.Assign{Var: sel, X: ir.IntConst(0)},
		native,
	}}
	for i, c := range t.Catches {
		if !ir.ContainsAwait(c.Body) {
			native.Catches = append(native.Catches, c)
			continue
		}
		tag := ir.IntConst(int64(i + 1))
		native.Catches = append(native.Catches, &ir.Catch{
			Type:   c.Type,
			Var:    c.Var,
			Filter: c.Filter,
			Body:   ir.Seq(&ir.Assign{Var: sel, X: tag}),
		})
		out.List = append(out.List, &ir.If{
			Cond: &ir.Binary{Op: ir.Eq, X: ir.Ref(sel), Y: tag},
			Then: r.block(c.Body, depth),
		})
	}
	return out
}
