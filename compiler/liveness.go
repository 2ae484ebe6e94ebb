package compiler

import (
	"github.com/stealthrocket/resumable/ir"
)

// Liveness of the variables of a procedure, computed with a backward
// dataflow analysis over a control flow graph built from the statement tree.
//
// A variable is live at a program point if there exists a path from that
// point to a use of the variable that does not pass through a definition of
// it. Edges taken when an exception is raised are kept apart from normal
// edges: the definition made by a statement does not happen when the
// statement throws, so it does not kill liveness along exceptional edges.
//
// The graph is conservative around protected regions: every statement of a
// try body may reach each of its handlers, and a native finally block may
// continue to every destination of the branches of its protected region.

type cfgNode struct {
	use, def *bitSet
	succ     []int // normal successors
	throw    []int // exceptional successors

	in *bitSet
}

// liveness holds the result of the analysis.
type liveness struct {
	vars  []*ir.Var
	index map[string]int
	nodes []*cfgNode

	// awaits maps each suspension point to its node.
	awaits map[*ir.AwaitStmt]int
}

// cfgContext is the context in which a statement is added to the graph.
type cfgContext struct {
	throw []int // where exceptions go

	// the entry and exit nodes of the native finally blocks enclosing the
	// statement
	finally []finallyNodes
}

type finallyNodes struct{ entry, exit int }

type cfgBuilder struct {
	l      *liveness
	labels map[string]int // label and loop head nodes
	breaks map[string]int // loop break targets
	exit   int
}

// analyzeLiveness computes liveness for the variables selected by track.
func analyzeLiveness(fn *ir.Func, body *ir.Block, track func(*ir.Var) bool) *liveness {
	l := &liveness{index: map[string]int{}, awaits: map[*ir.AwaitStmt]int{}}
	for _, v := range append(fn.Params[:len(fn.Params):len(fn.Params)], fn.Vars...) {
		if track(v) {
			l.index[v.Name] = len(l.vars)
			l.vars = append(l.vars, v)
		}
	}

	b := &cfgBuilder{l: l, labels: map[string]int{}, breaks: map[string]int{}}
	b.exit = b.node()
	if i, ok := l.index[returnVar]; ok {
		l.nodes[b.exit].use.set(i)
	}
	ir.Inspect(body, func(n ir.Node) bool {
		switch n := n.(type) {
		case *ir.Labeled:
			b.labels[n.Label] = b.node()
		case *ir.Loop:
			b.labels[n.Label] = b.node()
		}
		return true
	})
	b.block(body, b.exit, cfgContext{})

	l.solve()
	return l
}

func (b *cfgBuilder) node() int {
	n := len(b.l.vars)
	b.l.nodes = append(b.l.nodes, &cfgNode{use: newBitSet(n), def: newBitSet(n), in: newBitSet(n)})
	return len(b.l.nodes) - 1
}

func (b *cfgBuilder) uses(id int, e ir.Expr) {
	ir.Inspect(e, func(n ir.Node) bool {
		if x, ok := n.(*ir.Local); ok {
			if i, ok := b.l.index[x.Name]; ok {
				b.l.nodes[id].use.set(i)
			}
		}
		return true
	})
}

func (b *cfgBuilder) defines(id int, name string) {
	if i, ok := b.l.index[name]; ok {
		b.l.nodes[id].def.set(i)
	}
}

// leaf adds a node for a statement which may throw, and continues with next.
func (b *cfgBuilder) leaf(next int, ctx cfgContext) int {
	id := b.node()
	n := b.l.nodes[id]
	if next >= 0 {
		n.succ = append(n.succ, next)
	}
	n.throw = append(n.throw, ctx.throw...)
	return id
}

// jump adds a node transferring control to target. The native finally
// blocks being crossed may run before the target is reached.
func (b *cfgBuilder) jump(target int, ctx cfgContext) int {
	id := b.leaf(target, ctx)
	for _, f := range ctx.finally {
		b.l.nodes[id].succ = append(b.l.nodes[id].succ, f.entry)
		b.l.nodes[f.exit].succ = append(b.l.nodes[f.exit].succ, target)
	}
	return id
}

// block adds the statements of a block in reverse order, and returns the
// entry node of the block.
func (b *cfgBuilder) block(blk *ir.Block, next int, ctx cfgContext) int {
	if blk == nil {
		return next
	}
	for i := len(blk.List) - 1; i >= 0; i-- {
		next = b.stmt(blk.List[i], next, ctx)
	}
	return next
}

func (b *cfgBuilder) stmt(s ir.Stmt, next int, ctx cfgContext) int {
	switch s := s.(type) {
	case *ir.Block:
		return b.block(s, next, ctx)

	case *ir.If:
		id := b.leaf(-1, ctx)
		b.uses(id, s.Cond)
		n := b.l.nodes[id]
		n.succ = append(n.succ, b.block(s.Then, next, ctx))
		if s.Else != nil {
			n.succ = append(n.succ, b.block(s.Else, next, ctx))
		} else {
			n.succ = append(n.succ, next)
		}
		return id

	case *ir.Loop:
		head := b.labels[s.Label]
		b.breaks[s.Label] = next
		b.l.nodes[head].succ = append(b.l.nodes[head].succ, b.block(s.Body, head, ctx))
		return head

	case *ir.Labeled:
		id := b.labels[s.Label]
		b.l.nodes[id].succ = append(b.l.nodes[id].succ, next)
		return id

	case *ir.Try:
		return b.try(s, next, ctx)

	case *ir.Assign:
		id := b.leaf(next, ctx)
		b.uses(id, s.X)
		b.defines(id, s.Var)
		return id

	case *ir.ExprStmt:
		id := b.leaf(next, ctx)
		b.uses(id, s.X)
		return id

	case *ir.AwaitStmt:
		id := b.leaf(next, ctx)
		b.uses(id, s.X)
		if s.Var != "" {
			b.defines(id, s.Var)
		}
		b.l.awaits[s] = id
		return id

	case *ir.Throw:
		id := b.leaf(-1, ctx)
		b.uses(id, s.X)
		return id

	case *ir.Rethrow:
		id := b.leaf(-1, ctx)
		b.uses(id, s.X)
		return id

	case *ir.Return:
		return b.jump(b.exit, ctx)

	case *ir.Break:
		return b.jump(b.breaks[s.Label], ctx)

	case *ir.Continue:
		return b.jump(b.labels[s.Label], ctx)

	case *ir.Goto:
		return b.jump(b.labels[s.Label], ctx)

	case *ir.EndFinally:
		id := b.leaf(next, ctx)
		for _, br := range s.Branches {
			entry := b.stmt(br.Stmt, next, ctx)
			b.l.nodes[id].succ = append(b.l.nodes[id].succ, entry)
		}
		return id
	}
	internalf(PhaseSpill, "unexpected statement in liveness analysis")
	return next
}

func (b *cfgBuilder) try(t *ir.Try, next int, ctx cfgContext) int {
	// Where control goes after the body or a handler completes, and where
	// exceptions raised by the handlers go.
	after, handlerThrow := next, ctx.throw
	inner := ctx
	if t.Finally != nil {
		exit := b.node()
		b.l.nodes[exit].succ = append(b.l.nodes[exit].succ, next)
		b.l.nodes[exit].throw = append(b.l.nodes[exit].throw, ctx.throw...)
		entry := b.block(t.Finally, exit, ctx)
		after, handlerThrow = entry, []int{entry}
		inner.finally = append(ctx.finally[:len(ctx.finally):len(ctx.finally)], finallyNodes{entry, exit})
	}

	// Handlers are matched in order: each handler entry binds the exception
	// variable and evaluates the filter, then continues with the handler
	// body or the next handler.
	fallback := handlerThrow
	for i := len(t.Catches) - 1; i >= 0; i-- {
		c := t.Catches[i]
		hctx := inner
		hctx.throw = handlerThrow
		body := b.block(c.Body, after, hctx)
		id := b.node()
		n := b.l.nodes[id]
		if c.Filter != nil {
			b.uses(id, c.Filter)
		}
		if c.Var != "" {
			if v, ok := b.l.index[c.Var]; ok {
				n.use.clear(v)
			}
			b.defines(id, c.Var)
		}
		n.succ = append(n.succ, body)
		n.throw = append(n.throw, fallback...)
		fallback = []int{id}
	}

	bctx := inner
	bctx.throw = fallback
	return b.block(t.Body, after, bctx)
}

// solve iterates the dataflow equations to a fixed point:
//
//	in[n] = use[n] ∪ (∪ in[succ] − def[n]) ∪ (∪ in[throw])
func (l *liveness) solve() {
	for changed := true; changed; {
		changed = false
		for i := len(l.nodes) - 1; i >= 0; i-- {
			n := l.nodes[i]
			in := l.out(n)
			in.minus(n.def)
			in.union(n.use)
			for _, t := range n.throw {
				in.union(l.nodes[t].in)
			}
			if n.in.union(in) {
				changed = true
			}
		}
	}
}

func (l *liveness) out(n *cfgNode) *bitSet {
	out := newBitSet(len(l.vars))
	for _, s := range n.succ {
		out.union(l.nodes[s].in)
	}
	return out
}

// liveAcross returns the indices of the variables that must survive the
// suspension at an await statement: the variables live after the await
// completes, except its destination, and the variables live in the handlers
// reached when the awaited operation fails (the destination is not assigned
// in that case).
func (l *liveness) liveAcross(a *ir.AwaitStmt) []int {
	id, ok := l.awaits[a]
	if !ok {
		return nil
	}
	n := l.nodes[id]
	live := l.out(n)
	live.minus(n.def)
	for _, t := range n.throw {
		live.union(l.nodes[t].in)
	}
	return live.slice()
}
