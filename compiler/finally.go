package compiler

import (
	"github.com/stealthrocket/resumable/ir"
)

// rewriteFinally rewrites a try/finally whose finally block contains a
// suspension point. The finally block cannot stay a native finally: it is
// moved after the protected region and runs unprotected, and the way the
// region was left is recorded in the pending slots so that it can be
// resumed once the finally block completes.
//
//	_pex0 = nil
//	_pb0 = 0
//	try {
//		B              (branches leaving B become: _pb0 = k; goto _fin0)
//	} catch _x0 {
//		_pex0 = _x0
//	}
//	_fin0:
//	F
//	endfinally _pex0 _pb0 [k: branch, ...]
//
// The pending slots are reset on every entry into the region, so a value
// left behind by a finally block that threw (superseding the pending
// exception) is never consulted.
func (r *handlerRewriter) rewriteFinally(t *ir.Try, depth int) ir.Stmt {
	slots := r.slots(depth)
	fin := r.newLabel()
	x := r.newVar("_x", &r.exceptions, ir.Exception)

	body := r.block(t.Body, depth)
	p := &proxy{
		label:  fin,
		branch: slots.branch,
		inner:  declaredTargets(body),
		tags:   map[pendingKey]*ir.PendingBranch{},
	}
	body = p.block(body)

	return &ir.Block{List: []ir.Stmt{
		&ir.Assign{Var: slots.exception, X: ir.Nil()},
		&ir.Assign{Var: slots.branch, X: ir.IntConst(0)},
		&ir.Try{
			Body: body,
			Catches: []*ir.Catch{{
				Var:  x,
				Body: ir.Seq(&ir.Assign{Var: slots.exception, X: ir.Ref(x)}),
			}},
			Origin: origin(t),
		},
		&ir.Labeled{Label: fin},
		r.block(t.Finally, depth+1),
		&ir.EndFinally{
			Exception: slots.exception,
			Branch:    slots.branch,
			Branches:  p.branches,
			Region:    origin(t),
		},
	}}
}

type pendingKey struct {
	kind   ir.PendingKind
	target string
}

// proxy replaces the branches leaving a protected region with assignments
// of the pending branch slot followed by a jump to the finally block.
type proxy struct {
	label    string
	branch   string
	inner    map[string]bool
	tags     map[pendingKey]*ir.PendingBranch
	branches []*ir.PendingBranch
}

// declaredTargets returns the labels and loop labels declared in a block.
func declaredTargets(b *ir.Block) map[string]bool {
	labels := map[string]bool{}
	ir.Inspect(b, func(n ir.Node) bool {
		switch n := n.(type) {
		case *ir.Labeled:
			labels[n.Label] = true
		case *ir.Loop:
			labels[n.Label] = true
		}
		return true
	})
	return labels
}

func (p *proxy) block(b *ir.Block) *ir.Block {
	if b == nil {
		return nil
	}
	out := &ir.Block{List: make([]ir.Stmt, len(b.List))}
	for i, s := range b.List {
		out.List[i] = p.stmt(s)
	}
	return out
}

func (p *proxy) stmt(s ir.Stmt) ir.Stmt {
	switch s := s.(type) {
	case *ir.Block:
		return p.block(s)
	case *ir.If:
		return &ir.If{Cond: s.Cond, Then: p.block(s.Then), Else: p.block(s.Else)}
	case *ir.Loop:
		return &ir.Loop{Label: s.Label, Body: p.block(s.Body)}
	case *ir.Try:
		t := &ir.Try{Body: p.block(s.Body), Finally: s.Finally, Origin: origin(s)}
		for _, c := range s.Catches {
			t.Catches = append(t.Catches, &ir.Catch{Type: c.Type, Var: c.Var, Filter: c.Filter, Body: p.block(c.Body)})
		}
		return t
	case *ir.EndFinally:
		end := &ir.EndFinally{Exception: s.Exception, Branch: s.Branch, Region: s.Region}
		for _, b := range s.Branches {
			end.Branches = append(end.Branches, &ir.PendingBranch{
				Tag:    b.Tag,
				Kind:   b.Kind,
				Target: b.Target,
				Stmt:   p.stmt(b.Stmt),
			})
		}
		return end
	case *ir.Return:
		return p.leave(ir.PendingReturn, "", s)
	case *ir.Break:
		if !p.inner[s.Label] {
			return p.leave(ir.PendingLoopBreak, s.Label, s)
		}
	case *ir.Continue:
		if !p.inner[s.Label] {
			return p.leave(ir.PendingLoopContinue, s.Label, s)
		}
	case *ir.Goto:
		if !p.inner[s.Label] {
			return p.leave(ir.PendingGoto, s.Label, s)
		}
	}
	return s
}

func (p *proxy) leave(kind ir.PendingKind, target string, s ir.Stmt) ir.Stmt {
	key := pendingKey{kind, target}
	b := p.tags[key]
	if b == nil {
		b = &ir.PendingBranch{Tag: len(p.branches) + 1, Kind: kind, Target: target, Stmt: s}
		p.tags[key] = b
		p.branches = append(p.branches, b)
	}
	return ir.Seq(
		&ir.Assign{Var: p.branch, X: ir.IntConst(int64(b.Tag))},
		&ir.Goto{Label: p.label},
	)
}
