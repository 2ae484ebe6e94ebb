package compiler

import (
	"fmt"

	"github.com/stealthrocket/resumable/ir"
)

// RegionKind is the kind of a region of a RegionTree.
type RegionKind uint8

const (
	RegionBlock RegionKind = iota
	RegionTry
	RegionLoop
	RegionLeaf
	RegionIf
	RegionHandler
)

func (k RegionKind) String() string {
	switch k {
	case RegionBlock:
		return "block"
	case RegionTry:
		return "try"
	case RegionLoop:
		return "loop"
	case RegionLeaf:
		return "leaf"
	case RegionIf:
		return "if"
	case RegionHandler:
		return "handler"
	default:
		return fmt.Sprintf("RegionKind(%d)", uint8(k))
	}
}

// RegionID identifies a region. Ids are assigned in document order.
type RegionID int

// Region is a node of a RegionTree.
//
// The children of a Try region are its body (a Block region), then one
// Handler region per catch clause, then a Handler region for the finally
// block when there is one.
type Region struct {
	ID       RegionID
	Kind     RegionKind
	Parent   *Region
	Children []*Region

	// Node is the statement the region was built from: an *ir.Block, *ir.If,
	// *ir.Loop or *ir.Try, a leaf statement, or the *ir.Catch (or the finally
	// *ir.Block) of a Handler region.
	Node ir.Node

	// Suspends is true if the region contains a suspension point.
	Suspends bool
}

// SuspensionPoint is an await statement, with the protected regions and
// loops enclosing it.
type SuspensionPoint struct {
	Leaf  *Region
	Await *ir.AwaitStmt

	// Active lists the Try and Loop regions enclosing the suspension point,
	// innermost first.
	Active []RegionID
}

// RegionTree mirrors the lexical nesting of a procedure.
type RegionTree struct {
	Root    *Region
	Regions []*Region
	Points  []*SuspensionPoint

	nodes map[any]*Region
}

// BuildRegionTree builds the region tree of a procedure. Suspension points
// are the await statements of the tree; await expressions nested in other
// expressions must have been hoisted beforehand.
func BuildRegionTree(fn *ir.Func) *RegionTree {
	t := &RegionTree{nodes: map[any]*Region{}}
	t.Root = t.block(nil, fn.Body, nil)
	return t
}

// Lookup returns the region built from a node, or nil.
func (t *RegionTree) Lookup(n ir.Node) *Region { return t.nodes[n] }

// Region returns the region with the given id.
func (t *RegionTree) Region(id RegionID) *Region { return t.Regions[id] }

// Suspends reports whether the subtree rooted at a node contains a
// suspension point.
func (t *RegionTree) Suspends(n ir.Node) bool {
	if r := t.nodes[n]; r != nil {
		return r.Suspends
	}
	return false
}

func (t *RegionTree) add(parent *Region, kind RegionKind, n ir.Node) *Region {
	return t.addKey(parent, kind, n, n)
}

func (t *RegionTree) addKey(parent *Region, kind RegionKind, n ir.Node, key any) *Region {
	r := &Region{ID: RegionID(len(t.Regions)), Kind: kind, Parent: parent, Node: n}
	t.Regions = append(t.Regions, r)
	if parent != nil {
		parent.Children = append(parent.Children, r)
	}
	t.nodes[key] = r
	return r
}

// Finally returns the Handler region of the finally block of a Try, or nil.
func (t *RegionTree) Finally(try *ir.Try) *Region { return t.nodes[finallyKey{try}] }

// active is the stack of enclosing Try and Loop regions, innermost last.
func (t *RegionTree) block(parent *Region, b *ir.Block, active []RegionID) *Region {
	r := t.add(parent, RegionBlock, b)
	for _, s := range b.List {
		t.stmt(r, s, active)
	}
	return r
}

func (t *RegionTree) stmt(parent *Region, s ir.Stmt, active []RegionID) {
	switch s := s.(type) {
	case *ir.Block:
		t.block(parent, s, active)
	case *ir.If:
		r := t.add(parent, RegionIf, s)
		t.block(r, s.Then, active)
		if s.Else != nil {
			t.block(r, s.Else, active)
		}
	case *ir.Loop:
		r := t.add(parent, RegionLoop, s)
		t.block(r, s.Body, push(active, r.ID))
	case *ir.Try:
		r := t.add(parent, RegionTry, s)
		active = push(active, r.ID)
		t.block(r, s.Body, active)
		for _, c := range s.Catches {
			h := t.add(r, RegionHandler, c)
			t.block(h, c.Body, active)
		}
		if s.Finally != nil {
			h := t.addKey(r, RegionHandler, s.Finally, finallyKey{s})
			t.block(h, s.Finally, active)
		}
	default:
		r := t.add(parent, RegionLeaf, s)
		if await, ok := s.(*ir.AwaitStmt); ok {
			stack := make([]RegionID, len(active))
			for i, id := range active {
				stack[len(active)-1-i] = id
			}
			t.Points = append(t.Points, &SuspensionPoint{Leaf: r, Await: await, Active: stack})
			for ; r != nil; r = r.Parent {
				r.Suspends = true
			}
		}
	}
}

// finallyKey indexes the Handler region of a finally block (the finally
// *ir.Block itself indexes its Block region).
type finallyKey struct{ try *ir.Try }

func push(stack []RegionID, id RegionID) []RegionID {
	return append(stack[:len(stack):len(stack)], id)
}
