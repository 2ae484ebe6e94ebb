// Package ir is the structured statement tree handed to the compiler by the
// binder.
//
// The tree mirrors the lexical nesting of the source procedure: blocks,
// conditionals, loops and protected regions (try/catch/finally), with leaf
// statements that may suspend (await). Names are already resolved: every
// identifier referenced by a Local expression is declared either as a
// parameter or as a variable of the enclosing Func.
package ir

import "fmt"

// Type is the static type of a variable. Values are dynamically typed at
// runtime; the static type is used to decide which variables may share a
// durable storage slot.
type Type uint8

const (
	Any Type = iota
	Int
	Bool
	String
	Exception
)

func (t Type) String() string {
	switch t {
	case Any:
		return "any"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Exception:
		return "exception"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Var is a variable declared by a procedure.
type Var struct {
	Name string
	Type Type

	// Hoisted is true if the variable already lives in durable storage
	// (for example because a closure captured it). Hoisted variables are
	// never spilled.
	Hoisted bool

	// Param is true for the procedure parameters. Parameters are always
	// hoisted.
	Param bool

	// Synthetic is true for variables introduced by the compiler.
	Synthetic bool
}

// Durable reports whether the variable survives suspension without being
// spilled.
func (v *Var) Durable() bool { return v.Hoisted || v.Param }

// Func is a suspendable procedure.
type Func struct {
	Name   string
	Params []*Var
	Vars   []*Var
	Body   *Block
}

// Lookup returns the variable or parameter with the given name, or nil.
func (f *Func) Lookup(name string) *Var {
	for _, p := range f.Params {
		if p.Name == name {
			return p
		}
	}
	for _, v := range f.Vars {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// Declare adds a variable to the procedure. Declaring a name twice returns
// the existing variable.
func (f *Func) Declare(v *Var) *Var {
	if existing := f.Lookup(v.Name); existing != nil {
		return existing
	}
	f.Vars = append(f.Vars, v)
	return v
}

// Node is implemented by every statement, expression and catch clause, and
// by Func.
type Node interface{ node() }

func (*Func) node() {}

// Stmt is a statement of the tree.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression of the tree.
type Expr interface {
	Node
	fmt.Stringer
	exprNode()
}

// Block is a sequence of statements.
type Block struct {
	List []Stmt
}

// If executes Then when Cond is true, and Else (which may be nil) otherwise.
type If struct {
	Cond Expr
	Then *Block
	Else *Block
}

// While is a pre-tested loop. It is desugared into a Loop.
type While struct {
	Label string
	Cond  Expr
	Body  *Block
}

// Loop repeats Body until a Break targeting its label. Continue restarts
// the body.
type Loop struct {
	Label string
	Body  *Block
}

// Try is a protected region. Catches are tried in order; Finally (which may
// be nil) runs on every exit.
type Try struct {
	Body    *Block
	Catches []*Catch
	Finally *Block

	// Origin links a protected region synthesized by the compiler (when
	// splitting try/catch/finally) to the region it was derived from.
	Origin *Try
}

// Catch is one handler of a Try. An empty Type matches every exception.
// Filter, when set, is evaluated with Var bound to the exception and the
// handler only matches if it yields true.
type Catch struct {
	Type   string
	Var    string
	Filter Expr
	Body   *Block
}

// Labeled marks the position of a goto target within its block.
type Labeled struct {
	Label string
}

// Assign evaluates X and stores the result in the variable Var.
type Assign struct {
	Var string
	X   Expr
}

// ExprStmt evaluates X for its side effects.
type ExprStmt struct {
	X Expr
}

// AwaitStmt is a suspension point: X is evaluated to an awaitable, the
// procedure suspends until it completes, and the result is stored in Var
// (when not empty).
type AwaitStmt struct {
	Var string
	X   Expr
}

// Throw raises a new exception (or re-raises X with a fresh stack trace).
type Throw struct {
	X Expr
}

// Rethrow re-raises the exception bound by the enclosing catch clause,
// preserving its identity and stack trace. X is nil in source trees and set
// to the catch variable by the compiler.
type Rethrow struct {
	X Expr
}

// Return exits the procedure. X may be nil.
type Return struct {
	X Expr
}

// Break exits the loop with the given label (the innermost loop when empty).
type Break struct {
	Label string
}

// Continue restarts the loop with the given label (the innermost loop when
// empty).
type Continue struct {
	Label string
}

// Goto transfers control to a Labeled statement of the same or of an
// enclosing block.
type Goto struct {
	Label string
}

func (*Block) node()     {}
func (*If) node()        {}
func (*While) node()     {}
func (*Loop) node()      {}
func (*Try) node()       {}
func (*Catch) node()     {}
func (*Labeled) node()   {}
func (*Assign) node()    {}
func (*ExprStmt) node()  {}
func (*AwaitStmt) node() {}
func (*Throw) node()     {}
func (*Rethrow) node()   {}
func (*Return) node()    {}
func (*Break) node()     {}
func (*Continue) node()  {}
func (*Goto) node()      {}

func (*Block) stmtNode()     {}
func (*If) stmtNode()        {}
func (*While) stmtNode()     {}
func (*Loop) stmtNode()      {}
func (*Try) stmtNode()       {}
func (*Labeled) stmtNode()   {}
func (*Assign) stmtNode()    {}
func (*ExprStmt) stmtNode()  {}
func (*AwaitStmt) stmtNode() {}
func (*Throw) stmtNode()     {}
func (*Rethrow) stmtNode()   {}
func (*Return) stmtNode()    {}
func (*Break) stmtNode()     {}
func (*Continue) stmtNode()  {}
func (*Goto) stmtNode()      {}
