package lir

import (
	"github.com/stealthrocket/resumable/ir"
)

// Stmt is a lowered statement.
type Stmt interface{ stmtNode() }

// Expr is a lowered expression.
type Expr interface{ exprNode() }

// Ref is an assignable location: a LocalRef or a FieldRef.
type Ref interface {
	Expr
	refNode()
}

// Seq is a sequence of statements.
type Seq struct {
	List []Stmt
}

// Label marks a goto target.
type Label struct {
	Name string
}

// Goto jumps to a label.
type Goto struct {
	Label string
}

// CondGoto jumps to a label when Cond is true.
type CondGoto struct {
	Cond  Expr
	Label string
}

// Case maps a state to the label where dispatch continues.
type Case struct {
	State State
	Label string
}

// Switch dispatches on the state field. When no case matches, execution
// continues with the next statement. A Total switch is the entry dispatch
// of the procedure: a state that is neither NotStarted nor listed in Cases
// is an internal error.
type Switch struct {
	Cases []Case
	Total bool
}

// Assign stores the value of X into Dst.
type Assign struct {
	Dst Ref
	X   Expr
}

// Eval evaluates X for its side effects.
type Eval struct {
	X Expr
}

// Try is a native protected region. Region is the id of the source region
// it was derived from.
type Try struct {
	Region   int
	Body     *Seq
	Handlers []*Handler
	Finally  *Seq
}

// Handler is a native catch clause. Var (which may be nil) receives the
// exception before Filter is evaluated.
type Handler struct {
	Type   string
	Var    *LocalRef
	Filter Expr
	Body   *Seq
}

// Throw raises X with a new stack trace starting at Site.
type Throw struct {
	X    Expr
	Site string
}

// Rethrow raises the exception X again, preserving its identity and its
// stack trace, using the capture-and-throw primitive of the runtime.
type Rethrow struct {
	X    Expr
	Site string
}

// Suspend registers the continuation of the procedure with the awaitable
// and ends the current turn. The state field must already hold State.
type Suspend struct {
	State   State
	Awaiter Expr
}

// BranchCase maps a pending branch tag to the label of the deferred
// control transfer.
type BranchCase struct {
	Tag   int
	Kind  ir.PendingKind
	Label string
}

// EndFinally completes a finally block that was moved out of its protected
// region. If the pending exception field is set, it is cleared and the
// exception is rethrown (identity preserving). Otherwise, if the pending
// branch field is non-zero, it is cleared and control jumps to the
// matching case. Otherwise execution falls through.
type EndFinally struct {
	Region    int
	Exception *FieldRef
	Branch    *FieldRef
	Cases     []BranchCase
}

// Complete reports successful completion of the procedure to its sink.
type Complete struct {
	X Expr
}

// Fault reports the failure of the procedure to its sink.
type Fault struct {
	X Expr
}

// Leave ends the current turn.
type Leave struct{}

func (*Seq) stmtNode()        {}
func (*Label) stmtNode()      {}
func (*Goto) stmtNode()       {}
func (*CondGoto) stmtNode()   {}
func (*Switch) stmtNode()     {}
func (*Assign) stmtNode()     {}
func (*Eval) stmtNode()       {}
func (*Try) stmtNode()        {}
func (*Throw) stmtNode()      {}
func (*Rethrow) stmtNode()    {}
func (*Suspend) stmtNode()    {}
func (*EndFinally) stmtNode() {}
func (*Complete) stmtNode()   {}
func (*Fault) stmtNode()      {}
func (*Leave) stmtNode()      {}

// Const is a literal value.
type Const struct {
	Value any
}

// LocalRef references a per-turn local by index.
type LocalRef struct {
	Index int
}

// FieldRef references a durable field by index.
type FieldRef struct {
	Index int
}

// Call invokes a host function.
type Call struct {
	Fn   string
	Args []Expr
}

// Binary applies a binary operator.
type Binary struct {
	Op ir.Op
	X  Expr
	Y  Expr
}

// Not is boolean negation.
type Not struct {
	X Expr
}

// Completed reports whether the awaitable X has already completed.
type Completed struct {
	X Expr
}

// Result retrieves the outcome of the completed awaitable X: its value, or
// the exception it completed with (which is thrown).
type Result struct {
	X Expr
}

// Suspending is true while the current turn is leaving to suspend (the
// state field holds a suspension state). Native finally blocks enclosing a
// suspension point are skipped in that case.
type Suspending struct{}

func (*Const) exprNode()      {}
func (*LocalRef) exprNode()   {}
func (*FieldRef) exprNode()   {}
func (*Call) exprNode()       {}
func (*Binary) exprNode()     {}
func (*Not) exprNode()        {}
func (*Completed) exprNode()  {}
func (*Result) exprNode()     {}
func (*Suspending) exprNode() {}

func (*LocalRef) refNode() {}
func (*FieldRef) refNode() {}

// StateRef returns a reference to the state field.
func StateRef() *FieldRef { return &FieldRef{Index: StateField} }

// SetState returns the assignment of s to the state field.
func SetState(s State) *Assign {
	return &Assign{Dst: StateRef(), X: &Const{Value: int64(s)}}
}
