package ir

import "fmt"

// PendingKind identifies the exit path a suspending finally block must take
// once it completes.
type PendingKind uint8

const (
	// PendingFallThrough continues with the statement following the
	// protected region.
	PendingFallThrough PendingKind = iota
	PendingReturn
	PendingRethrow
	PendingGoto
	PendingLoopContinue
	PendingLoopBreak
)

func (k PendingKind) String() string {
	switch k {
	case PendingFallThrough:
		return "fallthrough"
	case PendingReturn:
		return "return"
	case PendingRethrow:
		return "rethrow"
	case PendingGoto:
		return "goto"
	case PendingLoopContinue:
		return "continue"
	case PendingLoopBreak:
		return "break"
	default:
		return fmt.Sprintf("PendingKind(%d)", uint8(k))
	}
}

// PendingBranch is one control transfer that was deferred until a finally
// block completes. Tag is the non-zero value stored in the pending branch
// slot; Stmt is the original transfer, executed once the finally completes.
type PendingBranch struct {
	Tag    int
	Kind   PendingKind
	Target string
	Stmt   Stmt
}

// EndFinally is synthesized by the compiler at the end of a finally block
// that was moved out of its protected region. It consults the pending
// exception and pending branch variables (clearing them) and performs the
// deferred exit: rethrow, one of Branches, or fall through.
type EndFinally struct {
	Exception string
	Branch    string
	Branches  []*PendingBranch

	// Region is the protected region whose finally block completes here.
	Region *Try
}

func (*EndFinally) node()     {}
func (*EndFinally) stmtNode() {}
