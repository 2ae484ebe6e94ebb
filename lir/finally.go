package lir

import "fmt"

// FinallyState is the state of a finally block that was moved out of its
// protected region. It is Running from the moment the region is left until
// the EndFinally statement executes, which settles it.
type FinallyState uint8

const (
	FinallyRunning FinallyState = iota
	FinallyCompletedNormally
	FinallyCompletedWithPendingBranch
	FinallyCompletedWithPendingException
)

func (s FinallyState) String() string {
	switch s {
	case FinallyRunning:
		return "running"
	case FinallyCompletedNormally:
		return "completed-normally"
	case FinallyCompletedWithPendingBranch:
		return "completed-with-pending-branch"
	case FinallyCompletedWithPendingException:
		return "completed-with-pending-exception"
	default:
		return fmt.Sprintf("FinallyState(%d)", uint8(s))
	}
}

// Settle returns the terminal state of a finally block given the content of
// its pending slots. A pending exception takes precedence over a pending
// branch: the region was left by the exception.
func Settle(exception bool, branch int64) FinallyState {
	switch {
	case exception:
		return FinallyCompletedWithPendingException
	case branch != 0:
		return FinallyCompletedWithPendingBranch
	default:
		return FinallyCompletedNormally
	}
}
