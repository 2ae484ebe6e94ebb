package compiler

import (
	"errors"
	"strings"
)

// Phase indicates which pass of the compiler reported an error.
type Phase string

const (
	PhaseValidate Phase = "validate"
	PhaseDesugar  Phase = "desugar"
	PhaseRegions  Phase = "regions"
	PhaseHandlers Phase = "handlers"
	PhaseSpill    Phase = "spill"
	PhaseLower    Phase = "lower"
)

// Kind categorizes a compiler error.
type Kind string

const (
	// KindUnsupported reports a construct the rewriter does not accept, such
	// as a suspension point inside a catch filter.
	KindUnsupported Kind = "unsupported"

	// KindInvalidBranch reports a break, continue, goto or rethrow without a
	// valid target.
	KindInvalidBranch Kind = "invalid_branch"

	// KindInvalidTree reports a malformed statement tree (unknown variable,
	// duplicate label, missing block...).
	KindInvalidTree Kind = "invalid_tree"

	// KindInternal reports a bug in the compiler. Internal errors are never
	// caused by the input procedure.
	KindInternal Kind = "internal"
)

// Error is the structured error returned by the compiler.
type Error struct {
	Phase  Phase
	Kind   Kind
	Func   string
	Detail string
	Cause  error
}

// ErrInternal matches every internal compiler error with errors.Is.
var ErrInternal = &Error{Kind: KindInternal}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))
	if e.Func != "" {
		b.WriteString(" in ")
		b.WriteString(e.Func)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same kind. The phase is
// only compared when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Phase == "" || e.Phase == t.Phase)
}

// IsInternal reports whether err is (or wraps) an internal compiler error.
func IsInternal(err error) bool { return errors.Is(err, ErrInternal) }

// internalError is raised with panic by the passes when they detect a
// broken invariant, and turned into an *Error by Compile.
type internalError struct{ err *Error }

func internalf(phase Phase, detail string) {
	panic(internalError{&Error{Phase: phase, Kind: KindInternal, Detail: detail}})
}
