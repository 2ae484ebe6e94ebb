package resumable

import (
	"fmt"
	"strings"
)

// ExceptionType is the type name matched by every handler.
const ExceptionType = "Exception"

// traceBoundary separates the frames recorded before an exception was
// captured from the frames recorded when it was thrown again.
const traceBoundary = "--- end of stack trace from previous location ---"

// Exception is a user-level exception raised by a procedure or a host
// function.
//
// Exceptions are compared by identity: a rethrown exception is the same
// *Exception value, with its trace extended.
type Exception struct {
	Type    string
	Message string

	// Value is the payload of exceptions created from a value that was not
	// an exception.
	Value Value

	// Trace lists the sites the exception was thrown from, oldest first.
	Trace []string
}

// NewException creates an exception of the given type.
func NewException(typ, message string) *Exception {
	if typ == "" {
		typ = ExceptionType
	}
	return &Exception{Type: typ, Message: message}
}

func (e *Exception) Error() string {
	if e.Message == "" {
		return e.Type
	}
	return e.Type + ": " + e.Message
}

// Matches reports whether a handler for typ catches the exception. The empty
// type and ExceptionType match everything.
func (e *Exception) Matches(typ string) bool {
	return typ == "" || typ == ExceptionType || typ == e.Type
}

// StackTrace returns the trace as a multi-line string.
func (e *Exception) StackTrace() string {
	var b strings.Builder
	for i, site := range e.Trace {
		if i > 0 {
			b.WriteByte('\n')
		}
		if site != traceBoundary {
			b.WriteString("   at ")
		}
		b.WriteString(site)
	}
	return b.String()
}

// throw resets the trace of the exception.
func (e *Exception) throw(site string) *Exception {
	e.Trace = []string{site}
	return e
}

// Captured is an exception captured with its stack trace, so that it can be
// thrown again later from a different site without losing the trace.
type Captured struct {
	ex    *Exception
	trace []string
}

// Capture captures the exception and its current trace.
func Capture(ex *Exception) Captured {
	return Captured{ex: ex, trace: append([]string(nil), ex.Trace...)}
}

// Exception returns the captured exception.
func (c Captured) Exception() *Exception { return c.ex }

// Throw restores the captured trace, marks the boundary and records the new
// throw site. The exception keeps its identity.
func (c Captured) Throw(site string) *Exception {
	trace := make([]string, 0, len(c.trace)+2)
	trace = append(trace, c.trace...)
	trace = append(trace, traceBoundary, site)
	c.ex.Trace = trace
	return c.ex
}

// toException converts a thrown value to an exception.
func toException(v Value) *Exception {
	switch v := v.(type) {
	case *Exception:
		if v == nil {
			return NewException("NullReference", "throw of a nil exception")
		}
		return v
	case nil:
		return NewException("NullReference", "throw of a nil exception")
	case error:
		return &Exception{Type: ExceptionType, Message: v.Error(), Value: v}
	default:
		return &Exception{Type: ExceptionType, Message: fmt.Sprint(v), Value: v}
	}
}
