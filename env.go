package resumable

import (
	"errors"
	"fmt"
)

// Func is a host function callable from a procedure. Calls are
// synchronous. A function throws by returning an error: *Exception values
// are thrown as they are, other errors are wrapped in a HostError
// exception.
type Func func(args ...Value) (Value, error)

// Env holds the host functions available to procedures.
type Env struct {
	Funcs map[string]Func
}

func (e *Env) lookup(name string) (Func, bool) {
	if e != nil {
		if fn, ok := e.Funcs[name]; ok {
			return fn, true
		}
	}
	fn, ok := builtins[name]
	return fn, ok
}

// Builtins are available to every procedure, unless an Env function of the
// same name shadows them.
var builtins = map[string]Func{
	// exception(type, message) creates an exception.
	"exception": func(args ...Value) (Value, error) {
		if len(args) != 2 {
			return nil, argumentError("exception", 2, len(args))
		}
		typ, ok1 := args[0].(string)
		msg, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, typeError("exception(type, message) expects strings")
		}
		return NewException(typ, msg), nil
	},

	// completed(v) returns an awaitable already completed with v.
	"completed": func(args ...Value) (Value, error) {
		if len(args) != 1 {
			return nil, argumentError("completed", 1, len(args))
		}
		return Completed(args[0]), nil
	},

	// failed(ex) returns an awaitable already completed with ex.
	"failed": func(args ...Value) (Value, error) {
		if len(args) != 1 {
			return nil, argumentError("failed", 1, len(args))
		}
		ex, ok := args[0].(*Exception)
		if !ok {
			return nil, typeError("failed(ex) expects an exception")
		}
		return Failed(ex), nil
	},

	// message(ex) returns the message of an exception.
	"message": func(args ...Value) (Value, error) {
		if len(args) != 1 {
			return nil, argumentError("message", 1, len(args))
		}
		ex, ok := args[0].(*Exception)
		if !ok {
			return nil, typeError("message(ex) expects an exception")
		}
		return ex.Message, nil
	},
}

func argumentError(fn string, want, got int) *Exception {
	return NewException("Argument", fmt.Sprintf("%s expects %d arguments, got %d", fn, want, got))
}

// hostException converts the error returned by a host function to the
// exception thrown in the procedure.
func hostException(err error, site string) *Exception {
	var ex *Exception
	if !errors.As(err, &ex) {
		return (&Exception{Type: "HostError", Message: err.Error()}).throw(site)
	}
	if len(ex.Trace) == 0 {
		ex.throw(site)
	}
	return ex
}
