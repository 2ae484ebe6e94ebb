package resumable

import "sync"

// Value is a runtime value: nil, bool, int64, string, *Exception, or any
// value handed over by a host function (awaitables in particular).
type Value = any

// Awaitable is the suspension mechanism consumed by lowered procedures.
type Awaitable interface {
	// IsCompleted reports whether the result is available.
	IsCompleted() bool

	// OnCompleted registers a continuation, invoked once when the
	// awaitable completes. It may be invoked immediately if the awaitable
	// has already completed.
	OnCompleted(func())

	// GetResult returns the value of a completed awaitable, or the
	// *Exception it completed with.
	GetResult() (Value, error)
}

// Sink receives the outcome of a procedure instance.
type Sink interface {
	Succeed(Value)
	Fail(*Exception)
}

// Future is a value that completes once. It is both a Sink, which makes it
// the natural completion target of a procedure instance, and an Awaitable,
// so that another procedure can await it.
type Future struct {
	mu            sync.Mutex
	done          bool
	value         Value
	exception     *Exception
	continuations []func()
}

var (
	_ Awaitable = (*Future)(nil)
	_ Sink      = (*Future)(nil)
)

// NewFuture creates a future that has not completed yet.
func NewFuture() *Future { return &Future{} }

// Completed returns a future already completed with v.
func Completed(v Value) *Future { return &Future{done: true, value: v} }

// Failed returns a future already completed with the exception.
func Failed(ex *Exception) *Future { return &Future{done: true, exception: ex} }

// IsCompleted reports whether the future completed.
func (f *Future) IsCompleted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// OnCompleted registers a continuation. Continuations registered after the
// future completed run immediately.
func (f *Future) OnCompleted(k func()) {
	f.mu.Lock()
	if !f.done {
		f.continuations = append(f.continuations, k)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	k()
}

// GetResult returns the outcome of the future. It panics if the future has
// not completed.
func (f *Future) GetResult() (Value, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.done {
		panic("resumable.Future: result requested before completion")
	}
	if f.exception != nil {
		return nil, f.exception
	}
	return f.value, nil
}

// Result returns the outcome of the future, and whether it completed.
func (f *Future) Result() (Value, *Exception, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.exception, f.done
}

// Succeed completes the future with v.
func (f *Future) Succeed(v Value) { f.complete(v, nil) }

// Fail completes the future with the exception.
func (f *Future) Fail(ex *Exception) { f.complete(nil, ex) }

func (f *Future) complete(v Value, ex *Exception) {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		panic("resumable.Future: completed twice")
	}
	f.done, f.value, f.exception = true, v, ex
	continuations := f.continuations
	f.continuations = nil
	f.mu.Unlock()

	for _, k := range continuations {
		k()
	}
}
