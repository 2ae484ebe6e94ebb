// Package resumable executes lowered procedures.
//
// An Instance holds the durable fields of one activation of a
// lir.Procedure. Each call to Resume runs one turn: the body of the
// procedure executes from the start, dispatches on the state field, and
// runs until the procedure completes, faults, or suspends on an awaitable.
// When the awaitable completes, the continuation of the instance is posted
// to its Loop, which runs the next turn.
package resumable

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stealthrocket/resumable/lir"
)

// Instance is an activation of a lowered procedure.
type Instance struct {
	proc *lir.Procedure
	prog *program
	env  *Env
	sink Sink
	loop *Loop
	log  *zap.Logger

	fields Storage

	mu      sync.Mutex
	running bool
	err     error
	turns   int
}

// Start creates an instance of the procedure and runs its first turn. The
// outcome of the procedure is reported to sink; continuations are posted to
// loop.
//
// The error is only non-nil if the instance could not run: exceptions
// thrown by the procedure are delivered to the sink.
func Start(proc *lir.Procedure, env *Env, args []Value, sink Sink, loop *Loop) (*Instance, error) {
	if len(args) != len(proc.Params) {
		return nil, fmt.Errorf("resumable: %s expects %d arguments, got %d", proc.Name, len(proc.Params), len(args))
	}
	inst, err := newInstance(proc, env, sink, loop)
	if err != nil {
		return nil, err
	}
	inst.fields.Set(lir.StateField, int64(lir.NotStarted))
	for i, field := range proc.Params {
		inst.fields.Set(field, normalize(args[i]))
	}
	return inst, inst.Resume()
}

func newInstance(proc *lir.Procedure, env *Env, sink Sink, loop *Loop) (*Instance, error) {
	if sink == nil {
		return nil, errors.New("resumable: nil sink")
	}
	if loop == nil {
		return nil, errors.New("resumable: nil loop")
	}
	if env == nil {
		env = &Env{}
	}
	return &Instance{
		proc:   proc,
		prog:   programOf(proc),
		env:    env,
		sink:   sink,
		loop:   loop,
		log:    Logger().With(zap.String("proc", proc.Name)),
		fields: NewStorage(make([]Value, len(proc.Fields))),
	}, nil
}

// Procedure returns the procedure of the instance.
func (i *Instance) Procedure() *lir.Procedure { return i.proc }

// State returns the value of the state field.
func (i *Instance) State() lir.State {
	s, _ := i.fields.Get(lir.StateField).(int64)
	return lir.State(s)
}

// Field returns the value of a durable field.
func (i *Instance) Field(index int) Value { return i.fields.Get(index) }

// Done reports whether the instance ran to completion.
func (i *Instance) Done() bool { return i.State() == lir.RunningToCompletion }

// Turns returns the number of turns the instance ran.
func (i *Instance) Turns() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.turns
}

// Err returns the internal error that stopped the instance, if any.
func (i *Instance) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

// Resume runs one turn of the instance.
//
// Resuming a completed instance returns ErrCompleted, and resuming an
// instance from within its own turn returns ErrReentrant. Once an internal
// error was returned (ErrUnmappedState, ErrMalformed), it is returned by
// every subsequent call.
func (i *Instance) Resume() error {
	i.mu.Lock()
	switch {
	case i.err != nil:
		err := i.err
		i.mu.Unlock()
		return err
	case i.running:
		i.mu.Unlock()
		return ErrReentrant
	case i.Done():
		i.mu.Unlock()
		return ErrCompleted
	}
	i.running = true
	i.turns++
	i.mu.Unlock()

	start := time.Now()
	state := i.State()
	t := &turn{inst: i, locals: make([]Value, len(i.proc.Locals))}
	c := t.seq(i.proc.Body)

	var err error
	switch c.kind {
	case normal, leave:
	case suspend:
	case fatal:
		err = c.err
	case throw:
		err = fmt.Errorf("%w: exception escaped %s: %v", ErrMalformed, i.proc.Name, c.exception)
	case jump:
		err = fmt.Errorf("%w: undeclared label %q in %s", ErrMalformed, c.label, i.proc.Name)
	}

	i.mu.Lock()
	i.running = false
	if err != nil {
		i.err = err
	}
	i.mu.Unlock()

	if err != nil {
		i.log.Error("turn failed", zap.Stringer("state", state), zap.Error(err))
		return err
	}
	i.log.Debug("turn",
		zap.Stringer("entry", state),
		zap.Stringer("exit", i.State()),
		zap.Duration("elapsed", time.Since(start)))

	if c.kind == suspend {
		// The continuation is registered once the turn is over, so that an
		// awaitable completing concurrently never observes the instance
		// running.
		t.awaiter.OnCompleted(i.continuation)
	}
	return nil
}

func (i *Instance) continuation() {
	i.loop.Post(func() {
		if err := i.Resume(); err != nil && !errors.Is(err, ErrCompleted) {
			i.log.Error("resuming instance", zap.Error(err))
		}
	})
}

// Run starts an instance of the procedure and runs the loop until the
// instance completes. The loop must not be shared with other goroutines.
func Run(proc *lir.Procedure, env *Env, args ...Value) (Value, error) {
	loop := NewLoop()
	future := NewFuture()
	inst, err := Start(proc, env, args, future, loop)
	if err != nil {
		return nil, err
	}
	for !future.IsCompleted() {
		if loop.RunUntilIdle() == 0 {
			if err := inst.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("resumable: %s is suspended on an awaitable that never completes", proc.Name)
		}
	}
	if err := inst.Err(); err != nil {
		return nil, err
	}
	return future.GetResult()
}
