package resumable

import (
	"context"
	"sync"
)

// Loop is a single-threaded run queue. Continuations of suspended instances
// are posted to the loop, so an instance is never resumed from within the
// turn that suspended it.
//
// Post may be called from any goroutine; the tasks run on the goroutine
// calling RunUntilIdle or Run.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

// NewLoop creates an empty loop.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post appends a task to the queue.
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

// RunUntilIdle runs tasks until the queue is empty, including the tasks
// posted while running. It returns the number of tasks that ran.
func (l *Loop) RunUntilIdle() int {
	n := 0
	for {
		task, ok := l.next()
		if !ok {
			return n
		}
		task()
		n++
	}
}

// Run runs tasks as they are posted until the context is canceled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunUntilIdle()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}
