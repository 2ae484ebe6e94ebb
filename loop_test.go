package resumable_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stealthrocket/resumable"
)

func TestLoopRunUntilIdle(t *testing.T) {
	loop := resumable.NewLoop()
	var order []int
	loop.Post(func() {
		order = append(order, 1)
		loop.Post(func() { order = append(order, 3) })
	})
	loop.Post(func() { order = append(order, 2) })

	require.Equal(t, 2, loop.Len())
	require.Equal(t, 3, loop.RunUntilIdle())
	require.Equal(t, []int{1, 2, 3}, order)
	require.Equal(t, 0, loop.RunUntilIdle())
}

func TestLoopRun(t *testing.T) {
	loop := resumable.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	ran := make(chan struct{})
	loop.Post(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestFutureContinuations(t *testing.T) {
	f := resumable.NewFuture()
	require.False(t, f.IsCompleted())

	calls := 0
	f.OnCompleted(func() { calls++ })
	f.Succeed("ok")
	require.Equal(t, 1, calls)

	f.OnCompleted(func() { calls++ })
	require.Equal(t, 2, calls)

	v, err := f.GetResult()
	require.NoError(t, err)
	require.Equal(t, "ok", v)

	require.Panics(t, func() { f.Succeed("again") })
}

func TestFailedFuture(t *testing.T) {
	ex := resumable.NewException("E", "boom")
	_, err := resumable.Failed(ex).GetResult()
	require.Same(t, ex, err)
}
