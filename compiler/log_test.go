package compiler

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/stealthrocket/resumable/ir"
)

func TestSetLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))
	compile(t, "", "- await: a()\n")
	if n := logs.FilterMessage("lowered procedure").Len(); n != 1 {
		t.Errorf("want 1 log entry, got %d", n)
	}

	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("resetting the logger left it nil")
	}
	compile(t, "", "- await: a()\n")
	if n := logs.FilterMessage("lowered procedure").Len(); n != 1 {
		t.Errorf("the previous logger is still in use: %d entries", n)
	}
}

func TestSetLoggerConcurrently(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	fns := []*ir.Func{
		load(t, "", "- await: a()\n"),
		load(t, "", "- do: b()\n"),
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				SetLogger(zap.NewNop())
				_ = Logger()
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := CompileAll(context.Background(), fns); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
}
