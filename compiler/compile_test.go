package compiler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/stealthrocket/resumable/internal/source"
	"github.com/stealthrocket/resumable/ir"
	"github.com/stealthrocket/resumable/lir"
)

func compile(t *testing.T, vars, body string) *lir.Procedure {
	t.Helper()
	proc, err := Compile(load(t, vars, body))
	if err != nil {
		t.Fatal(err)
	}
	return proc
}

func fieldNames(p *lir.Procedure) (names []string) {
	for _, f := range p.Fields {
		names = append(names, f.Name)
	}
	return
}

func TestCompileSynchronous(t *testing.T) {
	proc := compile(t, "x", `
- set: x = 0
- while: x < 3
  body:
    - try:
        - set: x = x + 1
      catch:
        - body:
            - do: log()
      finally:
        - do: log()
- return: x
`)
	if len(proc.States) != 0 {
		t.Errorf("want no states, got %d", len(proc.States))
	}
	// Regions without suspension points cost nothing beyond the state field.
	if diff := cmp.Diff([]string{stateField}, fieldNames(proc)); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	var locals []string
	for _, l := range proc.Locals {
		locals = append(locals, l.Name)
	}
	if diff := cmp.Diff([]string{"x", returnVar, faultLocal}, locals); diff != "" {
		t.Errorf("locals mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileParams(t *testing.T) {
	fns, err := source.Parse([]byte(`
funcs:
  - name: add
    params: [n]
    vars: [y]
    body:
      - await: y = wait()
      - return: n + y
`))
	if err != nil {
		t.Fatal(err)
	}
	proc, err := Compile(fns[0])
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int{1}, proc.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	want := []lir.Field{
		{Name: stateField, Role: lir.RoleState, Type: ir.Int},
		{Name: "n", Role: lir.RoleParam, Type: ir.Any},
		{Name: awaiterField, Role: lir.RoleAwaiter, Type: ir.Any},
	}
	if diff := cmp.Diff(want, proc.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if len(proc.States) != 1 || proc.States[0].Resume != "_r0" || len(proc.States[0].Spills) != 0 {
		t.Errorf("unexpected states: %+v", proc.States)
	}
}

func TestCompileSuspendingRegions(t *testing.T) {
	proc := compile(t, "x", `
- set: x = f()
- loop:
  body:
    - try:
        - await: a()
        - break:
      finally:
        - await: b()
- do: g(x)
`)
	if len(proc.States) != 2 {
		t.Fatalf("want 2 states, got %d", len(proc.States))
	}
	// region 2 is the loop, region 4 the try statement
	if diff := cmp.Diff([]int{4, 2}, proc.States[0].Active); diff != "" {
		t.Errorf("active regions of state 0 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{4, 2}, proc.States[1].Active); diff != "" {
		t.Errorf("active regions of state 1 (-want +got):\n%s", diff)
	}
	for _, role := range []lir.FieldRole{lir.RolePendingException, lir.RolePendingBranch, lir.RoleValue, lir.RoleAwaiter} {
		if n := len(proc.FieldsWithRole(role)); n != 1 {
			t.Errorf("want one %s field, got %d", role, n)
		}
	}
	for _, s := range proc.States {
		if len(s.Spills) != 1 || proc.Locals[s.Spills[0].Local].Name != "x" {
			t.Errorf("state %d: x is not spilled: %+v", s.State, s.Spills)
		}
	}
}

func TestCompileDeterministic(t *testing.T) {
	body := `
- try:
    - await: a()
  catch:
    - type: E
      var: e
      body:
        - await: b(e)
  finally:
    - await: c()
- return: 1
`
	first := lir.Format(compile(t, "", body))
	second := lir.Format(compile(t, "", body))
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("lowering is not deterministic (-first +second):\n%s", diff)
	}
}

func TestCompileDoesNotModifyInput(t *testing.T) {
	fn := load(t, "", `
- while: await(more())
  body:
    - try:
        - await: a()
      finally:
        - await: b()
- return: await(c())
`)
	before := ir.Format(fn)
	if _, err := Compile(fn); err != nil {
		t.Fatal(err)
	}
	if after := ir.Format(fn); after != before {
		t.Errorf("input was modified:\n%s", after)
	}
	if len(fn.Vars) != 0 {
		t.Errorf("variables were declared on the input: %d", len(fn.Vars))
	}
}

func TestCompileErrors(t *testing.T) {
	for _, test := range []struct {
		name  string
		vars  string
		body  string
		kinds []Kind
	}{
		{
			name: "await in filter",
			body: `
- try:
    - do: f()
  catch:
    - when: await(ok())
      body:
        - do: g()
`,
			kinds: []Kind{KindUnsupported},
		},
		{
			name:  "break outside of a loop",
			body:  "- break:\n",
			kinds: []Kind{KindInvalidBranch},
		},
		{
			name:  "rethrow outside of a catch",
			body:  "- rethrow:\n",
			kinds: []Kind{KindInvalidBranch},
		},
		{
			name: "return in finally",
			body: `
- try:
    - do: f()
  finally:
    - return:
`,
			kinds: []Kind{KindInvalidBranch},
		},
		{
			name:  "goto an invisible label",
			body:  "- goto: nowhere\n",
			kinds: []Kind{KindInvalidBranch},
		},
		{
			name:  "undeclared variable",
			body:  "- set: x = 1\n",
			kinds: []Kind{KindInvalidTree},
		},
		{
			name:  "reserved prefix",
			vars:  "_x",
			body:  "- do: f()\n",
			kinds: []Kind{KindInvalidTree},
		},
		{
			name: "every problem is reported",
			body: `
- set: x = 1
- continue:
`,
			kinds: []Kind{KindInvalidTree, KindInvalidBranch},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := Compile(load(t, test.vars, test.body))
			if err == nil {
				t.Fatal("expected an error")
			}
			for _, kind := range test.kinds {
				if !errors.Is(err, &Error{Phase: PhaseValidate, Kind: kind}) {
					t.Errorf("error is not of kind %s: %v", kind, err)
				}
			}
			if IsInternal(err) {
				t.Errorf("validation error reported as internal: %v", err)
			}
		})
	}
}

func TestError(t *testing.T) {
	err := &Error{
		Phase:  PhaseLower,
		Kind:   KindInternal,
		Func:   "f",
		Detail: "malformed lowered procedure",
		Cause:  errors.New("undeclared label"),
	}
	want := "[lower] internal in f: malformed lowered procedure (caused by: undeclared label)"
	if got := err.Error(); got != want {
		t.Errorf("want %q, got %q", want, got)
	}
	if !IsInternal(fmt.Errorf("compiling: %w", err)) {
		t.Error("wrapped internal error is not recognized")
	}
	if errors.Is(err, &Error{Kind: KindInternal, Phase: PhaseSpill}) {
		t.Error("phases differ")
	}
	if IsInternal(&Error{Kind: KindUnsupported}) {
		t.Error("unsupported is not internal")
	}
}

func TestCompileAll(t *testing.T) {
	fns, err := source.Parse([]byte(`
funcs:
  - name: a
    body:
      - await: x()
  - name: b
    body:
      - do: y()
  - name: c
    body:
      - await: z()
      - await: z()
`))
	if err != nil {
		t.Fatal(err)
	}

	core, logs := observer.New(zap.InfoLevel)
	procs, err := CompileAll(context.Background(), fns, WithConcurrency(2), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	var states []int
	for _, p := range procs {
		names = append(names, p.Name)
		states = append(states, len(p.States))
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 0, 2}, states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	if n := logs.FilterMessage("lowered procedure").Len(); n != 3 {
		t.Errorf("want 3 log entries, got %d", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := CompileAll(ctx, fns); !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}

	fns = append(fns, &ir.Func{Name: "broken"})
	if _, err := CompileAll(context.Background(), fns); !errors.Is(err, &Error{Kind: KindInvalidTree}) {
		t.Errorf("unexpected error: %v", err)
	}
}

// lowerBroken lowers body with a region tree altered by tamper and returns
// the error the compiler would report.
func lowerBroken(t *testing.T, body string, tamper func(tree *RegionTree) *RegionTree) (err error) {
	t.Helper()
	d := desugar(load(t, "", body))
	tree := BuildRegionTree(d)
	states := AllocateStates(tree)
	h := rewriteHandlers(d, tree)
	spills := PlanSpills(d, h.body, durableVar, true)
	tree = tamper(tree)

	var proc *lir.Procedure
	func() {
		defer recoverInternal(d.Name, &proc, &err)
		proc = assemble(d, h.body, tree, states, spills, h.roles)
	}()
	if proc != nil {
		t.Errorf("a procedure was returned along with the error:\n%s", lir.Format(proc))
	}
	return err
}

func TestCompileInternalError(t *testing.T) {
	const body = `
- try:
    - await: a()
  finally:
    - do: g()
`
	other := BuildRegionTree(desugar(load(t, "", body)))

	for _, test := range []struct {
		name   string
		tamper func(tree *RegionTree) *RegionTree
		detail string
	}{
		{
			name: "region stack mismatch",
			tamper: func(tree *RegionTree) *RegionTree {
				tree.Points[0].Active = nil
				return tree
			},
			detail: "region stack mismatch",
		},
		{
			name:   "region tree of another procedure",
			tamper: func(*RegionTree) *RegionTree { return other },
			detail: "protected region missing",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := lowerBroken(t, body, test.tamper)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !IsInternal(err) || !errors.Is(err, &Error{Phase: PhaseLower, Kind: KindInternal}) {
				t.Errorf("not an internal lowering error: %v", err)
			}
			var e *Error
			if !errors.As(err, &e) {
				t.Fatalf("want *Error, got %T", err)
			}
			if e.Func != "f" {
				t.Errorf("want the error to name f, got %q", e.Func)
			}
			if !strings.Contains(e.Detail, test.detail) {
				t.Errorf("want %q in the detail, got %q", test.detail, e.Detail)
			}
		})
	}
}

func TestRecoverInternalPropagatesOtherPanics(t *testing.T) {
	defer func() {
		if r := recover(); r != "boom" {
			t.Errorf("want the original panic, got %v", r)
		}
	}()
	var proc *lir.Procedure
	var err error
	func() {
		defer recoverInternal("f", &proc, &err)
		panic("boom")
	}()
	t.Error("the panic was swallowed")
}
