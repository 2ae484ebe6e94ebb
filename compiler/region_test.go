package compiler

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/stealthrocket/resumable/ir"
	"github.com/stealthrocket/resumable/lir"
)

func TestRegionTree(t *testing.T) {
	fn := load(t, "", `
- try:
    - await: a()
  finally:
    - loop: again
      body:
        - await: b()
        - do: log()
- await: c()
`)
	tree := BuildRegionTree(fn)

	var kinds []RegionKind
	for i, r := range tree.Regions {
		if int(r.ID) != i {
			t.Errorf("region %d has id %d", i, r.ID)
		}
		kinds = append(kinds, r.Kind)
	}
	want := []RegionKind{
		RegionBlock,   // 0 body
		RegionTry,     // 1
		RegionBlock,   // 2 try body
		RegionLeaf,    // 3 await a()
		RegionHandler, // 4 finally
		RegionBlock,   // 5 finally body
		RegionLoop,    // 6
		RegionBlock,   // 7 loop body
		RegionLeaf,    // 8 await b()
		RegionLeaf,    // 9 log()
		RegionLeaf,    // 10 await c()
	}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("region kinds mismatch (-want +got):\n%s", diff)
	}

	var active [][]RegionID
	for _, p := range tree.Points {
		active = append(active, p.Active)
	}
	wantActive := [][]RegionID{{1}, {6, 1}, {}}
	if diff := cmp.Diff(wantActive, active, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("active regions mismatch (-want +got):\n%s", diff)
	}

	try := fn.Body.List[0].(*ir.Try)
	if got := tree.Finally(try); got == nil || got.ID != 4 {
		t.Errorf("finally region: want 4, got %v", got)
	}
	if !tree.Suspends(try) || !tree.Suspends(try.Finally) {
		t.Error("the try statement and its finally block suspend")
	}
	if tree.Suspends(tree.Region(9).Node) {
		t.Error("log() does not suspend")
	}
	if r := tree.Region(8); r.Parent.ID != 7 || r.Parent.Parent.Kind != RegionLoop {
		t.Errorf("unexpected parent chain of region 8")
	}
}

func TestAllocateStates(t *testing.T) {
	fn := desugar(load(t, "x", `
- set: x = await(a()) + await(b())
- if: x > 0
  then:
    - await: c()
`))
	tree := BuildRegionTree(fn)
	states := AllocateStates(tree)
	if states.Len() != 3 {
		t.Fatalf("want 3 states, got %d", states.Len())
	}

	var operands []string
	for i, p := range states.Points {
		s, ok := states.State(p.Await)
		if !ok || int(s) != i {
			t.Errorf("point %d: got state %v (%v)", i, s, ok)
		}
		operands = append(operands, p.Await.X.String())
	}
	if diff := cmp.Diff([]string{"a()", "b()", "c()"}, operands); diff != "" {
		t.Errorf("states are not in document order (-want +got):\n%s", diff)
	}

	want := map[lir.State]string{0: "_r0", 1: "_r1", 2: "_r2"}
	if diff := cmp.Diff(want, states.Dispatch()); diff != "" {
		t.Errorf("dispatch table mismatch (-want +got):\n%s", diff)
	}

	again := AllocateStates(BuildRegionTree(fn))
	for i, p := range again.Points {
		if s, _ := again.State(p.Await); int(s) != i || p.Await != states.Points[i].Await {
			t.Errorf("state allocation is not deterministic at %d", i)
		}
	}
}
