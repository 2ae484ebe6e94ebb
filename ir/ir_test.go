package ir_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/stealthrocket/resumable/ir"
)

func TestFormat(t *testing.T) {
	fn := &ir.Func{
		Name:   "f",
		Params: []*ir.Var{{Name: "n", Type: ir.Int, Param: true}},
		Body: ir.Seq(
			&ir.While{
				Label: "outer",
				Cond:  &ir.Binary{Op: ir.Lt, X: ir.Ref("n"), Y: ir.IntConst(3)},
				Body: ir.Seq(
					&ir.Try{
						Body: ir.Seq(&ir.AwaitStmt{Var: "x", X: ir.CallOf("get", ir.Str("a"))}),
						Catches: []*ir.Catch{{
							Type:   "Timeout",
							Var:    "e",
							Filter: &ir.Not{X: ir.CallOf("fatal", ir.Ref("e"))},
							Body:   ir.Seq(&ir.Continue{Label: "outer"}),
						}},
						Finally: ir.Seq(&ir.ExprStmt{X: &ir.Await{X: ir.CallOf("close")}}),
					},
				),
			},
			&ir.Labeled{Label: "out"},
			&ir.If{
				Cond: &ir.Binary{Op: ir.Eq, X: ir.Ref("x"), Y: ir.Nil()},
				Then: ir.Seq(&ir.Throw{X: ir.CallOf("exception", ir.Str("E"), ir.Str("none"))}),
				Else: ir.Seq(&ir.Goto{Label: "out"}),
			},
			&ir.Return{X: &ir.Binary{Op: ir.Add, X: ir.Ref("n"), Y: &ir.Binary{Op: ir.Mul, X: ir.IntConst(2), Y: ir.IntConst(-1)}}},
		),
	}

	want := `func f(n int) {
	while outer n < 3 {
		try {
			x = await get("a")
		} catch Timeout e when !fatal(e) {
			continue outer
		} finally {
			await close()
		}
	}
out:
	if x == nil {
		throw exception("E", "none")
	} else {
		goto out
	}
	return n + (2 * -1)
}`
	if diff := cmp.Diff(want, ir.Format(fn)); diff != "" {
		t.Errorf("format mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatEndFinally(t *testing.T) {
	s := &ir.EndFinally{
		Exception: "_pex0",
		Branch:    "_pb0",
		Branches: []*ir.PendingBranch{
			{Tag: 1, Kind: ir.PendingLoopBreak, Target: "_l0", Stmt: &ir.Break{Label: "_l0"}},
			{Tag: 2, Kind: ir.PendingReturn, Stmt: &ir.Return{}},
		},
	}
	want := "endfinally _pex0 _pb0 [1: break _l0, 2: return]"
	if got := ir.Format(s); got != want {
		t.Errorf("want %q, got %q", want, got)
	}
	if got := ir.PendingGoto.String(); got != "goto" {
		t.Errorf("unexpected pending kind name %q", got)
	}
}

func TestContainsAwait(t *testing.T) {
	tests := []struct {
		name string
		node ir.Node
		want bool
	}{
		{"nil block", (*ir.Block)(nil), false},
		{"call", ir.CallOf("f", ir.Ref("x")), false},
		{"nested await", ir.CallOf("f", &ir.Binary{Op: ir.Add, X: ir.IntConst(1), Y: &ir.Await{X: ir.Ref("x")}}), true},
		{"await statement", ir.Seq(&ir.AwaitStmt{X: ir.CallOf("f")}), true},
		{"if without else", &ir.If{Cond: ir.Ref("c"), Then: ir.Seq()}, false},
		{"filter", &ir.Try{
			Body:    ir.Seq(),
			Catches: []*ir.Catch{{Filter: &ir.Await{X: ir.Ref("x")}, Body: ir.Seq()}},
		}, true},
		{"pending branch", &ir.EndFinally{Branches: []*ir.PendingBranch{{Tag: 1, Stmt: ir.Seq(&ir.AwaitStmt{X: ir.Ref("x")})}}}, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := ir.ContainsAwait(test.node); got != test.want {
				t.Errorf("want %v, got %v", test.want, got)
			}
		})
	}
}

func TestInspect(t *testing.T) {
	body := ir.Seq(
		&ir.Assign{Var: "x", X: ir.CallOf("f", ir.Ref("a"))},
		&ir.Loop{Label: "l", Body: ir.Seq(&ir.Break{Label: "l"})},
	)

	var visited []string
	depth := 0
	ir.Inspect(body, func(n ir.Node) bool {
		if n == nil {
			depth--
			return true
		}
		depth++
		switch n := n.(type) {
		case *ir.Local:
			visited = append(visited, "local "+n.Name)
		case *ir.Call:
			visited = append(visited, "call "+n.Fn)
		case *ir.Loop:
			visited = append(visited, "loop "+n.Label)
			return false
		}
		return true
	})
	// Inspect does not call f(nil) when f returns false.
	if depth != 1 {
		t.Errorf("unbalanced traversal: depth %d", depth)
	}
	if diff := cmp.Diff([]string{"call f", "local a", "loop l"}, visited); diff != "" {
		t.Errorf("visit order mismatch (-want +got):\n%s", diff)
	}
}

func TestDeclare(t *testing.T) {
	fn := &ir.Func{Params: []*ir.Var{{Name: "p", Param: true}}}
	v := fn.Declare(&ir.Var{Name: "v", Type: ir.Int})
	if again := fn.Declare(&ir.Var{Name: "v", Type: ir.String}); again != v {
		t.Error("declaring a variable twice returned a new variable")
	}
	if fn.Declare(&ir.Var{Name: "p"}) != fn.Params[0] {
		t.Error("declaring a parameter name returned a new variable")
	}
	if len(fn.Vars) != 1 || !fn.Params[0].Durable() || v.Durable() {
		t.Errorf("unexpected variables: %+v", fn.Vars)
	}
	if op, ok := ir.ParseOp("<="); !ok || op != ir.Le {
		t.Errorf("ParseOp(<=) = %v, %v", op, ok)
	}
	if _, ok := ir.ParseOp("%"); ok {
		t.Error("modulo is not an operator")
	}
}

func TestConstants(t *testing.T) {
	for _, test := range []struct {
		expr ir.Expr
		want string
	}{
		{ir.IntConst(-3), "-3"},
		{ir.Str("a"), `"a"`},
		{ir.Nil(), "nil"},
	} {
		if got := test.expr.String(); got != test.want {
			t.Errorf("want %s, got %s", test.want, got)
		}
	}
	if v, ok := ir.IntConst(7).Value.(int64); !ok || v != 7 {
		t.Errorf("integer constants hold an int64, got %T", ir.IntConst(7).Value)
	}
	if ir.Int.String() != "int" {
		t.Errorf("unexpected name of the integer type: %s", ir.Int)
	}
}
