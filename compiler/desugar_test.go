package compiler

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/stealthrocket/resumable/internal/source"
	"github.com/stealthrocket/resumable/ir"
)

// load parses a single procedure named f with the given vars and body.
func load(t *testing.T, vars, body string) *ir.Func {
	t.Helper()
	doc := "funcs:\n  - name: f\n    vars: [" + vars + "]\n    body:\n" + indent(body, "      ")
	fns, err := source.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parsing procedure: %v\n%s", err, doc)
	}
	return fns[0]
}

func indent(s, prefix string) string {
	s = strings.Trim(s, "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestDesugar(t *testing.T) {
	for _, test := range []struct {
		name   string
		vars   string
		body   string
		expect string
	}{
		{
			name: "await in while condition",
			body: `
- while: await(ready())
  body:
    - do: work()
`,
			expect: `
func f() {
	loop _l0 {
		_v0 = await ready()
		if !_v0 {
			break _l0
		}
		work()
	}
}`,
		},
		{
			name: "short circuit",
			vars: "ok",
			body: `
- set: ok = ready() && await(check())
`,
			expect: `
func f() {
	_v0 = ready()
	if _v0 {
		_v1 = await check()
		_v0 = _v1
	}
	ok = _v0
}`,
		},
		{
			name: "evaluation order",
			body: `
- do: f(g(), await(h()), k())
`,
			expect: `
func f() {
	_v0 = g()
	_v1 = await h()
	f(_v0, _v1, k())
}`,
		},
		{
			name: "rethrow and return",
			body: `
- try:
    - do: f()
  catch:
    - body:
        - rethrow:
- return: 1
`,
			expect: `
func f() {
	try {
		f()
	} catch _v0 {
		rethrow _v0
	}
	_ret = 1
	return
}`,
		},
		{
			name: "implicit branch targets",
			body: `
- loop: outer
  body:
    - loop:
      body:
        - break: outer
        - continue:
`,
			expect: `
func f() {
	loop outer {
		loop _l0 {
			break outer
			continue _l0
		}
	}
}`,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			fn := load(t, test.vars, test.body)
			before := ir.Format(fn)

			got := ir.Format(desugar(fn))
			if diff := cmp.Diff(strings.TrimPrefix(test.expect, "\n"), got); diff != "" {
				t.Errorf("desugared procedure mismatch (-want +got):\n%s", diff)
			}
			if after := ir.Format(fn); after != before {
				t.Errorf("input procedure was modified:\n%s", after)
			}
		})
	}
}

func TestDesugarDeclaresSynthetics(t *testing.T) {
	fn := load(t, "", `
- try:
    - do: f()
  catch:
    - body:
        - rethrow:
- return: await(g())
`)
	out := desugar(fn)

	for _, want := range []ir.Var{
		{Name: "_v0", Type: ir.Exception, Synthetic: true},
		{Name: "_v1", Type: ir.Any, Synthetic: true},
		{Name: returnVar, Type: ir.Any, Synthetic: true},
	} {
		v := out.Lookup(want.Name)
		if v == nil {
			t.Errorf("%s is not declared", want.Name)
			continue
		}
		if v.Type != want.Type || !v.Synthetic {
			t.Errorf("%s: want %s synthetic, got %+v", want.Name, want.Type, *v)
		}
	}
	if len(fn.Vars) != 0 {
		t.Errorf("input procedure gained variables: %d", len(fn.Vars))
	}
}
