// Package source loads suspendable procedures described in YAML.
//
// A document lists procedures under the funcs key. Statements are mappings
// keyed by their kind; expressions use Go syntax, with suspension written
// as a call to await:
//
//	funcs:
//	  - name: fetch
//	    params: [url]
//	    vars: [body, {name: retries, type: int}]
//	    body:
//	      - set: retries = 0
//	      - try:
//	          - await: body = get(url)
//	        catch:
//	          - type: Timeout
//	            var: err
//	            when: retries < 3
//	            body:
//	              - do: log(err)
//	        finally:
//	          - do: await(close(url))
//	      - return: body
package source

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/stealthrocket/resumable/ir"
)

// Load reads the procedures described in a file.
func Load(path string) ([]*ir.Func, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fns, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fns, nil
}

type document struct {
	Funcs []funcSpec `yaml:"funcs"`
}

type funcSpec struct {
	Name   string    `yaml:"name"`
	Params []varSpec `yaml:"params"`
	Vars   []varSpec `yaml:"vars"`
	Body   yaml.Node `yaml:"body"`
}

type varSpec struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Hoisted bool   `yaml:"hoisted"`
}

func (v *varSpec) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		v.Name = n.Value
		return nil
	}
	type plain varSpec
	return n.Decode((*plain)(v))
}

var types = map[string]ir.Type{
	"":          ir.Any,
	"any":       ir.Any,
	"int":       ir.Int,
	"bool":      ir.Bool,
	"string":    ir.String,
	"exception": ir.Exception,
}

func (v *varSpec) convert(param bool) (*ir.Var, error) {
	t, ok := types[v.Type]
	if !ok {
		return nil, fmt.Errorf("variable %s: unknown type %q", v.Name, v.Type)
	}
	return &ir.Var{Name: v.Name, Type: t, Hoisted: v.Hoisted || param, Param: param}, nil
}

// Parse decodes the procedures of a YAML document.
func Parse(b []byte) ([]*ir.Func, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	fns := make([]*ir.Func, 0, len(doc.Funcs))
	for i := range doc.Funcs {
		fn, err := doc.Funcs[i].convert()
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

func (f *funcSpec) convert() (*ir.Func, error) {
	if f.Name == "" {
		return nil, fmt.Errorf("line %d: procedure without a name", f.Body.Line)
	}
	fn := &ir.Func{Name: f.Name}
	for i := range f.Params {
		p, err := f.Params[i].convert(true)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		fn.Params = append(fn.Params, p)
	}
	for i := range f.Vars {
		v, err := f.Vars[i].convert(false)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		fn.Vars = append(fn.Vars, v)
	}
	body, err := block(&f.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name, err)
	}
	fn.Body = body
	return fn, nil
}

func errorf(n *yaml.Node, format string, args ...any) error {
	return fmt.Errorf("line %d: %s", n.Line, fmt.Sprintf(format, args...))
}

func block(n *yaml.Node) (*ir.Block, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return &ir.Block{}, nil
		}
	case yaml.SequenceNode:
		b := &ir.Block{List: make([]ir.Stmt, 0, len(n.Content))}
		for _, item := range n.Content {
			s, err := stmt(item)
			if err != nil {
				return nil, err
			}
			b.List = append(b.List, s)
		}
		return b, nil
	}
	return nil, errorf(n, "expected a list of statements")
}

// keys lists the statement kinds, in the order they are looked up.
var keys = []string{
	"do", "set", "await", "if", "while", "loop", "try", "label", "goto",
	"break", "continue", "throw", "rethrow", "return", "block",
}

func stmt(n *yaml.Node) (ir.Stmt, error) {
	if n.Kind != yaml.MappingNode {
		return nil, errorf(n, "expected a statement")
	}
	fields := map[string]*yaml.Node{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		fields[n.Content[i].Value] = n.Content[i+1]
	}
	for _, key := range keys {
		if v, ok := fields[key]; ok {
			s, err := convertStmt(key, v, fields)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}
	return nil, errorf(n, "unknown statement")
}

func convertStmt(key string, v *yaml.Node, fields map[string]*yaml.Node) (ir.Stmt, error) {
	switch key {
	case "do":
		x, err := expr(v)
		if err != nil {
			return nil, err
		}
		return &ir.ExprStmt{X: x}, nil

	case "set":
		name, x, err := assignment(v)
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, errorf(v, "expected an assignment")
		}
		return &ir.Assign{Var: name, X: x}, nil

	case "await":
		name, x, err := assignment(v)
		if err != nil {
			return nil, err
		}
		return &ir.AwaitStmt{Var: name, X: x}, nil

	case "if":
		cond, err := expr(v)
		if err != nil {
			return nil, err
		}
		s := &ir.If{Cond: cond}
		if s.Then, err = optionalBlock(fields["then"]); err != nil {
			return nil, err
		}
		if s.Then == nil {
			s.Then = &ir.Block{}
		}
		if s.Else, err = optionalBlock(fields["else"]); err != nil {
			return nil, err
		}
		return s, nil

	case "while":
		cond, err := expr(v)
		if err != nil {
			return nil, err
		}
		body, err := requiredBlock(v, fields["body"])
		if err != nil {
			return nil, err
		}
		return &ir.While{Label: scalar(fields["name"]), Cond: cond, Body: body}, nil

	case "loop":
		body, err := requiredBlock(v, fields["body"])
		if err != nil {
			return nil, err
		}
		return &ir.Loop{Label: scalar(v), Body: body}, nil

	case "try":
		body, err := block(v)
		if err != nil {
			return nil, err
		}
		t := &ir.Try{Body: body}
		if c := fields["catch"]; c != nil {
			if c.Kind != yaml.SequenceNode {
				return nil, errorf(c, "expected a list of catch clauses")
			}
			for _, item := range c.Content {
				clause, err := catch(item)
				if err != nil {
					return nil, err
				}
				t.Catches = append(t.Catches, clause)
			}
		}
		if t.Finally, err = optionalBlock(fields["finally"]); err != nil {
			return nil, err
		}
		return t, nil

	case "label":
		return &ir.Labeled{Label: scalar(v)}, nil

	case "goto":
		return &ir.Goto{Label: scalar(v)}, nil

	case "break":
		return &ir.Break{Label: scalar(v)}, nil

	case "continue":
		return &ir.Continue{Label: scalar(v)}, nil

	case "throw":
		x, err := expr(v)
		if err != nil {
			return nil, err
		}
		return &ir.Throw{X: x}, nil

	case "rethrow":
		return &ir.Rethrow{}, nil

	case "return":
		if scalar(v) == "" {
			return &ir.Return{}, nil
		}
		x, err := expr(v)
		if err != nil {
			return nil, err
		}
		return &ir.Return{X: x}, nil

	default: // block
		return requiredBlock(v, v)
	}
}

func catch(n *yaml.Node) (*ir.Catch, error) {
	var spec struct {
		Type string    `yaml:"type"`
		Var  string    `yaml:"var"`
		When yaml.Node `yaml:"when"`
		Body yaml.Node `yaml:"body"`
	}
	if err := n.Decode(&spec); err != nil {
		return nil, err
	}
	c := &ir.Catch{Type: spec.Type, Var: spec.Var}
	if spec.When.Kind != 0 {
		x, err := expr(&spec.When)
		if err != nil {
			return nil, err
		}
		c.Filter = x
	}
	body, err := requiredBlock(n, &spec.Body)
	if err != nil {
		return nil, err
	}
	c.Body = body
	return c, nil
}

func optionalBlock(n *yaml.Node) (*ir.Block, error) {
	if n == nil {
		return nil, nil
	}
	return block(n)
}

func requiredBlock(at, n *yaml.Node) (*ir.Block, error) {
	if n == nil || n.Kind == 0 {
		return nil, errorf(at, "missing body")
	}
	b, err := block(n)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return &ir.Block{}, nil
	}
	return b, nil
}

func scalar(n *yaml.Node) string {
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return ""
	}
	return n.Value
}

func expr(n *yaml.Node) (ir.Expr, error) {
	s := scalar(n)
	if s == "" {
		return nil, errorf(n, "missing expression")
	}
	x, err := ParseExpr(s)
	if err != nil {
		return nil, errorf(n, "%s: %v", s, err)
	}
	return x, nil
}

// assignment parses "x = expr" or "expr". The name is empty in the latter
// case.
func assignment(n *yaml.Node) (string, ir.Expr, error) {
	s := scalar(n)
	name, rest := splitAssignment(s)
	if name == "" {
		x, err := expr(n)
		return "", x, err
	}
	x, err := ParseExpr(rest)
	if err != nil {
		return "", nil, errorf(n, "%s: %v", s, err)
	}
	return name, x, nil
}

func splitAssignment(s string) (name, rest string) {
	i := 0
	for i < len(s) && (s[i] == '_' || unicode.IsLetter(rune(s[i])) || (i > 0 && unicode.IsDigit(rune(s[i])))) {
		i++
	}
	if i == 0 {
		return "", s
	}
	j := i
	for j < len(s) && s[j] == ' ' {
		j++
	}
	if j >= len(s) || s[j] != '=' || strings.HasPrefix(s[j:], "==") {
		return "", s
	}
	return s[:i], strings.TrimSpace(s[j+1:])
}
