package ir

import (
	"fmt"
	"io"
	"strings"
)

// Format returns the textual form of a statement, a block or a function.
// The format is meant for diagnostics and tests, it is not parsed back.
func Format(n Node) string {
	var b strings.Builder
	Fprint(&b, n)
	return strings.TrimSuffix(b.String(), "\n")
}

// Fprint writes the textual form of n to w.
func Fprint(w io.Writer, n Node) {
	p := &printer{w: w}
	switch n := n.(type) {
	case *Func:
		p.printf("func %s(", n.Name)
		for i, param := range n.Params {
			if i > 0 {
				p.printf(", ")
			}
			p.printf("%s %s", param.Name, param.Type)
		}
		p.printf(") ")
		p.block(n.Body)
		p.printf("\n")
	case *Block:
		p.block(n)
		p.printf("\n")
	case Stmt:
		p.stmt(n)
	case Expr:
		p.printf("%s\n", n)
	}
}

type printer struct {
	w     io.Writer
	depth int
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) line(format string, args ...any) {
	p.printf("%s", strings.Repeat("\t", p.depth))
	p.printf(format, args...)
	p.printf("\n")
}

// block prints "{", the statements and "}" without a trailing newline.
func (p *printer) block(b *Block) {
	p.printf("{\n")
	if b != nil {
		p.depth++
		for _, s := range b.List {
			p.stmt(s)
		}
		p.depth--
	}
	p.printf("%s}", strings.Repeat("\t", p.depth))
}

func (p *printer) open(format string, args ...any) {
	p.printf("%s", strings.Repeat("\t", p.depth))
	p.printf(format, args...)
}

func (p *printer) stmt(s Stmt) {
	switch s := s.(type) {
	case *Block:
		p.open("")
		p.block(s)
		p.printf("\n")
	case *If:
		p.open("if %s ", s.Cond)
		p.block(s.Then)
		if s.Else != nil {
			p.printf(" else ")
			p.block(s.Else)
		}
		p.printf("\n")
	case *While:
		p.open("while %s%s ", label(s.Label), s.Cond)
		p.block(s.Body)
		p.printf("\n")
	case *Loop:
		p.open("loop %s", label(s.Label))
		p.block(s.Body)
		p.printf("\n")
	case *Try:
		p.open("try ")
		p.block(s.Body)
		for _, c := range s.Catches {
			p.printf(" catch")
			if c.Type != "" {
				p.printf(" %s", c.Type)
			}
			if c.Var != "" {
				p.printf(" %s", c.Var)
			}
			if c.Filter != nil {
				p.printf(" when %s", c.Filter)
			}
			p.printf(" ")
			p.block(c.Body)
		}
		if s.Finally != nil {
			p.printf(" finally ")
			p.block(s.Finally)
		}
		p.printf("\n")
	case *Labeled:
		depth := p.depth
		if p.depth > 0 {
			p.depth--
		}
		p.line("%s:", s.Label)
		p.depth = depth
	case *Assign:
		p.line("%s = %s", s.Var, s.X)
	case *ExprStmt:
		p.line("%s", s.X)
	case *AwaitStmt:
		if s.Var != "" {
			p.line("%s = await %s", s.Var, operand(s.X))
		} else {
			p.line("await %s", operand(s.X))
		}
	case *Throw:
		p.line("throw %s", s.X)
	case *Rethrow:
		if s.X != nil {
			p.line("rethrow %s", s.X)
		} else {
			p.line("rethrow")
		}
	case *Return:
		if s.X != nil {
			p.line("return %s", s.X)
		} else {
			p.line("return")
		}
	case *Break:
		p.line("break%s", suffix(s.Label))
	case *Continue:
		p.line("continue%s", suffix(s.Label))
	case *Goto:
		p.line("goto %s", s.Label)
	case *EndFinally:
		var targets []string
		for _, b := range s.Branches {
			targets = append(targets, fmt.Sprintf("%d: %s", b.Tag, strings.TrimSpace(Format(b.Stmt))))
		}
		p.line("endfinally %s %s [%s]", s.Exception, s.Branch, strings.Join(targets, ", "))
	default:
		p.line("<%T>", s)
	}
}

func label(name string) string {
	if name == "" {
		return ""
	}
	return name + " "
}

func suffix(name string) string {
	if name == "" {
		return ""
	}
	return " " + name
}
