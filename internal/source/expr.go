package source

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"

	"github.com/stealthrocket/resumable/ir"
)

// ParseExpr parses an expression written with Go syntax. Suspension is
// written as a call: await(f(x)).
func ParseExpr(s string) (ir.Expr, error) {
	e, err := parser.ParseExpr(s)
	if err != nil {
		return nil, err
	}
	return convertExpr(e)
}

var binaryOps = map[token.Token]ir.Op{
	token.ADD:  ir.Add,
	token.SUB:  ir.Sub,
	token.MUL:  ir.Mul,
	token.EQL:  ir.Eq,
	token.NEQ:  ir.Ne,
	token.LSS:  ir.Lt,
	token.LEQ:  ir.Le,
	token.GTR:  ir.Gt,
	token.GEQ:  ir.Ge,
	token.LAND: ir.And,
	token.LOR:  ir.Or,
}

func convertExpr(e ast.Expr) (ir.Expr, error) {
	switch e := e.(type) {
	case *ast.ParenExpr:
		return convertExpr(e.X)

	case *ast.BasicLit:
		switch e.Kind {
		case token.INT:
			v, err := strconv.ParseInt(e.Value, 0, 64)
			if err != nil {
				return nil, err
			}
			return ir.IntConst(v), nil
		case token.STRING:
			v, err := strconv.Unquote(e.Value)
			if err != nil {
				return nil, err
			}
			return ir.Str(v), nil
		}

	case *ast.Ident:
		switch e.Name {
		case "nil":
			return ir.Nil(), nil
		case "true":
			return &ir.Const{Value: true}, nil
		case "false":
			return &ir.Const{Value: false}, nil
		}
		return ir.Ref(e.Name), nil

	case *ast.UnaryExpr:
		x, err := convertExpr(e.X)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case token.NOT:
			return &ir.Not{X: x}, nil
		case token.SUB:
			if c, ok := x.(*ir.Const); ok {
				if v, ok := c.Value.(int64); ok {
					return ir.IntConst(-v), nil
				}
			}
			return &ir.Binary{Op: ir.Sub, X: ir.IntConst(0), Y: x}, nil
		}

	case *ast.BinaryExpr:
		op, ok := binaryOps[e.Op]
		if !ok {
			break
		}
		x, err := convertExpr(e.X)
		if err != nil {
			return nil, err
		}
		y, err := convertExpr(e.Y)
		if err != nil {
			return nil, err
		}
		return &ir.Binary{Op: op, X: x, Y: y}, nil

	case *ast.CallExpr:
		fn, ok := e.Fun.(*ast.Ident)
		if !ok || e.Ellipsis.IsValid() {
			break
		}
		args := make([]ir.Expr, len(e.Args))
		for i, arg := range e.Args {
			x, err := convertExpr(arg)
			if err != nil {
				return nil, err
			}
			args[i] = x
		}
		if fn.Name == "await" {
			if len(args) != 1 {
				return nil, fmt.Errorf("await expects one operand")
			}
			return &ir.Await{X: args[0]}, nil
		}
		return ir.CallOf(fn.Name, args...), nil
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}
