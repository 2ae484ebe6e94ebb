package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Const is a literal value: int64, bool, string or nil.
type Const struct {
	Value any
}

// Local references a parameter or variable of the enclosing Func.
type Local struct {
	Name string
}

// Call invokes a host function. Calls are synchronous and may throw.
type Call struct {
	Fn   string
	Args []Expr
}

// Op is a binary operator.
type Op uint8

const (
	Add Op = iota
	Sub
	Mul
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	And
	Or
)

var opNames = [...]string{
	Add: "+",
	Sub: "-",
	Mul: "*",
	Eq:  "==",
	Ne:  "!=",
	Lt:  "<",
	Le:  "<=",
	Gt:  ">",
	Ge:  ">=",
	And: "&&",
	Or:  "||",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

// ParseOp returns the operator written s.
func ParseOp(s string) (Op, bool) {
	for op, name := range opNames {
		if name == s {
			return Op(op), true
		}
	}
	return 0, false
}

// Binary applies Op to X and Y. And and Or short-circuit.
type Binary struct {
	Op Op
	X  Expr
	Y  Expr
}

// Not is boolean negation.
type Not struct {
	X Expr
}

// Await suspends until the awaitable produced by X completes and yields its
// result. It only appears in source trees; the compiler hoists every Await
// into an AwaitStmt.
type Await struct {
	X Expr
}

func (*Const) node()  {}
func (*Local) node()  {}
func (*Call) node()   {}
func (*Binary) node() {}
func (*Not) node()    {}
func (*Await) node()  {}

func (*Const) exprNode()  {}
func (*Local) exprNode()  {}
func (*Call) exprNode()   {}
func (*Binary) exprNode() {}
func (*Not) exprNode()    {}
func (*Await) exprNode()  {}

func (e *Const) String() string {
	switch v := e.Value.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(v)
	default:
		return fmt.Sprint(v)
	}
}

func (e *Local) String() string { return e.Name }

func (e *Call) String() string {
	var b strings.Builder
	b.WriteString(e.Fn)
	b.WriteByte('(')
	for i, arg := range e.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(arg.String())
	}
	b.WriteByte(')')
	return b.String()
}

func (e *Binary) String() string {
	return operand(e.X) + " " + e.Op.String() + " " + operand(e.Y)
}

func (e *Not) String() string { return "!" + operand(e.X) }

func (e *Await) String() string { return "await " + operand(e.X) }

func operand(e Expr) string {
	switch e.(type) {
	case *Binary, *Await:
		return "(" + e.String() + ")"
	}
	return e.String()
}

// IntConst returns an integer constant.
func IntConst(v int64) *Const { return &Const{Value: v} }

// Str returns a string constant.
func Str(v string) *Const { return &Const{Value: v} }

// Nil returns the nil constant.
func Nil() *Const { return &Const{} }

// Ref returns a reference to a variable.
func Ref(name string) *Local { return &Local{Name: name} }

// CallOf returns a call expression.
func CallOf(fn string, args ...Expr) *Call { return &Call{Fn: fn, Args: args} }

// Seq returns a block holding the statements.
func Seq(stmts ...Stmt) *Block { return &Block{List: stmts} }

// Do returns a statement evaluating a call for its side effects.
func Do(fn string, args ...Expr) *ExprStmt { return &ExprStmt{X: CallOf(fn, args...)} }
