package ir

// Inspect traverses the tree in depth-first order, like ast.Inspect: it
// calls f(n); if f returns true, Inspect visits the children of n and then
// calls f(nil).
func Inspect(n Node, f func(Node) bool) {
	if isNil(n) || !f(n) {
		return
	}
	switch n := n.(type) {
	case *Block:
		for _, s := range n.List {
			Inspect(s, f)
		}
	case *If:
		Inspect(n.Cond, f)
		Inspect(n.Then, f)
		Inspect(n.Else, f)
	case *While:
		Inspect(n.Cond, f)
		Inspect(n.Body, f)
	case *Loop:
		Inspect(n.Body, f)
	case *Try:
		Inspect(n.Body, f)
		for _, c := range n.Catches {
			Inspect(c, f)
		}
		Inspect(n.Finally, f)
	case *Catch:
		Inspect(n.Filter, f)
		Inspect(n.Body, f)
	case *Assign:
		Inspect(n.X, f)
	case *ExprStmt:
		Inspect(n.X, f)
	case *AwaitStmt:
		Inspect(n.X, f)
	case *Throw:
		Inspect(n.X, f)
	case *Rethrow:
		Inspect(n.X, f)
	case *Return:
		Inspect(n.X, f)
	case *EndFinally:
		for _, b := range n.Branches {
			Inspect(b.Stmt, f)
		}
	case *Call:
		for _, arg := range n.Args {
			Inspect(arg, f)
		}
	case *Binary:
		Inspect(n.X, f)
		Inspect(n.Y, f)
	case *Not:
		Inspect(n.X, f)
	case *Await:
		Inspect(n.X, f)
	}
	f(nil)
}

// isNil reports whether n is nil or a typed nil pointer (an absent Else,
// Finally, Filter...).
func isNil(n Node) bool {
	switch n := n.(type) {
	case nil:
		return true
	case *Block:
		return n == nil
	case *Catch:
		return n == nil
	case *Const:
		return n == nil
	case *Local:
		return n == nil
	case *Call:
		return n == nil
	case *Binary:
		return n == nil
	case *Not:
		return n == nil
	case *Await:
		return n == nil
	}
	return false
}

// ContainsAwait reports whether the subtree rooted at n contains a
// suspension point (an AwaitStmt or an Await expression).
func ContainsAwait(n Node) (found bool) {
	Inspect(n, func(n Node) bool {
		switch n.(type) {
		case *AwaitStmt, *Await:
			found = true
		}
		return !found
	})
	return
}
