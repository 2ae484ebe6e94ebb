package compiler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stealthrocket/resumable/ir"
	"github.com/stealthrocket/resumable/lir"
)

// Compile lowers a suspendable procedure into a resumable one.
//
// The procedure is validated, desugared, and its protected regions are
// rewritten so that no native protected region stays open across a
// suspension point. Values live across suspension points are assigned
// durable fields, and the body is flattened into a restartable sequence
// which dispatches on the state field of the instance.
//
// The input procedure is not modified.
func Compile(fn *ir.Func, options ...Option) (*lir.Procedure, error) {
	return newCompiler(options).compile(fn)
}

// CompileAll lowers independent procedures concurrently. The returned
// procedures are in the same order as the input. The first error stops the
// compilation.
func CompileAll(ctx context.Context, fns []*ir.Func, options ...Option) ([]*lir.Procedure, error) {
	c := newCompiler(options)
	procs := make([]*lir.Procedure, len(fns))

	g, ctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, fn := range fns {
		i, fn := i, fn
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			proc, err := c.compile(fn)
			if err != nil {
				return err
			}
			procs[i] = proc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return procs, nil
}

type compiler struct {
	log         *zap.Logger
	noSlotReuse bool
	noCheck     bool
	concurrency int
}

func newCompiler(options []Option) *compiler {
	c := &compiler{}
	for _, option := range options {
		option(c)
	}
	if c.log == nil {
		c.log = Logger()
	}
	return c
}

// recoverInternal turns an internal error raised by a pass into the error
// returned for the procedure named name.
func recoverInternal(name string, proc **lir.Procedure, err *error) {
	if r := recover(); r != nil {
		ie, ok := r.(internalError)
		if !ok {
			panic(r)
		}
		ie.err.Func = name
		*proc, *err = nil, ie.err
	}
}

func (c *compiler) compile(fn *ir.Func) (proc *lir.Procedure, err error) {
	defer recoverInternal(fn.Name, &proc, &err)

	start := time.Now()
	log := c.log.With(zap.String("func", fn.Name))

	if err := validate(fn); err != nil {
		return nil, err
	}

	log.Debug("desugaring")
	d := desugar(fn)

	log.Debug("building region tree")
	tree := BuildRegionTree(d)
	states := AllocateStates(tree)

	log.Debug("rewriting handlers", zap.Int("states", states.Len()))
	h := rewriteHandlers(d, tree)

	log.Debug("planning spills")
	durable := func(v *ir.Var) bool {
		_, pending := h.roles[v.Name]
		return v.Durable() || pending
	}
	spills := PlanSpills(d, h.body, durable, !c.noSlotReuse)

	log.Debug("lowering")
	proc = assemble(d, h.body, tree, states, spills, h.roles)

	if !c.noCheck {
		if err := lir.Check(proc); err != nil {
			return nil, &Error{
				Phase:  PhaseLower,
				Kind:   KindInternal,
				Func:   fn.Name,
				Detail: "malformed lowered procedure",
				Cause:  err,
			}
		}
	}

	log.Info("lowered procedure",
		zap.Int("states", len(proc.States)),
		zap.Int("fields", len(proc.Fields)),
		zap.Int("locals", len(proc.Locals)),
		zap.Duration("elapsed", time.Since(start)))
	return proc, nil
}
