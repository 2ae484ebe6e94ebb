package resumable_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stealthrocket/resumable"
	"github.com/stealthrocket/resumable/compiler"
	"github.com/stealthrocket/resumable/ir"
	"github.com/stealthrocket/resumable/lir"
)

func TestSnapshotRoundTrip(t *testing.T) {
	pending := resumable.NewFuture()
	env := &resumable.Env{Funcs: map[string]resumable.Func{
		"wait": func(...resumable.Value) (resumable.Value, error) { return pending, nil },
	}}
	proc, err := compiler.Compile(&ir.Func{
		Name:   "snap",
		Params: []*ir.Var{{Name: "n", Type: ir.Int}},
		Vars:   []*ir.Var{{Name: "z", Type: ir.Int}, {Name: "y", Type: ir.Int}},
		Body: ir.Seq(
			&ir.Assign{Var: "z", X: &ir.Binary{Op: ir.Mul, X: ir.Ref("n"), Y: ir.IntConst(2)}},
			&ir.AwaitStmt{Var: "y", X: ir.CallOf("wait")},
			&ir.Return{X: &ir.Binary{Op: ir.Add, X: ir.Ref("z"), Y: ir.Ref("y")}},
		),
	})
	require.NoError(t, err)

	loop := resumable.NewLoop()
	first := resumable.NewFuture()
	inst, err := resumable.Start(proc, env, []resumable.Value{5}, first, loop)
	require.NoError(t, err)
	require.Equal(t, lir.State(0), inst.State())

	b, err := inst.MarshalAppend(nil)
	require.NoError(t, err)

	resumed := resumable.NewFuture()
	result := resumable.NewFuture()
	restored, err := resumable.Restore(proc, env, b, resumed, result, loop)
	require.NoError(t, err)
	require.Equal(t, lir.State(0), restored.State())

	resumed.Succeed(1)
	loop.RunUntilIdle()

	v, ex, done := result.Result()
	require.True(t, done)
	require.Nil(t, ex)
	require.Equal(t, int64(11), v)
	require.False(t, first.IsCompleted())

	_, err = restored.MarshalAppend(nil)
	require.ErrorIs(t, err, resumable.ErrNotSuspended)
}

func TestRestoreRejectsMismatchedProcedure(t *testing.T) {
	pending := resumable.NewFuture()
	env := &resumable.Env{Funcs: map[string]resumable.Func{
		"wait": func(...resumable.Value) (resumable.Value, error) { return pending, nil },
	}}
	proc, err := compiler.Compile(&ir.Func{
		Name: "snap",
		Body: ir.Seq(&ir.AwaitStmt{X: ir.CallOf("wait")}),
	})
	require.NoError(t, err)

	loop := resumable.NewLoop()
	inst, err := resumable.Start(proc, env, nil, resumable.NewFuture(), loop)
	require.NoError(t, err)
	b, err := inst.MarshalAppend(nil)
	require.NoError(t, err)

	other, err := compiler.Compile(&ir.Func{Name: "other", Body: ir.Seq(&ir.AwaitStmt{X: ir.CallOf("wait")})})
	require.NoError(t, err)
	_, err = resumable.Restore(other, env, b, resumable.NewFuture(), resumable.NewFuture(), loop)
	require.Error(t, err)

	sync, err := compiler.Compile(&ir.Func{Name: "snap", Body: ir.Seq(ir.Do("wait"))})
	require.NoError(t, err)
	_, err = resumable.Restore(sync, env, b, resumable.NewFuture(), resumable.NewFuture(), loop)
	require.ErrorIs(t, err, resumable.ErrUnmappedState)
}

func TestUnmappedStateIsInternalError(t *testing.T) {
	pending := resumable.NewFuture()
	env := &resumable.Env{Funcs: map[string]resumable.Func{
		"wait": func(...resumable.Value) (resumable.Value, error) { return pending, nil },
	}}

	// The entry dispatch does not list state 0.
	aw := &lir.LocalRef{Index: 0}
	proc := &lir.Procedure{
		Name: "bad",
		Fields: []lir.Field{
			{Name: "_state", Role: lir.RoleState, Type: ir.Int},
			{Name: "_awaiter", Role: lir.RoleAwaiter},
		},
		Locals: []lir.Local{{Name: "_aw"}},
		States: []lir.StateInfo{{State: 0, Resume: "_r0"}},
		Body: &lir.Seq{List: []lir.Stmt{
			&lir.Switch{Total: true},
			&lir.Assign{Dst: aw, X: &lir.Call{Fn: "wait"}},
			lir.SetState(0),
			&lir.Assign{Dst: &lir.FieldRef{Index: 1}, X: aw},
			&lir.Suspend{State: 0, Awaiter: aw},
			&lir.Label{Name: "_r0"},
		}},
	}

	loop := resumable.NewLoop()
	result := resumable.NewFuture()
	inst, err := resumable.Start(proc, env, nil, result, loop)
	require.NoError(t, err)

	pending.Succeed(nil)
	loop.RunUntilIdle()

	require.ErrorIs(t, inst.Err(), resumable.ErrUnmappedState)
	require.ErrorIs(t, inst.Resume(), resumable.ErrUnmappedState)
	require.False(t, result.IsCompleted())
}
