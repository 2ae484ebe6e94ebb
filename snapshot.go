package resumable

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/stealthrocket/resumable/lir"
)

// Protobuf field numbers of the snapshot encoding.
const (
	snapshotProc    protowire.Number = 1
	snapshotState   protowire.Number = 2
	snapshotStorage protowire.Number = 3
)

// MarshalAppend appends a snapshot of a suspended instance to b.
//
// The snapshot holds the state and the durable fields of the instance,
// except the awaiter: the awaitable the instance is suspended on is owned
// by the host, which hands it back to Restore. Values are stored by
// content: an exception held by several fields is restored as distinct
// exceptions with equal contents.
func (i *Instance) MarshalAppend(b []byte) ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running || i.err != nil || i.State() < 0 {
		return b, ErrNotSuspended
	}

	var fields Storage
	for index, field := range i.proc.Fields {
		if field.Role == lir.RoleAwaiter || index == lir.StateField {
			continue
		}
		if v := i.fields.Get(index); v != nil {
			fields.Set(index, v)
		}
	}
	storage, err := fields.MarshalAppend(nil)
	if err != nil {
		return b, fmt.Errorf("resumable: snapshot of %s: %w", i.proc.Name, err)
	}

	b = protowire.AppendTag(b, snapshotProc, protowire.BytesType)
	b = protowire.AppendString(b, i.proc.Name)
	b = protowire.AppendTag(b, snapshotState, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(i.State())))
	b = protowire.AppendTag(b, snapshotStorage, protowire.BytesType)
	b = protowire.AppendBytes(b, storage)
	return b, nil
}

// Restore recreates a suspended instance of the procedure from a snapshot
// produced by MarshalAppend. The instance resumes on the loop when pending,
// the awaitable it was suspended on, completes.
func Restore(proc *lir.Procedure, env *Env, b []byte, pending Awaitable, sink Sink, loop *Loop) (*Instance, error) {
	if pending == nil {
		return nil, fmt.Errorf("resumable: restoring %s requires the pending awaitable", proc.Name)
	}
	inst, err := newInstance(proc, env, sink, loop)
	if err != nil {
		return nil, err
	}

	var name string
	var state int64
	var fields Storage
	var hasState bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("resumable: invalid snapshot: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == snapshotProc && typ == protowire.BytesType:
			name, n = protowire.ConsumeString(b)
		case num == snapshotState && typ == protowire.VarintType:
			var x uint64
			x, n = protowire.ConsumeVarint(b)
			state, hasState = protowire.DecodeZigZag(x), true
		case num == snapshotStorage && typ == protowire.BytesType:
			var storage []byte
			storage, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				if err := fields.Unmarshal(storage); err != nil {
					return nil, fmt.Errorf("resumable: invalid snapshot: %w", err)
				}
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("resumable: invalid snapshot: %w", protowire.ParseError(n))
		}
		b = b[n:]
	}

	if name != proc.Name {
		return nil, fmt.Errorf("resumable: snapshot of %q cannot restore %q", name, proc.Name)
	}
	if !hasState || state < 0 || state >= int64(len(proc.States)) {
		return nil, fmt.Errorf("%w: %d in snapshot of %s", ErrUnmappedState, state, proc.Name)
	}
	if fields.Len() > len(proc.Fields) {
		return nil, fmt.Errorf("resumable: snapshot of %s has %d fields, expected at most %d", proc.Name, fields.Len(), len(proc.Fields))
	}

	for index := 0; index < fields.Len(); index++ {
		if index == lir.StateField || proc.Fields[index].Role == lir.RoleAwaiter {
			continue
		}
		inst.fields.Set(index, fields.Get(index))
	}
	inst.fields.Set(lir.StateField, state)
	for _, index := range proc.FieldsWithRole(lir.RoleAwaiter) {
		inst.fields.Set(index, pending)
	}

	pending.OnCompleted(inst.continuation)
	return inst, nil
}
