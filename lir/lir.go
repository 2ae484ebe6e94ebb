// Package lir is the lowered form of a suspendable procedure: a restartable
// body plus the metadata a backend needs to materialize it (durable fields,
// per-turn locals, resume states).
//
// Control flow is expressed with labels and gotos. A goto may only target a
// label of its own sequence or of an enclosing sequence; a sequence is
// entered at its first statement. Sequences nest only where a native
// protected region (Try) or a handler body begins, which is where a backend
// has to open a new protected block.
package lir

import (
	"fmt"

	"github.com/stealthrocket/resumable/ir"
)

// State is the value of the state field of a procedure instance.
type State int

const (
	// NotStarted is the state of an instance that is running, or that has
	// not been suspended yet.
	NotStarted State = -1

	// RunningToCompletion is the terminal state: the instance completed
	// and cannot be resumed again.
	RunningToCompletion State = -2
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case RunningToCompletion:
		return "completed"
	default:
		return fmt.Sprintf("%d", int(s))
	}
}

// FieldRole is the semantic role of a durable field.
type FieldRole uint8

const (
	RoleState FieldRole = iota
	RoleParam
	RoleHoisted
	RoleValue
	RolePendingException
	RolePendingBranch
	RoleAwaiter
)

func (r FieldRole) String() string {
	switch r {
	case RoleState:
		return "state"
	case RoleParam:
		return "param"
	case RoleHoisted:
		return "hoisted"
	case RoleValue:
		return "value"
	case RolePendingException:
		return "pending-exception"
	case RolePendingBranch:
		return "pending-branch"
	case RoleAwaiter:
		return "awaiter"
	default:
		return fmt.Sprintf("FieldRole(%d)", uint8(r))
	}
}

// Field is a durable storage location owned by the procedure instance. It
// keeps its value across suspensions.
type Field struct {
	Name string
	Role FieldRole
	Type ir.Type
}

// Local is a per-turn storage location. Locals do not survive suspension.
type Local struct {
	Name string
	Type ir.Type
}

// Spill moves one local to a durable field before suspending, and back
// after resuming.
type Spill struct {
	Local int
	Field int
}

// StateInfo describes one suspension point.
type StateInfo struct {
	State State

	// Resume is the label at which the procedure resumes.
	Resume string

	// Active lists the protected regions (by id) that are logically active
	// at the suspension point, innermost first.
	Active []int

	// Spills lists the values moved to durable storage across the
	// suspension.
	Spills []Spill
}

// StateField is the index of the state field in Procedure.Fields.
const StateField = 0

// Procedure is a lowered suspendable procedure. The Body is executed once
// per turn: from the start when the instance starts, and again each time it
// resumes.
type Procedure struct {
	Name string

	// Fields are the durable fields. Fields[StateField] is the state field.
	Fields []Field

	// Params maps each parameter (in declaration order) to its field.
	Params []int

	// Locals are the per-turn locals.
	Locals []Local

	// States are the suspension points, indexed by state.
	States []StateInfo

	Body *Seq
}

// FieldsWithRole returns the indices of the fields with the given role.
func (p *Procedure) FieldsWithRole(role FieldRole) []int {
	var indices []int
	for i, f := range p.Fields {
		if f.Role == role {
			indices = append(indices, i)
		}
	}
	return indices
}
