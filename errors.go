package emeus

import "errors"

var (
	// ErrUnsatisfiable reports a required constraint that cannot hold
	// together with the constraints already in the tableau. The tableau is
	// left as it was before the faulting add.
	ErrUnsatisfiable = errors.New("emeus: required constraint is unsatisfiable")

	// ErrUnbounded reports that the optimizer found no exit row for an
	// entry variable. It indicates a programming error, typically a
	// negative strength weight.
	ErrUnbounded = errors.New("emeus: objective function is unbounded")

	// ErrInvalidEdit reports a suggest without an active edit constraint,
	// or a mismatched begin/end of an edit batch.
	ErrInvalidEdit = errors.New("emeus: invalid edit operation")

	// ErrUnknownConstraint reports a removal of a constraint that is not
	// registered with this solver.
	ErrUnknownConstraint = errors.New("emeus: constraint is not registered with this solver")
)
