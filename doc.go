// Package emeus implements an incremental Cassowary linear-arithmetic
// constraint solver.
//
// The solver maintains a set of linear equalities and inequalities over
// real-valued variables, each constraint carrying a strength, and keeps the
// variable values satisfying the required constraints while minimizing the
// weighted violation of the weaker ones. Constraints can be added and
// removed at any time; "edit" variables expose a constant slot that can be
// perturbed cheaply through SuggestValue without rebuilding the tableau,
// and "stay" variables express a preference for keeping their current
// value.
//
// A Solver is a single-threaded state machine: callers embedding it in a
// concurrent host must serialize access themselves.
package emeus
