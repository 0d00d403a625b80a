package emeus_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tchx84/emeus"
)

func TestRequiredEquality(t *testing.T) {
	s := emeus.NewSolver()

	x := s.CreateVariable("x", 167)
	y := s.CreateVariable("y", 2)

	_, err := s.AddConstraint(x, emeus.EQ, emeus.FromVariable(y), emeus.Required)
	require.NoError(t, err)

	require.InDelta(t, x.Value(), y.Value(), 1e-8)
	require.InDelta(t, 0, x.Value(), 1e-8)
	require.InDelta(t, 0, y.Value(), 1e-8)
}

func TestStay(t *testing.T) {
	s := emeus.NewSolver()

	x := s.CreateVariable("x", 5)
	y := s.CreateVariable("y", 10)

	_, err := s.AddStayVariable(x, emeus.Weak)
	require.NoError(t, err)
	_, err = s.AddStayVariable(y, emeus.Weak)
	require.NoError(t, err)

	require.InDelta(t, 5, x.Value(), 1e-8)
	require.InDelta(t, 10, y.Value(), 1e-8)
}

func TestVariableGeqConstant(t *testing.T) {
	s := emeus.NewSolver()

	x := s.CreateVariable("x", 10)
	_, err := s.AddConstraint(x, emeus.GTE, s.CreateExpression(100), emeus.Required)
	require.NoError(t, err)

	require.InDelta(t, 100, x.Value(), 1e-8)
}

func TestVariableLeqConstant(t *testing.T) {
	s := emeus.NewSolver()

	x := s.CreateVariable("x", 100)
	_, err := s.AddConstraint(x, emeus.LTE, s.CreateExpression(10), emeus.Required)
	require.NoError(t, err)

	require.InDelta(t, 10, x.Value(), 1e-8)
}

func TestVariableEqConstant(t *testing.T) {
	s := emeus.NewSolver()

	x := s.CreateVariable("x", 10)
	_, err := s.AddConstraint(x, emeus.EQ, s.CreateExpression(100), emeus.Required)
	require.NoError(t, err)

	require.InDelta(t, 100, x.Value(), 1e-8)
}

func TestEquationWithStay(t *testing.T) {
	s := emeus.NewSolver()

	x := s.CreateVariable("x", 10)
	width := s.CreateVariable("width", 10)
	rightMin := s.CreateVariable("rightMin", 100)

	right := emeus.FromVariable(x).PlusVariable(width)

	_, err := s.AddStayVariable(width, emeus.Weak)
	require.NoError(t, err)
	_, err = s.AddStayVariable(rightMin, emeus.Weak)
	require.NoError(t, err)
	_, err = s.AddConstraint(rightMin, emeus.EQ, right, emeus.Required)
	require.NoError(t, err)

	require.InDelta(t, 90, x.Value(), 1e-8)
	require.InDelta(t, 10, width.Value(), 1e-8)
}

func TestCassowaryClassic(t *testing.T) {
	s := emeus.NewSolver()

	x := s.CreateVariable("x", 0)
	y := s.CreateVariable("y", 0)

	_, err := s.AddConstraint(x, emeus.LTE, emeus.FromVariable(y), emeus.Required)
	require.NoError(t, err)
	_, err = s.AddConstraint(y, emeus.EQ, emeus.FromVariable(x).Plus(3), emeus.Required)
	require.NoError(t, err)
	_, err = s.AddConstraint(x, emeus.EQ, s.CreateExpression(10), emeus.Weak)
	require.NoError(t, err)
	_, err = s.AddConstraint(y, emeus.EQ, s.CreateExpression(10), emeus.Weak)
	require.NoError(t, err)

	// Both weak-optimal corners are acceptable.
	xv, yv := x.Value(), y.Value()
	ok := (approx(xv, 10) && approx(yv, 13)) || (approx(xv, 7) && approx(yv, 10))
	require.Truef(t, ok, "unexpected solution x=%g y=%g", xv, yv)
}

func approx(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-8
}

func TestStrengthDominance(t *testing.T) {
	s := emeus.NewSolver()

	x := s.CreateVariable("x", 0)

	_, err := s.AddConstraint(x, emeus.EQ, s.CreateExpression(10), emeus.Weak)
	require.NoError(t, err)
	_, err = s.AddConstraint(x, emeus.EQ, s.CreateExpression(20), emeus.Strong)
	require.NoError(t, err)

	require.InDelta(t, 20, x.Value(), 1e-8)
}

func TestEditVarRequired(t *testing.T) {
	s := emeus.NewSolver()

	a := s.CreateVariable("a", 0)
	_, err := s.AddStayVariable(a, emeus.Strong)
	require.NoError(t, err)
	require.InDelta(t, 0, a.Value(), 1e-8)

	_, err = s.AddEditVariable(a, emeus.Required)
	require.NoError(t, err)
	require.True(t, s.HasEditVariable(a))

	require.NoError(t, s.BeginEdit())
	require.NoError(t, s.SuggestValue(a, 2))
	require.NoError(t, s.EndEdit())

	require.InDelta(t, 2, a.Value(), 1e-8)
	require.False(t, s.HasEditVariable(a))
}

func TestEditVarSuggest(t *testing.T) {
	s := emeus.NewSolver()

	a := s.CreateVariable("a", 0)
	b := s.CreateVariable("b", 0)

	_, err := s.AddStayVariable(a, emeus.Strong)
	require.NoError(t, err)
	_, err = s.AddConstraint(a, emeus.EQ, emeus.FromVariable(b), emeus.Required)
	require.NoError(t, err)
	s.Resolve()

	require.InDelta(t, 0, a.Value(), 1e-8)
	require.InDelta(t, 0, b.Value(), 1e-8)

	_, err = s.AddEditVariable(a, emeus.Required)
	require.NoError(t, err)
	require.NoError(t, s.BeginEdit())

	require.NoError(t, s.SuggestValue(a, 2))
	s.Resolve()
	require.InDelta(t, 2, a.Value(), 1e-8)
	require.InDelta(t, 2, b.Value(), 1e-8)

	require.NoError(t, s.SuggestValue(a, 10))
	s.Resolve()
	require.InDelta(t, 10, a.Value(), 1e-8)
	require.InDelta(t, 10, b.Value(), 1e-8)
}

func TestEditErrors(t *testing.T) {
	s := emeus.NewSolver()

	a := s.CreateVariable("a", 0)

	err := s.BeginEdit()
	require.ErrorIs(t, err, emeus.ErrInvalidEdit)

	err = s.EndEdit()
	require.ErrorIs(t, err, emeus.ErrInvalidEdit)

	err = s.SuggestValue(a, 1)
	require.ErrorIs(t, err, emeus.ErrInvalidEdit)

	_, err = s.AddEditVariable(a, emeus.Strong)
	require.NoError(t, err)

	// Suggesting outside of a batch is rejected.
	err = s.SuggestValue(a, 1)
	require.ErrorIs(t, err, emeus.ErrInvalidEdit)

	_, err = s.AddEditVariable(a, emeus.Strong)
	require.ErrorIs(t, err, emeus.ErrInvalidEdit)

	require.NoError(t, s.BeginEdit())
	err = s.BeginEdit()
	require.ErrorIs(t, err, emeus.ErrInvalidEdit)
	require.NoError(t, s.EndEdit())
}

func TestUnsatisfiableLeavesTableauUntouched(t *testing.T) {
	s := emeus.NewSolver()

	x := s.CreateVariable("x", 0)

	_, err := s.AddConstraint(x, emeus.EQ, s.CreateExpression(10), emeus.Required)
	require.NoError(t, err)
	require.InDelta(t, 10, x.Value(), 1e-8)

	_, err = s.AddConstraint(x, emeus.EQ, s.CreateExpression(5), emeus.Required)
	require.ErrorIs(t, err, emeus.ErrUnsatisfiable)

	// The failed add must not disturb the solution.
	s.Resolve()
	require.InDelta(t, 10, x.Value(), 1e-8)
}

func TestUnsatisfiableInequality(t *testing.T) {
	s := emeus.NewSolver()

	x := s.CreateVariable("x", 0)

	_, err := s.AddConstraint(x, emeus.GTE, s.CreateExpression(10), emeus.Required)
	require.NoError(t, err)
	_, err = s.AddConstraint(x, emeus.LTE, s.CreateExpression(5), emeus.Required)
	require.ErrorIs(t, err, emeus.ErrUnsatisfiable)
}

func TestRemoveRequiredConstraint(t *testing.T) {
	s := emeus.NewSolver()

	x := s.CreateVariable("x", 0)

	limit, err := s.AddConstraint(x, emeus.LTE, s.CreateExpression(10), emeus.Required)
	require.NoError(t, err)
	_, err = s.AddConstraint(x, emeus.EQ, s.CreateExpression(15), emeus.Weak)
	require.NoError(t, err)
	require.InDelta(t, 10, x.Value(), 1e-8)

	require.NoError(t, s.RemoveConstraint(limit))
	require.InDelta(t, 15, x.Value(), 1e-8)

	require.ErrorIs(t, s.RemoveConstraint(limit), emeus.ErrUnknownConstraint)
}

func TestRemoveNonRequiredConstraint(t *testing.T) {
	s := emeus.NewSolver()

	x := s.CreateVariable("x", 5)

	_, err := s.AddStayVariable(x, emeus.Weak)
	require.NoError(t, err)
	require.True(t, s.HasStayVariable(x))

	target, err := s.AddConstraint(x, emeus.EQ, s.CreateExpression(15), emeus.Strong)
	require.NoError(t, err)
	require.InDelta(t, 15, x.Value(), 1e-8)

	require.NoError(t, s.RemoveConstraint(target))

	// The stay was rebaselined to the value in effect at removal time.
	require.True(t, s.HasStayVariable(x))
	require.InDelta(t, 15, x.Value(), 1e-8)
}

func TestRemoveStayConstraint(t *testing.T) {
	s := emeus.NewSolver()

	x := s.CreateVariable("x", 5)

	stay, err := s.AddStayVariable(x, emeus.Weak)
	require.NoError(t, err)
	require.True(t, s.HasStayVariable(x))

	require.NoError(t, s.RemoveConstraint(stay))
	require.False(t, s.HasStayVariable(x))
}

func TestPaddingLayout(t *testing.T) {
	s := emeus.NewSolver()

	screenWidth := s.CreateVariable("screenWidth", 0)
	screenHeight := s.CreateVariable("screenHeight", 0)
	padding := s.CreateVariable("padding", 0)

	for _, v := range []*emeus.Variable{screenWidth, screenHeight, padding} {
		_, err := s.AddEditVariable(v, emeus.Strong)
		require.NoError(t, err)
	}
	require.NoError(t, s.BeginEdit())
	require.NoError(t, s.SuggestValue(screenWidth, 800))
	require.NoError(t, s.SuggestValue(screenHeight, 600))
	require.NoError(t, s.SuggestValue(padding, 30))

	x := s.CreateVariable("x", 0)
	y := s.CreateVariable("y", 0)
	w := s.CreateVariable("w", 0)
	h := s.CreateVariable("h", 0)

	// x >= padding               y >= padding
	// x + w + padding <= sw - 1  y + h + padding <= sh - 1
	_, err := s.AddConstraint(x, emeus.GTE, emeus.FromVariable(padding), emeus.Required)
	require.NoError(t, err)
	_, err = s.AddConstraint(w, emeus.LTE,
		emeus.FromVariable(screenWidth).PlusTerm(x, -1).PlusTerm(padding, -1).Plus(-1), emeus.Required)
	require.NoError(t, err)
	_, err = s.AddConstraint(y, emeus.GTE, emeus.FromVariable(padding), emeus.Required)
	require.NoError(t, err)
	_, err = s.AddConstraint(h, emeus.LTE,
		emeus.FromVariable(screenHeight).PlusTerm(y, -1).PlusTerm(padding, -1).Plus(-1), emeus.Required)
	require.NoError(t, err)

	require.InDelta(t, 30, x.Value(), 1e-8)
	require.InDelta(t, 30, y.Value(), 1e-8)
	require.InDelta(t, 739, w.Value(), 1e-8)
	require.InDelta(t, 539, h.Value(), 1e-8)

	require.NoError(t, s.SuggestValue(padding, 50))

	require.InDelta(t, 50, x.Value(), 1e-8)
	require.InDelta(t, 50, y.Value(), 1e-8)
	require.InDelta(t, 699, w.Value(), 1e-8)
	require.InDelta(t, 499, h.Value(), 1e-8)
}

func TestDumpTableau(t *testing.T) {
	s := emeus.NewSolver()

	x := s.CreateVariable("x", 5)
	_, err := s.AddStayVariable(x, emeus.Weak)
	require.NoError(t, err)

	dump := s.DumpTableau()
	require.Contains(t, dump, "x")
	require.Contains(t, dump, "Rows")
}

func TestResolveIsIdempotent(t *testing.T) {
	s := emeus.NewSolver(emeus.WithAutoSolve(false))

	x := s.CreateVariable("x", 5)
	y := s.CreateVariable("y", 10)

	_, err := s.AddStayVariable(x, emeus.Weak)
	require.NoError(t, err)
	_, err = s.AddConstraint(y, emeus.EQ, emeus.FromVariable(x).Plus(3), emeus.Required)
	require.NoError(t, err)

	s.Resolve()
	x1, y1 := x.Value(), y.Value()

	s.Resolve()
	require.Equal(t, x1, x.Value())
	require.Equal(t, y1, y.Value())

	require.InDelta(t, 5, x1, 1e-8)
	require.InDelta(t, 8, y1, 1e-8)
}

func BenchmarkAddConstraint(b *testing.B) {
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		s := emeus.NewSolver()
		l := s.CreateVariable("l", 0)
		m := s.CreateVariable("m", 0)
		r := s.CreateVariable("r", 0)

		s.AddConstraint(m, emeus.EQ, emeus.FromVariable(l).PlusVariable(r).Times(0.5), emeus.Required)
		s.AddConstraint(r, emeus.GTE, emeus.FromVariable(l).Plus(10), emeus.Required)
	}
}

func BenchmarkSuggestValue(b *testing.B) {
	s := emeus.NewSolver()
	x := s.CreateVariable("x", 0)
	y := s.CreateVariable("y", 0)

	s.AddConstraint(y, emeus.EQ, emeus.FromVariable(x).Times(2), emeus.Required)
	s.AddEditVariable(x, emeus.Strong)
	s.BeginEdit()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		s.SuggestValue(x, float64(i%100))
	}
}
