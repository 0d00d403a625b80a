package emeus

import (
	"fmt"
	"sort"
	"strings"
)

// approxEps is the tolerance used for all comparisons against zero.
// Coefficients whose magnitude drops below it are pruned on write.
const approxEps = 1.0e-8

func nearZero(val float64) bool {
	if val < 0 {
		return -val < approxEps
	}
	return val < approxEps
}

func approxEq(a, b float64) bool { return nearZero(a - b) }

// Expression is a sparse linear expression: a constant plus a set of terms
// with non-zero coefficients. The zero-coefficient invariant is maintained
// by every mutating operation.
type Expression struct {
	constant float64
	terms    map[*Variable]float64
}

// NewExpression returns an expression holding only a constant.
func NewExpression(constant float64) *Expression {
	return &Expression{
		constant: constant,
		terms:    make(map[*Variable]float64),
	}
}

// FromVariable returns the expression 1*v + 0.
func FromVariable(v *Variable) *Expression {
	e := NewExpression(0)
	e.terms[v] = 1
	return e
}

func (e *Expression) Clone() *Expression {
	res := &Expression{
		constant: e.constant,
		terms:    make(map[*Variable]float64, len(e.terms)),
	}
	for v, c := range e.terms {
		res.terms[v] = c
	}
	return res
}

func (e *Expression) Constant() float64 { return e.constant }

// CoefficientOf returns the coefficient of v, or zero when v is absent.
func (e *Expression) CoefficientOf(v *Variable) float64 { return e.terms[v] }

func (e *Expression) has(v *Variable) bool {
	_, ok := e.terms[v]
	return ok
}

// Plus adds a constant and returns the expression for chaining.
func (e *Expression) Plus(constant float64) *Expression {
	e.constant += constant
	return e
}

// PlusVariable adds 1*v and returns the expression for chaining.
func (e *Expression) PlusVariable(v *Variable) *Expression {
	e.addVariable(v, 1)
	return e
}

// PlusTerm adds coefficient*v and returns the expression for chaining.
func (e *Expression) PlusTerm(v *Variable, coefficient float64) *Expression {
	e.addVariable(v, coefficient)
	return e
}

// Times scales the constant and every coefficient by f. Scaling by zero
// collapses to the zero expression.
func (e *Expression) Times(f float64) *Expression {
	e.times(f)
	return e
}

// setVariable inserts or overwrites the coefficient of v, pruning the term
// when the coefficient is near zero.
func (e *Expression) setVariable(v *Variable, coefficient float64) {
	if nearZero(coefficient) {
		delete(e.terms, v)
		return
	}
	e.terms[v] = coefficient
}

func (e *Expression) removeVariable(v *Variable) {
	delete(e.terms, v)
}

// addVariable is the fused add-then-prune: the coefficient of v becomes the
// sum of the previous coefficient and the given one.
func (e *Expression) addVariable(v *Variable, coefficient float64) {
	c := e.terms[v] + coefficient
	if nearZero(c) {
		delete(e.terms, v)
		return
	}
	e.terms[v] = c
}

// addExpression adds multiplier*other into e, term by term.
func (e *Expression) addExpression(other *Expression, multiplier float64) {
	e.constant += other.constant * multiplier
	for v, c := range other.terms {
		e.addVariable(v, c*multiplier)
	}
}

func (e *Expression) times(f float64) {
	if f == 0 {
		e.constant = 0
		e.terms = make(map[*Variable]float64)
		return
	}
	e.constant *= f
	for v, c := range e.terms {
		e.terms[v] = c * f
	}
}

// substituteOut replaces every occurrence of v by the given replacement
// expression, scaled by the coefficient v had.
func (e *Expression) substituteOut(v *Variable, replacement *Expression) {
	c, ok := e.terms[v]
	if !ok {
		return
	}
	delete(e.terms, v)
	e.addExpression(replacement, c)
}

// newSubject solves the equation e = 0 for v: v is removed and the rest of
// the expression is divided by the negation of its coefficient, so that
// afterwards e is the defining right-hand side of the row v = e. The
// returned reciprocal is the coefficient an old subject acquires when the
// row changes hands.
func (e *Expression) newSubject(v *Variable) float64 {
	c := e.terms[v]
	delete(e.terms, v)
	reciprocal := 1.0 / c
	e.times(-reciprocal)
	return reciprocal
}

// changeSubject rewrites the row old = e into new = e', given that
// newSubject appears in e with a non-zero coefficient.
func (e *Expression) changeSubject(oldSubject, newSubject *Variable) {
	e.setVariable(oldSubject, e.newSubject(newSubject))
}

// pickPivotable returns any slack-kind term variable, preferring the one
// with the smallest identifier, or nil when none exists.
func (e *Expression) pickPivotable() *Variable {
	var pick *Variable
	for v := range e.terms {
		if !v.isPivotable() {
			continue
		}
		if pick == nil || v.id < pick.id {
			pick = v
		}
	}
	return pick
}

func (e *Expression) isConstant() bool { return len(e.terms) == 0 }

// sortedVariables returns the term variables in ascending identifier order.
// Candidate scans iterate this so hash order never leaks into the solution.
func (e *Expression) sortedVariables() []*Variable {
	vars := make([]*Variable, 0, len(e.terms))
	for v := range e.terms {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].id < vars[j].id })
	return vars
}

func (e *Expression) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%g", e.constant)
	for _, v := range e.sortedVariables() {
		fmt.Fprintf(&sb, " + %g*%s", e.terms[v], v.name)
	}
	return sb.String()
}
