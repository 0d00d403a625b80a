package emeus

import (
	"sort"

	"go.uber.org/zap"
)

type varSet map[*Variable]struct{}

func (s varSet) add(v *Variable)      { s[v] = struct{}{} }
func (s varSet) remove(v *Variable)   { delete(s, v) }
func (s varSet) has(v *Variable) bool { _, ok := s[v]; return ok }

// sorted returns the members in ascending identifier order.
func (s varSet) sorted() []*Variable {
	vars := make([]*Variable, 0, len(s))
	for v := range s {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].id < vars[j].id })
	return vars
}

// tableau is the incremental simplex dictionary: rows map each basic
// variable to its defining expression, columns index which rows mention
// each parametric variable. The two tables are kept mutually consistent by
// routing every row mutation through the helpers below.
type tableau struct {
	rows    map[*Variable]*Expression
	columns map[*Variable]varSet

	externalRows     map[*Variable]*Expression
	infeasibleRows   varSet
	updatedExternals varSet

	markerVars map[*Constraint]*Variable
	errorVars  map[*Constraint]varSet

	log *zap.Logger
}

func newTableau(log *zap.Logger) tableau {
	return tableau{
		rows:             make(map[*Variable]*Expression),
		columns:          make(map[*Variable]varSet),
		externalRows:     make(map[*Variable]*Expression),
		infeasibleRows:   make(varSet),
		updatedExternals: make(varSet),
		markerVars:       make(map[*Constraint]*Variable),
		errorVars:        make(map[*Constraint]varSet),
		log:              log,
	}
}

func (t *tableau) columnHasKey(v *Variable) bool {
	_, ok := t.columns[v]
	return ok
}

// insertColumnVariable records that rowVar's defining expression mentions
// paramVar. A nil rowVar only ensures the column exists.
func (t *tableau) insertColumnVariable(paramVar, rowVar *Variable) {
	rowSet, ok := t.columns[paramVar]
	if !ok {
		rowSet = make(varSet)
		t.columns[paramVar] = rowSet
	}
	if rowVar != nil {
		rowSet.add(rowVar)
	}
}

func (t *tableau) removeColumnVariable(paramVar, rowVar *Variable) {
	if rowSet, ok := t.columns[paramVar]; ok {
		rowSet.remove(rowVar)
	}
}

// addRow inserts v -> e as a new row and indexes every term of e.
func (t *tableau) addRow(v *Variable, e *Expression) {
	t.rows[v] = e
	for term := range e.terms {
		t.insertColumnVariable(term, v)
	}
	if v.isExternal() {
		t.externalRows[v] = e
		t.updatedExternals.add(v)
	}
}

// removeRow detaches v's row and returns its former expression.
func (t *tableau) removeRow(v *Variable) *Expression {
	e, ok := t.rows[v]
	if !ok {
		t.log.DPanic("removing a variable that is not basic", zap.String("variable", v.name))
		return nil
	}
	for term := range e.terms {
		t.removeColumnVariable(term, v)
	}
	t.infeasibleRows.remove(v)
	if v.isExternal() {
		delete(t.externalRows, v)
		t.updatedExternals.add(v)
	}
	delete(t.rows, v)
	return e
}

// removeColumn erases every occurrence of v on a right-hand side. It is
// only safe for variables whose value is pinned at zero (dummies, retired
// error and artificial variables), so dropping their terms does not change
// any row's value.
func (t *tableau) removeColumn(v *Variable) {
	if rowSet, ok := t.columns[v]; ok {
		for rowVar := range rowSet {
			t.rows[rowVar].removeVariable(v)
		}
		delete(t.columns, v)
	}
	if v.isExternal() {
		delete(t.externalRows, v)
	}
}

// rowAddVariable adds coefficient*v into the row owned by rowVar, keeping
// the column index in step when the term appears or cancels out.
func (t *tableau) rowAddVariable(rowVar *Variable, e *Expression, v *Variable, coefficient float64) {
	had := e.has(v)
	e.addVariable(v, coefficient)
	switch has := e.has(v); {
	case has && !had:
		t.insertColumnVariable(v, rowVar)
	case had && !has:
		t.removeColumnVariable(v, rowVar)
	}
}

// rowAddExpression adds multiplier*other into the row owned by rowVar.
func (t *tableau) rowAddExpression(rowVar *Variable, e, other *Expression, multiplier float64) {
	e.constant += other.constant * multiplier
	for v, c := range other.terms {
		t.rowAddVariable(rowVar, e, v, c*multiplier)
	}
}

// substituteOut replaces old with e in every row mentioning it, then drops
// old's column. Externals touched along the way are marked stale, and
// restricted rows driven negative are queued for the dual optimizer.
func (t *tableau) substituteOut(old *Variable, e *Expression) {
	if rowSet, ok := t.columns[old]; ok {
		for _, rowVar := range rowSet.sorted() {
			expr := t.rows[rowVar]
			c := expr.CoefficientOf(old)
			expr.removeVariable(old)
			t.rowAddExpression(rowVar, expr, e, c)

			if rowVar.isExternal() {
				t.updatedExternals.add(rowVar)
			}
			if rowVar.isRestricted() && expr.constant < 0 {
				t.infeasibleRows.add(rowVar)
			}
		}
	}
	if old.isExternal() {
		t.externalRows[old] = e
		t.updatedExternals.add(old)
	}
	delete(t.columns, old)
}

// pivot exchanges the roles of entry (parametric) and exit (basic).
func (t *tableau) pivot(entry, exit *Variable) {
	e := t.removeRow(exit)
	e.changeSubject(exit, entry)
	t.substituteOut(entry, e)
	t.addRow(entry, e)
}

// popInfeasible removes and returns the infeasible row variable with the
// smallest identifier, or nil when the set is empty.
func (t *tableau) popInfeasible() *Variable {
	var pick *Variable
	for v := range t.infeasibleRows {
		if pick == nil || v.id < pick.id {
			pick = v
		}
	}
	if pick != nil {
		t.infeasibleRows.remove(pick)
	}
	return pick
}
