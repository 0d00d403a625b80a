package emeus

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
)

// editInfo tracks one active edit constraint: the error-variable pair that
// carries suggested deltas into the constant column, the previously
// suggested value, and a registration index used to unwind the edits in
// reverse order when the batch ends.
type editInfo struct {
	constraint   *Constraint
	eplus        *Variable
	eminus       *Variable
	prevConstant float64
	index        int
}

// Solver is the incremental simplex engine. It owns the tableau, the
// objective row, and the stay/edit bookkeeping. All methods must be called
// from a single goroutine.
type Solver struct {
	tableau

	objective *Variable

	editInfos map[*Variable]*editInfo
	stayVars  map[*Variable]*Constraint

	stayPlusErrorVars  []*Variable
	stayMinusErrorVars []*Variable

	varCounter        uint64
	slackCounter      int
	dummyCounter      int
	artificialCounter int
	optimizeCount     int

	editing      bool
	needsSolving bool
	autoSolve    bool

	log *zap.Logger
}

// NewSolver returns an empty solver. Auto-solve is enabled by default, so
// external variable values are readable right after every mutation.
func NewSolver(opts ...Option) *Solver {
	s := &Solver{
		editInfos: make(map[*Variable]*editInfo),
		stayVars:  make(map[*Variable]*Constraint),
		autoSolve: true,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tableau = newTableau(s.log)
	s.objective = s.newVariable(VariableObjective, "z")
	s.addRow(s.objective, NewExpression(0))
	return s
}

func (s *Solver) newVariable(kind VariableKind, name string) *Variable {
	s.varCounter++
	return &Variable{id: s.varCounter, kind: kind, name: name}
}

// CreateVariable registers a new external variable with an initial value.
// An empty name is replaced by a unique one.
func (s *Solver) CreateVariable(name string, value float64) *Variable {
	v := s.newVariable(VariableExternal, name)
	if name == "" {
		v.name = fmt.Sprintf("v%d", v.id)
	}
	v.value = value
	return v
}

// CreateExpression returns a builder seed holding only a constant.
func (s *Solver) CreateExpression(constant float64) *Expression {
	return NewExpression(constant)
}

// AddConstraint posts the constraint "v op e" at the given strength. The
// expression is consumed. The returned constraint handle can later be
// passed to RemoveConstraint.
func (s *Solver) AddConstraint(v *Variable, op Op, e *Expression, strength Strength) (*Constraint, error) {
	// Build the residual so that inequalities always read "residual >= 0":
	// v - e for >= and ==, e - v for <=.
	var residual *Expression
	if op == LTE {
		residual = e
		residual.addVariable(v, -1)
	} else {
		residual = FromVariable(v)
		residual.addExpression(e, -1)
	}

	cn := &Constraint{expression: residual, op: op, strength: strength}
	if err := s.addConstraintInternal(cn); err != nil {
		return nil, err
	}
	return cn, nil
}

// AddStayVariable posts a preference that v keeps its current value.
func (s *Solver) AddStayVariable(v *Variable, strength Strength) (*Constraint, error) {
	expr := NewExpression(v.value)
	expr.addVariable(v, -1)

	cn := &Constraint{expression: expr, op: EQ, strength: strength, isStay: true, variable: v}
	if err := s.addConstraintInternal(cn); err != nil {
		return nil, err
	}
	s.stayVars[v] = cn
	return cn, nil
}

// HasStayVariable reports whether v has a stay constraint registered
// through AddStayVariable.
func (s *Solver) HasStayVariable(v *Variable) bool {
	_, ok := s.stayVars[v]
	return ok
}

// AddEditVariable marks v as a future edit target. The constraint always
// materializes the error-variable pair, even at Required strength, since
// the pair is what SuggestValue perturbs.
func (s *Solver) AddEditVariable(v *Variable, strength Strength) (*Constraint, error) {
	if _, ok := s.editInfos[v]; ok {
		return nil, fmt.Errorf("%w: variable %q already has an edit constraint", ErrInvalidEdit, v.name)
	}

	expr := NewExpression(v.value)
	expr.addVariable(v, -1)

	cn := &Constraint{expression: expr, op: EQ, strength: strength, isEdit: true, variable: v}
	if err := s.addConstraintInternal(cn); err != nil {
		return nil, err
	}
	return cn, nil
}

// HasEditVariable reports whether v has an active edit constraint.
func (s *Solver) HasEditVariable(v *Variable) bool {
	_, ok := s.editInfos[v]
	return ok
}

// BeginEdit opens an edit batch. At least one edit variable must be
// registered.
func (s *Solver) BeginEdit() error {
	if s.editing {
		return fmt.Errorf("%w: edit batch is already open", ErrInvalidEdit)
	}
	if len(s.editInfos) == 0 {
		return fmt.Errorf("%w: no edit variables registered", ErrInvalidEdit)
	}
	s.editing = true
	s.infeasibleRows = make(varSet)
	s.resetStayConstants()
	return nil
}

// SuggestValue proposes a new value for an edit variable. Only the
// constant column is perturbed; the basis is repaired by the dual
// optimizer in Resolve, which SuggestValue runs itself when auto-solve is
// enabled.
func (s *Solver) SuggestValue(v *Variable, value float64) error {
	info, ok := s.editInfos[v]
	if !ok {
		return fmt.Errorf("%w: no active edit constraint for %q", ErrInvalidEdit, v.name)
	}
	if !s.editing {
		return fmt.Errorf("%w: SuggestValue outside of an edit batch", ErrInvalidEdit)
	}

	delta := value - info.prevConstant
	info.prevConstant = value
	s.deltaEditConstant(delta, info.eplus, info.eminus)

	s.needsSolving = true
	if s.autoSolve {
		s.Resolve()
	}
	return nil
}

// EndEdit closes the edit batch: the pending suggestions are resolved and
// every edit constraint is removed, newest first.
func (s *Solver) EndEdit() error {
	if !s.editing {
		return fmt.Errorf("%w: no edit batch is open", ErrInvalidEdit)
	}
	s.needsSolving = true
	s.Resolve()
	s.editing = false

	infos := make([]*editInfo, 0, len(s.editInfos))
	for _, info := range s.editInfos {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].index > infos[j].index })

	var firstErr error
	for _, info := range infos {
		if err := s.RemoveConstraint(info.constraint); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Resolve repairs feasibility after constant perturbations, pushes the
// updated external values, and rebaselines the stay constraints to the
// values just computed. Calling it twice without intervening mutation is a
// no-op.
func (s *Solver) Resolve() {
	if !s.needsSolving {
		return
	}
	s.dualOptimize()
	s.setExternalVariables()
	s.infeasibleRows = make(varSet)
	s.resetStayConstants()
	s.needsSolving = false
}

// RemoveConstraint withdraws a previously added constraint, rearranging
// the basis so that the constraint's marker variable can be dropped.
func (s *Solver) RemoveConstraint(cn *Constraint) error {
	marker, ok := s.markerVars[cn]
	if !ok {
		return ErrUnknownConstraint
	}

	s.needsSolving = true
	s.resetStayConstants()

	// Hand the error variables' objective contributions back.
	zRow := s.rows[s.objective]
	for _, ev := range s.errorVars[cn].sorted() {
		if evRow, basic := s.rows[ev]; basic {
			s.rowAddExpression(s.objective, zRow, evRow, -float64(cn.strength))
		} else {
			s.rowAddVariable(s.objective, zRow, ev, -float64(cn.strength))
		}
	}
	delete(s.markerVars, cn)

	if _, basic := s.rows[marker]; !basic {
		if exit := s.chooseMarkerExit(marker); exit != nil {
			s.pivot(marker, exit)
		}
	}
	if _, basic := s.rows[marker]; basic {
		s.removeRow(marker)
	} else {
		s.removeColumn(marker)
	}

	for _, ev := range s.errorVars[cn].sorted() {
		if ev != marker {
			s.removeColumn(ev)
		}
	}

	if cn.isStay {
		s.dropStayTracking(cn)
	}
	if cn.isEdit {
		delete(s.editInfos, cn.variable)
	}
	delete(s.errorVars, cn)

	if err := s.optimize(s.objective); err != nil {
		return err
	}
	if s.autoSolve {
		s.dualOptimize()
		s.setExternalVariables()
	}
	return nil
}

// chooseMarkerExit picks the row to pivot a parametric marker into before
// dropping it: restricted rows are preferred over external ones, and
// within each group the row with the largest coefficient magnitude on the
// marker column wins. The objective row is never a candidate.
func (s *Solver) chooseMarkerExit(marker *Variable) *Variable {
	var restrictedExit, externalExit *Variable
	var restrictedCoeff, externalCoeff float64

	for _, rowVar := range s.columns[marker].sorted() {
		if rowVar.kind == VariableObjective {
			continue
		}
		c := math.Abs(s.rows[rowVar].CoefficientOf(marker))
		if nearZero(c) {
			continue
		}
		if rowVar.isExternal() {
			if c > externalCoeff {
				externalCoeff, externalExit = c, rowVar
			}
		} else if c > restrictedCoeff {
			restrictedCoeff, restrictedExit = c, rowVar
		}
	}

	if restrictedExit != nil {
		return restrictedExit
	}
	return externalExit
}

func (s *Solver) dropStayTracking(cn *Constraint) {
	set := s.errorVars[cn]
	for i, plus := range s.stayPlusErrorVars {
		if set.has(plus) {
			s.stayPlusErrorVars = append(s.stayPlusErrorVars[:i], s.stayPlusErrorVars[i+1:]...)
			s.stayMinusErrorVars = append(s.stayMinusErrorVars[:i], s.stayMinusErrorVars[i+1:]...)
			break
		}
	}
	if s.stayVars[cn.variable] == cn {
		delete(s.stayVars, cn.variable)
	}
}

// addConstraintInternal normalizes, inserts, and re-optimizes. On
// ErrUnsatisfiable the tableau is left as it was before the call; an
// ErrUnbounded from the optimizer is returned without unwinding the rows
// already inserted.
func (s *Solver) addConstraintInternal(cn *Constraint) error {
	expr := s.normalizeExpression(cn)

	added, err := s.tryAddingDirectly(expr)
	if err == nil && !added {
		err = s.addWithArtificialVariable(expr)
	}
	if err != nil {
		s.unwindConstraint(cn)
		return err
	}

	s.needsSolving = true

	// Every external named by the constraint needs a value refresh, even
	// the ones left parametric (their value is zero by convention).
	for v := range cn.expression.terms {
		if v.isExternal() {
			s.updatedExternals.add(v)
		}
	}

	if err := s.optimize(s.objective); err != nil {
		return err
	}
	if s.autoSolve {
		s.dualOptimize()
		s.setExternalVariables()
	}
	return nil
}

// unwindConstraint discards the metadata normalization registered for a
// constraint whose insertion failed. Failed constraints are required ones,
// so no error variables ever reached the objective row.
func (s *Solver) unwindConstraint(cn *Constraint) {
	delete(s.markerVars, cn)
	delete(s.errorVars, cn)
}

// normalizeExpression rewrites the constraint's residual into an augmented
// expression E' suitable for insertion as a row: basic variables are
// replaced by their defining rows, and slack/error/dummy variables are
// injected according to the operator and strength.
func (s *Solver) normalizeExpression(cn *Constraint) *Expression {
	cnExpr := cn.expression

	expr := NewExpression(cnExpr.constant)
	for _, v := range cnExpr.sortedVariables() {
		c := cnExpr.terms[v]
		if row, basic := s.rows[v]; basic {
			expr.addExpression(row, c)
		} else {
			expr.addVariable(v, c)
		}
	}

	zRow := s.rows[s.objective]
	weight := float64(cn.strength)

	switch {
	case cn.op != EQ:
		// residual - slack = 0, plus an error variable when the
		// inequality is allowed to give.
		s.slackCounter++
		slack := s.newVariable(VariableSlack, fmt.Sprintf("s%d", s.slackCounter))
		expr.setVariable(slack, -1)
		s.markerVars[cn] = slack

		if !cn.strength.IsRequired() {
			s.slackCounter++
			eminus := s.newVariable(VariableSlack, fmt.Sprintf("em%d", s.slackCounter))
			expr.setVariable(eminus, 1)
			s.rowAddVariable(s.objective, zRow, eminus, weight)
			s.insertErrorVariable(cn, eminus)
		}

	case cn.strength.IsRequired() && !cn.isEdit:
		// A dummy gives the row a subject that can never pivot; it only
		// identifies the row for later removal.
		s.dummyCounter++
		dummy := s.newVariable(VariableDummy, fmt.Sprintf("d%d", s.dummyCounter))
		expr.setVariable(dummy, 1)
		s.markerVars[cn] = dummy

	default:
		// residual - eplus + eminus = 0; the pair carries the violation in
		// both directions and doubles as the delta handles for edits.
		s.slackCounter++
		eplus := s.newVariable(VariableSlack, fmt.Sprintf("ep%d", s.slackCounter))
		eminus := s.newVariable(VariableSlack, fmt.Sprintf("em%d", s.slackCounter))

		expr.setVariable(eplus, -1)
		expr.setVariable(eminus, 1)
		s.markerVars[cn] = eplus

		s.rowAddVariable(s.objective, zRow, eplus, weight)
		s.rowAddVariable(s.objective, zRow, eminus, weight)
		s.insertErrorVariable(cn, eplus)
		s.insertErrorVariable(cn, eminus)

		if cn.isStay {
			s.stayPlusErrorVars = append(s.stayPlusErrorVars, eplus)
			s.stayMinusErrorVars = append(s.stayMinusErrorVars, eminus)
		} else if cn.isEdit {
			s.editInfos[cn.variable] = &editInfo{
				constraint:   cn,
				eplus:        eplus,
				eminus:       eminus,
				prevConstant: cnExpr.constant,
				index:        int(eplus.id),
			}
		}
	}

	if expr.constant < 0 {
		expr.times(-1)
	}
	return expr
}

func (s *Solver) insertErrorVariable(cn *Constraint, v *Variable) {
	set, ok := s.errorVars[cn]
	if !ok {
		set = make(varSet)
		s.errorVars[cn] = set
	}
	set.add(v)
}

// tryAddingDirectly inserts E' as a row when a subject can be chosen
// without an artificial variable. Returns false when the artificial-
// variable phase is needed.
func (s *Solver) tryAddingDirectly(expr *Expression) (bool, error) {
	subject, err := s.chooseSubject(expr)
	if err != nil {
		return false, err
	}
	if subject == nil {
		return false, nil
	}

	expr.newSubject(subject)
	if s.columnHasKey(subject) {
		s.substituteOut(subject, expr)
	}
	s.addRow(subject, expr)
	return true, nil
}

// chooseSubject picks the variable to own the new row. First pass: an
// unrestricted variable, ideally one the tableau has never seen; failing
// that, a restricted non-dummy with a negative coefficient whose column is
// empty or mentions only the objective. Second pass: when only dummies
// remain, a fresh dummy can own the row provided the constant vanishes —
// otherwise the required constraint is unsatisfiable.
func (s *Solver) chooseSubject(expr *Expression) (*Variable, error) {
	var subject *Variable
	foundUnrestricted := false
	foundNewRestricted := false

	for _, v := range expr.sortedVariables() {
		c := expr.terms[v]
		if foundUnrestricted {
			if !v.isRestricted() && !s.columnHasKey(v) {
				return v, nil
			}
			continue
		}
		if v.isRestricted() {
			if foundNewRestricted || v.isDummy() || c >= 0 {
				continue
			}
			col := s.columns[v]
			if len(col) == 0 || (len(col) == 1 && col.has(s.objective)) {
				subject = v
				foundNewRestricted = true
			}
		} else {
			subject = v
			foundUnrestricted = true
		}
	}
	if subject != nil {
		return subject, nil
	}

	var coefficient float64
	for _, v := range expr.sortedVariables() {
		if !v.isDummy() {
			return nil, nil // artificial variable needed
		}
		if !s.columnHasKey(v) {
			subject = v
			coefficient = expr.terms[v]
		}
	}

	if !nearZero(expr.constant) {
		s.log.Debug("unable to satisfy a required constraint", zap.String("expression", expr.String()))
		return nil, ErrUnsatisfiable
	}
	if coefficient > 0 {
		expr.times(-1)
	}
	return subject, nil
}

// addWithArtificialVariable runs the artificial phase: minimize a
// synthetic objective az holding a copy of E'; if it can be driven to
// zero, E' is consistent and the artificial variable av is pivoted back
// out of the basis.
func (s *Solver) addWithArtificialVariable(expr *Expression) error {
	s.artificialCounter++
	av := s.newVariable(VariableSlack, fmt.Sprintf("a%d", s.artificialCounter))
	az := s.newVariable(VariableObjective, fmt.Sprintf("az%d", s.artificialCounter))

	s.addRow(az, expr.Clone())
	s.addRow(av, expr)

	if err := s.optimize(az); err != nil {
		return err
	}

	if azRow := s.rows[az]; !nearZero(azRow.constant) {
		// Unwind both synthetic rows; av may still be basic when the
		// artificial objective had nothing to pivot.
		if _, basic := s.rows[av]; basic {
			s.removeRow(av)
		} else {
			s.removeColumn(av)
		}
		s.removeRow(az)
		return ErrUnsatisfiable
	}

	if e, basic := s.rows[av]; basic {
		if e.isConstant() {
			// The row degenerated to "0 = 0": the constraint is redundant.
			s.removeRow(av)
			s.removeRow(az)
			return nil
		}
		entry := e.pickPivotable()
		if entry == nil {
			s.log.DPanic("artificial row has no pivotable variable", zap.String("row", e.String()))
			s.removeRow(av)
			s.removeRow(az)
			return nil
		}
		s.pivot(entry, av)
	}

	s.removeColumn(av)
	s.removeRow(az)
	return nil
}

// optimize runs the primal simplex on the given objective row until no
// pivotable variable carries a negative coefficient.
func (s *Solver) optimize(z *Variable) error {
	s.optimizeCount++

	zRow, ok := s.rows[z]
	if !ok {
		s.log.DPanic("objective variable has no row", zap.String("objective", z.name))
		return nil
	}

	pivots := 0
	for {
		var entry *Variable
		objectiveCoefficient := 0.0
		for _, v := range zRow.sortedVariables() {
			c := zRow.terms[v]
			if v.isPivotable() && c < objectiveCoefficient {
				objectiveCoefficient = c
				entry = v
			}
		}
		if entry == nil || objectiveCoefficient > -approxEps {
			s.log.Debug("optimize pass complete",
				zap.String("objective", z.name),
				zap.Int("pivots", pivots),
				zap.Int("pass", s.optimizeCount))
			return nil
		}

		var exit *Variable
		minRatio := math.MaxFloat64
		for _, v := range s.columns[entry].sorted() {
			if !v.isPivotable() {
				continue
			}
			row := s.rows[v]
			coeff := row.CoefficientOf(entry)
			if coeff >= 0 {
				continue
			}
			r := -row.constant / coeff
			if r < minRatio || (approxEq(r, minRatio) && exit != nil && v.id < exit.id) {
				minRatio = r
				exit = v
			}
		}
		if exit == nil {
			s.log.Error("unbounded objective during optimization", zap.String("entry", entry.name))
			return ErrUnbounded
		}

		s.pivot(entry, exit)
		pivots++
	}
}

// dualOptimize restores feasibility after constant perturbations: each
// infeasible row is repaired by pivoting in the parametric variable with
// the smallest objective-to-coefficient ratio, which keeps the objective
// optimal.
func (s *Solver) dualOptimize() {
	zRow := s.rows[s.objective]

	for {
		exit := s.popInfeasible()
		if exit == nil {
			return
		}
		expr, basic := s.rows[exit]
		if !basic || expr.constant >= 0 {
			continue
		}

		var entry *Variable
		ratio := math.MaxFloat64
		for _, v := range expr.sortedVariables() {
			cd := expr.terms[v]
			if cd <= 0 || !v.isPivotable() {
				continue
			}
			r := zRow.CoefficientOf(v) / cd
			if r < ratio || (approxEq(r, ratio) && entry != nil && v.id < entry.id) {
				ratio = r
				entry = v
			}
		}

		if entry != nil && ratio != math.MaxFloat64 {
			s.pivot(entry, exit)
		} else {
			s.log.Error("infeasible row cannot be repaired", zap.String("row", exit.name))
		}
	}
}

// deltaEditConstant propagates a suggested delta into the constant column.
func (s *Solver) deltaEditConstant(delta float64, eplus, eminus *Variable) {
	if plusExpr, basic := s.rows[eplus]; basic {
		plusExpr.constant += delta
		if plusExpr.constant < 0 {
			s.infeasibleRows.add(eplus)
		}
		return
	}
	if minusExpr, basic := s.rows[eminus]; basic {
		minusExpr.constant -= delta
		if minusExpr.constant < 0 {
			s.infeasibleRows.add(eminus)
		}
		return
	}

	columnSet, ok := s.columns[eminus]
	if !ok {
		s.log.Error("columns are unset during delta edit", zap.String("variable", eminus.name))
		return
	}
	for _, basicVar := range columnSet.sorted() {
		expr := s.rows[basicVar]
		c := expr.CoefficientOf(eminus)
		expr.constant += c * delta

		if basicVar.isExternal() {
			s.updatedExternals.add(basicVar)
		} else if basicVar.isRestricted() && expr.constant < 0 {
			s.infeasibleRows.add(basicVar)
		}
	}
}

// setExternalVariables pushes the freshly solved constants into the stale
// external variables. Externals left parametric sit at zero.
func (s *Solver) setExternalVariables() {
	for _, v := range s.updatedExternals.sorted() {
		if e, ok := s.externalRows[v]; ok {
			v.value = e.constant
		} else {
			v.value = 0
		}
	}
	s.updatedExternals = make(varSet)
	s.needsSolving = false
}

// resetStayConstants rebaselines every stay to the value its variable
// currently has, by zeroing the constants of the rows owned by the stay
// error variables. At most one of each pair can be basic.
func (s *Solver) resetStayConstants() {
	for i, plus := range s.stayPlusErrorVars {
		expr, ok := s.rows[plus]
		if !ok {
			expr, ok = s.rows[s.stayMinusErrorVars[i]]
		}
		if ok {
			expr.constant = 0
		}
	}
}
