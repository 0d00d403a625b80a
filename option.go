package emeus

import "go.uber.org/zap"

// Option configures a Solver at construction time.
type Option func(*Solver)

// WithLogger routes solver diagnostics to the given logger. The default is
// a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Solver) {
		s.log = log
	}
}

// WithAutoSolve controls whether every mutation immediately re-solves and
// refreshes external variable values. When disabled, values are only
// refreshed by Resolve.
func WithAutoSolve(autoSolve bool) Option {
	return func(s *Solver) {
		s.autoSolve = autoSolve
	}
}
