package law

import "lawgraph/internal/value"

// Settled returns a rule whose outcome is already known. Apply ignores its
// arguments and returns res, so a result computed elsewhere (for example by
// an upstream graph node) can take part in a composition.
func Settled(name string, priority float64, res Result) Rule {
	return &settled{name: name, priority: priority, res: res}
}

type settled struct {
	name     string
	priority float64
	res      Result
}

func (s *settled) Name() string                         { return s.name }
func (s *settled) Priority() float64                    { return s.priority }
func (s *settled) Arity() int                           { return VariadicArity }
func (s *settled) CanApply(...value.Value) bool         { return s.res.PreconditionMet != CheckUnmet }
func (s *settled) Apply(Context, ...value.Value) Result { return s.res }
func (s *settled) isRule()                              {}
