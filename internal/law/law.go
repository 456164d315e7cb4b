// Package law defines atomic rules (Law) and their algebraic compositions
// (MetaLaw).
//
// A Law is constructed once and never mutated. Execution failures of any kind
// (unmet guards, enforcement errors, enforcement panics) are reported in the
// returned Result; they never escape as Go errors or panics.
package law

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lawgraph/internal/value"
)

// ErrInvalidDefinition matches every construction-time validation error.
var ErrInvalidDefinition = errors.New("invalid law definition")

// ValidationError reports why a Law or MetaLaw definition was rejected.
type ValidationError struct {
	Name string
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %v", ErrInvalidDefinition, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", ErrInvalidDefinition, e.Name, e.Err)
}

func (e *ValidationError) Unwrap() []error { return []error{ErrInvalidDefinition, e.Err} }

// VariadicArity is the arity of an enforcement that accepts any number of arguments.
const VariadicArity = -1

// Enforcement is a law's computation together with its declared arity.
type Enforcement struct {
	arity int
	fn    func(args []value.Value) (value.Value, error)
}

// Unary wraps a one-argument function.
func Unary(fn func(x value.Value) (value.Value, error)) Enforcement {
	if fn == nil {
		return Enforcement{}
	}
	return Enforcement{arity: 1, fn: func(args []value.Value) (value.Value, error) { return fn(args[0]) }}
}

// Binary wraps a two-argument function.
func Binary(fn func(a, b value.Value) (value.Value, error)) Enforcement {
	if fn == nil {
		return Enforcement{}
	}
	return Enforcement{arity: 2, fn: func(args []value.Value) (value.Value, error) { return fn(args[0], args[1]) }}
}

// Nary wraps a function that always receives exactly n arguments.
func Nary(n int, fn func(args []value.Value) (value.Value, error)) Enforcement {
	if fn == nil {
		return Enforcement{}
	}
	return Enforcement{arity: n, fn: fn}
}

// Variadic wraps a function that accepts any number of arguments.
func Variadic(fn func(args []value.Value) (value.Value, error)) Enforcement {
	if fn == nil {
		return Enforcement{}
	}
	return Enforcement{arity: VariadicArity, fn: fn}
}

func (e Enforcement) Arity() int   { return e.arity }
func (e Enforcement) IsZero() bool { return e.fn == nil }

// Definition is the construction record of a Law.
type Definition struct {
	Name   string
	Inputs []string
	// Output defaults to Name.
	Output string

	Precondition  func(args []value.Value) bool
	Postcondition func(v value.Value) bool
	Enforce       Enforcement

	// Complexity and Metadata are descriptive only.
	Complexity string
	Priority   float64
	Metadata   map[string]string
}

func (d Definition) validate() error {
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	seen := make(map[string]bool, len(d.Inputs))
	for i, in := range d.Inputs {
		if strings.TrimSpace(in) == "" {
			errs = append(errs, fmt.Errorf("inputs[%d] must not be empty", i))
			continue
		}
		if seen[in] {
			errs = append(errs, fmt.Errorf("duplicate input %q", in))
		}
		seen[in] = true
	}
	if d.Enforce.IsZero() {
		errs = append(errs, errors.New("enforce is required"))
	} else if d.Enforce.arity != VariadicArity && d.Enforce.arity != len(d.Inputs) {
		errs = append(errs, fmt.Errorf("enforce takes %d arguments but %d inputs are declared", d.Enforce.arity, len(d.Inputs)))
	}
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Name: d.Name, Err: errors.Join(errs...)}
}

// Law is an immutable named rule.
type Law struct {
	name       string
	inputs     []string
	output     string
	pre        func(args []value.Value) bool
	post       func(v value.Value) bool
	enforce    Enforcement
	complexity string
	priority   float64
	metadata   map[string]string
}

// New validates def and returns the Law it describes.
func New(def Definition) (*Law, error) {
	if err := def.validate(); err != nil {
		return nil, err
	}
	l := &Law{
		name:       def.Name,
		inputs:     append([]string(nil), def.Inputs...),
		output:     def.Output,
		pre:        def.Precondition,
		post:       def.Postcondition,
		enforce:    def.Enforce,
		complexity: def.Complexity,
		priority:   def.Priority,
		metadata:   make(map[string]string, len(def.Metadata)),
	}
	if l.output == "" {
		l.output = def.Name
	}
	for k, v := range def.Metadata {
		l.metadata[k] = v
	}
	return l, nil
}

// MustNew is New for definitions known to be valid.
func MustNew(def Definition) *Law {
	l, err := New(def)
	if err != nil {
		panic(err)
	}
	return l
}

func (l *Law) Name() string       { return l.name }
func (l *Law) Output() string     { return l.output }
func (l *Law) Complexity() string { return l.complexity }
func (l *Law) Priority() float64  { return l.priority }
func (l *Law) Arity() int         { return l.enforce.arity }

func (l *Law) Inputs() []string { return append([]string(nil), l.inputs...) }

func (l *Law) Metadata() map[string]string {
	out := make(map[string]string, len(l.metadata))
	for k, v := range l.metadata {
		out[k] = v
	}
	return out
}

func (l *Law) arityOK(n int) bool {
	return l.enforce.arity == VariadicArity || l.enforce.arity == n
}

// CanApply reports whether the precondition holds for args. It never runs
// the enforcement.
func (l *Law) CanApply(args ...value.Value) (ok bool) {
	if !l.arityOK(len(args)) {
		return false
	}
	if l.pre == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return l.pre(args)
}

// Execute runs the law against args.
func (l *Law) Execute(args ...value.Value) Result {
	start := time.Now()
	res := l.execute(args)
	res.Duration = time.Since(start)
	return res
}

// Apply is Execute; laws ignore the composition context.
func (l *Law) Apply(_ Context, args ...value.Value) Result {
	return l.Execute(args...)
}

func (l *Law) isRule() {}

func (l *Law) execute(args []value.Value) (res Result) {
	if !l.arityOK(len(args)) {
		return failed(fmt.Sprintf("%sexpected %d arguments, got %d", msgExecution, l.enforce.arity, len(args)))
	}
	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Error:           fmt.Sprintf("%spanic: %v", msgExecution, r),
				PreconditionMet: res.PreconditionMet,
			}
		}
	}()

	if l.pre != nil && !l.pre(args) {
		return Result{Error: msgPrecondition, PreconditionMet: CheckUnmet}
	}
	res.PreconditionMet = CheckMet

	out, err := l.enforce.fn(append([]value.Value(nil), args...))
	if err != nil {
		return Result{Error: msgExecution + err.Error(), PreconditionMet: CheckMet}
	}
	if l.post != nil && !l.post(out) {
		return Result{Error: msgPostcondition, PreconditionMet: CheckMet, PostconditionMet: CheckUnmet}
	}
	return Result{Success: true, Value: out, PreconditionMet: CheckMet, PostconditionMet: CheckMet}
}
