// Package expr compiles CEL expressions into law enforcements and guards.
//
// Every declared input is bound as a dyn variable of the same name. The full
// argument list is also available as args, and postconditions see the
// produced value as value.
package expr

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"lawgraph/internal/law"
	"lawgraph/internal/value"
)

const (
	varArgs  = "args"
	varValue = "value"
)

// Engine compiles and caches CEL programs. It is safe for concurrent use.
type Engine struct {
	mu       sync.RWMutex
	envs     map[string]*cel.Env
	prgCache map[string]cel.Program
}

func New() *Engine {
	return &Engine{
		envs:     make(map[string]*cel.Env),
		prgCache: make(map[string]cel.Program),
	}
}

// CompileLaw compiles src into an enforcement over inputs. With no inputs the
// enforcement is variadic and src reads args.
func (e *Engine) CompileLaw(inputs []string, src string) (law.Enforcement, error) {
	prg, err := e.program(inputs, src)
	if err != nil {
		return law.Enforcement{}, err
	}
	fn := func(args []value.Value) (value.Value, error) {
		out, _, err := prg.Eval(activation(inputs, args, value.Null()))
		if err != nil {
			return value.Null(), err
		}
		return FromCEL(out)
	}
	if len(inputs) == 0 {
		return law.Variadic(fn), nil
	}
	return law.Nary(len(inputs), fn), nil
}

// CompilePredicate compiles a precondition over inputs. Evaluation errors
// and non-boolean results count as false.
func (e *Engine) CompilePredicate(inputs []string, src string) (func([]value.Value) bool, error) {
	prg, err := e.program(inputs, src)
	if err != nil {
		return nil, err
	}
	return func(args []value.Value) bool {
		out, _, err := prg.Eval(activation(inputs, args, value.Null()))
		if err != nil {
			return false
		}
		ok, isBool := out.Value().(bool)
		return isBool && ok
	}, nil
}

// CompilePostcondition compiles a predicate over the produced value.
func (e *Engine) CompilePostcondition(src string) (func(value.Value) bool, error) {
	prg, err := e.program(nil, src)
	if err != nil {
		return nil, err
	}
	return func(v value.Value) bool {
		out, _, err := prg.Eval(activation(nil, nil, v))
		if err != nil {
			return false
		}
		ok, isBool := out.Value().(bool)
		return isBool && ok
	}, nil
}

func activation(inputs []string, args []value.Value, produced value.Value) map[string]any {
	act := make(map[string]any, len(inputs)+2)
	list := make([]any, len(args))
	for i, a := range args {
		list[i] = a.Any()
	}
	act[varArgs] = list
	act[varValue] = produced.Any()
	for i, name := range inputs {
		if i < len(args) {
			act[name] = args[i].Any()
		} else {
			act[name] = nil
		}
	}
	return act
}

func (e *Engine) program(inputs []string, src string) (cel.Program, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("empty expression")
	}
	envKey := strings.Join(inputs, ",")
	key := envKey + "\x00" + src

	e.mu.RLock()
	prg, hit := e.prgCache[key]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.prgCache[key]; hit {
		return prg, nil
	}

	env, err := e.envLocked(envKey, inputs)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	p, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program error: %w", err)
	}
	e.prgCache[key] = p
	return p, nil
}

func (e *Engine) envLocked(key string, inputs []string) (*cel.Env, error) {
	if env, ok := e.envs[key]; ok {
		return env, nil
	}
	opts := []cel.EnvOption{
		cel.Variable(varArgs, cel.ListType(cel.DynType)),
		cel.Variable(varValue, cel.DynType),
		ext.Strings(),
		ext.Math(),
	}
	for _, name := range inputs {
		if name == varArgs || name == varValue {
			return nil, fmt.Errorf("input name %q is reserved", name)
		}
		opts = append(opts, cel.Variable(name, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	e.envs[key] = env
	return env, nil
}
