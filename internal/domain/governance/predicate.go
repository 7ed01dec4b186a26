package governance

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// predicates compiles and caches CEL "when" expressions. Each expression is
// evaluated against a single map variable named "request".
type predicates struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func newPredicates() (*predicates, error) {
	env, err := cel.NewEnv(
		cel.Variable("request", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}
	return &predicates{env: env, programs: make(map[string]cel.Program)}, nil
}

func (p *predicates) program(expr string) (cel.Program, error) {
	p.mu.RLock()
	prg, ok := p.programs[expr]
	p.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := p.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compiling predicate: %w", issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("predicate must evaluate to bool, got %s", t)
	}
	prg, err := p.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("creating predicate program: %w", err)
	}

	p.mu.Lock()
	p.programs[expr] = prg
	p.mu.Unlock()
	return prg, nil
}

// compile checks that expr is a valid predicate.
func (p *predicates) compile(expr string) error {
	_, err := p.program(expr)
	return err
}

// eval reports whether the predicate holds for vars.
func (p *predicates) eval(expr string, vars map[string]any) (bool, error) {
	prg, err := p.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{"request": vars})
	if err != nil {
		return false, fmt.Errorf("evaluating predicate: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("predicate returned %T, want bool", out.Value())
	}
	return b, nil
}

var defaultPredicates struct {
	once sync.Once
	p    *predicates
	err  error
}

// CompilePredicate validates a rule predicate expression.
func CompilePredicate(expr string) error {
	defaultPredicates.once.Do(func() {
		defaultPredicates.p, defaultPredicates.err = newPredicates()
	})
	if defaultPredicates.err != nil {
		return defaultPredicates.err
	}
	return defaultPredicates.p.compile(expr)
}
