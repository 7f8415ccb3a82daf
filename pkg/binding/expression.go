package binding

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator computes the value of an expression placeholder against the
// invocation's named arguments plus any ambient root objects the caller
// exposed (for example the authenticated principal).
type Evaluator interface {
	Evaluate(expression string, args map[string]any) (any, error)
}

// ExprEvaluator evaluates placeholder expressions with compiled programs
// cached per expression string.
type ExprEvaluator struct {
	roots map[string]any

	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewExprEvaluator creates an evaluator. roots are extra identifiers made
// visible to every expression; may be nil.
func NewExprEvaluator(roots map[string]any) *ExprEvaluator {
	return &ExprEvaluator{
		roots:    roots,
		programs: make(map[string]*vm.Program),
	}
}

// Evaluate runs the expression against the merged environment of root
// objects and invocation arguments. Arguments shadow roots on name clashes.
func (e *ExprEvaluator) Evaluate(expression string, args map[string]any) (any, error) {
	program, err := e.program(expression)
	if err != nil {
		return nil, fmt.Errorf("compiling expression %q: %w", expression, err)
	}

	env := make(map[string]any, len(e.roots)+len(args))
	for k, v := range e.roots {
		env[k] = v
	}
	for k, v := range args {
		env[k] = v
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluating expression %q: %w", expression, err)
	}
	return out, nil
}

func (e *ExprEvaluator) program(expression string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[expression] = program
	e.mu.Unlock()
	return program, nil
}
