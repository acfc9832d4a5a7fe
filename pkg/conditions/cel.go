package conditions

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// ExpressionEngine compiles and evaluates oracle condition expressions.
// Expressions see a single "facts" map and must produce a boolean.
// Programs are cached per expression; escrow processing re-evaluates the
// same expressions on every invocation.
type ExpressionEngine struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewExpressionEngine creates the shared CEL environment.
func NewExpressionEngine() (*ExpressionEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("facts", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL env: %w", err)
	}
	return &ExpressionEngine{env: env, cache: make(map[string]cel.Program)}, nil
}

// Compile checks that expr is a valid boolean expression. Used at escrow
// creation so malformed expressions fail up front, not at release time.
func (e *ExpressionEngine) Compile(expr string) error {
	_, err := e.program(expr)
	return err
}

// Evaluate runs expr against the fact set.
func (e *ExpressionEngine) Evaluate(expr string, facts map[string]interface{}) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]interface{}{"facts": facts})
	if err != nil {
		return false, fmt.Errorf("CEL eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not return bool", expr)
	}
	return result, nil
}

func (e *ExpressionEngine) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.cache[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.cache[expr]; hit {
		return prg, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program error: %w", err)
	}
	e.cache[expr] = prg
	return prg, nil
}
