package ports

import (
	"context"

	"github.com/aretw0/fsmlink/pkg/domain"
)

// Evaluator executes script text against a staged scope.
//
// Guards must return a boolean, delays a number of milliseconds, and actions
// anything (the result is ignored). Writes made through the scope are kept by
// the engine only when Evaluate returns a nil error.
type Evaluator interface {
	Evaluate(ctx context.Context, script string, scope *domain.Scope) (any, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, script string, scope *domain.Scope) (any, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, script string, scope *domain.Scope) (any, error) {
	return f(ctx, script, scope)
}
