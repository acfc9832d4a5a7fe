// Package conditions evaluates the predicates gating escrow release.
//
// Conditions compose with AND semantics in sequence order and
// short-circuit on the first unmet condition. Per-condition evaluation is
// side-effect-free and idempotent; the adjudication backends (oracle fact
// sets, manual-approval registries) are injected interfaces, never called
// for their side effects. An empty condition sequence is vacuously true.
package conditions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Tidemark-Labs/covenant/pkg/clock"
	"github.com/Tidemark-Labs/covenant/pkg/contracts"
)

// Oracle supplies the fact set a validator party has published. The
// second result is false when the validator has published nothing.
type Oracle interface {
	Facts(ctx context.Context, validator contracts.Party) (map[string]interface{}, bool, error)
}

// ApprovalRegistry records manual approvals keyed by validator and escrow.
type ApprovalRegistry interface {
	IsApproved(ctx context.Context, validator contracts.Party, escrowID uint64) (bool, error)
}

// timeParams is the TIME_BASED parameter payload.
type timeParams struct {
	NotBefore uint64 `json:"not_before"`
}

// oracleParams is the ORACLE_BASED parameter payload.
type oracleParams struct {
	Expression string `json:"expression"`
}

// Evaluator dispatches each condition to its kind-specific predicate.
type Evaluator struct {
	clock     clock.Clock
	oracle    Oracle
	approvals ApprovalRegistry
	cel       *ExpressionEngine
}

// NewEvaluator builds an evaluator. oracle and approvals may be nil; a
// condition whose backend is absent evaluates to unmet rather than
// erroring, so an engine wired without backends degrades safely.
func NewEvaluator(clk clock.Clock, oracle Oracle, approvals ApprovalRegistry) (*Evaluator, error) {
	eng, err := NewExpressionEngine()
	if err != nil {
		return nil, err
	}
	return &Evaluator{clock: clk, oracle: oracle, approvals: approvals, cel: eng}, nil
}

// EvaluateAll returns true iff every condition in sequence order is met.
// Evaluation stops at the first unmet condition.
func (e *Evaluator) EvaluateAll(ctx context.Context, escrowID uint64, conds []contracts.Condition) (bool, error) {
	for i, cond := range conds {
		met, err := e.evaluate(ctx, escrowID, cond)
		if err != nil {
			return false, fmt.Errorf("condition %d (%s): %w", i, cond.Kind, err)
		}
		if !met {
			return false, nil
		}
	}
	return true, nil
}

func (e *Evaluator) evaluate(ctx context.Context, escrowID uint64, cond contracts.Condition) (bool, error) {
	switch cond.Kind {
	case contracts.ConditionTimeBased:
		var p timeParams
		if err := json.Unmarshal(cond.Params, &p); err != nil {
			return false, fmt.Errorf("decode params: %w", err)
		}
		return e.clock.Now() >= p.NotBefore, nil

	case contracts.ConditionOracleBased:
		if e.oracle == nil {
			return false, nil
		}
		var p oracleParams
		if err := json.Unmarshal(cond.Params, &p); err != nil {
			return false, fmt.Errorf("decode params: %w", err)
		}
		facts, ok, err := e.oracle.Facts(ctx, cond.Validator)
		if err != nil {
			return false, fmt.Errorf("oracle facts: %w", err)
		}
		if !ok {
			return false, nil
		}
		return e.cel.Evaluate(p.Expression, facts)

	case contracts.ConditionManualApproval:
		if e.approvals == nil {
			return false, nil
		}
		return e.approvals.IsApproved(ctx, cond.Validator, escrowID)

	default:
		return false, fmt.Errorf("unknown condition kind %q", cond.Kind)
	}
}
