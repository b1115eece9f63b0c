package execution

import (
	"context"
	"errors"
)

// SimpleStrategy places the whole stake as one order at the best available
// price within the slippage tolerance. Chosen for small stakes in tight
// markets where impact is negligible.
type SimpleStrategy struct{}

// Name returns the strategy name
func (s *SimpleStrategy) Name() StrategyName { return StrategySimple }

// Plan builds a single-slice plan
func (s *SimpleStrategy) Plan(req *PlanRequest) *ExecutionPlan {
	return basePlan(req, StrategySimple)
}

// Execute submits the single order
func (s *SimpleStrategy) Execute(ctx context.Context, plan *ExecutionPlan, env *Env) (*OrderResult, error) {
	fill, attempts, err := env.submitChild(ctx, plan, plan.TargetStakeUSD, plan.PriceLimit)

	var fills []Fill
	if fill != nil {
		fills = append(fills, *fill)
	}
	if errors.Is(err, errSlippage) {
		err = nil
	}
	return finalize(plan, env.Config, fills, attempts, err), nil
}
