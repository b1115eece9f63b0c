package execution

import (
	"context"
	"errors"
	"math"
)

// AdaptiveStrategy handles wide or volatile markets by re-deriving the price
// limit for every child order from the freshest book snapshot, tightening
// the tolerance as fills progress so later children do not give back edge
// already captured.
type AdaptiveStrategy struct{}

// Name returns the strategy name
func (s *AdaptiveStrategy) Name() StrategyName { return StrategyAdaptive }

// Plan splits the stake like TWAP but leaves per-child pricing to Execute
func (s *AdaptiveStrategy) Plan(req *PlanRequest) *ExecutionPlan {
	plan := basePlan(req, StrategyAdaptive)
	plan.SliceCount = int(math.Ceil(req.Sizing.StakeUSD / req.Config.MaxSliceUSD))
	if plan.SliceCount < 1 {
		plan.SliceCount = 1
	}
	return plan
}

// Execute submits children priced off the freshest quote. The per-child
// tolerance shrinks linearly to half the configured tolerance as the filled
// fraction approaches one.
func (s *AdaptiveStrategy) Execute(ctx context.Context, plan *ExecutionPlan, env *Env) (*OrderResult, error) {
	var fills []Fill
	attempts := 0
	filledUSD := 0.0
	sliceUSD := plan.TargetStakeUSD / float64(plan.SliceCount)

	for i := 0; i < plan.SliceCount; i++ {
		if ctx.Err() != nil {
			return finalize(plan, env.Config, fills, attempts, ctx.Err()), nil
		}

		filledFrac := filledUSD / plan.TargetStakeUSD
		tolerance := plan.SlippageTolerance * (1 - 0.5*filledFrac)
		quote := env.quote(plan)
		childLimit := quote * (1 + tolerance)
		if childLimit > 1 {
			childLimit = 1
		}

		remaining := plan.TargetStakeUSD - filledUSD
		fill, n, err := env.submitChild(ctx, plan, math.Min(sliceUSD, remaining), childLimit)
		attempts += n
		if errors.Is(err, errSlippage) {
			continue
		}
		if err != nil {
			return finalize(plan, env.Config, fills, attempts, err), nil
		}

		fills = append(fills, *fill)
		filledUSD += fill.Shares * fill.Price
	}

	return finalize(plan, env.Config, fills, attempts, nil), nil
}
