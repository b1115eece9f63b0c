package execution

import (
	"context"
	"errors"
	"math"
	"time"
)

// TWAPStrategy splits a stake too large for one order into equal slices
// submitted at a fixed interval. Each slice carries its own slippage check;
// a slice priced out is skipped, not chased.
type TWAPStrategy struct{}

// Name returns the strategy name
func (s *TWAPStrategy) Name() StrategyName { return StrategyTWAP }

// Plan splits the stake into ceil(stake / max_slice_usd) equal slices
func (s *TWAPStrategy) Plan(req *PlanRequest) *ExecutionPlan {
	plan := basePlan(req, StrategyTWAP)
	plan.SliceCount = int(math.Ceil(req.Sizing.StakeUSD / req.Config.MaxSliceUSD))
	if plan.SliceCount < 1 {
		plan.SliceCount = 1
	}
	plan.SliceInterval = req.Config.SliceInterval
	return plan
}

// Execute submits the slices, waiting the slice interval between them
func (s *TWAPStrategy) Execute(ctx context.Context, plan *ExecutionPlan, env *Env) (*OrderResult, error) {
	sliceUSD := plan.TargetStakeUSD / float64(plan.SliceCount)

	var fills []Fill
	attempts := 0
	for i := 0; i < plan.SliceCount; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return finalize(plan, env.Config, fills, attempts, ctx.Err()), nil
			case <-time.After(plan.SliceInterval):
			}
		}

		fill, n, err := env.submitChild(ctx, plan, sliceUSD, plan.PriceLimit)
		attempts += n
		if errors.Is(err, errSlippage) {
			continue
		}
		if err != nil {
			return finalize(plan, env.Config, fills, attempts, err), nil
		}
		fills = append(fills, *fill)
	}

	return finalize(plan, env.Config, fills, attempts, nil), nil
}
