package execution

import (
	"context"
	"errors"
	"math"
)

// IcebergStrategy works a stake through small visible-size orders,
// replenishing as each fills, so the full size is never signalled to a thin
// book.
type IcebergStrategy struct{}

// Name returns the strategy name
func (s *IcebergStrategy) Name() StrategyName { return StrategyIceberg }

// Plan sizes the visible slice and derives the replenishment count
func (s *IcebergStrategy) Plan(req *PlanRequest) *ExecutionPlan {
	plan := basePlan(req, StrategyIceberg)
	plan.VisibleSliceUSD = req.Config.VisibleSliceUSD
	plan.SliceCount = int(math.Ceil(req.Sizing.StakeUSD / req.Config.VisibleSliceUSD))
	if plan.SliceCount < 1 {
		plan.SliceCount = 1
	}
	return plan
}

// Execute replenishes visible slices until the target is worked or a slice
// is priced out twice in a row, which signals the book has moved away
func (s *IcebergStrategy) Execute(ctx context.Context, plan *ExecutionPlan, env *Env) (*OrderResult, error) {
	var fills []Fill
	attempts := 0
	remaining := plan.TargetStakeUSD
	skips := 0

	for remaining > 0 && skips < 2 {
		if ctx.Err() != nil {
			return finalize(plan, env.Config, fills, attempts, ctx.Err()), nil
		}

		sliceUSD := math.Min(plan.VisibleSliceUSD, remaining)
		fill, n, err := env.submitChild(ctx, plan, sliceUSD, plan.PriceLimit)
		attempts += n
		if errors.Is(err, errSlippage) {
			skips++
			continue
		}
		if err != nil {
			return finalize(plan, env.Config, fills, attempts, err), nil
		}

		skips = 0
		fills = append(fills, *fill)
		remaining -= fill.Shares * fill.Price
	}

	return finalize(plan, env.Config, fills, attempts, nil), nil
}
