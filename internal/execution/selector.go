package execution

import (
	"math"
	"time"
)

// Selector picks and parameterizes an execution strategy from the sized
// stake and the market's microstructure. The heuristic is evaluated in a
// fixed order; the first match wins.
type Selector struct {
	strategies map[StrategyName]Strategy
}

// NewSelector creates a selector over the closed strategy set
func NewSelector() *Selector {
	return &Selector{
		strategies: map[StrategyName]Strategy{
			StrategySimple:   &SimpleStrategy{},
			StrategyTWAP:     &TWAPStrategy{},
			StrategyIceberg:  &IcebergStrategy{},
			StrategyAdaptive: &AdaptiveStrategy{},
		},
	}
}

// Strategy returns the named strategy
func (s *Selector) Strategy(name StrategyName) Strategy {
	return s.strategies[name]
}

// Select chooses the strategy for a plan request:
//  1. low market impact and tight spread: SIMPLE
//  2. large stake relative to liquidity in a calm market: TWAP
//  3. thin visible depth at the top of book: ICEBERG
//  4. otherwise (wide spread or volatile): ADAPTIVE
func (s *Selector) Select(req *PlanRequest) Strategy {
	cfg := req.Config
	stake := req.Sizing.StakeUSD

	impact := math.Inf(1)
	if req.Forecast.LiquidityUSD > 0 {
		impact = stake / req.Forecast.LiquidityUSD
	}
	spread := req.Book.Spread()

	if impact < cfg.ImpactThreshold && spread <= cfg.TightSpread {
		return s.strategies[StrategySimple]
	}
	if impact >= cfg.ImpactThreshold && spread <= cfg.VolatilityThreshold {
		return s.strategies[StrategyTWAP]
	}
	depth := req.Book.TopDepthUSD(req.Sizing.Side, 3)
	if depth > 0 && stake/depth > cfg.ThinDepthRatio {
		return s.strategies[StrategyIceberg]
	}
	return s.strategies[StrategyAdaptive]
}

// Plan selects a strategy and builds its execution plan
func (s *Selector) Plan(req *PlanRequest) (*ExecutionPlan, Strategy) {
	strategy := s.Select(req)
	return strategy.Plan(req), strategy
}

// basePlan fills the fields every strategy shares. The buy quote is captured
// here so dry runs have a deterministic fill price.
func basePlan(req *PlanRequest, name StrategyName) *ExecutionPlan {
	quote := req.Book.QuoteBuy(req.Sizing.Side)
	limit := quote * (1 + req.Config.SlippageTolerance)
	if limit > 1 {
		limit = 1
	}
	return &ExecutionPlan{
		ForecastID:        req.ForecastID,
		MarketID:          req.Sizing.MarketID,
		Strategy:          name,
		Side:              req.Sizing.Side,
		Mode:              req.Mode,
		TargetStakeUSD:    req.Sizing.StakeUSD,
		SliceCount:        1,
		QuotePrice:        quote,
		PriceLimit:        limit,
		SlippageTolerance: req.Config.SlippageTolerance,
		CreatedAt:         time.Now(),
	}
}
