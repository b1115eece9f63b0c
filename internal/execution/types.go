package execution

import (
	"context"
	"errors"
	"time"

	"pmgate/internal/config"
	"pmgate/internal/forecast"
	"pmgate/internal/market"
	"pmgate/internal/portfolio"
	"pmgate/internal/sizing"
)

// Mode selects live or paper order placement
type Mode string

const (
	ModeLive   Mode = "live"
	ModeDryRun Mode = "dry_run"
)

// StrategyName identifies one of the closed set of execution strategies
type StrategyName string

const (
	StrategySimple   StrategyName = "SIMPLE"
	StrategyTWAP     StrategyName = "TWAP"
	StrategyIceberg  StrategyName = "ICEBERG"
	StrategyAdaptive StrategyName = "ADAPTIVE"
)

// OrderStatus is the terminal status of an execution sequence
type OrderStatus string

const (
	StatusFilled    OrderStatus = "FILLED"
	StatusPartial   OrderStatus = "PARTIAL"
	StatusRejected  OrderStatus = "REJECTED"
	StatusSimulated OrderStatus = "SIMULATED"
	StatusCancelled OrderStatus = "CANCELLED"
	// StatusFailed marks an unrecoverable transport or auth failure after
	// exhausting retries. Never coerced to REJECTED.
	StatusFailed OrderStatus = "FAILED"
)

// ExecutionPlan parameterizes an order-placement strategy for one stake
type ExecutionPlan struct {
	ForecastID        string         `json:"forecast_id"`
	MarketID          string         `json:"market_id"`
	Strategy          StrategyName   `json:"strategy"`
	Side              portfolio.Side `json:"side"`
	Mode              Mode           `json:"mode"`
	TargetStakeUSD    float64        `json:"target_stake_usd"`
	SliceCount        int            `json:"slice_count"`
	SliceInterval     time.Duration  `json:"slice_interval"`
	VisibleSliceUSD   float64        `json:"visible_slice_usd,omitempty"`
	QuotePrice        float64        `json:"quote_price"` // buy quote captured at planning time
	PriceLimit        float64        `json:"price_limit"`
	SlippageTolerance float64        `json:"slippage_tolerance"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Fill is one child order's confirmed execution
type Fill struct {
	Shares   float64   `json:"shares"`
	Price    float64   `json:"price"`
	FilledAt time.Time `json:"filled_at"`
}

// OrderResult aggregates an execution sequence into one terminal record
type OrderResult struct {
	ForecastID     string       `json:"forecast_id"`
	MarketID       string       `json:"market_id"`
	Strategy       StrategyName `json:"strategy"`
	Status         OrderStatus  `json:"status"`
	TargetStakeUSD float64      `json:"target_stake_usd"`
	FilledUSD      float64      `json:"filled_usd"`
	FilledShares   float64      `json:"filled_shares"`
	AvgFillPrice   float64      `json:"avg_fill_price"`
	Attempts       int          `json:"attempts"`
	Error          string       `json:"error,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// OrderRequest is the typed call exposed to the order collaborator
type OrderRequest struct {
	MarketID   string
	Side       portfolio.Side
	SizeUSD    float64
	PriceLimit float64
	Mode       Mode
}

// PlacedOrder is the collaborator's confirmation of a child order
type PlacedOrder struct {
	FilledShares float64
	AvgPrice     float64
}

// OrderPlacer places one child order. Implementations must respect the
// request's price limit and return a transport error for network or auth
// failures.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req *OrderRequest) (*PlacedOrder, error)
}

// PlanRequest bundles the inputs to strategy planning
type PlanRequest struct {
	ForecastID string
	Sizing     *sizing.Decision
	Forecast   *forecast.Forecast
	Book       *market.OrderBook
	Config     *config.ExecutionConfig
	Mode       Mode
}

// Strategy is one member of the closed strategy set: it plans a stake into
// child-order parameters and drives the plan to a terminal OrderResult.
type Strategy interface {
	Name() StrategyName
	Plan(req *PlanRequest) *ExecutionPlan
	Execute(ctx context.Context, plan *ExecutionPlan, env *Env) (*OrderResult, error)
}

// errSlippage marks a child order skipped because the fresh quote exceeded
// its price limit. The slice is dropped, never chased.
var errSlippage = errors.New("execution: quote exceeds price limit")

// transportError wraps a placer failure that survived all retries
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "transport failure: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }
