package execution

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"pmgate/internal/config"
	"pmgate/internal/market"
)

// Env carries the shared machinery every strategy executes through: the
// order collaborator, the freshest book source, the placement rate limiter
// and the retry policy.
type Env struct {
	Placer  OrderPlacer
	Books   market.BookSource
	Limiter *rate.Limiter
	Config  *config.ExecutionConfig
	Logger  *logrus.Entry
}

// NewEnv creates an execution environment
func NewEnv(placer OrderPlacer, books market.BookSource, cfg *config.ExecutionConfig, logger *logrus.Entry) *Env {
	return &Env{
		Placer:  placer,
		Books:   books,
		Limiter: rate.NewLimiter(rate.Limit(cfg.OrdersPerSecond), cfg.OrderBurst),
		Config:  cfg,
		Logger:  logger,
	}
}

// quote returns the freshest buy quote for the plan's side, falling back to
// the quote captured at planning time when no newer book is available
func (e *Env) quote(plan *ExecutionPlan) float64 {
	if book, ok := e.Books.Snapshot(plan.MarketID); ok {
		return book.QuoteBuy(plan.Side)
	}
	return plan.QuotePrice
}

// submitChild places one child order of sizeUSD with the given price limit.
// The fresh quote is checked against the limit first: a slice that would
// exceed it is skipped with errSlippage rather than chasing price. Transport
// errors are retried with exponential backoff up to the configured count,
// then wrapped as a transportError.
func (e *Env) submitChild(ctx context.Context, plan *ExecutionPlan, sizeUSD, childLimit float64) (*Fill, int, error) {
	quote := e.quote(plan)
	if quote > childLimit {
		return nil, 0, errSlippage
	}

	if err := e.Limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req := &OrderRequest{
		MarketID:   plan.MarketID,
		Side:       plan.Side,
		SizeUSD:    sizeUSD,
		PriceLimit: childLimit,
		Mode:       plan.Mode,
	}

	backoff := e.Config.RetryBackoff
	attempts := 0
	var lastErr error
	for attempts <= e.Config.MaxRetries {
		attempts++

		callCtx, cancel := context.WithTimeout(ctx, e.Config.OrderTimeout)
		placed, err := e.Placer.PlaceOrder(callCtx, req)
		cancel()

		if err == nil {
			return &Fill{Shares: placed.FilledShares, Price: placed.AvgPrice, FilledAt: time.Now()}, attempts, nil
		}
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
		lastErr = err

		e.Logger.WithError(err).WithFields(logrus.Fields{
			"market_id": plan.MarketID,
			"attempt":   attempts,
		}).Warn("child order failed")

		select {
		case <-ctx.Done():
			return nil, attempts, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, attempts, &transportError{err: lastErr}
}

// finalize aggregates child fills into the terminal OrderResult. failure is
// the sequence-ending error, if any: a transportError yields FAILED, a
// cancelled context CANCELLED; otherwise the fill ratio against the
// completion threshold decides between FILLED, PARTIAL and REJECTED. Dry
// runs report SIMULATED in place of FILLED so paper results are
// distinguishable while the rest of the pipeline stays identical.
func finalize(plan *ExecutionPlan, cfg *config.ExecutionConfig, fills []Fill, attempts int, failure error) *OrderResult {
	res := &OrderResult{
		ForecastID:     plan.ForecastID,
		MarketID:       plan.MarketID,
		Strategy:       plan.Strategy,
		TargetStakeUSD: plan.TargetStakeUSD,
		Attempts:       attempts,
		CreatedAt:      time.Now(),
	}

	for _, f := range fills {
		res.FilledShares += f.Shares
		res.FilledUSD += f.Shares * f.Price
	}
	if res.FilledShares > 0 {
		res.AvgFillPrice = res.FilledUSD / res.FilledShares
	}

	var transport *transportError
	switch {
	case failure != nil && errors.As(failure, &transport):
		res.Status = StatusFailed
		res.Error = failure.Error()
	case failure != nil && (errors.Is(failure, context.Canceled) || errors.Is(failure, context.DeadlineExceeded)):
		res.Status = StatusCancelled
		res.Error = failure.Error()
	case res.FilledUSD >= cfg.CompletionThreshold*plan.TargetStakeUSD:
		if plan.Mode == ModeDryRun {
			res.Status = StatusSimulated
		} else {
			res.Status = StatusFilled
		}
	case res.FilledUSD > 0:
		res.Status = StatusPartial
	default:
		res.Status = StatusRejected
	}

	return res
}
