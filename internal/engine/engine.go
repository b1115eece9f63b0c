package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"pmgate/internal/alerting"
	"pmgate/internal/audit"
	"pmgate/internal/config"
	"pmgate/internal/drawdown"
	"pmgate/internal/execution"
	"pmgate/internal/forecast"
	"pmgate/internal/market"
	"pmgate/internal/monitoring"
	"pmgate/internal/portfolio"
	"pmgate/internal/risk"
	"pmgate/internal/sizing"
)

// Options bundles the engine's collaborators
type Options struct {
	Config    *config.Manager
	LiveFlag  bool // process started with --live
	Portfolio *portfolio.Manager
	Drawdown  *drawdown.Controller
	Source    forecast.Source
	Books     market.BookSource
	Placer    execution.OrderPlacer
	Trail     *audit.Trail
	Notifier  alerting.Notifier
	Metrics   *monitoring.Metrics
	Logger    *logrus.Entry
}

// Engine runs the decision pipeline: gate, size, execute, commit. Gate
// evaluation for distinct markets is concurrent; sizing, execution and the
// portfolio commit are serialized under one lock so no two markets can spend
// the same available capital.
type Engine struct {
	cfg       *config.Manager
	liveFlag  bool
	portfolio *portfolio.Manager
	drawdown  *drawdown.Controller
	source    forecast.Source
	books     market.BookSource
	placer    execution.OrderPlacer
	gate      *risk.Gate
	sizer     *sizing.Sizer
	selector  *execution.Selector
	trail     *audit.Trail
	notifier  alerting.Notifier
	metrics   *monitoring.Metrics
	logger    *logrus.Entry
	limiter   *rate.Limiter

	commitMu sync.Mutex // serializes sizing+execution+commit

	mu          sync.Mutex
	cycleCancel context.CancelFunc
	cron        *cron.Cron
}

// New creates an engine from its collaborators
func New(opts Options) *Engine {
	execCfg := opts.Config.Current().Execution
	return &Engine{
		cfg:       opts.Config,
		liveFlag:  opts.LiveFlag,
		portfolio: opts.Portfolio,
		drawdown:  opts.Drawdown,
		source:    opts.Source,
		books:     opts.Books,
		placer:    opts.Placer,
		gate:      risk.NewGate(),
		sizer:     sizing.NewSizer(),
		selector:  execution.NewSelector(),
		trail:     opts.Trail,
		notifier:  opts.Notifier,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		limiter:   rate.NewLimiter(rate.Limit(execCfg.OrdersPerSecond), execCfg.OrderBurst),
	}
}

// Start schedules scan cycles on the configured cron expression
func (e *Engine) Start() error {
	e.cron = cron.New()
	schedule := e.cfg.Current().Engine.ScanSchedule
	if _, err := e.cron.AddFunc(schedule, e.runScheduled); err != nil {
		return fmt.Errorf("invalid scan schedule %q: %w", schedule, err)
	}
	e.cron.Start()
	e.logger.WithField("schedule", schedule).Info("engine started")
	return nil
}

// Stop stops the scheduler and cancels a cycle in flight
func (e *Engine) Stop() {
	if e.cron != nil {
		ctx := e.cron.Stop()
		<-ctx.Done()
	}
	e.mu.Lock()
	if e.cycleCancel != nil {
		e.cycleCancel()
	}
	e.mu.Unlock()
}

func (e *Engine) runScheduled() {
	cfg := e.cfg.Current()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Engine.CycleTimeout)
	defer cancel()

	e.mu.Lock()
	e.cycleCancel = cancel
	e.mu.Unlock()

	if err := e.RunCycle(ctx); err != nil {
		e.logger.WithError(err).Error("scan cycle failed")
	}
}

// RunCycle evaluates every pending forecast against one consistent config
// snapshot. Each market's run is isolated: a failure in one never aborts the
// others, and the drawdown recompute is never skipped.
func (e *Engine) RunCycle(ctx context.Context) error {
	started := time.Now()
	cfg := e.cfg.Current()

	// Fresh heat level first; the gate depends on it even when everything
	// downstream fails.
	dd := e.drawdown.Recompute(ctx, e.portfolio.Snapshot().EquityUSD())
	e.publishState(dd)

	forecasts, err := e.source.Pending(ctx, cfg.Engine.MaxConcurrentEvals*4)
	if err != nil {
		return fmt.Errorf("failed to fetch pending forecasts: %w", err)
	}
	if len(forecasts) == 0 {
		return nil
	}

	e.logger.WithField("count", len(forecasts)).Info("scan cycle started")

	sem := make(chan struct{}, cfg.Engine.MaxConcurrentEvals)
	var wg sync.WaitGroup
	for _, f := range forecasts {
		wg.Add(1)
		sem <- struct{}{}
		go func(f *forecast.Forecast) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					e.logger.WithFields(logrus.Fields{
						"market_id": f.MarketID,
						"panic":     r,
					}).Error("market pipeline panicked")
				}
			}()
			e.runMarket(ctx, cfg, f)
		}(f)
	}
	wg.Wait()

	// Post-commit recompute persists the cycle's effect on equity.
	e.publishState(e.drawdown.Recompute(ctx, e.portfolio.Snapshot().EquityUSD()))

	e.metrics.CycleDuration.Observe(time.Since(started).Seconds())
	return nil
}

// runMarket drives one forecast through gate, sizing, execution and commit
func (e *Engine) runMarket(ctx context.Context, cfg *config.Config, f *forecast.Forecast) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	log := e.logger.WithFields(logrus.Fields{"market_id": f.MarketID, "forecast_id": f.ID})

	requestLive := !cfg.Engine.DryRun
	decision := e.gate.Evaluate(f.ID, &risk.Input{
		Forecast:  f,
		Portfolio: e.portfolio.Snapshot(),
		Drawdown:  e.drawdown.State(),
		Config:    &cfg.Risk,
		Live: risk.LiveGate{
			EngineLive:  e.liveFlag,
			ConfigLive:  cfg.Risk.LiveTradingEnabled,
			RequestLive: requestLive,
		},
	})

	e.trail.Append(audit.KindRiskDecision, f.ID, f.MarketID, decision)
	e.metrics.DecisionsTotal.WithLabelValues(string(decision.Verdict)).Inc()
	for _, v := range decision.Violations {
		e.metrics.ViolationsTotal.WithLabelValues(v.Check).Inc()
	}

	if !decision.Allowed() {
		log.WithField("violations", len(decision.Violations)).Debug("forecast rejected")
		return
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	// The duplicate and capital checks are only sound serialized; another
	// market committing while we gated may have opened this position.
	pf := e.portfolio.Snapshot()
	if pf.HasPosition(f.MarketID) {
		log.Debug("position opened by a concurrent cycle, skipping")
		return
	}

	szn := e.sizer.Size(f.ID, f, pf, e.drawdown.State(), &cfg.Sizing, cfg.Engine.MarketRegime)
	e.trail.Append(audit.KindSizingDecision, f.ID, f.MarketID, szn)
	e.metrics.SizingOutcomes.WithLabelValues(string(szn.Outcome)).Inc()

	if szn.Outcome == sizing.OutcomeSkipped {
		log.WithField("reason", szn.Reason).Info("stake below ticket, skipped")
		return
	}
	e.metrics.StakeUSD.Observe(szn.StakeUSD)

	book, ok := e.books.Snapshot(f.MarketID)
	if !ok {
		book = syntheticBook(f)
	}

	mode := execution.ModeDryRun
	if requestLive {
		mode = execution.ModeLive
	}

	plan, strategy := e.selector.Plan(&execution.PlanRequest{
		ForecastID: f.ID,
		Sizing:     szn,
		Forecast:   f,
		Book:       book,
		Config:     &cfg.Execution,
		Mode:       mode,
	})
	e.trail.Append(audit.KindExecutionPlan, f.ID, f.MarketID, plan)

	env := &execution.Env{
		Placer:  e.placer,
		Books:   e.books,
		Limiter: e.limiter,
		Config:  &cfg.Execution,
		Logger:  log,
	}

	result, err := strategy.Execute(ctx, plan, env)
	if err != nil {
		log.WithError(err).Error("execution failed without result")
		return
	}

	e.trail.Append(audit.KindOrderResult, f.ID, f.MarketID, result)
	e.metrics.OrderResults.WithLabelValues(string(result.Strategy), string(result.Status)).Inc()

	// Commit whatever actually filled, never the intended stake. This also
	// covers cancelled and failed sequences with partial fills.
	if result.FilledShares > 0 {
		if err := e.portfolio.ApplyFill(ctx, f.MarketID, f.Category, szn.Side, result.FilledShares, result.AvgFillPrice); err != nil {
			log.WithError(err).Error("failed to commit fill")
		}
	}

	switch result.Status {
	case execution.StatusRejected:
		e.notifier.Notify(ctx, alerting.New(alerting.LevelWarning, "execution",
			"order rejected", fmt.Sprintf("market %s: no child order filled", f.MarketID)))
	case execution.StatusFailed:
		e.notifier.Notify(ctx, alerting.New(alerting.LevelCritical, "execution",
			"order transport failure", fmt.Sprintf("market %s: %s", f.MarketID, result.Error)))
	}

	log.WithFields(logrus.Fields{
		"strategy":   result.Strategy,
		"status":     result.Status,
		"filled_usd": result.FilledUSD,
	}).Info("market pipeline completed")
}

// KillSwitch toggles the manual kill switch, records the toggle in the
// audit trail and cancels a cycle in flight when engaging
func (e *Engine) KillSwitch(ctx context.Context, on bool, reason, actor string) bool {
	changed := e.drawdown.SetKillSwitch(ctx, on, reason)
	if !changed {
		return false
	}

	e.trail.Append(audit.KindKillSwitch, uuid.NewString(), "", map[string]interface{}{
		"on":     on,
		"reason": reason,
		"actor":  actor,
	})

	if on {
		e.mu.Lock()
		if e.cycleCancel != nil {
			e.cycleCancel()
		}
		e.mu.Unlock()
		e.metrics.KillSwitchEngaged.Set(1)
	} else {
		e.metrics.KillSwitchEngaged.Set(0)
	}
	return true
}

// publishState pushes portfolio and drawdown gauges
func (e *Engine) publishState(dd drawdown.State) {
	pf := e.portfolio.Snapshot()
	e.metrics.SetHeatLevel(string(dd.HeatLevel))
	e.metrics.DrawdownPct.Set(dd.DrawdownPct)
	e.metrics.EquityUSD.Set(pf.EquityUSD())
	e.metrics.AvailableUSD.Set(pf.AvailableCapitalUSD())
	e.metrics.OpenPositions.Set(float64(pf.OpenPositionCount()))
	if dd.KillSwitch {
		e.metrics.KillSwitchEngaged.Set(1)
	} else {
		e.metrics.KillSwitchEngaged.Set(0)
	}
}

// syntheticBook derives a one-level book from the forecast's quoted price
// and spread when no live snapshot exists, so paper runs do not require the
// feed
func syntheticBook(f *forecast.Forecast) *market.OrderBook {
	half := f.Spread / 2
	bid := f.ImpliedProbability - half
	ask := f.ImpliedProbability + half
	if bid < 0 {
		bid = 0
	}
	if ask > 1 {
		ask = 1
	}
	size := f.LiquidityUSD / 2
	return &market.OrderBook{
		MarketID:  f.MarketID,
		Bids:      []market.Level{{Price: bid, SizeUSD: size}},
		Asks:      []market.Level{{Price: ask, SizeUSD: size}},
		Timestamp: time.Now(),
	}
}
