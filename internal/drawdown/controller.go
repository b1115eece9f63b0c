package drawdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pmgate/internal/alerting"
	"pmgate/internal/config"
	"pmgate/internal/store"
)

// HeatLevel represents the discrete drawdown severity tier
type HeatLevel string

const (
	HeatCool     HeatLevel = "cool"
	HeatWarm     HeatLevel = "warm"
	HeatHot      HeatLevel = "hot"
	HeatCritical HeatLevel = "critical"
)

// State represents the controller's derived risk-dampening state
type State struct {
	PeakEquityUSD    float64   `json:"peak_equity_usd"`
	CurrentEquityUSD float64   `json:"current_equity_usd"`
	DrawdownPct      float64   `json:"drawdown_pct"`
	HeatLevel        HeatLevel `json:"heat_level"`
	KellyMultiplier  float64   `json:"kelly_multiplier"`
	KillSwitch       bool      `json:"kill_switch"`
	KillReason       string    `json:"kill_reason,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Halted reports whether new admissions are blocked, by the manual kill
// switch or by CRITICAL heat
func (s *State) Halted() bool {
	return s.KillSwitch || s.HeatLevel == HeatCritical
}

// Classify maps a drawdown percentage to its heat level and Kelly
// multiplier. Pure: two equity sequences ending at the same drawdown always
// classify identically.
func Classify(cfg *config.DrawdownConfig, drawdownPct float64) (HeatLevel, float64) {
	switch {
	case drawdownPct >= cfg.CriticalThreshold:
		return HeatCritical, cfg.CriticalMultiplier
	case drawdownPct >= cfg.HotThreshold:
		return HeatHot, cfg.HotMultiplier
	case drawdownPct >= cfg.WarmThreshold:
		return HeatWarm, cfg.WarmMultiplier
	default:
		return HeatCool, cfg.CoolMultiplier
	}
}

// Controller tracks peak equity and derives the heat level each cycle. It is
// the only component allowed to halt trading unconditionally. Heat level
// changes only through Recompute; the kill switch only through SetKillSwitch.
type Controller struct {
	mu       sync.RWMutex
	state    State
	cfg      *config.DrawdownConfig
	store    store.Store
	notifier alerting.Notifier
	logger   *logrus.Entry
}

// NewController creates a controller starting COOL with peak equity at the
// starting bankroll
func NewController(cfg *config.DrawdownConfig, startingEquityUSD float64, st store.Store, notifier alerting.Notifier, logger *logrus.Entry) *Controller {
	return &Controller{
		state: State{
			PeakEquityUSD:    startingEquityUSD,
			CurrentEquityUSD: startingEquityUSD,
			HeatLevel:        HeatCool,
			KellyMultiplier:  cfg.CoolMultiplier,
			UpdatedAt:        time.Now(),
		},
		cfg:      cfg,
		store:    st,
		notifier: notifier,
		logger:   logger,
	}
}

// State returns a copy of the current state
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Recompute updates the controller from the latest equity snapshot. The peak
// is a monotonic ratchet: it only ever moves up, so a new high resets the
// drawdown baseline and a drawdown never lowers it.
func (c *Controller) Recompute(ctx context.Context, equityUSD float64) State {
	c.mu.Lock()

	if equityUSD > c.state.PeakEquityUSD {
		c.state.PeakEquityUSD = equityUSD
	}
	c.state.CurrentEquityUSD = equityUSD

	pct := 0.0
	if c.state.PeakEquityUSD > 0 {
		pct = (c.state.PeakEquityUSD - equityUSD) / c.state.PeakEquityUSD
	}
	if pct < 0 {
		pct = 0
	}
	c.state.DrawdownPct = pct

	prev := c.state.HeatLevel
	c.state.HeatLevel, c.state.KellyMultiplier = Classify(c.cfg, pct)
	c.state.UpdatedAt = time.Now()

	snapshot := c.state
	c.persistLocked(ctx)
	c.mu.Unlock()

	if prev != snapshot.HeatLevel {
		c.logger.WithFields(logrus.Fields{
			"from":         prev,
			"to":           snapshot.HeatLevel,
			"drawdown_pct": snapshot.DrawdownPct,
		}).Warn("heat level transition")

		if snapshot.HeatLevel == HeatCritical {
			c.notifier.Notify(ctx, alerting.New(alerting.LevelCritical, "drawdown",
				"drawdown CRITICAL",
				fmt.Sprintf("drawdown %.1f%% reached critical threshold %.1f%%, sizing halted",
					snapshot.DrawdownPct*100, c.cfg.CriticalThreshold*100)))
		}
	}

	return snapshot
}

// SetKillSwitch toggles the manual kill switch. Idempotent: setting the
// current value records nothing and returns false.
func (c *Controller) SetKillSwitch(ctx context.Context, on bool, reason string) bool {
	c.mu.Lock()
	if c.state.KillSwitch == on {
		c.mu.Unlock()
		return false
	}
	c.state.KillSwitch = on
	c.state.KillReason = reason
	if !on {
		c.state.KillReason = ""
	}
	c.state.UpdatedAt = time.Now()
	c.persistLocked(ctx)
	c.mu.Unlock()

	level := alerting.LevelCritical
	action := "engaged"
	if !on {
		level = alerting.LevelWarning
		action = "released"
	}
	c.logger.WithFields(logrus.Fields{"on": on, "reason": reason}).Warn("kill switch toggled")
	c.notifier.Notify(ctx, alerting.New(level, "drawdown",
		"kill switch "+action, reason))
	return true
}

// persistLocked writes the state snapshot. Caller must hold the lock.
func (c *Controller) persistLocked(ctx context.Context) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveJSON(ctx, store.KeyDrawdownState, &c.state); err != nil {
		c.logger.WithError(err).Warn("failed to persist drawdown state")
	}
}

// Restore loads the persisted state so a past drawdown is not forgotten
// across restarts. A missing key keeps the fresh COOL state; any other
// failure leaves the controller in its most conservative posture and returns
// the error.
func (c *Controller) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	var persisted State
	err := c.store.LoadJSON(ctx, store.KeyDrawdownState, &persisted)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		c.EngageConservative(ctx, "drawdown state restore failed")
		return fmt.Errorf("drawdown: restore failed: %w", err)
	}

	// Re-derive heat from the persisted drawdown so threshold changes in
	// config apply after a restart.
	persisted.HeatLevel, persisted.KellyMultiplier = Classify(c.cfg, persisted.DrawdownPct)

	c.mu.Lock()
	c.state = persisted
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"peak_equity":  persisted.PeakEquityUSD,
		"drawdown_pct": persisted.DrawdownPct,
		"heat_level":   persisted.HeatLevel,
	}).Info("drawdown state restored")
	return nil
}

// EngageConservative forces the most conservative posture: kill switch on
// and CRITICAL heat. Used when state cannot be trusted at startup.
func (c *Controller) EngageConservative(ctx context.Context, reason string) {
	c.mu.Lock()
	c.state.KillSwitch = true
	c.state.KillReason = reason
	c.state.HeatLevel = HeatCritical
	c.state.KellyMultiplier = 0
	c.state.UpdatedAt = time.Now()
	c.mu.Unlock()

	c.logger.WithField("reason", reason).Error("engaging conservative posture")
	c.notifier.Notify(ctx, alerting.New(alerting.LevelCritical, "drawdown",
		"conservative posture engaged", reason))
}
