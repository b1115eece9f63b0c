package config

import (
	"fmt"
)

// Validate checks that every threshold the engine depends on is inside its
// legal range. Validation runs on initial load and on every hot reload; a
// reload that fails validation is discarded and the previous snapshot stays
// active.
func (c *Config) Validate() error {
	if err := c.Risk.validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if err := c.Sizing.validate(); err != nil {
		return fmt.Errorf("sizing: %w", err)
	}
	if err := c.Drawdown.validate(); err != nil {
		return fmt.Errorf("drawdown: %w", err)
	}
	if err := c.Execution.validate(); err != nil {
		return fmt.Errorf("execution: %w", err)
	}
	if c.Engine.InitialBankrollUSD < 0 {
		return fmt.Errorf("engine: initial_bankroll_usd must not be negative")
	}
	if c.Engine.MaxConcurrentEvals <= 0 {
		return fmt.Errorf("engine: max_concurrent_evals must be positive")
	}
	if c.API.Enabled && c.API.JWTSecret == "" {
		return fmt.Errorf("api: jwt_secret is required when the API is enabled")
	}
	return nil
}

func (c *RiskConfig) validate() error {
	if c.MinEdge < 0 || c.MinEdge > 1 {
		return fmt.Errorf("min_edge must be in [0,1], got %f", c.MinEdge)
	}
	if c.MinEvidenceQuality < 0 || c.MinEvidenceQuality > 1 {
		return fmt.Errorf("min_evidence_quality must be in [0,1], got %f", c.MinEvidenceQuality)
	}
	switch c.MinConfidence {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("min_confidence must be low, medium or high, got %q", c.MinConfidence)
	}
	if c.MaxSpread <= 0 || c.MaxSpread > 1 {
		return fmt.Errorf("max_spread must be in (0,1], got %f", c.MaxSpread)
	}
	if c.MinLiquidityUSD < 0 {
		return fmt.Errorf("min_liquidity_usd must not be negative")
	}
	if c.MaxTimeToResolution != 0 && c.MaxTimeToResolution < c.MinTimeToResolution {
		return fmt.Errorf("max_time_to_resolution must not be below min_time_to_resolution")
	}
	if c.MaxOpenPositions <= 0 {
		return fmt.Errorf("max_open_positions must be positive")
	}
	if c.MaxCategoryFraction <= 0 || c.MaxCategoryFraction > 1 {
		return fmt.Errorf("max_category_fraction must be in (0,1], got %f", c.MaxCategoryFraction)
	}
	return nil
}

func (c *SizingConfig) validate() error {
	if c.KellyFraction <= 0 || c.KellyFraction > 1 {
		return fmt.Errorf("kelly_fraction must be in (0,1], got %f", c.KellyFraction)
	}
	if c.MaxStakePerMarketUSD <= 0 {
		return fmt.Errorf("max_stake_per_market_usd must be positive")
	}
	if c.MaxBankrollFraction <= 0 || c.MaxBankrollFraction > 1 {
		return fmt.Errorf("max_bankroll_fraction must be in (0,1], got %f", c.MaxBankrollFraction)
	}
	if c.MinTicketUSD < 0 {
		return fmt.Errorf("min_ticket_usd must not be negative")
	}
	for name, factors := range map[string]map[string]float64{
		"regime_factors":     c.RegimeFactors,
		"category_factors":   c.CategoryFactors,
		"confidence_factors": c.ConfidenceFactors,
	} {
		for key, f := range factors {
			if f < 0 || f > 1.5 {
				return fmt.Errorf("%s[%s] must be in [0,1.5], got %f", name, key, f)
			}
		}
	}
	for _, b := range c.EvidenceBands {
		if b.Factor < 0 || b.Factor > 1.5 {
			return fmt.Errorf("evidence band factor must be in [0,1.5], got %f", b.Factor)
		}
	}
	for _, b := range c.LiquidityBands {
		if b.Factor < 0 || b.Factor > 1.5 {
			return fmt.Errorf("liquidity band factor must be in [0,1.5], got %f", b.Factor)
		}
	}
	for _, b := range c.AgreementBands {
		if b.Factor < 0 || b.Factor > 1.5 {
			return fmt.Errorf("agreement band factor must be in [0,1.5], got %f", b.Factor)
		}
	}
	return nil
}

func (c *DrawdownConfig) validate() error {
	if !(c.WarmThreshold > 0 && c.WarmThreshold < c.HotThreshold && c.HotThreshold < c.CriticalThreshold && c.CriticalThreshold < 1) {
		return fmt.Errorf("thresholds must be ascending in (0,1): warm=%f hot=%f critical=%f",
			c.WarmThreshold, c.HotThreshold, c.CriticalThreshold)
	}
	for name, m := range map[string]float64{
		"cool_multiplier":     c.CoolMultiplier,
		"warm_multiplier":     c.WarmMultiplier,
		"hot_multiplier":      c.HotMultiplier,
		"critical_multiplier": c.CriticalMultiplier,
	} {
		if m < 0 || m > 1 {
			return fmt.Errorf("%s must be in [0,1], got %f", name, m)
		}
	}
	if c.CriticalMultiplier != 0 {
		return fmt.Errorf("critical_multiplier must be 0 so CRITICAL heat halts sizing")
	}
	return nil
}

func (c *ExecutionConfig) validate() error {
	if c.ImpactThreshold <= 0 {
		return fmt.Errorf("impact_threshold must be positive")
	}
	if c.TightSpread <= 0 || c.TightSpread > 1 {
		return fmt.Errorf("tight_spread must be in (0,1], got %f", c.TightSpread)
	}
	if c.MaxSliceUSD <= 0 {
		return fmt.Errorf("max_slice_usd must be positive")
	}
	if c.VisibleSliceUSD <= 0 {
		return fmt.Errorf("visible_slice_usd must be positive")
	}
	if c.SlippageTolerance <= 0 || c.SlippageTolerance > 1 {
		return fmt.Errorf("slippage_tolerance must be in (0,1], got %f", c.SlippageTolerance)
	}
	if c.CompletionThreshold <= 0 || c.CompletionThreshold > 1 {
		return fmt.Errorf("completion_threshold must be in (0,1], got %f", c.CompletionThreshold)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.OrderTimeout <= 0 {
		return fmt.Errorf("order_timeout must be positive")
	}
	return nil
}
