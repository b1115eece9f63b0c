package sizing

import (
	"fmt"
	"math"
	"time"

	"pmgate/internal/config"
	"pmgate/internal/drawdown"
	"pmgate/internal/forecast"
	"pmgate/internal/portfolio"
)

// Outcome distinguishes a sized stake from a below-ticket skip. A skip is
// not a gate rejection; the audit trail records both distinctly.
type Outcome string

const (
	OutcomeSized   Outcome = "SIZED"
	OutcomeSkipped Outcome = "SKIPPED"
)

// Multiplier is one named dampening factor in the applied chain
type Multiplier struct {
	Name   string  `json:"name"`
	Factor float64 `json:"factor"`
}

// Decision is the immutable sizing record produced for an admitted forecast
type Decision struct {
	ForecastID           string         `json:"forecast_id"`
	MarketID             string         `json:"market_id"`
	Side                 portfolio.Side `json:"side"`
	EntryPrice           float64        `json:"entry_price"`
	KellyFractionRaw     float64        `json:"kelly_fraction_raw"`
	KellyFractionApplied float64        `json:"kelly_fraction_applied"`
	Multipliers          []Multiplier   `json:"multipliers"`
	StakeUSD             float64        `json:"stake_usd"`
	Outcome              Outcome        `json:"outcome"`
	Reason               string         `json:"reason,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
}

// Sizer converts an admitted forecast into a bounded capital commitment
type Sizer struct{}

// NewSizer creates a position sizer
func NewSizer() *Sizer {
	return &Sizer{}
}

// RawKelly returns the unclamped-then-clamped Kelly fraction and the side to
// buy for a binary market. Buying yes at price p with model probability q:
// (q-p)/(1-p); buying no: (p-q)/p. A price at 0 or 1, or a non-positive
// fraction, yields 0 — a zero stake, never an error.
func RawKelly(modelProb, impliedProb float64) (float64, portfolio.Side) {
	side := portfolio.SideYes
	if modelProb < impliedProb {
		side = portfolio.SideNo
	}

	var f float64
	switch side {
	case portfolio.SideYes:
		if impliedProb >= 1 {
			return 0, side
		}
		f = (modelProb - impliedProb) / (1 - impliedProb)
	case portfolio.SideNo:
		if impliedProb <= 0 {
			return 0, side
		}
		f = (impliedProb - modelProb) / impliedProb
	}

	if math.IsNaN(f) || f < 0 {
		return 0, side
	}
	if f > 1 {
		return 1, side
	}
	return f, side
}

// Size computes the stake for an admitted forecast. The multiplier chain is
// applied in a fixed order and every factor is recorded individually for the
// audit trail.
func (s *Sizer) Size(forecastID string, f *forecast.Forecast, pf portfolio.State, dd drawdown.State, cfg *config.SizingConfig, regime string) *Decision {
	raw, side := RawKelly(f.ModelProbability, f.ImpliedProbability)
	applied := raw * cfg.KellyFraction

	entry := f.ImpliedProbability
	if side == portfolio.SideNo {
		entry = 1 - f.ImpliedProbability
	}

	d := &Decision{
		ForecastID:       forecastID,
		MarketID:         f.MarketID,
		Side:             side,
		EntryPrice:       entry,
		KellyFractionRaw: raw,
		CreatedAt:        time.Now(),
	}

	for _, m := range []Multiplier{
		{"evidence_quality", bandFactor(cfg.EvidenceBands, f.EvidenceQuality)},
		{"model_agreement", countBandFactor(cfg.AgreementBands, f.NumSources)},
		{"market_regime", mapFactor(cfg.RegimeFactors, regime)},
		{"drawdown", dd.KellyMultiplier},
		{"category", mapFactor(cfg.CategoryFactors, f.Category)},
		{"liquidity", bandFactor(cfg.LiquidityBands, f.LiquidityUSD)},
		{"confidence", mapFactor(cfg.ConfidenceFactors, string(f.ConfidenceLevel))},
	} {
		m.Factor = clampFactor(m.Factor)
		d.Multipliers = append(d.Multipliers, m)
		applied *= m.Factor
	}
	d.KellyFractionApplied = applied

	available := pf.AvailableCapitalUSD()
	stake := applied * pf.BankrollUSD
	stake = math.Min(stake, cfg.MaxStakePerMarketUSD)
	stake = math.Min(stake, available*cfg.MaxBankrollFraction)
	stake = math.Min(stake, available)
	if stake < 0 {
		stake = 0
	}

	if stake < cfg.MinTicketUSD {
		d.StakeUSD = 0
		d.Outcome = OutcomeSkipped
		d.Reason = fmt.Sprintf("stake $%.2f below minimum ticket $%.2f", stake, cfg.MinTicketUSD)
		return d
	}

	d.StakeUSD = stake
	d.Outcome = OutcomeSized
	return d
}

// bandFactor returns the factor of the highest band whose Min does not
// exceed the value; 1.0 when no band matches or the table is empty
func bandFactor(bands []config.Band, value float64) float64 {
	factor := 1.0
	best := math.Inf(-1)
	matched := false
	for _, b := range bands {
		if value >= b.Min && b.Min >= best {
			best = b.Min
			factor = b.Factor
			matched = true
		}
	}
	if !matched {
		return 1.0
	}
	return factor
}

// countBandFactor is bandFactor over integer inputs
func countBandFactor(bands []config.CountBand, value int) float64 {
	factor := 1.0
	best := math.MinInt
	matched := false
	for _, b := range bands {
		if value >= b.Min && b.Min >= best {
			best = b.Min
			factor = b.Factor
			matched = true
		}
	}
	if !matched {
		return 1.0
	}
	return factor
}

// mapFactor returns the named factor, 1.0 when absent
func mapFactor(factors map[string]float64, key string) float64 {
	if f, ok := factors[key]; ok {
		return f
	}
	return 1.0
}

// clampFactor bounds a multiplier to [0, 1.5]
func clampFactor(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1.5 {
		return 1.5
	}
	return f
}
