package risk

import (
	"fmt"
	"time"

	"pmgate/internal/config"
	"pmgate/internal/drawdown"
	"pmgate/internal/forecast"
	"pmgate/internal/portfolio"
)

// LiveGate carries the three independent flags that must all agree before a
// live order may be placed. A single unset gate can never be bypassed by the
// others.
type LiveGate struct {
	EngineLive  bool // process started with live trading enabled
	ConfigLive  bool // risk.live_trading_enabled in the active config
	RequestLive bool // this cycle intends a live (non-paper) order
}

// Input bundles everything one evaluation reads. All fields are snapshots;
// the gate holds no state of its own.
type Input struct {
	Forecast  *forecast.Forecast
	Portfolio portfolio.State
	Drawdown  drawdown.State
	Config    *config.RiskConfig
	Live      LiveGate
}

// check is one admission predicate. ok=false produces a violation carrying
// detail. Checks never short-circuit: the full violation set is always
// reported.
type check struct {
	name string
	eval func(in *Input) (ok bool, detail string)
}

// The fixed battery, in evaluation and reporting order.
var checks = []check{
	{"kill_switch", func(in *Input) (bool, string) {
		if in.Drawdown.KillSwitch {
			return false, fmt.Sprintf("kill switch engaged: %s", in.Drawdown.KillReason)
		}
		return true, ""
	}},
	{"drawdown_halt", func(in *Input) (bool, string) {
		if in.Drawdown.HeatLevel == drawdown.HeatCritical {
			return false, fmt.Sprintf("heat level CRITICAL at drawdown %.1f%%", in.Drawdown.DrawdownPct*100)
		}
		return true, ""
	}},
	{"edge_threshold", func(in *Input) (bool, string) {
		if edge := in.Forecast.Edge(); edge < in.Config.MinEdge {
			return false, fmt.Sprintf("edge %.4f below minimum %.4f", edge, in.Config.MinEdge)
		}
		return true, ""
	}},
	{"evidence_quality", func(in *Input) (bool, string) {
		if in.Forecast.EvidenceQuality < in.Config.MinEvidenceQuality {
			return false, fmt.Sprintf("evidence quality %.2f below minimum %.2f",
				in.Forecast.EvidenceQuality, in.Config.MinEvidenceQuality)
		}
		return true, ""
	}},
	{"confidence_floor", func(in *Input) (bool, string) {
		min := forecast.Confidence(in.Config.MinConfidence)
		if in.Forecast.ConfidenceLevel.Rank() < min.Rank() {
			return false, fmt.Sprintf("confidence %s below minimum %s", in.Forecast.ConfidenceLevel, min)
		}
		return true, ""
	}},
	{"liquidity_floor", func(in *Input) (bool, string) {
		if in.Forecast.LiquidityUSD < in.Config.MinLiquidityUSD {
			return false, fmt.Sprintf("liquidity $%.0f below minimum $%.0f",
				in.Forecast.LiquidityUSD, in.Config.MinLiquidityUSD)
		}
		return true, ""
	}},
	{"spread_ceiling", func(in *Input) (bool, string) {
		if in.Forecast.Spread > in.Config.MaxSpread {
			return false, fmt.Sprintf("spread %.4f above maximum %.4f", in.Forecast.Spread, in.Config.MaxSpread)
		}
		return true, ""
	}},
	{"resolution_window", func(in *Input) (bool, string) {
		ttr := in.Forecast.TimeToResolution
		if ttr < in.Config.MinTimeToResolution {
			return false, fmt.Sprintf("resolution in %s, closer than minimum %s", ttr, in.Config.MinTimeToResolution)
		}
		if in.Config.MaxTimeToResolution != 0 && ttr > in.Config.MaxTimeToResolution {
			return false, fmt.Sprintf("resolution in %s, farther than maximum %s", ttr, in.Config.MaxTimeToResolution)
		}
		return true, ""
	}},
	{"duplicate_position", func(in *Input) (bool, string) {
		if in.Portfolio.HasPosition(in.Forecast.MarketID) {
			return false, fmt.Sprintf("position already open for market %s", in.Forecast.MarketID)
		}
		return true, ""
	}},
	{"max_open_positions", func(in *Input) (bool, string) {
		if n := in.Portfolio.OpenPositionCount(); n >= in.Config.MaxOpenPositions {
			return false, fmt.Sprintf("%d open positions at limit %d", n, in.Config.MaxOpenPositions)
		}
		return true, ""
	}},
	{"max_daily_loss", func(in *Input) (bool, string) {
		if in.Portfolio.DailyRealizedLoss >= in.Config.MaxDailyLossUSD {
			return false, fmt.Sprintf("daily realized loss $%.2f at limit $%.2f",
				in.Portfolio.DailyRealizedLoss, in.Config.MaxDailyLossUSD)
		}
		return true, ""
	}},
	{"max_daily_exposure", func(in *Input) (bool, string) {
		if in.Portfolio.DailyExposureUSD >= in.Config.MaxDailyExposureUSD {
			return false, fmt.Sprintf("daily exposure $%.2f at limit $%.2f",
				in.Portfolio.DailyExposureUSD, in.Config.MaxDailyExposureUSD)
		}
		return true, ""
	}},
	{"category_concentration", func(in *Input) (bool, string) {
		limit := in.Config.MaxCategoryFraction * in.Portfolio.BankrollUSD
		if exp := in.Portfolio.CategoryExposure[in.Forecast.Category]; exp >= limit {
			return false, fmt.Sprintf("category %s exposure $%.2f at cap $%.2f",
				in.Forecast.Category, exp, limit)
		}
		return true, ""
	}},
	{"bankroll_floor", func(in *Input) (bool, string) {
		if in.Portfolio.AvailableCapitalUSD() <= 0 {
			return false, "no available capital"
		}
		return true, ""
	}},
	{"live_gate", func(in *Input) (bool, string) {
		if in.Live.RequestLive && !(in.Live.EngineLive && in.Live.ConfigLive) {
			return false, fmt.Sprintf("live order requested but gates not unlocked (engine=%t config=%t)",
				in.Live.EngineLive, in.Live.ConfigLive)
		}
		return true, ""
	}},
}

// Gate is the single admission-control checkpoint. Stateless: identical
// inputs always produce identical decisions.
type Gate struct{}

// NewGate creates a risk gate
func NewGate() *Gate {
	return &Gate{}
}

// Evaluate runs the full check battery against the input and returns the
// admission decision. Malformed forecast fields become an input_defect
// violation ahead of the battery; they never abort evaluation.
func (g *Gate) Evaluate(forecastID string, in *Input) *Decision {
	d := &Decision{
		ForecastID: forecastID,
		MarketID:   in.Forecast.MarketID,
		Violations: []Violation{},
		CreatedAt:  time.Now(),
	}

	for _, defect := range in.Forecast.Validate() {
		d.Violations = append(d.Violations, Violation{Check: "input_defect", Detail: defect.Error()})
	}

	for _, c := range checks {
		if ok, detail := c.eval(in); !ok {
			d.Violations = append(d.Violations, Violation{Check: c.name, Detail: detail})
		}
	}

	if len(d.Violations) == 0 {
		d.Verdict = VerdictTrade
	} else {
		d.Verdict = VerdictNoTrade
	}
	return d
}
