package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmgate/internal/config"
	"pmgate/internal/drawdown"
	"pmgate/internal/forecast"
	"pmgate/internal/portfolio"
)

func admissibleForecast() *forecast.Forecast {
	return &forecast.Forecast{
		MarketID:           "mkt-election-2028",
		Category:           "politics",
		ImpliedProbability: 0.40,
		ModelProbability:   0.55,
		ConfidenceLevel:    forecast.ConfidenceHigh,
		EvidenceQuality:    0.80,
		NumSources:         4,
		LiquidityUSD:       50000,
		Spread:             0.02,
		TimeToResolution:   72 * time.Hour,
		CreatedAt:          time.Now(),
	}
}

func admissibleInput() *Input {
	cfg := config.Default()
	return &Input{
		Forecast: admissibleForecast(),
		Portfolio: portfolio.State{
			BankrollUSD:      1000,
			Positions:        map[string]*portfolio.Position{},
			CategoryExposure: map[string]float64{},
		},
		Drawdown: drawdown.State{
			HeatLevel:       drawdown.HeatCool,
			KellyMultiplier: 1.0,
		},
		Config: &cfg.Risk,
		Live:   LiveGate{},
	}
}

func violationChecks(d *Decision) []string {
	names := make([]string, 0, len(d.Violations))
	for _, v := range d.Violations {
		names = append(names, v.Check)
	}
	return names
}

func TestEvaluateAdmits(t *testing.T) {
	gate := NewGate()
	d := gate.Evaluate("f-1", admissibleInput())

	assert.Equal(t, VerdictTrade, d.Verdict)
	assert.Empty(t, d.Violations)
	assert.True(t, d.Allowed())
	assert.Equal(t, "f-1", d.ForecastID)
	assert.Equal(t, "mkt-election-2028", d.MarketID)
}

func TestEvaluateWorkedExample(t *testing.T) {
	gate := NewGate()
	in := admissibleInput()
	in.Forecast.ImpliedProbability = 0.55
	in.Forecast.ModelProbability = 0.70
	in.Forecast.EvidenceQuality = 0.8
	in.Forecast.LiquidityUSD = 100000
	in.Forecast.Spread = 0.02

	d := gate.Evaluate("f-1", in)
	assert.Equal(t, VerdictTrade, d.Verdict)

	// The same input under CRITICAL heat is refused on the halt check
	// regardless of its edge.
	in.Drawdown.HeatLevel = drawdown.HeatCritical
	in.Drawdown.KellyMultiplier = 0
	d = gate.Evaluate("f-1", in)
	assert.Equal(t, VerdictNoTrade, d.Verdict)
	assert.Equal(t, []string{"drawdown_halt"}, violationChecks(d))
}

func TestVerdictMatchesViolations(t *testing.T) {
	gate := NewGate()

	mutations := []struct {
		name   string
		mutate func(in *Input)
		check  string
	}{
		{"kill switch", func(in *Input) { in.Drawdown.KillSwitch = true }, "kill_switch"},
		{"critical heat", func(in *Input) { in.Drawdown.HeatLevel = drawdown.HeatCritical }, "drawdown_halt"},
		{"thin edge", func(in *Input) { in.Forecast.ModelProbability = 0.41 }, "edge_threshold"},
		{"weak evidence", func(in *Input) { in.Forecast.EvidenceQuality = 0.2 }, "evidence_quality"},
		{"low confidence", func(in *Input) { in.Forecast.ConfidenceLevel = forecast.ConfidenceLow }, "confidence_floor"},
		{"illiquid", func(in *Input) { in.Forecast.LiquidityUSD = 100 }, "liquidity_floor"},
		{"wide spread", func(in *Input) { in.Forecast.Spread = 0.20 }, "spread_ceiling"},
		{"resolves too soon", func(in *Input) { in.Forecast.TimeToResolution = time.Hour }, "resolution_window"},
		{"duplicate", func(in *Input) {
			in.Portfolio.Positions["mkt-election-2028"] = &portfolio.Position{MarketID: "mkt-election-2028"}
		}, "duplicate_position"},
		{"too many positions", func(in *Input) {
			for i := 0; i < in.Config.MaxOpenPositions; i++ {
				id := string(rune('a' + i))
				in.Portfolio.Positions[id] = &portfolio.Position{MarketID: id}
			}
		}, "max_open_positions"},
		{"daily loss cap", func(in *Input) { in.Portfolio.DailyRealizedLoss = in.Config.MaxDailyLossUSD }, "max_daily_loss"},
		{"daily exposure cap", func(in *Input) { in.Portfolio.DailyExposureUSD = in.Config.MaxDailyExposureUSD }, "max_daily_exposure"},
		{"category concentration", func(in *Input) {
			in.Portfolio.CategoryExposure["politics"] = in.Config.MaxCategoryFraction * in.Portfolio.BankrollUSD
		}, "category_concentration"},
		{"no capital", func(in *Input) { in.Portfolio.TotalInvestedUSD = in.Portfolio.BankrollUSD }, "bankroll_floor"},
		{"live gates locked", func(in *Input) { in.Live = LiveGate{RequestLive: true} }, "live_gate"},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			in := admissibleInput()
			tt.mutate(in)
			d := gate.Evaluate("f-1", in)

			assert.Equal(t, VerdictNoTrade, d.Verdict)
			assert.Contains(t, violationChecks(d), tt.check)
		})
	}
}

func TestNoShortCircuit(t *testing.T) {
	gate := NewGate()
	in := admissibleInput()
	in.Drawdown.KillSwitch = true
	in.Forecast.ModelProbability = 0.41 // thin edge
	in.Forecast.LiquidityUSD = 100

	d := gate.Evaluate("f-1", in)
	require.Equal(t, VerdictNoTrade, d.Verdict)

	names := violationChecks(d)
	assert.Contains(t, names, "kill_switch")
	assert.Contains(t, names, "edge_threshold")
	assert.Contains(t, names, "liquidity_floor")
	assert.Len(t, d.Violations, 3)
}

func TestKillSwitchDominates(t *testing.T) {
	gate := NewGate()
	in := admissibleInput()
	in.Drawdown.KillSwitch = true
	in.Drawdown.KillReason = "manual halt"

	d := gate.Evaluate("f-1", in)
	assert.Equal(t, VerdictNoTrade, d.Verdict)
	assert.Equal(t, "kill_switch", d.Violations[0].Check)
	assert.Contains(t, d.Violations[0].Detail, "manual halt")
}

func TestInputDefectRejects(t *testing.T) {
	gate := NewGate()
	in := admissibleInput()
	in.Forecast.ModelProbability = 1.7

	d := gate.Evaluate("f-1", in)
	assert.Equal(t, VerdictNoTrade, d.Verdict)
	assert.Equal(t, "input_defect", d.Violations[0].Check)
}

func TestResolutionWindowFarBound(t *testing.T) {
	gate := NewGate()
	in := admissibleInput()
	in.Config.MaxTimeToResolution = 30 * 24 * time.Hour
	in.Forecast.TimeToResolution = 90 * 24 * time.Hour

	d := gate.Evaluate("f-1", in)
	assert.Contains(t, violationChecks(d), "resolution_window")

	// Zero disables the far bound.
	in.Config.MaxTimeToResolution = 0
	d = gate.Evaluate("f-1", in)
	assert.Equal(t, VerdictTrade, d.Verdict)
}

func TestLiveGateRequiresAllThree(t *testing.T) {
	gate := NewGate()

	cases := []struct {
		live  LiveGate
		admit bool
	}{
		{LiveGate{}, true}, // paper request never needs the gates
		{LiveGate{RequestLive: true}, false},
		{LiveGate{RequestLive: true, EngineLive: true}, false},
		{LiveGate{RequestLive: true, ConfigLive: true}, false},
		{LiveGate{RequestLive: true, EngineLive: true, ConfigLive: true}, true},
	}

	for _, tt := range cases {
		in := admissibleInput()
		in.Live = tt.live
		d := gate.Evaluate("f-1", in)
		if tt.admit {
			assert.Equal(t, VerdictTrade, d.Verdict, "live=%+v", tt.live)
		} else {
			assert.Contains(t, violationChecks(d), "live_gate", "live=%+v", tt.live)
		}
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	gate := NewGate()
	in := admissibleInput()
	in.Forecast.ModelProbability = 0.41
	in.Forecast.Spread = 0.2

	first := gate.Evaluate("f-1", in)
	second := gate.Evaluate("f-1", in)

	assert.Equal(t, first.Verdict, second.Verdict)
	assert.Equal(t, first.Violations, second.Violations)
}
