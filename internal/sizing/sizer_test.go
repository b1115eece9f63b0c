package sizing

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmgate/internal/config"
	"pmgate/internal/drawdown"
	"pmgate/internal/forecast"
	"pmgate/internal/portfolio"
)

func sizingConfig() *config.SizingConfig {
	return &config.SizingConfig{
		KellyFraction:        0.25,
		MaxStakePerMarketUSD: 250,
		MaxBankrollFraction:  0.10,
		MinTicketUSD:         5,
	}
}

func sizedForecast() *forecast.Forecast {
	return &forecast.Forecast{
		MarketID:           "mkt-1",
		Category:           "politics",
		ImpliedProbability: 0.25,
		ModelProbability:   0.50,
		ConfidenceLevel:    forecast.ConfidenceHigh,
		EvidenceQuality:    0.9,
		NumSources:         4,
		LiquidityUSD:       100000,
		Spread:             0.02,
		TimeToResolution:   72 * time.Hour,
	}
}

func coolState() drawdown.State {
	return drawdown.State{HeatLevel: drawdown.HeatCool, KellyMultiplier: 1.0}
}

func TestRawKellyYesSide(t *testing.T) {
	// Buying yes at 0.25 with model probability 0.50: (0.5-0.25)/(1-0.25)
	f, side := RawKelly(0.50, 0.25)
	assert.Equal(t, portfolio.SideYes, side)
	assert.InDelta(t, 1.0/3.0, f, 1e-9)
}

func TestRawKellyNoSide(t *testing.T) {
	// Model below market price buys no: (0.5-0.2)/0.5
	f, side := RawKelly(0.20, 0.50)
	assert.Equal(t, portfolio.SideNo, side)
	assert.InDelta(t, 0.6, f, 1e-9)
}

func TestRawKellyDegeneratePrices(t *testing.T) {
	f, _ := RawKelly(0.9, 1.0) // yes at price 1
	assert.Zero(t, f)

	f, _ = RawKelly(0.1, 0.0) // no at price 0
	assert.Zero(t, f)

	// Near-degenerate prices stay finite and clamped.
	for _, p := range []float64{1e-12, 1 - 1e-12} {
		for _, q := range []float64{0, 0.5, 1} {
			f, _ := RawKelly(q, p)
			assert.False(t, math.IsNaN(f), "q=%v p=%v", q, p)
			assert.GreaterOrEqual(t, f, 0.0)
			assert.LessOrEqual(t, f, 1.0)
		}
	}
}

func TestSizeBaseline(t *testing.T) {
	sizer := NewSizer()
	pf := portfolio.State{BankrollUSD: 1000}

	d := sizer.Size("f-1", sizedForecast(), pf, coolState(), sizingConfig(), "neutral")

	require.Equal(t, OutcomeSized, d.Outcome)
	assert.Equal(t, portfolio.SideYes, d.Side)
	assert.InDelta(t, 1.0/3.0, d.KellyFractionRaw, 1e-9)
	// 1/3 raw, quarter-Kelly, all multipliers neutral: 1000/12, under
	// every cap.
	assert.InDelta(t, 1000.0/12.0, d.StakeUSD, 1e-6)
	assert.InDelta(t, 0.25, d.EntryPrice, 1e-9)
	require.Len(t, d.Multipliers, 7)
	for _, m := range d.Multipliers {
		assert.Equal(t, 1.0, m.Factor, m.Name)
	}
}

func TestSizeMultiplierOrder(t *testing.T) {
	sizer := NewSizer()
	d := sizer.Size("f-1", sizedForecast(), portfolio.State{BankrollUSD: 1000}, coolState(), sizingConfig(), "neutral")

	want := []string{
		"evidence_quality", "model_agreement", "market_regime",
		"drawdown", "category", "liquidity", "confidence",
	}
	require.Len(t, d.Multipliers, len(want))
	for i, m := range d.Multipliers {
		assert.Equal(t, want[i], m.Name)
	}
}

func TestSizeDrawdownMultiplierApplies(t *testing.T) {
	sizer := NewSizer()
	pf := portfolio.State{BankrollUSD: 1000}
	hot := drawdown.State{HeatLevel: drawdown.HeatHot, KellyMultiplier: 0.5}

	base := sizer.Size("f-1", sizedForecast(), pf, coolState(), sizingConfig(), "neutral")
	damped := sizer.Size("f-1", sizedForecast(), pf, hot, sizingConfig(), "neutral")

	assert.InDelta(t, base.StakeUSD*0.5, damped.StakeUSD, 1e-6)
}

func TestSizeStakeCaps(t *testing.T) {
	sizer := NewSizer()
	f := sizedForecast()

	t.Run("per-market cap", func(t *testing.T) {
		cfg := sizingConfig()
		cfg.MaxStakePerMarketUSD = 50
		cfg.MaxBankrollFraction = 1.0
		d := sizer.Size("f-1", f, portfolio.State{BankrollUSD: 10000}, coolState(), cfg, "neutral")
		assert.InDelta(t, 50, d.StakeUSD, 1e-9)
	})

	t.Run("bankroll fraction cap", func(t *testing.T) {
		cfg := sizingConfig()
		cfg.MaxBankrollFraction = 0.025
		d := sizer.Size("f-1", f, portfolio.State{BankrollUSD: 1000}, coolState(), cfg, "neutral")
		assert.InDelta(t, 25, d.StakeUSD, 1e-9) // 2.5% of 1000 available
	})

	t.Run("available capital cap", func(t *testing.T) {
		cfg := sizingConfig()
		cfg.MaxBankrollFraction = 1.0
		cfg.MaxStakePerMarketUSD = 1e9
		pf := portfolio.State{BankrollUSD: 1000, TotalInvestedUSD: 990}
		d := sizer.Size("f-1", f, pf, coolState(), cfg, "neutral")
		assert.InDelta(t, 10, d.StakeUSD, 1e-9)
	})
}

func TestQuarterKellyWorkedExample(t *testing.T) {
	// Model 0.70 against a 0.55 price: f_raw = 0.15/0.45, quarter-Kelly
	// brings the applied fraction to about 0.0833.
	raw, side := RawKelly(0.70, 0.55)
	require.Equal(t, portfolio.SideYes, side)
	assert.InDelta(t, 0.3333, raw, 1e-4)

	sizer := NewSizer()
	f := sizedForecast()
	f.ImpliedProbability = 0.55
	f.ModelProbability = 0.70

	d := sizer.Size("f-1", f, portfolio.State{BankrollUSD: 1000}, coolState(), sizingConfig(), "neutral")
	assert.InDelta(t, 0.0833, d.KellyFractionApplied, 1e-4)
}

func TestPerMarketCapBindsOverAvailable(t *testing.T) {
	// Uncapped stake 60, available 40, per-market cap 25: the cap binds.
	sizer := NewSizer()
	cfg := sizingConfig()
	cfg.KellyFraction = 0.75
	cfg.MaxStakePerMarketUSD = 25
	cfg.MaxBankrollFraction = 1.0

	f := sizedForecast()
	f.ImpliedProbability = 0.25
	f.ModelProbability = 0.85 // raw 0.8, applied 0.6

	pf := portfolio.State{BankrollUSD: 100, TotalInvestedUSD: 60}
	d := sizer.Size("f-1", f, pf, coolState(), cfg, "neutral")

	require.Equal(t, OutcomeSized, d.Outcome)
	assert.InDelta(t, 25, d.StakeUSD, 1e-9)
}

func TestSizeBelowTicketSkips(t *testing.T) {
	sizer := NewSizer()
	cfg := sizingConfig()
	cfg.MinTicketUSD = 100

	d := sizer.Size("f-1", sizedForecast(), portfolio.State{BankrollUSD: 1000}, coolState(), cfg, "neutral")

	assert.Equal(t, OutcomeSkipped, d.Outcome)
	assert.Zero(t, d.StakeUSD)
	assert.NotEmpty(t, d.Reason)
}

func TestSizeCriticalHeatSkips(t *testing.T) {
	sizer := NewSizer()
	critical := drawdown.State{HeatLevel: drawdown.HeatCritical, KellyMultiplier: 0}

	d := sizer.Size("f-1", sizedForecast(), portfolio.State{BankrollUSD: 1000}, critical, sizingConfig(), "neutral")

	assert.Equal(t, OutcomeSkipped, d.Outcome)
	assert.Zero(t, d.StakeUSD)
}

func TestSizeFactorsClamped(t *testing.T) {
	sizer := NewSizer()
	cfg := sizingConfig()
	cfg.RegimeFactors = map[string]float64{"mania": 3.0}
	cfg.CategoryFactors = map[string]float64{"politics": -1.0}

	d := sizer.Size("f-1", sizedForecast(), portfolio.State{BankrollUSD: 1000}, coolState(), cfg, "mania")

	for _, m := range d.Multipliers {
		switch m.Name {
		case "market_regime":
			assert.Equal(t, 1.5, m.Factor)
		case "category":
			assert.Equal(t, 0.0, m.Factor)
		}
	}
	assert.Equal(t, OutcomeSkipped, d.Outcome) // zero factor zeroes the stake
}

func TestBandFactor(t *testing.T) {
	bands := []config.Band{
		{Min: 0, Factor: 0.5},
		{Min: 0.6, Factor: 0.8},
		{Min: 0.8, Factor: 1.0},
	}

	assert.Equal(t, 0.5, bandFactor(bands, 0.3))
	assert.Equal(t, 0.8, bandFactor(bands, 0.6))
	assert.Equal(t, 0.8, bandFactor(bands, 0.79))
	assert.Equal(t, 1.0, bandFactor(bands, 0.95))
	assert.Equal(t, 1.0, bandFactor(nil, 0.5))
	assert.Equal(t, 1.0, bandFactor(bands, -0.1)) // below every band
}

func TestCountBandFactor(t *testing.T) {
	bands := []config.CountBand{
		{Min: 1, Factor: 0.7},
		{Min: 3, Factor: 1.0},
		{Min: 5, Factor: 1.2},
	}

	assert.Equal(t, 0.7, countBandFactor(bands, 1))
	assert.Equal(t, 1.0, countBandFactor(bands, 4))
	assert.Equal(t, 1.2, countBandFactor(bands, 9))
	assert.Equal(t, 1.0, countBandFactor(bands, 0))
	assert.Equal(t, 1.0, countBandFactor(nil, 3))
}
