package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validRecord() *Forecast {
	return &Forecast{
		MarketID:           "mkt-1",
		Category:           "politics",
		ImpliedProbability: 0.40,
		ModelProbability:   0.55,
		ConfidenceLevel:    ConfidenceHigh,
		EvidenceQuality:    0.8,
		NumSources:         3,
		LiquidityUSD:       50000,
		Spread:             0.02,
		TimeToResolution:   72 * time.Hour,
	}
}

func TestEdge(t *testing.T) {
	f := validRecord()
	assert.InDelta(t, 0.15, f.Edge(), 1e-9)

	f.ModelProbability = 0.30
	assert.InDelta(t, -0.10, f.Edge(), 1e-9)
}

func TestConfidenceRank(t *testing.T) {
	assert.Less(t, ConfidenceLow.Rank(), ConfidenceMedium.Rank())
	assert.Less(t, ConfidenceMedium.Rank(), ConfidenceHigh.Rank())
	// An unknown tier ranks below every legitimate one.
	assert.Less(t, Confidence("extreme").Rank(), ConfidenceLow.Rank())
}

func TestValidateCleanRecord(t *testing.T) {
	assert.Empty(t, validRecord().Validate())
}

func TestValidateReportsEveryDefect(t *testing.T) {
	f := validRecord()
	f.MarketID = ""
	f.ModelProbability = math.NaN()
	f.Spread = 1.5
	f.NumSources = -1

	defects := f.Validate()
	assert.Len(t, defects, 4)
}

func TestValidateSingleDefects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(f *Forecast)
	}{
		{"implied probability above one", func(f *Forecast) { f.ImpliedProbability = 1.01 }},
		{"model probability negative", func(f *Forecast) { f.ModelProbability = -0.1 }},
		{"evidence quality NaN", func(f *Forecast) { f.EvidenceQuality = math.NaN() }},
		{"infinite liquidity", func(f *Forecast) { f.LiquidityUSD = math.Inf(1) }},
		{"negative resolution time", func(f *Forecast) { f.TimeToResolution = -time.Hour }},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			f := validRecord()
			tt.mutate(f)
			assert.Len(t, f.Validate(), 1)
		})
	}
}
