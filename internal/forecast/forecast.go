package forecast

import (
	"fmt"
	"math"
	"time"
)

// Confidence represents the forecasting pipeline's stated confidence tier
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Rank returns the ordering of a confidence tier; unknown tiers rank below
// low so a malformed value can never satisfy a confidence floor.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	default:
		return 0
	}
}

// Forecast is the record handed to the decision core by the upstream
// forecasting pipeline, one per market per cycle. It is immutable here.
type Forecast struct {
	ID                 string        `json:"id"`
	MarketID           string        `json:"market_id"`
	Question           string        `json:"question,omitempty"`
	Category           string        `json:"category"`
	ImpliedProbability float64       `json:"implied_probability"` // market-derived, [0,1]
	ModelProbability   float64       `json:"model_probability"`   // [0,1]
	ConfidenceLevel    Confidence    `json:"confidence_level"`
	EvidenceQuality    float64       `json:"evidence_quality"` // [0,1]
	NumSources         int           `json:"num_sources"`
	LiquidityUSD       float64       `json:"liquidity_usd"`
	Spread             float64       `json:"spread"` // [0,1]
	TimeToResolution   time.Duration `json:"time_to_resolution"`
	CreatedAt          time.Time     `json:"created_at"`
}

// Edge returns model probability minus implied probability. Positive edge
// favors buying the yes side.
func (f *Forecast) Edge() float64 {
	return f.ModelProbability - f.ImpliedProbability
}

// Validate reports every input defect in the record. Callers treat a
// non-empty result as an automatic no-trade, never as a fault.
func (f *Forecast) Validate() []error {
	var defects []error

	if f.MarketID == "" {
		defects = append(defects, fmt.Errorf("market_id is empty"))
	}
	if !inUnitInterval(f.ImpliedProbability) {
		defects = append(defects, fmt.Errorf("implied_probability %v outside [0,1]", f.ImpliedProbability))
	}
	if !inUnitInterval(f.ModelProbability) {
		defects = append(defects, fmt.Errorf("model_probability %v outside [0,1]", f.ModelProbability))
	}
	if !inUnitInterval(f.EvidenceQuality) {
		defects = append(defects, fmt.Errorf("evidence_quality %v outside [0,1]", f.EvidenceQuality))
	}
	if !inUnitInterval(f.Spread) {
		defects = append(defects, fmt.Errorf("spread %v outside [0,1]", f.Spread))
	}
	if f.LiquidityUSD < 0 || math.IsNaN(f.LiquidityUSD) || math.IsInf(f.LiquidityUSD, 0) {
		defects = append(defects, fmt.Errorf("liquidity_usd %v invalid", f.LiquidityUSD))
	}
	if f.NumSources < 0 {
		defects = append(defects, fmt.Errorf("num_sources %d negative", f.NumSources))
	}
	if f.TimeToResolution < 0 {
		defects = append(defects, fmt.Errorf("time_to_resolution %v negative", f.TimeToResolution))
	}

	return defects
}

func inUnitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
