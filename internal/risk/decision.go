package risk

import (
	"time"
)

// Verdict is the gate's admission outcome
type Verdict string

const (
	VerdictTrade   Verdict = "TRADE"
	VerdictNoTrade Verdict = "NO_TRADE"
)

// Violation names one failed check with a human-readable detail
type Violation struct {
	Check  string `json:"check"`
	Detail string `json:"detail"`
}

// Decision is the immutable admission record for one forecast. Verdict is
// TRADE iff Violations is empty.
type Decision struct {
	ForecastID string      `json:"forecast_id"`
	MarketID   string      `json:"market_id"`
	Verdict    Verdict     `json:"verdict"`
	Violations []Violation `json:"violations"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Allowed reports whether the forecast was admitted
func (d *Decision) Allowed() bool {
	return d.Verdict == VerdictTrade
}
