package portfolio

import (
	"time"
)

// Side identifies which outcome token a position holds
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Position represents an open position in one market
type Position struct {
	MarketID  string    `json:"market_id"`
	Category  string    `json:"category"`
	Side      Side      `json:"side"`
	Shares    float64   `json:"shares"`
	AvgPrice  float64   `json:"avg_price"`
	CostUSD   float64   `json:"cost_usd"`
	MarkPrice float64   `json:"mark_price"`
	OpenedAt  time.Time `json:"opened_at"`
}

// UnrealizedPnL returns the mark-to-market profit of the position
func (p *Position) UnrealizedPnL() float64 {
	if p.MarkPrice == 0 {
		return 0
	}
	return (p.MarkPrice - p.AvgPrice) * p.Shares
}

// State is a snapshot of the portfolio. Snapshots returned by the Manager
// are copies; mutating one has no effect on the live state.
type State struct {
	BankrollUSD       float64              `json:"bankroll_usd"`
	TotalInvestedUSD  float64              `json:"total_invested_usd"`
	DailyRealizedLoss float64              `json:"daily_realized_loss"`
	DailyExposureUSD  float64              `json:"daily_exposure_usd"`
	Positions         map[string]*Position `json:"positions"`
	CategoryExposure  map[string]float64   `json:"category_exposure"`
	DailyAnchor       string               `json:"daily_anchor"` // UTC date the daily counters belong to
	UpdatedAt         time.Time            `json:"updated_at"`
}

// AvailableCapitalUSD returns bankroll minus invested capital, floored at 0
func (s State) AvailableCapitalUSD() float64 {
	avail := s.BankrollUSD - s.TotalInvestedUSD
	if avail < 0 {
		return 0
	}
	return avail
}

// OpenPositionCount returns the number of open positions
func (s State) OpenPositionCount() int {
	return len(s.Positions)
}

// HasPosition reports whether a position is open for the market
func (s State) HasPosition(marketID string) bool {
	_, ok := s.Positions[marketID]
	return ok
}

// EquityUSD returns bankroll plus unrealized P&L across open positions
func (s State) EquityUSD() float64 {
	equity := s.BankrollUSD
	for _, pos := range s.Positions {
		equity += pos.UnrealizedPnL()
	}
	return equity
}

// clone returns a deep copy of the state
func (s *State) clone() State {
	out := *s
	out.Positions = make(map[string]*Position, len(s.Positions))
	for id, pos := range s.Positions {
		cp := *pos
		out.Positions[id] = &cp
	}
	out.CategoryExposure = make(map[string]float64, len(s.CategoryExposure))
	for cat, v := range s.CategoryExposure {
		out.CategoryExposure[cat] = v
	}
	return out
}
