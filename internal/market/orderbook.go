package market

import (
	"time"

	"pmgate/internal/portfolio"
)

// Level is one price level of an order book side. Prices are outcome-token
// prices in probability space [0,1]; sizes are notional USD visible at the
// level.
type Level struct {
	Price   float64 `json:"price"`
	SizeUSD float64 `json:"size_usd"`
}

// OrderBook is a point-in-time snapshot of a market's yes-token book. Bids
// are sorted descending by price, asks ascending.
type OrderBook struct {
	MarketID  string    `json:"market_id"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

// BestBid returns the highest bid, or 0 when the side is empty
func (b *OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the lowest ask, or 1 when the side is empty
func (b *OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 1
	}
	return b.Asks[0].Price
}

// Spread returns best ask minus best bid
func (b *OrderBook) Spread() float64 {
	return b.BestAsk() - b.BestBid()
}

// MidPrice returns the midpoint of the best bid and ask
func (b *OrderBook) MidPrice() float64 {
	return (b.BestBid() + b.BestAsk()) / 2
}

// QuoteBuy returns the price paid to buy one share of the given side at the
// top of the book. Buying no is filled against the yes bid: a no share costs
// one minus the price received for a yes share.
func (b *OrderBook) QuoteBuy(side portfolio.Side) float64 {
	if side == portfolio.SideNo {
		return 1 - b.BestBid()
	}
	return b.BestAsk()
}

// TopDepthUSD returns the visible notional across the top n ask levels for
// yes buys, or the top n bid levels for no buys
func (b *OrderBook) TopDepthUSD(side portfolio.Side, n int) float64 {
	levels := b.Asks
	if side == portfolio.SideNo {
		levels = b.Bids
	}
	if n > len(levels) {
		n = len(levels)
	}
	var depth float64
	for _, lvl := range levels[:n] {
		depth += lvl.SizeUSD
	}
	return depth
}

// BookSource supplies the freshest known book snapshot per market
type BookSource interface {
	Snapshot(marketID string) (*OrderBook, bool)
}

// StaticBooks is a fixed BookSource for tests and single-shot paper runs
type StaticBooks map[string]*OrderBook

// Snapshot returns the fixed book for the market
func (s StaticBooks) Snapshot(marketID string) (*OrderBook, bool) {
	b, ok := s[marketID]
	return b, ok
}
