package execution

import (
	"context"
	"fmt"

	"pmgate/internal/market"
)

// PaperPlacer simulates order placement deterministically: every child order
// fills in full at the quoted price at decision time (falling back to the
// request's price limit when no book is known). It runs the exact code path
// a live placer would, minus the network call.
type PaperPlacer struct {
	books market.BookSource
}

// NewPaperPlacer creates a paper placer quoting from the given book source
func NewPaperPlacer(books market.BookSource) *PaperPlacer {
	return &PaperPlacer{books: books}
}

// PlaceOrder fills the request at the current quote
func (p *PaperPlacer) PlaceOrder(ctx context.Context, req *OrderRequest) (*PlacedOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.SizeUSD <= 0 {
		return nil, fmt.Errorf("paper placer: invalid order size %f", req.SizeUSD)
	}

	price := req.PriceLimit
	if book, ok := p.books.Snapshot(req.MarketID); ok {
		price = book.QuoteBuy(req.Side)
	}
	if price <= 0 {
		return nil, fmt.Errorf("paper placer: no quotable price for %s", req.MarketID)
	}

	return &PlacedOrder{
		FilledShares: req.SizeUSD / price,
		AvgPrice:     price,
	}, nil
}
