package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Feed maintains live order-book snapshots from the market data websocket.
// It implements BookSource; Snapshot always returns the freshest book seen
// for a market.
type Feed struct {
	url    string
	logger *logrus.Entry

	mu    sync.RWMutex
	books map[string]*OrderBook

	subMu   sync.Mutex
	markets map[string]struct{}
	conn    *websocket.Conn
}

// bookMessage is the wire format of a book update
type bookMessage struct {
	Type     string  `json:"type"`
	MarketID string  `json:"market_id"`
	Bids     []Level `json:"bids"`
	Asks     []Level `json:"asks"`
}

// subscribeMessage is the wire format of a subscription request
type subscribeMessage struct {
	Type    string   `json:"type"`
	Markets []string `json:"markets"`
}

// NewFeed creates a book feed client for the given websocket endpoint
func NewFeed(url string, logger *logrus.Entry) *Feed {
	return &Feed{
		url:     url,
		logger:  logger,
		books:   make(map[string]*OrderBook),
		markets: make(map[string]struct{}),
	}
}

// Subscribe registers interest in a market's book. Safe to call before or
// after Run; an active connection is re-subscribed immediately.
func (f *Feed) Subscribe(marketID string) error {
	f.subMu.Lock()
	defer f.subMu.Unlock()

	if _, ok := f.markets[marketID]; ok {
		return nil
	}
	f.markets[marketID] = struct{}{}

	if f.conn != nil {
		if err := f.conn.WriteJSON(&subscribeMessage{Type: "subscribe", Markets: []string{marketID}}); err != nil {
			return fmt.Errorf("failed to send subscription: %w", err)
		}
	}
	return nil
}

// Snapshot returns the freshest book for the market
func (f *Feed) Snapshot(marketID string) (*OrderBook, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.books[marketID]
	return b, ok
}

// Run connects and consumes book updates until the context is cancelled,
// reconnecting with growing delays on failure
func (f *Feed) Run(ctx context.Context) error {
	delay := time.Second
	for {
		if err := f.connectAndConsume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.WithError(err).Warn("book feed disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}

func (f *Feed) connectAndConsume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", f.url, err)
	}
	defer conn.Close()

	f.subMu.Lock()
	f.conn = conn
	pending := make([]string, 0, len(f.markets))
	for id := range f.markets {
		pending = append(pending, id)
	}
	f.subMu.Unlock()

	defer func() {
		f.subMu.Lock()
		f.conn = nil
		f.subMu.Unlock()
	}()

	if len(pending) > 0 {
		if err := conn.WriteJSON(&subscribeMessage{Type: "subscribe", Markets: pending}); err != nil {
			return fmt.Errorf("failed to resubscribe: %w", err)
		}
	}

	// Close the socket when the context is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}

		var msg bookMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.WithError(err).Debug("dropping malformed book message")
			continue
		}
		if msg.Type != "book" || msg.MarketID == "" {
			continue
		}

		f.mu.Lock()
		f.books[msg.MarketID] = &OrderBook{
			MarketID:  msg.MarketID,
			Bids:      msg.Bids,
			Asks:      msg.Asks,
			Timestamp: time.Now(),
		}
		f.mu.Unlock()
	}
}
