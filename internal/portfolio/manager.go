package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pmgate/internal/store"
)

// ErrInsufficientCapital is returned when a fill would invest more than the
// available capital
var ErrInsufficientCapital = errors.New("portfolio: insufficient available capital")

// ErrPositionNotFound is returned when resolving a market with no open
// position
var ErrPositionNotFound = errors.New("portfolio: position not found")

// Manager owns the live portfolio state. All mutation happens under one
// mutex; readers get consistent copies via Snapshot. The engine serializes
// sizing and commit through this owner so no two cycles can commit a stake
// against the same available capital.
type Manager struct {
	mu     sync.RWMutex
	state  State
	store  store.Store
	logger *logrus.Entry
}

// NewManager creates a portfolio manager with the given starting bankroll
func NewManager(initialBankrollUSD float64, st store.Store, logger *logrus.Entry) *Manager {
	return &Manager{
		state: State{
			BankrollUSD:      initialBankrollUSD,
			Positions:        make(map[string]*Position),
			CategoryExposure: make(map[string]float64),
			DailyAnchor:      time.Now().UTC().Format("2006-01-02"),
			UpdatedAt:        time.Now(),
		},
		store:  st,
		logger: logger,
	}
}

// Snapshot returns a consistent copy of the current state
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// ApplyFill commits a confirmed fill against the portfolio. Cost is the
// capital actually invested (shares * average fill price), never the
// originally intended stake.
func (m *Manager) ApplyFill(ctx context.Context, marketID, category string, side Side, shares, avgPrice float64) error {
	if shares <= 0 || avgPrice <= 0 {
		return fmt.Errorf("portfolio: invalid fill shares=%f price=%f", shares, avgPrice)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked()

	cost := shares * avgPrice
	if cost > m.state.BankrollUSD-m.state.TotalInvestedUSD {
		return fmt.Errorf("%w: cost %.2f, available %.2f", ErrInsufficientCapital, cost, m.state.AvailableCapitalUSD())
	}

	pos, ok := m.state.Positions[marketID]
	if !ok {
		pos = &Position{
			MarketID: marketID,
			Category: category,
			Side:     side,
			OpenedAt: time.Now(),
		}
		m.state.Positions[marketID] = pos
	}

	total := pos.Shares + shares
	pos.AvgPrice = (pos.AvgPrice*pos.Shares + avgPrice*shares) / total
	pos.Shares = total
	pos.CostUSD += cost
	pos.MarkPrice = avgPrice

	m.state.TotalInvestedUSD += cost
	m.state.DailyExposureUSD += cost
	m.state.CategoryExposure[category] += cost
	m.state.UpdatedAt = time.Now()

	m.persistLocked(ctx)
	return nil
}

// MarkPrice updates the mark used for unrealized P&L. Unknown markets are
// ignored.
func (m *Manager) MarkPrice(marketID string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pos, ok := m.state.Positions[marketID]; ok {
		pos.MarkPrice = price
		m.state.UpdatedAt = time.Now()
	}
}

// Resolve closes a position at the given payout per share (1 for a win, 0
// for a loss for binary outcome tokens) and realizes its P&L.
func (m *Manager) Resolve(ctx context.Context, marketID string, payoutPerShare float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked()

	pos, ok := m.state.Positions[marketID]
	if !ok {
		return 0, ErrPositionNotFound
	}

	proceeds := pos.Shares * payoutPerShare
	realized := proceeds - pos.CostUSD

	m.state.BankrollUSD += realized
	m.state.TotalInvestedUSD -= pos.CostUSD
	m.state.CategoryExposure[pos.Category] -= pos.CostUSD
	if m.state.CategoryExposure[pos.Category] <= 0 {
		delete(m.state.CategoryExposure, pos.Category)
	}
	if realized < 0 {
		m.state.DailyRealizedLoss += -realized
	}
	delete(m.state.Positions, marketID)
	m.state.UpdatedAt = time.Now()

	m.persistLocked(ctx)
	return realized, nil
}

// rolloverLocked resets the daily counters when the UTC date has advanced.
// Caller must hold the write lock.
func (m *Manager) rolloverLocked() {
	today := time.Now().UTC().Format("2006-01-02")
	if m.state.DailyAnchor != today {
		m.state.DailyAnchor = today
		m.state.DailyRealizedLoss = 0
		m.state.DailyExposureUSD = 0
	}
}

// persistLocked writes the current state to the store. Persistence failures
// are logged, not fatal: the in-memory state remains authoritative.
func (m *Manager) persistLocked(ctx context.Context) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveJSON(ctx, store.KeyPortfolioState, &m.state); err != nil {
		m.logger.WithError(err).Warn("failed to persist portfolio state")
	}
}

// Restore loads persisted state, replacing the starting bankroll. A missing
// key is not an error; any other failure is surfaced so the engine can take
// its conservative startup posture.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	var persisted State
	err := m.store.LoadJSON(ctx, store.KeyPortfolioState, &persisted)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("portfolio: restore failed: %w", err)
	}

	if persisted.Positions == nil {
		persisted.Positions = make(map[string]*Position)
	}
	if persisted.CategoryExposure == nil {
		persisted.CategoryExposure = make(map[string]float64)
	}

	m.mu.Lock()
	m.state = persisted
	m.rolloverLocked()
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"bankroll_usd":   persisted.BankrollUSD,
		"open_positions": len(persisted.Positions),
	}).Info("portfolio state restored")
	return nil
}
