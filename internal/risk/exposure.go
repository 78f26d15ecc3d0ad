package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

// ExposureBook tracks per-symbol positions, per-user daily loss and
// submission rates. Mutations happen only inside the executor's per-symbol
// critical section, so the internal lock is uncontended on the hot path and
// exists for cross-symbol readers (total exposure, snapshots).
type ExposureBook struct {
	mu        sync.RWMutex
	positions map[string]decimal.Decimal // net position in units, per symbol
	notional  map[string]decimal.Decimal // abs notional per symbol
	dailyLoss map[string]decimal.Decimal // realized loss per user
	submits   map[string][]time.Time     // submission times per user
}

// NewExposureBook creates an empty book.
func NewExposureBook() *ExposureBook {
	return &ExposureBook{
		positions: make(map[string]decimal.Decimal),
		notional:  make(map[string]decimal.Decimal),
		dailyLoss: make(map[string]decimal.Decimal),
		submits:   make(map[string][]time.Time),
	}
}

// SnapshotFor captures the exposure state the gate evaluates for an order.
func (b *ExposureBook) SnapshotFor(order *model.Order) Exposure {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := decimal.Zero
	for _, n := range b.notional {
		total = total.Add(n)
	}

	cutoff := time.Now().Add(-time.Minute)
	count := 0
	for _, ts := range b.submits[order.UserID] {
		if ts.After(cutoff) {
			count++
		}
	}

	return Exposure{
		SymbolPosition:   b.positions[order.Symbol],
		DailyLoss:        b.dailyLoss[order.UserID],
		OrdersLastMinute: count,
		TotalExposure:    total,
	}
}

// RecordSubmit applies an accepted order to the book: position delta,
// notional, and the user's rate window.
func (b *ExposureBook) RecordSubmit(order *model.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delta := order.Quantity
	if order.Side == model.SideSell {
		delta = delta.Neg()
	}
	b.positions[order.Symbol] = b.positions[order.Symbol].Add(delta)
	b.notional[order.Symbol] = b.positions[order.Symbol].Abs().Mul(order.Price)

	now := time.Now()
	cutoff := now.Add(-time.Minute)
	window := b.submits[order.UserID][:0]
	for _, ts := range b.submits[order.UserID] {
		if ts.After(cutoff) {
			window = append(window, ts)
		}
	}
	b.submits[order.UserID] = append(window, now)
}

// RecordLoss adds a realized loss for the user's daily total.
func (b *ExposureBook) RecordLoss(userID string, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dailyLoss[userID] = b.dailyLoss[userID].Add(amount)
}

// ResetDaily clears daily loss accumulators at the session boundary.
func (b *ExposureBook) ResetDaily() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dailyLoss = make(map[string]decimal.Decimal)
}
