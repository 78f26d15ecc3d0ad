package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalType is the direction a strategy recommends.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)

// Signal is a strategy's recommendation to trade. Immutable once emitted;
// the queue manager converts it into an Order.
type Signal struct {
	StrategyID string            `json:"strategy_id"`
	Symbol     string            `json:"symbol"`
	SignalType SignalType        `json:"signal_type"`
	Confidence float64           `json:"confidence"`
	Price      decimal.Decimal   `json:"price"`
	Quantity   decimal.Decimal   `json:"quantity"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// IsStopLoss reports whether the emitting strategy flagged the signal as a
// stop-loss exit, which forces CRITICAL priority.
func (s *Signal) IsStopLoss() bool {
	return s.Metadata["stop_loss"] == "true"
}
