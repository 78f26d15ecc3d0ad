// Package risk implements the synchronous pre-submission risk gate and the
// per-symbol exposure accounting it reads from. Gate checks are pure
// functions of the candidate order plus a point-in-time exposure snapshot:
// no I/O, no clocks beyond the snapshot, bounded time.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/config"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

// Deny reason codes surfaced on REJECTED orders.
const (
	CodeMaxPositionSize = "MAX_POSITION_SIZE"
	CodeMaxDailyLoss    = "MAX_DAILY_LOSS"
	CodeOrderRate       = "MAX_ORDERS_PER_MINUTE"
	CodeMaxExposure     = "MAX_TOTAL_EXPOSURE"
)

// Limits are the configured risk boundaries.
type Limits struct {
	MaxPositionSize  decimal.Decimal
	MaxDailyLoss     decimal.Decimal
	MaxOrdersPerMin  int
	MaxTotalExposure decimal.Decimal
}

// LimitsFromConfig parses the decimal limit strings from configuration.
func LimitsFromConfig(cfg config.RiskConfig) (Limits, error) {
	maxPos, err := decimal.NewFromString(cfg.MaxPositionSize)
	if err != nil {
		return Limits{}, fmt.Errorf("invalid risk.max_position_size %q: %w", cfg.MaxPositionSize, err)
	}
	maxLoss, err := decimal.NewFromString(cfg.MaxDailyLoss)
	if err != nil {
		return Limits{}, fmt.Errorf("invalid risk.max_daily_loss %q: %w", cfg.MaxDailyLoss, err)
	}
	maxExp, err := decimal.NewFromString(cfg.MaxTotalExposure)
	if err != nil {
		return Limits{}, fmt.Errorf("invalid risk.max_total_exposure %q: %w", cfg.MaxTotalExposure, err)
	}
	return Limits{
		MaxPositionSize:  maxPos,
		MaxDailyLoss:     maxLoss,
		MaxOrdersPerMin:  cfg.MaxOrdersPerMin,
		MaxTotalExposure: maxExp,
	}, nil
}

// Exposure is the state snapshot a gate check evaluates against.
type Exposure struct {
	// SymbolPosition is the signed net position (in units) for the order's
	// symbol.
	SymbolPosition decimal.Decimal
	// DailyLoss is the user's realized loss so far today.
	DailyLoss decimal.Decimal
	// OrdersLastMinute counts the user's submissions in the trailing minute.
	OrdersLastMinute int
	// TotalExposure is the aggregate notional across all symbols.
	TotalExposure decimal.Decimal
}

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed bool
	Code    string
	Reason  string
}

// Allow is the passing decision.
var Allow = Decision{Allowed: true}

// Deny builds a failing decision.
func Deny(code, reason string) Decision {
	return Decision{Allowed: false, Code: code, Reason: reason}
}

// Gate evaluates risk limits for candidate orders.
type Gate struct {
	limits Limits
}

// NewGate creates a gate with the given limits.
func NewGate(limits Limits) *Gate {
	return &Gate{limits: limits}
}

// Check evaluates, in order: per-symbol position size, aggregate daily
// loss, orders-per-minute rate, and total exposure. The first breached
// limit denies the order. The candidate quantity is netted by side, so a
// sell that reduces a long position never trips the position limit.
func (g *Gate) Check(order *model.Order, ex Exposure) Decision {
	delta := order.Quantity
	if order.Side == model.SideSell {
		delta = delta.Neg()
	}
	candidate := ex.SymbolPosition.Add(delta)
	if candidate.Abs().GreaterThan(g.limits.MaxPositionSize) {
		return Deny(CodeMaxPositionSize, fmt.Sprintf(
			"position %s would exceed max %s for %s",
			candidate, g.limits.MaxPositionSize, order.Symbol))
	}

	if ex.DailyLoss.GreaterThanOrEqual(g.limits.MaxDailyLoss) {
		return Deny(CodeMaxDailyLoss, fmt.Sprintf(
			"daily loss %s at or above max %s", ex.DailyLoss, g.limits.MaxDailyLoss))
	}

	if ex.OrdersLastMinute >= g.limits.MaxOrdersPerMin {
		return Deny(CodeOrderRate, fmt.Sprintf(
			"user %s at %d orders in the last minute (max %d)",
			order.UserID, ex.OrdersLastMinute, g.limits.MaxOrdersPerMin))
	}

	notional := order.Quantity.Mul(order.Price)
	if ex.TotalExposure.Add(notional).GreaterThan(g.limits.MaxTotalExposure) {
		return Deny(CodeMaxExposure, fmt.Sprintf(
			"aggregate exposure %s would exceed max %s",
			ex.TotalExposure.Add(notional), g.limits.MaxTotalExposure))
	}

	return Allow
}
