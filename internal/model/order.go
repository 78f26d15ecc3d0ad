package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Priority is the dispatch tier of an order.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityNormal   Priority = "NORMAL"
)

// Rank maps a tier to its dequeue precedence, lower first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	default:
		return 2
	}
}

// OrderStatus is a state in the order lifecycle.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusSubmitted       OrderStatus = "SUBMITTED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusError           OrderStatus = "ERROR"
)

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusRejected, StatusCancelled, StatusError:
		return true
	}
	return false
}

// validTransitions encodes the order state machine. ERROR is reachable from
// any non-terminal state and handled in CanTransition.
var validTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:         {StatusSubmitted, StatusRejected, StatusCancelled},
	StatusSubmitted:       {StatusPartiallyFilled, StatusFilled, StatusRejected, StatusCancelled},
	StatusPartiallyFilled: {StatusPartiallyFilled, StatusFilled, StatusCancelled},
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusError {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Side is the trade direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType distinguishes market, limit and stop-loss orders.
type OrderType string

const (
	OrderTypeMarket   OrderType = "MARKET"
	OrderTypeLimit    OrderType = "LIMIT"
	OrderTypeStopLoss OrderType = "STOP_LOSS"
)

// Order is a concrete, trackable execution request derived from a signal.
// Owned exclusively by the engine until it reaches a terminal state and
// mutated only by the worker holding it.
type Order struct {
	ID             uuid.UUID       `json:"id"`
	UserID         string          `json:"user_id"`
	StrategyID     string          `json:"strategy_id"`
	SignalID       string          `json:"signal_id"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	Quantity       decimal.Decimal `json:"quantity"`
	OrderType      OrderType       `json:"order_type"`
	Price          decimal.Decimal `json:"price"`
	Priority       Priority        `json:"priority"`
	Status         OrderStatus     `json:"status"`
	BrokerOrderID  *string         `json:"broker_order_id,omitempty"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	FilledPrice    decimal.Decimal `json:"filled_price"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
}

// Transition moves the order to the given status, enforcing the state
// machine. Terminal states reject all further transitions.
func (o *Order) Transition(to OrderStatus) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("invalid order transition %s -> %s for order %s", o.Status, to, o.ID)
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return nil
}

// ApplyFill records an execution report. FilledQuantity never exceeds
// Quantity; a full fill moves the order to FILLED.
func (o *Order) ApplyFill(qty, price decimal.Decimal) error {
	if o.Status.IsTerminal() {
		return fmt.Errorf("fill on terminal order %s (%s)", o.ID, o.Status)
	}
	total := o.FilledQuantity.Add(qty)
	if total.GreaterThan(o.Quantity) {
		return fmt.Errorf("fill overflow on order %s: %s > %s", o.ID, total, o.Quantity)
	}

	next := StatusPartiallyFilled
	if total.Equal(o.Quantity) {
		next = StatusFilled
	}
	if err := o.Transition(next); err != nil {
		return err
	}
	o.FilledQuantity = total
	o.FilledPrice = price
	return nil
}

// Fail forces the order into ERROR with the given message.
func (o *Order) Fail(msg string) {
	o.Status = StatusError
	o.ErrorMessage = &msg
	o.UpdatedAt = time.Now()
}

// OrderFromSignal converts an ingested signal into a new PENDING order.
// Stop-loss signals and high-confidence signals are promoted to the
// priority lanes so they are dispatched ahead of routine flow.
func OrderFromSignal(sig Signal, userID, signalID string, criticalConf, highConf float64) *Order {
	now := time.Now()

	priority := PriorityNormal
	orderType := OrderTypeLimit
	switch {
	case sig.IsStopLoss():
		priority = PriorityCritical
		orderType = OrderTypeStopLoss
	case sig.Confidence >= criticalConf:
		priority = PriorityCritical
	case sig.Confidence >= highConf:
		priority = PriorityHigh
	}
	if sig.Price.IsZero() {
		orderType = OrderTypeMarket
	}

	return &Order{
		ID:             uuid.New(),
		UserID:         userID,
		StrategyID:     sig.StrategyID,
		SignalID:       signalID,
		Symbol:         sig.Symbol,
		Side:           Side(sig.SignalType),
		Quantity:       sig.Quantity,
		OrderType:      orderType,
		Price:          sig.Price,
		Priority:       priority,
		Status:         StatusPending,
		FilledQuantity: decimal.Zero,
		FilledPrice:    decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
