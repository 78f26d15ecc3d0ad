// Package broker defines the broker capability the executor submits orders
// through, the provider error taxonomy, and a deterministic paper
// implementation for tests and local runs.
package broker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
	"github.com/jai-bhardwaj/trading-backend-sub001/pkg/errors"
)

// SubmitResult is the synchronous outcome of an order submission.
type SubmitResult struct {
	BrokerOrderID string
	Accepted      bool
	Reason        string
}

// ExecutionReport is an asynchronous fill update from the broker.
type ExecutionReport struct {
	OrderID       uuid.UUID
	BrokerOrderID string
	FillQuantity  decimal.Decimal
	FillPrice     decimal.Decimal
	Final         bool
	Timestamp     time.Time
}

// Position is a broker-side position snapshot.
type Position struct {
	Symbol   string
	Quantity decimal.Decimal
	AvgPrice decimal.Decimal
}

// Balance is a broker-side account balance snapshot.
type Balance struct {
	Available decimal.Decimal
	Total     decimal.Decimal
}

// Broker is the capability the executor depends on. Implementations map
// provider-specific failures onto the engine error taxonomy: timeouts and
// connectivity problems are transient; invalid symbols and insufficient
// funds are business rejections.
type Broker interface {
	SubmitOrder(ctx context.Context, order *model.Order, instrumentToken string) (SubmitResult, error)
	CancelOrder(ctx context.Context, brokerOrderID string) error
	GetPosition(ctx context.Context, symbol string) (Position, error)
	GetBalance(ctx context.Context) (Balance, error)

	// Reports streams asynchronous execution reports. Closed on Close.
	Reports() <-chan ExecutionReport

	Close() error
}

// Provider error codes shared across broker adapters.
const (
	CodeTimeout           = "TIMEOUT"
	CodeNetwork           = "NETWORK_ERROR"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInvalidSymbol     = "INVALID_SYMBOL"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeMarketClosed      = "MARKET_CLOSED"
)

// ClassifyCode maps a provider error code to the engine taxonomy.
func ClassifyCode(code string) errors.Kind {
	switch code {
	case CodeTimeout, CodeNetwork, CodeRateLimited:
		return errors.KindTransient
	case CodeInvalidSymbol, CodeInsufficientFunds, CodeMarketClosed:
		return errors.KindBusinessRejection
	default:
		return errors.KindFatal
	}
}

// Routing resolves exchange symbols to provider instrument tokens.
type Routing struct {
	tokens map[string]string
}

// NewRouting builds a routing table. A nil or empty table passes symbols
// through unchanged.
func NewRouting(tokens map[string]string) *Routing {
	return &Routing{tokens: tokens}
}

// Resolve returns the instrument token for a symbol. Unknown symbols in a
// non-empty table are a business rejection: the broker would refuse them.
func (r *Routing) Resolve(symbol string) (string, error) {
	if len(r.tokens) == 0 {
		return symbol, nil
	}
	token, ok := r.tokens[symbol]
	if !ok {
		return "", errors.NewWithKind(errors.KindBusinessRejection).
			Explain("no instrument token mapped for symbol %s", symbol)
	}
	return token, nil
}
