package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
	"github.com/jai-bhardwaj/trading-backend-sub001/pkg/errors"
)

// PaperBroker simulates broker behavior in-process: submissions are
// accepted immediately and filled asynchronously through the reports
// channel. Failure injection hooks let tests exercise the transient and
// business rejection paths.
type PaperBroker struct {
	logger *zap.SugaredLogger

	mu        sync.Mutex
	positions map[string]Position
	orders    map[string]uuid.UUID // broker order id -> engine order id
	cancelled map[string]bool
	closed    bool

	reports chan ExecutionReport

	// FillDelay postpones the simulated fill; zero fills synchronously in
	// the reporting goroutine.
	FillDelay time.Duration
	// PartialFills splits each fill into two reports when set.
	PartialFills bool
	// RejectSymbols simulates business rejections for the listed symbols.
	RejectSymbols map[string]string
	// FailSubmits makes the next N submissions fail with a timeout.
	FailSubmits int
}

// NewPaperBroker creates a paper broker.
func NewPaperBroker(logger *zap.SugaredLogger) *PaperBroker {
	return &PaperBroker{
		logger:    logger,
		positions: make(map[string]Position),
		orders:    make(map[string]uuid.UUID),
		cancelled: make(map[string]bool),
		reports:   make(chan ExecutionReport, 256),
	}
}

// SubmitOrder accepts the order and schedules simulated fills.
func (b *PaperBroker) SubmitOrder(ctx context.Context, order *model.Order, instrumentToken string) (SubmitResult, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return SubmitResult{}, errors.Transient(fmt.Errorf("broker connection closed"))
	}
	if b.FailSubmits > 0 {
		b.FailSubmits--
		b.mu.Unlock()
		return SubmitResult{}, errors.Wrap(ClassifyCode(CodeTimeout), fmt.Errorf("simulated broker timeout"))
	}
	if reason, ok := b.RejectSymbols[order.Symbol]; ok {
		b.mu.Unlock()
		return SubmitResult{Accepted: false, Reason: reason},
			errors.Wrap(ClassifyCode(CodeInvalidSymbol), fmt.Errorf("symbol %s rejected: %s", order.Symbol, reason))
	}

	brokerOrderID := "paper-" + uuid.NewString()
	b.orders[brokerOrderID] = order.ID
	b.mu.Unlock()

	b.logger.Debugw("paper broker accepted order",
		"order_id", order.ID.String(),
		"broker_order_id", brokerOrderID,
		"token", instrumentToken)

	go b.simulateFills(order, brokerOrderID)

	return SubmitResult{BrokerOrderID: brokerOrderID, Accepted: true}, nil
}

func (b *PaperBroker) simulateFills(order *model.Order, brokerOrderID string) {
	if b.FillDelay > 0 {
		time.Sleep(b.FillDelay)
	}

	b.mu.Lock()
	if b.closed || b.cancelled[brokerOrderID] {
		b.mu.Unlock()
		return
	}
	pos := b.positions[order.Symbol]
	delta := order.Quantity
	if order.Side == model.SideSell {
		delta = delta.Neg()
	}
	pos.Symbol = order.Symbol
	pos.Quantity = pos.Quantity.Add(delta)
	pos.AvgPrice = order.Price
	b.positions[order.Symbol] = pos
	b.mu.Unlock()

	price := order.Price
	if price.IsZero() {
		price = decimal.NewFromInt(100) // synthetic market price
	}

	if b.PartialFills && order.Quantity.GreaterThan(decimal.New(1, 0)) {
		half := order.Quantity.Div(decimal.NewFromInt(2)).Floor()
		b.emit(ExecutionReport{
			OrderID:       order.ID,
			BrokerOrderID: brokerOrderID,
			FillQuantity:  half,
			FillPrice:     price,
			Timestamp:     time.Now(),
		})
		b.emit(ExecutionReport{
			OrderID:       order.ID,
			BrokerOrderID: brokerOrderID,
			FillQuantity:  order.Quantity.Sub(half),
			FillPrice:     price,
			Final:         true,
			Timestamp:     time.Now(),
		})
		return
	}

	b.emit(ExecutionReport{
		OrderID:       order.ID,
		BrokerOrderID: brokerOrderID,
		FillQuantity:  order.Quantity,
		FillPrice:     price,
		Final:         true,
		Timestamp:     time.Now(),
	})
}

// emit sends under the mutex so a concurrent Close cannot close the
// channel mid-send.
func (b *PaperBroker) emit(report ExecutionReport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.reports <- report:
	default:
		b.logger.Warnw("paper broker report channel full, dropping report",
			"order_id", report.OrderID.String())
	}
}

// CancelOrder marks the broker order cancelled; pending simulated fills are
// suppressed.
func (b *PaperBroker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.orders[brokerOrderID]; !ok {
		return errors.NewWithKind(errors.KindBusinessRejection).
			Explain("unknown broker order %s", brokerOrderID)
	}
	b.cancelled[brokerOrderID] = true
	return nil
}

// GetPosition returns the simulated position for a symbol.
func (b *PaperBroker) GetPosition(ctx context.Context, symbol string) (Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions[symbol], nil
}

// GetBalance returns a static simulated balance.
func (b *PaperBroker) GetBalance(ctx context.Context) (Balance, error) {
	return Balance{
		Available: decimal.NewFromInt(1_000_000),
		Total:     decimal.NewFromInt(1_000_000),
	}, nil
}

// Reports streams simulated execution reports.
func (b *PaperBroker) Reports() <-chan ExecutionReport {
	return b.reports
}

// Close stops the broker and closes the report stream.
func (b *PaperBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.reports)
	}
	return nil
}
