package signal

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/config"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/queue"
)

// Ingestor converts consumed signals into orders and hands them to the
// queue manager. It is the only component that turns a Signal into an
// Order, so the signal is consumed exactly once.
type Ingestor struct {
	manager *queue.Manager
	cfg     config.EngineConfig
	logger  *zap.Logger
}

// NewIngestor creates an ingestor bound to the queue manager.
func NewIngestor(manager *queue.Manager, cfg config.EngineConfig, logger *zap.Logger) *Ingestor {
	return &Ingestor{manager: manager, cfg: cfg, logger: logger}
}

// Handle implements the consumer Handler: convert, assign the urgency
// deadline for stop-loss work, and enqueue.
func (i *Ingestor) Handle(ctx context.Context, sig model.Signal, entryID string) error {
	if sig.Quantity.IsZero() || sig.Quantity.IsNegative() {
		i.logger.Warn("dropping signal with non-positive quantity",
			zap.String("strategy_id", sig.StrategyID),
			zap.String("symbol", sig.Symbol))
		return nil
	}

	userID := sig.Metadata["user_id"]
	if userID == "" {
		userID = i.cfg.DefaultUserID
	}

	order := model.OrderFromSignal(sig, userID, entryID,
		i.cfg.CriticalConfidence, i.cfg.HighConfidence)

	var deadline *time.Time
	if order.OrderType == model.OrderTypeStopLoss {
		d := time.Now().Add(i.cfg.StopLossDeadline)
		deadline = &d
	}

	item, err := i.manager.Enqueue(order, deadline)
	if err != nil {
		return fmt.Errorf("failed to enqueue order for signal %s: %w", entryID, err)
	}

	i.logger.Debug("signal converted and enqueued",
		zap.String("entry_id", entryID),
		zap.String("order_id", order.ID.String()),
		zap.String("item_id", item.ID.String()),
		zap.String("priority", string(order.Priority)))
	return nil
}
