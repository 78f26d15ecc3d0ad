// Package executor validates orders against the risk gate, routes them to
// the broker capability, and maps broker outcomes onto the order state
// machine. All mutation of an order and its symbol's exposure happens
// inside a per-symbol critical section.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/audit"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/broker"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/risk"
	"github.com/jai-bhardwaj/trading-backend-sub001/pkg/errors"
)

// Notifier is the slice of the notification router the executor needs.
type Notifier interface {
	Publish(event model.NotificationEvent)
}

// Executor drives a single work item through risk check, broker submission
// and state transitions.
type Executor struct {
	broker        broker.Broker
	routing       *broker.Routing
	gate          *risk.Gate
	exposure      *risk.ExposureBook
	auditor       *audit.Writer
	notifier      Notifier
	orders        *OrderStore
	locks         *symbolLocks
	submitTimeout time.Duration
	logger        *zap.Logger

	mu     sync.Mutex
	paused map[string]bool // strategies halted after a fatal failure
}

// New creates an executor. auditor may be nil when no durable store is
// configured.
func New(
	b broker.Broker,
	routing *broker.Routing,
	gate *risk.Gate,
	exposure *risk.ExposureBook,
	auditor *audit.Writer,
	notifier Notifier,
	orders *OrderStore,
	submitTimeout time.Duration,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		broker:        b,
		routing:       routing,
		gate:          gate,
		exposure:      exposure,
		auditor:       auditor,
		notifier:      notifier,
		orders:        orders,
		locks:         newSymbolLocks(),
		submitTimeout: submitTimeout,
		logger:        logger,
		paused:        make(map[string]bool),
	}
}

// Execute processes one work item. A nil return means the item is resolved
// (possibly as a terminal rejection) and must be acked; a non-nil return is
// retryable and must be nacked by the caller.
func (e *Executor) Execute(ctx context.Context, item *model.WorkItem) error {
	if item.Kind == model.WorkCancel {
		return e.cancel(ctx, item)
	}

	order := item.Order

	unlock := e.locks.acquire(order.Symbol)
	defer unlock()

	// Redeliveries of already-resolved work are acked without side effects.
	if order.Status.IsTerminal() {
		return nil
	}
	e.orders.Put(order)

	if e.isPaused(order.StrategyID) {
		e.reject(order, "STRATEGY_PAUSED",
			fmt.Sprintf("strategy %s paused pending acknowledgement", order.StrategyID))
		return nil
	}

	// Risk gate: a denial is terminal before any broker contact.
	decision := e.gate.Check(order, e.exposure.SnapshotFor(order))
	if !decision.Allowed {
		e.reject(order, decision.Code, decision.Reason)
		return nil
	}

	token, err := e.routing.Resolve(order.Symbol)
	if err != nil {
		e.reject(order, broker.CodeInvalidSymbol, err.Error())
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, e.submitTimeout)
	defer cancel()

	result, err := e.broker.SubmitOrder(sctx, order, token)
	if err != nil {
		switch errors.KindOf(err) {
		case errors.KindTransient:
			return errors.Transient(err).Explain(
				"broker submit failed for order %s, will retry", order.ID)
		case errors.KindBusinessRejection:
			e.reject(order, "BROKER_REJECTED", err.Error())
			return nil
		default:
			e.fail(order, err)
			return nil
		}
	}

	if !result.Accepted {
		e.reject(order, "BROKER_REJECTED", result.Reason)
		return nil
	}

	if err := order.Transition(model.StatusSubmitted); err != nil {
		e.fail(order, err)
		return nil
	}
	order.BrokerOrderID = &result.BrokerOrderID
	e.exposure.RecordSubmit(order)
	e.record(order)
	e.notify(order, "order.submitted", model.SeverityNormal, nil)

	e.logger.Info("order submitted",
		zap.String("order_id", order.ID.String()),
		zap.String("broker_order_id", result.BrokerOrderID),
		zap.String("symbol", order.Symbol),
		zap.String("priority", string(order.Priority)))
	return nil
}

// cancel processes a cancellation control item. Cancelling an order that
// already reached a terminal state is a no-op resolved with a warning
// notification.
func (e *Executor) cancel(ctx context.Context, item *model.WorkItem) error {
	target := e.orders.Get(item.Order.ID)
	if target == nil {
		target = item.Order
	}

	unlock := e.locks.acquire(target.Symbol)
	defer unlock()

	if target.Status.IsTerminal() {
		e.orders.Remove(target.ID)
		e.notify(target, "order.cancel_rejected", model.SeverityWarning, map[string]string{
			"reason": fmt.Sprintf("order already %s", target.Status),
		})
		return nil
	}

	if target.Status == model.StatusSubmitted || target.Status == model.StatusPartiallyFilled {
		if target.BrokerOrderID != nil {
			cctx, cancel := context.WithTimeout(ctx, e.submitTimeout)
			defer cancel()
			if err := e.broker.CancelOrder(cctx, *target.BrokerOrderID); err != nil {
				if errors.IsTransient(err) {
					return errors.Transient(err).Explain(
						"broker cancel failed for order %s, will retry", target.ID)
				}
				// The broker no longer knows the order; resolve locally.
				e.logger.Warn("broker cancel rejected, cancelling locally",
					zap.String("order_id", target.ID.String()), zap.Error(err))
			}
		}
	}

	if err := target.Transition(model.StatusCancelled); err != nil {
		e.notify(target, "order.cancel_rejected", model.SeverityWarning, map[string]string{
			"reason": err.Error(),
		})
		return nil
	}
	e.record(target)
	e.orders.Remove(target.ID)
	// Partial fills stay on the order as the final fill record.
	e.notify(target, "order.cancelled", model.SeverityNormal, map[string]string{
		"filled_quantity": target.FilledQuantity.String(),
	})
	return nil
}

// Run consumes asynchronous execution reports from the broker and applies
// them to tracked orders until the stream closes or ctx is cancelled.
func (e *Executor) Run(ctx context.Context) {
	reports := e.broker.Reports()
	for {
		select {
		case <-ctx.Done():
			return
		case report, ok := <-reports:
			if !ok {
				return
			}
			e.applyReport(report)
		}
	}
}

func (e *Executor) applyReport(report broker.ExecutionReport) {
	order := e.orders.Get(report.OrderID)
	if order == nil {
		e.logger.Warn("execution report for unknown order",
			zap.String("order_id", report.OrderID.String()))
		return
	}

	unlock := e.locks.acquire(order.Symbol)
	defer unlock()

	if order.Status.IsTerminal() {
		return
	}

	if err := order.ApplyFill(report.FillQuantity, report.FillPrice); err != nil {
		e.logger.Error("failed to apply fill",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		return
	}
	e.record(order)

	if order.Status == model.StatusFilled {
		e.notify(order, "order.filled", model.SeverityNormal, map[string]string{
			"filled_quantity": order.FilledQuantity.String(),
			"filled_price":    order.FilledPrice.String(),
		})
		e.orders.Remove(order.ID)
	} else {
		e.notify(order, "order.partially_filled", model.SeverityNormal, map[string]string{
			"filled_quantity": order.FilledQuantity.String(),
		})
	}
}

// reject resolves the order as REJECTED with a reason code.
func (e *Executor) reject(order *model.Order, code, reason string) {
	msg := code + ": " + reason
	if err := order.Transition(model.StatusRejected); err != nil {
		e.logger.Error("failed to reject order",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		return
	}
	order.ErrorMessage = &msg
	e.record(order)
	e.orders.Remove(order.ID)
	e.notify(order, "order.rejected", model.SeverityWarning, map[string]string{
		"code":   code,
		"reason": reason,
	})
	e.logger.Warn("order rejected",
		zap.String("order_id", order.ID.String()),
		zap.String("code", code),
		zap.String("reason", reason))
}

// fail forces the order to ERROR, raises a CRITICAL notification and pauses
// the strategy until an operator resumes it.
func (e *Executor) fail(order *model.Order, cause error) {
	order.Fail(cause.Error())
	e.record(order)
	e.orders.Remove(order.ID)

	e.mu.Lock()
	e.paused[order.StrategyID] = true
	e.mu.Unlock()

	e.notify(order, "order.error", model.SeverityCritical, map[string]string{
		"error":    cause.Error(),
		"strategy": order.StrategyID,
	})
	e.logger.Error("order forced to ERROR, strategy paused",
		zap.String("order_id", order.ID.String()),
		zap.String("strategy_id", order.StrategyID),
		zap.Error(cause))
}

func (e *Executor) isPaused(strategyID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused[strategyID]
}

// Resume lifts the submission pause for a strategy after operator
// acknowledgement.
func (e *Executor) Resume(strategyID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.paused, strategyID)
}

// Lookup returns the tracked live order for id, or nil once the order has
// reached a terminal state.
func (e *Executor) Lookup(id uuid.UUID) *model.Order {
	return e.orders.Get(id)
}

func (e *Executor) record(order *model.Order) {
	if e.auditor != nil {
		e.auditor.Record(order)
	}
}

func (e *Executor) notify(order *model.Order, eventType string, severity model.Severity, extra map[string]string) {
	if e.notifier == nil {
		return
	}
	payload := map[string]string{
		"order_id": order.ID.String(),
		"symbol":   order.Symbol,
		"status":   string(order.Status),
	}
	for k, v := range extra {
		payload[k] = v
	}
	e.notifier.Publish(model.NewNotification(order.UserID, eventType, severity, payload))
}
