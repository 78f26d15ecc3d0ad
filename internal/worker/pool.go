// Package worker runs the fixed pool of executors that pull work items off
// the queue manager one at a time and drive them through the order
// executor.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/queue"
	"github.com/jai-bhardwaj/trading-backend-sub001/pkg/errors"
)

// Executor is what a worker invokes for each item.
type Executor interface {
	Execute(ctx context.Context, item *model.WorkItem) error
}

// HeartbeatReporter receives liveness reports from workers.
type HeartbeatReporter interface {
	Report(processID string, kind model.ProcessKind)
}

// AuditRecorder persists order snapshots from the pool's failure paths. May
// be nil when no durable store is configured.
type AuditRecorder interface {
	Record(order *model.Order)
}

// Pool is a fixed-size set of workers. Each worker processes one item to
// completion; there is no work stealing across in-flight items.
type Pool struct {
	size        int
	manager     *queue.Manager
	exec        Executor
	heartbeat   HeartbeatReporter
	notifier    queue.Notifier
	auditor     AuditRecorder
	idleBackoff time.Duration
	logger      *zap.SugaredLogger

	busy    atomic.Int64
	stopCh  chan struct{}
	stopped bool
	stopMu  sync.Mutex
	wg      sync.WaitGroup
}

// NewPool creates a pool of size workers.
func NewPool(size int, manager *queue.Manager, exec Executor, heartbeat HeartbeatReporter, notifier queue.Notifier, auditor AuditRecorder, idleBackoff time.Duration, logger *zap.SugaredLogger) *Pool {
	if idleBackoff <= 0 {
		idleBackoff = 50 * time.Millisecond
	}
	return &Pool{
		size:        size,
		manager:     manager,
		exec:        exec,
		heartbeat:   heartbeat,
		notifier:    notifier,
		auditor:     auditor,
		idleBackoff: idleBackoff,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		id := fmt.Sprintf("worker-%d", i)
		p.wg.Add(1)
		go p.runWorker(ctx, id)
	}
	p.logger.Infow("worker pool started", "size", p.size)
}

// Stop signals the workers and waits for in-flight work to finish.
func (p *Pool) Stop() {
	p.stopMu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.stopMu.Unlock()
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id string) {
	defer p.wg.Done()
	log := p.logger.With("worker_id", id)
	log.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopped")
			return
		case <-p.stopCh:
			log.Info("worker stopped")
			return
		default:
		}

		if p.heartbeat != nil {
			p.heartbeat.Report(id, model.ProcessWorker)
		}

		item := p.manager.Dequeue(id)
		if item == nil {
			// Backpressure is queue depth; an idle worker just waits.
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-time.After(p.idleBackoff):
			}
			continue
		}

		p.busy.Add(1)
		p.process(ctx, id, item, log)
		p.busy.Add(-1)
	}
}

// process runs one item. Transient failures are nacked for redelivery;
// anything unrecoverable, including a panic, resolves the order as ERROR
// and acks the item so it is never retried automatically.
func (p *Pool) process(ctx context.Context, id string, item *model.WorkItem, log *zap.SugaredLogger) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("worker panic recovered",
				"item_id", item.ID.String(),
				"order_id", item.Order.ID.String(),
				"panic", r,
				"stack", string(debug.Stack()))
			item.Order.Fail(fmt.Sprintf("panic during execution: %v", r))
			p.record(item.Order)
			p.manager.Ack(item)
			if p.notifier != nil {
				p.notifier.Publish(model.NewNotification(item.Order.UserID, "order.error",
					model.SeverityCritical, map[string]string{
						"order_id": item.Order.ID.String(),
						"error":    fmt.Sprintf("%v", r),
					}))
			}
		}
	}()

	err := p.exec.Execute(ctx, item)
	if err == nil {
		p.manager.Ack(item)
		return
	}

	if errors.IsTransient(err) {
		log.Warnw("transient execution failure, nacking",
			"item_id", item.ID.String(),
			"order_id", item.Order.ID.String(),
			"attempt", item.AttemptCount,
			"error", err)
		p.manager.Nack(item, err.Error())
		return
	}

	// Non-transient errors out of the executor are unexpected; resolve the
	// order rather than spinning on retries.
	log.Errorw("unrecoverable execution failure",
		"item_id", item.ID.String(),
		"order_id", item.Order.ID.String(),
		"error", err)
	item.Order.Fail(err.Error())
	p.record(item.Order)
	p.manager.Ack(item)
	if p.notifier != nil {
		p.notifier.Publish(model.NewNotification(item.Order.UserID, "order.error",
			model.SeverityCritical, map[string]string{
				"order_id": item.Order.ID.String(),
				"error":    err.Error(),
			}))
	}
}

func (p *Pool) record(order *model.Order) {
	if p.auditor != nil {
		p.auditor.Record(order)
	}
}

// Stats reports pool utilization for the operational surface.
type Stats struct {
	Size int   `json:"size"`
	Busy int64 `json:"busy"`
}

// Snapshot returns current utilization.
func (p *Pool) Snapshot() Stats {
	return Stats{Size: p.size, Busy: p.busy.Load()}
}
