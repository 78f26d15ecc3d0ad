package audit

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

// Writer decouples audit persistence from the execution hot path. Record
// hands a snapshot to a buffered channel and returns immediately; a
// background goroutine drains it into the store. On overflow the snapshot
// is logged and dropped rather than blocking an executing worker.
type Writer struct {
	store  *Store
	logger *zap.Logger
	ch     chan *model.Order

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewWriter creates a writer with the given buffer size.
func NewWriter(store *Store, bufferSize int, logger *zap.Logger) *Writer {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Writer{
		store:  store,
		logger: logger,
		ch:     make(chan *model.Order, bufferSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the drain loop.
func (w *Writer) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				w.drainRemaining()
				return
			case <-w.stopCh:
				w.drainRemaining()
				return
			case order := <-w.ch:
				w.persist(order)
			}
		}
	}()
}

// Record enqueues an order snapshot for persistence. Never blocks.
func (w *Writer) Record(order *model.Order) {
	snapshot := *order
	select {
	case w.ch <- &snapshot:
	default:
		w.logger.Warn("audit buffer full, dropping snapshot",
			zap.String("order_id", order.ID.String()),
			zap.String("status", string(order.Status)))
	}
}

func (w *Writer) persist(order *model.Order) {
	if err := w.store.Append(context.Background(), order); err != nil {
		w.logger.Error("failed to persist audit record",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
	}
}

func (w *Writer) drainRemaining() {
	for {
		select {
		case order := <-w.ch:
			w.persist(order)
		default:
			return
		}
	}
}

// Stop flushes buffered snapshots and stops the drain loop.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.done
}
