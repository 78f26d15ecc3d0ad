// Package strategy hosts the registry of strategy processes. The engine
// treats a strategy as an opaque capability that emits signals; it never
// inspects strategy internals.
package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

// Emitter is how a strategy hands signals to the engine.
type Emitter interface {
	Emit(ctx context.Context, sig model.Signal) error
}

// Strategy is the capability the registry supervises. Run blocks until the
// strategy finishes or ctx is cancelled; returning an error triggers a
// supervised restart with backoff.
type Strategy interface {
	Run(ctx context.Context, emitter Emitter) error
}

// HeartbeatReporter receives strategy liveness reports.
type HeartbeatReporter interface {
	Report(processID string, kind model.ProcessKind)
}

// Registry supervises registered strategies keyed by strategy_id. Each
// strategy runs in its own goroutine with restart backoff, so one strategy
// failing never blocks another.
type Registry struct {
	emitter   Emitter
	heartbeat HeartbeatReporter
	backoff   time.Duration
	logger    *zap.Logger

	mu         sync.Mutex
	strategies map[string]Strategy
	running    map[string]context.CancelFunc
	wg         sync.WaitGroup
}

// NewRegistry creates a registry.
func NewRegistry(emitter Emitter, heartbeat HeartbeatReporter, backoff time.Duration, logger *zap.Logger) *Registry {
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &Registry{
		emitter:    emitter,
		heartbeat:  heartbeat,
		backoff:    backoff,
		logger:     logger,
		strategies: make(map[string]Strategy),
		running:    make(map[string]context.CancelFunc),
	}
}

// Register adds a strategy under its ID. Registering a duplicate ID is an
// error; restart the existing one instead.
func (r *Registry) Register(strategyID string, s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.strategies[strategyID]; ok {
		return fmt.Errorf("strategy %s already registered", strategyID)
	}
	r.strategies[strategyID] = s
	return nil
}

// StartAll launches every registered strategy under supervision.
func (r *Registry) StartAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.strategies {
		if _, running := r.running[id]; running {
			continue
		}
		r.launchLocked(ctx, id, s)
	}
}

// Restart relaunches a strategy after the health monitor declared it dead.
func (r *Registry) Restart(ctx context.Context, strategyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, ok := r.running[strategyID]; ok {
		cancel()
		delete(r.running, strategyID)
	}
	if s, ok := r.strategies[strategyID]; ok {
		r.launchLocked(ctx, strategyID, s)
	}
}

// launchLocked starts the supervision loop for one strategy. Caller holds
// r.mu.
func (r *Registry) launchLocked(ctx context.Context, id string, s Strategy) {
	runCtx, cancel := context.WithCancel(ctx)
	r.running[id] = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		log := r.logger.With(zap.String("strategy_id", id))
		backoff := r.backoff

		for {
			if r.heartbeat != nil {
				r.heartbeat.Report(id, model.ProcessStrategy)
			}
			log.Info("strategy started")

			err := s.Run(runCtx, &reportingEmitter{
				inner:     r.emitter,
				heartbeat: r.heartbeat,
				id:        id,
			})

			if runCtx.Err() != nil {
				log.Info("strategy stopped")
				return
			}
			if err != nil {
				log.Error("strategy exited with error, restarting", zap.Error(err))
			} else {
				log.Warn("strategy exited, restarting")
			}

			select {
			case <-runCtx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}()
}

// Stop cancels all running strategies and waits for them.
func (r *Registry) Stop() {
	r.mu.Lock()
	for id, cancel := range r.running {
		cancel()
		delete(r.running, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// reportingEmitter refreshes the strategy heartbeat on every emitted
// signal, so actively trading strategies stay HEALTHY without a separate
// report loop.
type reportingEmitter struct {
	inner     Emitter
	heartbeat HeartbeatReporter
	id        string
}

func (e *reportingEmitter) Emit(ctx context.Context, sig model.Signal) error {
	if e.heartbeat != nil {
		e.heartbeat.Report(e.id, model.ProcessStrategy)
	}
	return e.inner.Emit(ctx, sig)
}
