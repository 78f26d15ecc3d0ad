package strategy

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/config"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/health"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

type captureEmitter struct {
	mu      sync.Mutex
	signals []model.Signal
}

func (e *captureEmitter) Emit(ctx context.Context, sig model.Signal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signals = append(e.signals, sig)
	return nil
}

func (e *captureEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.signals)
}

type captureHeartbeat struct {
	mu      sync.Mutex
	reports map[string]int
}

func (h *captureHeartbeat) Report(processID string, kind model.ProcessKind) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reports == nil {
		h.reports = make(map[string]int)
	}
	h.reports[processID]++
}

func (h *captureHeartbeat) countFor(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reports[id]
}

// oneShotStrategy emits one signal per run, then blocks until cancelled.
type oneShotStrategy struct {
	mu   sync.Mutex
	runs int
	fail bool
}

func (s *oneShotStrategy) Run(ctx context.Context, emitter Emitter) error {
	s.mu.Lock()
	s.runs++
	fail := s.fail
	s.mu.Unlock()

	if err := emitter.Emit(ctx, model.Signal{
		StrategyID: "test-strategy",
		Symbol:     "INFY",
		SignalType: model.SignalBuy,
		Quantity:   decimal.NewFromInt(1),
		Timestamp:  time.Now(),
	}); err != nil {
		return err
	}
	if fail {
		return fmt.Errorf("strategy crashed")
	}
	<-ctx.Done()
	return nil
}

func (s *oneShotStrategy) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry(&captureEmitter{}, nil, time.Millisecond, zap.NewNop())
	require.NoError(t, r.Register("s1", &oneShotStrategy{}))
	assert.Error(t, r.Register("s1", &oneShotStrategy{}))
}

func TestStartAllRunsStrategiesAndReportsHeartbeats(t *testing.T) {
	emitter := &captureEmitter{}
	hb := &captureHeartbeat{}
	r := NewRegistry(emitter, hb, time.Millisecond, zap.NewNop())

	require.NoError(t, r.Register("s1", &oneShotStrategy{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartAll(ctx)

	require.Eventually(t, func() bool {
		return emitter.count() >= 1
	}, time.Second, 5*time.Millisecond)

	// Emitting refreshes the strategy heartbeat.
	assert.GreaterOrEqual(t, hb.countFor("s1"), 2)
	r.Stop()
}

func TestCrashedStrategyRestartsWithBackoff(t *testing.T) {
	emitter := &captureEmitter{}
	s := &oneShotStrategy{fail: true}
	r := NewRegistry(emitter, nil, time.Millisecond, zap.NewNop())
	require.NoError(t, r.Register("s1", s))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartAll(ctx)

	require.Eventually(t, func() bool {
		return s.runCount() >= 3
	}, time.Second, 5*time.Millisecond, "supervisor keeps restarting the failing strategy")
	r.Stop()
}

func TestStopCancelsRunningStrategies(t *testing.T) {
	s := &oneShotStrategy{}
	r := NewRegistry(&captureEmitter{}, nil, time.Millisecond, zap.NewNop())
	require.NoError(t, r.Register("s1", s))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartAll(ctx)

	require.Eventually(t, func() bool {
		return s.runCount() == 1
	}, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestRestartRelaunches(t *testing.T) {
	s := &oneShotStrategy{}
	r := NewRegistry(&captureEmitter{}, nil, time.Millisecond, zap.NewNop())
	require.NoError(t, r.Register("s1", s))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartAll(ctx)

	require.Eventually(t, func() bool {
		return s.runCount() == 1
	}, time.Second, 5*time.Millisecond)

	r.Restart(ctx, "s1")
	require.Eventually(t, func() bool {
		return s.runCount() == 2
	}, time.Second, 5*time.Millisecond)
	r.Stop()
}

func TestHungStrategyRestartedByMonitor(t *testing.T) {
	monitor := health.NewMonitor(config.HealthConfig{
		SweepInterval:     10 * time.Millisecond,
		DegradedThreshold: 20 * time.Millisecond,
		DeadThreshold:     40 * time.Millisecond,
	}, zap.NewNop())

	s := &oneShotStrategy{}
	r := NewRegistry(&captureEmitter{}, monitor, time.Millisecond, zap.NewNop())
	require.NoError(t, r.Register("s1", s))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor.OnDead(model.ProcessStrategy, func(processID string) {
		r.Restart(ctx, processID)
	})
	monitor.Start(ctx)
	defer monitor.Stop()

	r.StartAll(ctx)

	// The strategy wedges after one emit without returning from Run. Stale
	// heartbeats get it declared dead and relaunched.
	require.Eventually(t, func() bool {
		return s.runCount() >= 2
	}, 2*time.Second, 10*time.Millisecond)
	r.Stop()
}
