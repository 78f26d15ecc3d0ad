// Package health tracks liveness of strategy processes and workers and
// invokes restart policies when heartbeats go stale.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/config"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

// RestartPolicy is invoked once when a process is declared DEAD.
type RestartPolicy func(processID string)

// Monitor owns the heartbeat table. Reporting processes update their
// record; a background sweep classifies staleness and fires policies.
type Monitor struct {
	cfg    config.HealthConfig
	logger *zap.Logger

	mu       sync.RWMutex
	records  map[string]*model.HeartbeatRecord
	policies map[model.ProcessKind]RestartPolicy

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewMonitor creates a monitor.
func NewMonitor(cfg config.HealthConfig, logger *zap.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		logger:   logger,
		records:  make(map[string]*model.HeartbeatRecord),
		policies: make(map[model.ProcessKind]RestartPolicy),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnDead registers the restart policy for a process kind.
func (m *Monitor) OnDead(kind model.ProcessKind, policy RestartPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[kind] = policy
}

// Report updates the heartbeat for a process, creating the record on first
// contact. A report from a DEGRADED or DEAD process revives it.
func (m *Monitor) Report(processID string, kind model.ProcessKind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[processID]
	if !ok {
		rec = &model.HeartbeatRecord{ProcessID: processID, Kind: kind}
		m.records[processID] = rec
	}
	rec.LastSeen = time.Now()
	rec.Status = model.ProcessHealthy
}

// Start launches the sweep loop.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

// sweep reclassifies records and fires restart policies for newly dead
// processes. Policies run outside the lock.
func (m *Monitor) sweep() {
	now := time.Now()
	type deadProcess struct {
		id   string
		kind model.ProcessKind
	}
	var newlyDead []deadProcess

	m.mu.Lock()
	for id, rec := range m.records {
		age := now.Sub(rec.LastSeen)
		switch {
		case age > m.cfg.DeadThreshold:
			if rec.Status != model.ProcessDead {
				rec.Status = model.ProcessDead
				newlyDead = append(newlyDead, deadProcess{id: id, kind: rec.Kind})
			}
		case age > m.cfg.DegradedThreshold:
			if rec.Status == model.ProcessHealthy {
				rec.Status = model.ProcessDegraded
				m.logger.Warn("process degraded",
					zap.String("process_id", id),
					zap.Duration("last_seen_age", age))
			}
		}
	}
	policies := make(map[model.ProcessKind]RestartPolicy, len(m.policies))
	for k, p := range m.policies {
		policies[k] = p
	}
	m.mu.Unlock()

	for _, dead := range newlyDead {
		m.logger.Error("process declared dead",
			zap.String("process_id", dead.id),
			zap.String("kind", string(dead.kind)))
		if policy, ok := policies[dead.kind]; ok && policy != nil {
			policy(dead.id)
		}
	}
}

// Snapshot returns a copy of the heartbeat table for the operational
// surface.
func (m *Monitor) Snapshot() []model.HeartbeatRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.HeartbeatRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	return out
}

// Status returns one process's record.
func (m *Monitor) Status(processID string) (model.HeartbeatRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[processID]
	if !ok {
		return model.HeartbeatRecord{}, false
	}
	return *rec, true
}

// Stop halts the sweep loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.done
}
