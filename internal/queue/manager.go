// Package queue implements the dual-lane work queue feeding the worker
// pool: a priority lane for CRITICAL/HIGH and deadline-bound work and a FIFO
// standard lane for routine NORMAL flow. Dequeue is an atomic pop-and-own so
// no two workers ever hold the same item.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/config"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

// Notifier is the slice of the notification router the queue needs.
type Notifier interface {
	Publish(event model.NotificationEvent)
}

type inflightEntry struct {
	item    *model.WorkItem
	worker  string
	expires time.Time
}

// Manager owns both lanes, the in-flight registry and the retry store. All
// mutation happens under a single mutex; the critical sections are short so
// the lock is the pop-and-own primitive rather than a bottleneck.
type Manager struct {
	cfg      config.QueueConfig
	logger   *zap.Logger
	notifier Notifier
	dlq      *DeadLetterSink

	mu       sync.Mutex
	priority []*model.WorkItem // sorted by (tier rank, enqueue time)
	standard []*model.WorkItem // FIFO
	delayed  []*model.WorkItem // nacked items waiting out their backoff
	inflight map[uuid.UUID]*inflightEntry

	// drainPriority reports a priority backlog above the configured
	// threshold. Flipped by the rebalance loop and surfaced in Stats so
	// sustained priority pressure is visible to operators.
	drainPriority bool

	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// NewManager creates a queue manager. The dead-letter sink may be nil in
// tests that do not exercise exhaustion.
func NewManager(cfg config.QueueConfig, dlq *DeadLetterSink, notifier Notifier, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		notifier: notifier,
		dlq:      dlq,
		inflight: make(map[uuid.UUID]*inflightEntry),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the watchdog and rebalance loops.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(2)
	go m.watchdogLoop(ctx)
	go m.rebalanceLoop(ctx)
}

// Stop halts the background loops and waits for them.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.stopped {
		m.stopped = true
		close(m.stopCh)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Enqueue wraps an order in a WorkItem and routes it to a lane. Orders in
// the CRITICAL or HIGH tier, or carrying an urgency deadline, go to the
// priority lane; everything else takes the standard lane.
func (m *Manager) Enqueue(order *model.Order, deadline *time.Time) (*model.WorkItem, error) {
	item := model.NewWorkItem(order, model.WorkExecute, deadline)
	return item, m.enqueueItem(item)
}

// EnqueueCancel enqueues a cancellation control item targeting the given
// order. It rides the HIGH tier so cancellations are handled promptly while
// still observing single-writer-per-order discipline.
func (m *Manager) EnqueueCancel(order *model.Order) (*model.WorkItem, error) {
	item := model.NewWorkItem(order, model.WorkCancel, nil)
	return item, m.enqueueItem(item)
}

func (m *Manager) enqueueItem(item *model.WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return fmt.Errorf("queue manager is stopped")
	}

	if item.Priority().Rank() <= model.PriorityHigh.Rank() || item.Deadline != nil {
		m.insertPriority(item)
		metricEnqueued.WithLabelValues(string(item.Priority())).Inc()
		metricPriorityDepth.Set(float64(len(m.priority)))
	} else {
		m.standard = append(m.standard, item)
		metricEnqueued.WithLabelValues(string(model.PriorityNormal)).Inc()
		metricStandardDepth.Set(float64(len(m.standard)))
	}

	m.logger.Debug("work item enqueued",
		zap.String("item_id", item.ID.String()),
		zap.String("order_id", item.Order.ID.String()),
		zap.String("priority", string(item.Priority())),
		zap.String("kind", string(item.Kind)))
	return nil
}

// insertPriority keeps the priority lane sorted by tier rank then enqueue
// time. Insertion from the tail is cheap because arrivals are mostly in
// time order.
func (m *Manager) insertPriority(item *model.WorkItem) {
	m.priority = append(m.priority, item)
	for i := len(m.priority) - 1; i > 0; i-- {
		prev, cur := m.priority[i-1], m.priority[i]
		if prev.Priority().Rank() < cur.Priority().Rank() {
			break
		}
		if prev.Priority().Rank() == cur.Priority().Rank() && !prev.EnqueueTime.After(cur.EnqueueTime) {
			break
		}
		m.priority[i-1], m.priority[i] = cur, prev
	}
}

// Dequeue atomically pops the next eligible item and assigns it to the
// worker. CRITICAL items with elapsed deadlines are served first, earliest
// deadline winning; otherwise the lanes drain in tier order with FIFO
// inside each tier. Returns nil when no work is visible.
func (m *Manager) Dequeue(workerID string) *model.WorkItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.promoteDelayedLocked(now)

	var item *model.WorkItem
	if len(m.priority) > 0 {
		item = m.popPriorityLocked(now)
	}
	// The priority lane always drains first; once it is empty the standard
	// lane serves regardless of backlog pressure.
	if item == nil && len(m.standard) > 0 {
		item = m.standard[0]
		m.standard = m.standard[1:]
		metricStandardDepth.Set(float64(len(m.standard)))
	}
	if item == nil {
		return nil
	}

	item.AssignedWorker = workerID
	m.inflight[item.ID] = &inflightEntry{
		item:    item,
		worker:  workerID,
		expires: now.Add(m.cfg.VisibilityTimeout),
	}
	metricInflight.Set(float64(len(m.inflight)))
	return item
}

// popPriorityLocked removes the next priority-lane item. The lane is a
// rank-sorted slice, so CRITICAL items form a prefix; within that prefix an
// elapsed deadline overrides FIFO, earliest deadline first.
func (m *Manager) popPriorityLocked(now time.Time) *model.WorkItem {
	pick := 0
	var bestDeadline *time.Time
	for i, it := range m.priority {
		if it.Priority().Rank() != model.PriorityCritical.Rank() {
			break
		}
		if it.DeadlineElapsed(now) {
			if bestDeadline == nil || it.Deadline.Before(*bestDeadline) {
				pick = i
				bestDeadline = it.Deadline
			}
		}
	}

	item := m.priority[pick]
	m.priority = append(m.priority[:pick], m.priority[pick+1:]...)
	metricPriorityDepth.Set(float64(len(m.priority)))
	return item
}

// Ack marks the item complete and removes it from the in-flight registry.
// Acking an unknown or already-resolved item is a no-op.
func (m *Manager) Ack(item *model.WorkItem) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.inflight[item.ID]; !ok {
		return
	}
	delete(m.inflight, item.ID)
	item.AssignedWorker = ""
	metricInflight.Set(float64(len(m.inflight)))
	metricAcked.Inc()
}

// Nack returns a failed item to circulation with exponential backoff, or
// moves it to the dead-letter sink once attempts are exhausted. Nacking an
// item that was already acked (or never dequeued) is a no-op.
func (m *Manager) Nack(item *model.WorkItem, reason string) {
	m.mu.Lock()
	entry, ok := m.inflight[item.ID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.inflight, item.ID)
	metricInflight.Set(float64(len(m.inflight)))
	exhausted := m.requeueLocked(entry.item, reason)
	m.mu.Unlock()

	if exhausted {
		m.notifyDeadLetter(entry.item, reason)
	}
}

// requeueLocked increments the attempt count and either schedules a delayed
// retry or dead-letters the item. Returns true when the item was
// dead-lettered. Caller holds m.mu.
func (m *Manager) requeueLocked(item *model.WorkItem, reason string) bool {
	item.AssignedWorker = ""
	item.AttemptCount++
	metricNacked.Inc()

	if item.AttemptCount >= m.cfg.MaxAttempts {
		if m.dlq != nil {
			if err := m.dlq.Add(item, reason); err != nil {
				m.logger.Error("failed to dead-letter work item",
					zap.String("item_id", item.ID.String()), zap.Error(err))
			}
		}
		metricDeadLettered.Inc()
		m.logger.Warn("work item exhausted retries",
			zap.String("item_id", item.ID.String()),
			zap.String("order_id", item.Order.ID.String()),
			zap.Int("attempts", item.AttemptCount),
			zap.String("reason", reason))
		return true
	}

	backoff := m.cfg.RetryBackoffBase
	for i := 1; i < item.AttemptCount; i++ {
		backoff *= 2
		if backoff >= m.cfg.RetryBackoffMax {
			backoff = m.cfg.RetryBackoffMax
			break
		}
	}
	item.VisibleAfter = time.Now().Add(backoff)
	m.delayed = append(m.delayed, item)
	return false
}

func (m *Manager) notifyDeadLetter(item *model.WorkItem, reason string) {
	if m.notifier == nil {
		return
	}
	m.notifier.Publish(model.NewNotification(item.Order.UserID, "order.dead_letter",
		model.SeverityCritical, map[string]string{
			"order_id": item.Order.ID.String(),
			"symbol":   item.Order.Symbol,
			"attempts": fmt.Sprintf("%d", item.AttemptCount),
			"reason":   reason,
		}))
}

// promoteDelayedLocked moves delayed items whose backoff has elapsed back
// into their lanes. Caller holds m.mu.
func (m *Manager) promoteDelayedLocked(now time.Time) {
	if len(m.delayed) == 0 {
		return
	}
	remaining := m.delayed[:0]
	for _, item := range m.delayed {
		if now.Before(item.VisibleAfter) {
			remaining = append(remaining, item)
			continue
		}
		if item.Priority().Rank() <= model.PriorityHigh.Rank() || item.Deadline != nil {
			m.insertPriority(item)
		} else {
			m.standard = append(m.standard, item)
		}
	}
	m.delayed = remaining
	metricPriorityDepth.Set(float64(len(m.priority)))
	metricStandardDepth.Set(float64(len(m.standard)))
}

// ReassignWorker nacks every item still assigned to a dead worker so it is
// redelivered elsewhere. Invoked by the health monitor's restart policy.
func (m *Manager) ReassignWorker(workerID string) int {
	m.mu.Lock()
	var reassigned []*model.WorkItem
	var exhausted []*model.WorkItem
	for id, entry := range m.inflight {
		if entry.worker != workerID {
			continue
		}
		delete(m.inflight, id)
		if m.requeueLocked(entry.item, "worker "+workerID+" declared dead") {
			exhausted = append(exhausted, entry.item)
		} else {
			reassigned = append(reassigned, entry.item)
		}
	}
	metricInflight.Set(float64(len(m.inflight)))
	m.mu.Unlock()

	for _, item := range exhausted {
		m.notifyDeadLetter(item, "worker "+workerID+" declared dead")
	}
	if n := len(reassigned) + len(exhausted); n > 0 {
		m.logger.Warn("reassigned in-flight work from dead worker",
			zap.String("worker_id", workerID), zap.Int("count", n))
		return n
	}
	return 0
}

// watchdogLoop requeues in-flight items whose visibility timeout lapsed so a
// worker crash never silently loses work, and promotes delayed retries.
func (m *Manager) watchdogLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepExpired()
		}
	}
}

func (m *Manager) sweepExpired() {
	now := time.Now()
	m.mu.Lock()
	var exhausted []*model.WorkItem
	for id, entry := range m.inflight {
		if now.Before(entry.expires) {
			continue
		}
		delete(m.inflight, id)
		m.logger.Warn("visibility timeout expired, requeueing",
			zap.String("item_id", id.String()),
			zap.String("worker_id", entry.worker))
		if m.requeueLocked(entry.item, "visibility timeout") {
			exhausted = append(exhausted, entry.item)
		}
	}
	m.promoteDelayedLocked(now)
	metricInflight.Set(float64(len(m.inflight)))
	m.mu.Unlock()

	for _, item := range exhausted {
		m.notifyDeadLetter(item, "visibility timeout")
	}
}

// rebalanceLoop tracks whether the priority backlog exceeds the drain
// threshold so the snapshot reflects sustained priority pressure.
func (m *Manager) rebalanceLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.RebalanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			depth := len(m.priority)
			was := m.drainPriority
			m.drainPriority = depth > m.cfg.PriorityDrainThreshold
			now := m.drainPriority
			m.mu.Unlock()
			if was != now {
				m.logger.Info("queue rebalance",
					zap.Int("priority_depth", depth),
					zap.Bool("drain_priority_only", now))
			}
		}
	}
}

// Stats is a point-in-time snapshot of queue health for the operational
// surface.
type Stats struct {
	PriorityDepth    int            `json:"priority_depth"`
	StandardDepth    int            `json:"standard_depth"`
	DelayedDepth     int            `json:"delayed_depth"`
	InFlight         int            `json:"in_flight"`
	InFlightByWorker map[string]int `json:"in_flight_by_worker"`
	OldestPriority   time.Duration  `json:"oldest_priority_age"`
	OldestStandard   time.Duration  `json:"oldest_standard_age"`
	DrainPriority    bool           `json:"drain_priority_only"`
}

// Snapshot reports current queue depths and backlog ages.
func (m *Manager) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	st := Stats{
		PriorityDepth:    len(m.priority),
		StandardDepth:    len(m.standard),
		DelayedDepth:     len(m.delayed),
		InFlight:         len(m.inflight),
		InFlightByWorker: make(map[string]int),
		DrainPriority:    m.drainPriority,
	}
	if len(m.priority) > 0 {
		st.OldestPriority = now.Sub(m.priority[0].EnqueueTime)
	}
	if len(m.standard) > 0 {
		st.OldestStandard = now.Sub(m.standard[0].EnqueueTime)
	}
	for _, entry := range m.inflight {
		st.InFlightByWorker[entry.worker]++
	}
	metricBacklogAge.WithLabelValues("priority").Set(st.OldestPriority.Seconds())
	metricBacklogAge.WithLabelValues("standard").Set(st.OldestStandard.Seconds())
	return st
}

// DeadLetters lists the currently dead-lettered items without removing
// them.
func (m *Manager) DeadLetters() ([]DeadLetterRecord, error) {
	if m.dlq == nil {
		return nil, nil
	}
	return m.dlq.List()
}

// ReplayDeadLetters moves dead-lettered items back into circulation with a
// reset attempt count. Operator-triggered recovery path.
func (m *Manager) ReplayDeadLetters() (int, error) {
	if m.dlq == nil {
		return 0, nil
	}
	items, err := m.dlq.Drain()
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		item.AttemptCount = 0
		item.VisibleAfter = time.Time{}
		if err := m.enqueueItem(item); err != nil {
			return 0, err
		}
	}
	return len(items), nil
}
