package model

import (
	"time"

	"github.com/google/uuid"
)

// WorkKind distinguishes execution work from cancellation control items.
type WorkKind string

const (
	WorkExecute WorkKind = "execute"
	WorkCancel  WorkKind = "cancel"
)

// WorkItem is the queue envelope wrapping an order with retry and priority
// metadata. AssignedWorker is non-empty only while exactly one worker holds
// the item; pop-and-own semantics in the queue manager enforce that.
type WorkItem struct {
	ID             uuid.UUID  `json:"id"`
	Order          *Order     `json:"order"`
	Kind           WorkKind   `json:"kind"`
	EnqueueTime    time.Time  `json:"enqueue_time"`
	AttemptCount   int        `json:"attempt_count"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	AssignedWorker string     `json:"assigned_worker,omitempty"`

	// VisibleAfter delays redelivery of nacked items (retry backoff).
	VisibleAfter time.Time `json:"visible_after"`
}

// NewWorkItem wraps an order for dispatch. CRITICAL stop-loss orders get an
// urgency deadline so an elapsed deadline overrides FIFO within the tier.
func NewWorkItem(order *Order, kind WorkKind, deadline *time.Time) *WorkItem {
	return &WorkItem{
		ID:          uuid.New(),
		Order:       order,
		Kind:        kind,
		EnqueueTime: time.Now(),
		Deadline:    deadline,
	}
}

// DeadlineElapsed reports whether the item's urgency deadline has passed.
func (w *WorkItem) DeadlineElapsed(now time.Time) bool {
	return w.Deadline != nil && !now.Before(*w.Deadline)
}

// Priority returns the dispatch tier of the wrapped order. Cancellations
// ride the HIGH tier so they are handled promptly.
func (w *WorkItem) Priority() Priority {
	if w.Kind == WorkCancel {
		return PriorityHigh
	}
	return w.Order.Priority
}
