package model

import "time"

// ProcessKind identifies what kind of process a heartbeat belongs to.
type ProcessKind string

const (
	ProcessStrategy ProcessKind = "strategy"
	ProcessWorker   ProcessKind = "worker"
)

// ProcessStatus is the liveness classification of a monitored process.
type ProcessStatus string

const (
	ProcessHealthy  ProcessStatus = "HEALTHY"
	ProcessDegraded ProcessStatus = "DEGRADED"
	ProcessDead     ProcessStatus = "DEAD"
)

// HeartbeatRecord tracks the liveness of a strategy process or worker.
// Owned by the health monitor; updated on report, read by restart policies.
type HeartbeatRecord struct {
	ProcessID string        `json:"process_id"`
	Kind      ProcessKind   `json:"kind"`
	LastSeen  time.Time     `json:"last_seen"`
	Status    ProcessStatus `json:"status"`
}
