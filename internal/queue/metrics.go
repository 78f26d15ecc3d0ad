package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_queue_enqueued_total",
		Help: "Work items enqueued, by priority tier.",
	}, []string{"priority"})

	metricAcked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_queue_acked_total",
		Help: "Work items acknowledged as complete.",
	})

	metricNacked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_queue_nacked_total",
		Help: "Work items negatively acknowledged.",
	})

	metricDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_queue_dead_lettered_total",
		Help: "Work items moved to the dead-letter sink.",
	})

	metricPriorityDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_queue_priority_depth",
		Help: "Current depth of the priority lane.",
	})

	metricStandardDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_queue_standard_depth",
		Help: "Current depth of the standard lane.",
	})

	metricInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_queue_inflight",
		Help: "Work items currently held by workers.",
	})

	metricBacklogAge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_queue_backlog_age_seconds",
		Help: "Age of the oldest queued item, by lane.",
	}, []string{"lane"})
)
