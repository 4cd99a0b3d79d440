// Package metrics declares the Prometheus collectors for the complaint core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StatusTransitions counts status change attempts by outcome.
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "janasamparka_status_transitions_total",
		Help: "Complaint status transition attempts by from, to and result",
	}, []string{"from", "to", "result"})

	// RoutingAttempts counts ward, department and officer assignments.
	RoutingAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "janasamparka_routing_attempts_total",
		Help: "Complaint routing attempts by stage and result",
	}, []string{"stage", "result"})

	PriorityAssessments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "janasamparka_priority_assessments_total",
		Help: "Priority assessments by resulting level",
	}, []string{"level"})

	ClusterRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "janasamparka_cluster_run_duration_seconds",
		Help:    "Duration of a clustering analysis run",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	})

	ClustersFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "janasamparka_clusters_found",
		Help:    "Clusters emitted per analysis run",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})

	// OutboxPublished counts outbox publish attempts by result.
	OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "janasamparka_outbox_publish_total",
		Help: "Outbox messages published to the broker by result",
	}, []string{"result"})

	NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "janasamparka_notifications_total",
		Help: "Citizen notifications handled by event type and result",
	}, []string{"event", "result"})
)

// Result label values.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)
