package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels pipeline stages that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels pipeline stages that failed.
	OutcomeError = "error"
)

var (
	eventsCollectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blackbox",
			Name:      "events_collected_total",
			Help:      "Total events normalized into the event store, partitioned by source kind.",
		},
		[]string{"source"},
	)

	incidentsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blackbox",
			Name:      "incidents_created_total",
			Help:      "Total incidents opened by the detector.",
		},
	)

	rcaRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blackbox",
			Name:      "rca_runs_total",
			Help:      "Total root-cause analyses, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	rcaDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "blackbox",
			Name:      "rca_seconds",
			Help:      "Root-cause analysis latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	workOrdersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blackbox",
			Name:      "work_orders_created_total",
			Help:      "Total work orders auto-created by the dispatcher.",
		},
	)
)

// Register attaches the pipeline collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		eventsCollectedTotal,
		incidentsCreatedTotal,
		rcaRunsTotal,
		rcaDurationSeconds,
		workOrdersCreatedTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// AddEventsCollected records normalized events by source kind.
func AddEventsCollected(source string, n int) {
	if n > 0 {
		eventsCollectedTotal.WithLabelValues(source).Add(float64(n))
	}
}

// AddIncidentsCreated records newly opened incidents.
func AddIncidentsCreated(n int) {
	if n > 0 {
		incidentsCreatedTotal.Add(float64(n))
	}
}

// ObserveRCA records one analysis run.
func ObserveRCA(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	rcaRunsTotal.WithLabelValues(label).Inc()
	rcaDurationSeconds.Observe(duration.Seconds())
}

// IncWorkOrdersCreated records one auto-created work order.
func IncWorkOrdersCreated() {
	workOrdersCreatedTotal.Inc()
}
