package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type sessionCollectors struct {
	connections         *prometheus.GaugeVec
	connectionsTotal    *prometheus.CounterVec
	messages            *prometheus.CounterVec
	dispatchLatency     prometheus.Histogram
	deliveries          *prometheus.CounterVec
	deliveryFailures    *prometheus.CounterVec
	edits               *prometheus.CounterVec
	sessionUsers        prometheus.Gauge
	sessionDocuments    prometheus.Gauge
	journalEvents       *prometheus.CounterVec
	apiLatency          *prometheus.HistogramVec
	maintenanceRuns     *prometheus.CounterVec
	maintenanceDuration *prometheus.HistogramVec
	maintenanceLastRun  *prometheus.GaugeVec
}

func newCollectors(namespace string) *sessionCollectors {
	buckets := prometheus.DefBuckets
	dispatchBuckets := []float64{
		0.00005, 0.0001, 0.00025, 0.0005, // sub-millisecond
		0.001, 0.0025, 0.005, 0.01,
		0.025, 0.05, 0.1,
	}

	return &sessionCollectors{
		connections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connections",
				Help:      "Open client connections by transport",
			},
			[]string{"transport"},
		),
		connectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Accepted client connections by transport",
			},
			[]string{"transport"},
		),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Inbound protocol messages by type and outcome",
			},
			[]string{"type", "result"},
		),
		dispatchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent handling one message inside the session lock",
				Buckets:   dispatchBuckets,
			},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Frames handed to client connections by delivery mode",
			},
			[]string{"mode"},
		),
		deliveryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_failures_total",
				Help:      "Frames that could not be written to a client",
			},
			[]string{"mode"},
		),
		edits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "edits_total",
				Help:      "Edit operations by outcome",
			},
			[]string{"result"},
		),
		sessionUsers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_users",
				Help:      "Users registered in the shared session",
			},
		),
		sessionDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_documents",
				Help:      "Documents held by the shared session",
			},
		),
		journalEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "journal_events_total",
				Help:      "Session journal writes by event kind and outcome",
			},
			[]string{"kind", "result"},
		),
		apiLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_latency_seconds",
				Help:      "Admin API endpoint latency",
				Buckets:   buckets,
			},
			[]string{"method", "path", "status"},
		),
		maintenanceRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "maintenance_runs_total",
				Help:      "Maintenance job executions",
			},
			[]string{"job", "result"},
		),
		maintenanceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "maintenance_duration_seconds",
				Help:      "Maintenance job duration",
				Buckets:   buckets,
			},
			[]string{"job"},
		),
		maintenanceLastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "maintenance_last_success_timestamp",
				Help:      "Timestamp of the last successful maintenance run (seconds since epoch)",
			},
			[]string{"job"},
		),
	}
}

func (c *sessionCollectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.connections,
		c.connectionsTotal,
		c.messages,
		c.dispatchLatency,
		c.deliveries,
		c.deliveryFailures,
		c.edits,
		c.sessionUsers,
		c.sessionDocuments,
		c.journalEvents,
		c.apiLatency,
		c.maintenanceRuns,
		c.maintenanceDuration,
		c.maintenanceLastRun,
	}
}

// observeDuration records a duration in seconds on the supplied histogram observer.
func observeDuration(observer prometheus.Observer, d time.Duration) {
	if observer == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	observer.Observe(d.Seconds())
}
