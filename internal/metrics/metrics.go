package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Cycles counts solver cycles by outcome (completed, failed, dry_run)
	Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_cycles_total", Help: "Solver cycles by outcome."},
		[]string{"outcome"},
	)
	// CycleDuration records end-to-end cycle latency in seconds
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "dispatch_cycle_duration_seconds", Help: "Solver cycle duration in seconds.", Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}},
	)
	// MatrixSize records the padded cost-matrix dimension per cycle
	MatrixSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "dispatch_matrix_size", Help: "Square cost-matrix dimension per cycle.", Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500}},
	)
	// AssignmentsCommitted counts committed pairs by kind (new, reassigned, kept)
	AssignmentsCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_assignments_total", Help: "Committed assignments by kind."},
		[]string{"kind"},
	)
	// OrdersUnassigned counts orders left unplaced by reason
	OrdersUnassigned = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_unassigned_orders_total", Help: "Orders left unplaced per cycle, by reason."},
		[]string{"reason"},
	)
	// OrdersAtRisk gauges the last risk-scan counts by urgency level
	OrdersAtRisk = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "dispatch_orders_at_risk", Help: "Orders by SLA urgency level at the last scan."},
		[]string{"level"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the package registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Cycles)
		Registry.MustRegister(CycleDuration)
		Registry.MustRegister(MatrixSize)
		Registry.MustRegister(AssignmentsCommitted)
		Registry.MustRegister(OrdersUnassigned)
		Registry.MustRegister(OrdersAtRisk)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
