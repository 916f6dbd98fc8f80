package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_requests_latency_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// M-Pesa callbacks by kind (stk|b2c_result|b2c_timeout) and outcome
	// (processed|duplicate|not_found|malformed|error).
	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpesa_callbacks_total",
			Help: "M-Pesa callbacks received",
		},
		[]string{"kind", "outcome"},
	)
	ContributionsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contributions_settled_total",
			Help: "Contributions moved out of pending",
		},
		[]string{"status"},
	)
	DisbursementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disbursements_total",
			Help: "Disbursement state transitions",
		},
		[]string{"status"},
	)
	GatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Outbound Daraja API calls",
		},
		[]string{"api", "outcome"},
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)

	initOnce sync.Once
)

// Handler serves /metrics.
var Handler = promhttp.Handler

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestsTotal)
		prometheus.MustRegister(HTTPLatency)
		prometheus.MustRegister(CallbacksTotal)
		prometheus.MustRegister(ContributionsSettled)
		prometheus.MustRegister(DisbursementsTotal)
		prometheus.MustRegister(GatewayRequests)
		prometheus.MustRegister(WorkerQueueDepth)
	})
}
