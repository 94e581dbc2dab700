package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the server and client metrics of the CPO.
type Collector struct {
	// Inbound
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authFailures    *prometheus.CounterVec

	// Sync
	downgradesRejected *prometheus.CounterVec

	// Commands
	commandsTotal *prometheus.CounterVec

	// Outbound
	clientRequestsTotal *prometheus.CounterVec
	clientDuration      *prometheus.HistogramVec
	clientRetries       *prometheus.CounterVec
}

// NewCollector registers the metrics with reg. Each registry may only be used once.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpo_requests_total",
				Help: "Total number of inbound requests processed",
			},
			[]string{"method", "module", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cpo_request_duration_seconds",
				Help:    "Inbound request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "module"},
		),
		authFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpo_authorization_failures_total",
				Help: "Inbound requests rejected by authorization",
			},
			[]string{"module"},
		),
		downgradesRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpo_downgrades_rejected_total",
				Help: "Writes rejected because they carried an older last_updated",
			},
			[]string{"module"},
		),
		commandsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpo_commands_total",
				Help: "Dispatched commands by kind and result",
			},
			[]string{"command", "result"},
		),
		clientRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpo_client_requests_total",
				Help: "Outbound requests by module and outcome",
			},
			[]string{"module", "method", "status"},
		),
		clientDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cpo_client_request_duration_seconds",
				Help:    "Outbound request duration in seconds, retries included",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"module", "method"},
		),
		clientRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpo_client_retries_total",
				Help: "Outbound request attempts beyond the first",
			},
			[]string{"module"},
		),
	}
}

func (m *Collector) ObserveRequest(method, module string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, module, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, module).Observe(duration.Seconds())
}

func (m *Collector) IncrementAuthFailures(module string) {
	m.authFailures.WithLabelValues(module).Inc()
}

func (m *Collector) IncrementDowngrades(module string) {
	m.downgradesRejected.WithLabelValues(module).Inc()
}

func (m *Collector) IncrementCommands(command, result string) {
	m.commandsTotal.WithLabelValues(command, result).Inc()
}

// ObserveClientRequest records one outbound call. status is the HTTP status, or "error" when
// no response arrived.
func (m *Collector) ObserveClientRequest(module, method, status string, attempts int, duration time.Duration) {
	m.clientRequestsTotal.WithLabelValues(module, method, status).Inc()
	m.clientDuration.WithLabelValues(module, method).Observe(duration.Seconds())
	if attempts > 1 {
		m.clientRetries.WithLabelValues(module).Add(float64(attempts - 1))
	}
}
