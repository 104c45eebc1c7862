// Package metrics provides Prometheus metrics collection for tacoscan.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tacoscan"

// subscriptionStates lists every label value SetStatus resets.
var subscriptionStates = []string{"active", "grace", "final", "expired"}

// Collector holds all Prometheus metrics for tacoscan.
type Collector struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Ledger metrics
	LedgerReads         *prometheus.CounterVec
	LedgerReadDuration  *prometheus.HistogramVec
	LedgerWrites        *prometheus.CounterVec
	LedgerWriteDuration *prometheus.HistogramVec

	// Dashboard metrics
	Refreshes            *prometheus.CounterVec
	SubscriptionState    *prometheus.GaugeVec
	SubscriptionTimeLeft *prometheus.GaugeVec

	// Action metrics
	Payments            *prometheus.CounterVec
	PaymentsInFlight    prometheus.Gauge
	AuthorizationChecks *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default Prometheus registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),

		LedgerReads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_reads_total",
				Help:      "Total number of contract reads",
			},
			[]string{"method", "result"},
		),
		LedgerReadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_read_duration_seconds",
				Help:      "Contract read duration in seconds, including rate limiter wait",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
		LedgerWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_writes_total",
				Help:      "Total number of submitted contract writes",
			},
			[]string{"method", "result"},
		),
		LedgerWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_write_duration_seconds",
				Help:      "Time from submission until a write is mined",
				Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"method"},
		),

		Refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dashboard_refreshes_total",
				Help:      "Total number of dashboard refreshes by trigger",
			},
			[]string{"ritual", "trigger"},
		),
		SubscriptionState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subscription_state",
				Help:      "1 for the current subscription state of a ritual, 0 otherwise",
			},
			[]string{"ritual", "state"},
		),
		SubscriptionTimeLeft: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subscription_time_left_seconds",
				Help:      "Seconds left in the current subscription window",
			},
			[]string{"ritual"},
		),

		Payments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_total",
				Help:      "Total number of payment attempts by outcome",
			},
			[]string{"kind", "outcome"},
		),
		PaymentsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "payments_in_flight",
				Help:      "Number of payments currently awaiting confirmation",
			},
		),
		AuthorizationChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authorization_checks_total",
				Help:      "Total number of encryptor authorization checks",
			},
			[]string{"result"},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveLedgerRead records one contract read.
func (c *Collector) ObserveLedgerRead(method string, d time.Duration, err error) {
	c.LedgerReads.WithLabelValues(method, result(err)).Inc()
	c.LedgerReadDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveLedgerWrite records one contract write.
func (c *Collector) ObserveLedgerWrite(method string, d time.Duration, err error) {
	c.LedgerWrites.WithLabelValues(method, result(err)).Inc()
	c.LedgerWriteDuration.WithLabelValues(method).Observe(d.Seconds())
}

// SetStatus publishes the derived subscription state of a ritual.
func (c *Collector) SetStatus(ritual, state string, timeLeft float64) {
	for _, s := range subscriptionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.SubscriptionState.WithLabelValues(ritual, s).Set(v)
	}
	c.SubscriptionTimeLeft.WithLabelValues(ritual).Set(timeLeft)
}

// ObserveRefresh counts one dashboard refresh.
func (c *Collector) ObserveRefresh(ritual, trigger string) {
	c.Refreshes.WithLabelValues(ritual, trigger).Inc()
}

// ObservePayment counts one finished payment attempt.
func (c *Collector) ObservePayment(kind, outcome string) {
	c.Payments.WithLabelValues(kind, outcome).Inc()
}

// AddPaymentsInFlight adjusts the in-flight payment gauge.
func (c *Collector) AddPaymentsInFlight(delta float64) {
	c.PaymentsInFlight.Add(delta)
}

// ObserveAuthorizationCheck counts one encryptor authorization check.
func (c *Collector) ObserveAuthorizationCheck(authorized bool) {
	r := "unauthorized"
	if authorized {
		r = "authorized"
	}
	c.AuthorizationChecks.WithLabelValues(r).Inc()
}

// NormalizePath reduces cardinality by replacing numeric path segments,
// e.g. /api/rituals/42/payments -> /api/rituals/:id/payments.
func NormalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p != "" && strings.Trim(p, "0123456789") == "" {
			parts[i] = ":id"
		}
	}
	path = strings.Join(parts, "/")
	if len(path) > 50 {
		return path[:50] + "..."
	}
	return path
}
