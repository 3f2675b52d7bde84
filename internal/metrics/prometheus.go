package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the client's Prometheus metrics in a dedicated registry so
// they do not interfere with the default global registry.
type Collector struct {
	registry *prometheus.Registry

	balanceRefreshes     prometheus.Counter
	balanceFetchFailures *prometheus.CounterVec
	refreshDuration      prometheus.Histogram
	txOutcomes           *prometheus.CounterVec
	accessDecisions      *prometheus.CounterVec
	notifications        *prometheus.CounterVec
	sessionTransitions   *prometheus.CounterVec
	apiRequests          *prometheus.CounterVec
	connected            prometheus.Gauge
}

// NewCollector creates a Collector with all metrics registered.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		balanceRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stakeport",
			Name:      "balance_refresh_total",
			Help:      "Total number of balance snapshot refreshes.",
		}),
		balanceFetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakeport",
			Name:      "balance_fetch_failures_total",
			Help:      "Per-token balance fetches that failed and were reported as zero.",
		}, []string{"symbol"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stakeport",
			Name:      "balance_refresh_duration_seconds",
			Help:      "Time to fetch a complete balance snapshot.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		txOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakeport",
			Name:      "transactions_total",
			Help:      "Transactions by contract method and final state.",
		}, []string{"method", "state"}),
		accessDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakeport",
			Name:      "access_checks_total",
			Help:      "Authorization gate decisions.",
		}, []string{"decision"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakeport",
			Name:      "notifications_total",
			Help:      "Registration notifications by result.",
		}, []string{"result"}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakeport",
			Name:      "session_transitions_total",
			Help:      "Wallet session transitions by kind.",
		}, []string{"kind"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakeport",
			Name:      "api_requests_total",
			Help:      "Dashboard API requests by route and status code.",
		}, []string{"route", "code"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stakeport",
			Name:      "wallet_connected",
			Help:      "1 when a wallet session is connected.",
		}),
	}

	reg.MustRegister(
		c.balanceRefreshes,
		c.balanceFetchFailures,
		c.refreshDuration,
		c.txOutcomes,
		c.accessDecisions,
		c.notifications,
		c.sessionTransitions,
		c.apiRequests,
		c.connected,
	)
	return c
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// All Record* methods are safe on a nil *Collector so components can run
// without metrics wired.

func (c *Collector) RecordRefresh(d time.Duration) {
	if c == nil {
		return
	}
	c.balanceRefreshes.Inc()
	c.refreshDuration.Observe(d.Seconds())
}

func (c *Collector) RecordBalanceFailure(symbol string) {
	if c == nil {
		return
	}
	c.balanceFetchFailures.WithLabelValues(symbol).Inc()
}

func (c *Collector) RecordTx(method, state string) {
	if c == nil {
		return
	}
	c.txOutcomes.WithLabelValues(method, state).Inc()
}

func (c *Collector) RecordAccess(decision string) {
	if c == nil {
		return
	}
	c.accessDecisions.WithLabelValues(decision).Inc()
}

func (c *Collector) RecordNotification(result string) {
	if c == nil {
		return
	}
	c.notifications.WithLabelValues(result).Inc()
}

func (c *Collector) RecordSession(kind string, connected bool) {
	if c == nil {
		return
	}
	c.sessionTransitions.WithLabelValues(kind).Inc()
	if connected {
		c.connected.Set(1)
	} else {
		c.connected.Set(0)
	}
}

func (c *Collector) RecordAPIRequest(route, code string) {
	if c == nil {
		return
	}
	c.apiRequests.WithLabelValues(route, code).Inc()
}
