package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// RemoteCallMetrics records every call made to the cart cloud functions.
type RemoteCallMetrics struct {
	duration *prometheus.HistogramVec
	calls    *prometheus.CounterVec
}

// NewRemoteCallMetrics registers the remote call metrics on the provided registerer.
func NewRemoteCallMetrics(reg prometheus.Registerer) *RemoteCallMetrics {
	if reg == nil {
		return &RemoteCallMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "call_duration_seconds",
		Help:      "Latency of remote cart function calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
	}, []string{"function"})
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "calls_total",
		Help:      "Remote cart function calls by outcome.",
	}, []string{"function", "outcome"})
	reg.MustRegister(duration, calls)
	return &RemoteCallMetrics{duration: duration, calls: calls}
}

// ObserveCall satisfies shopify.Observer.
func (m *RemoteCallMetrics) ObserveCall(function, outcome string, duration time.Duration) {
	if m == nil || m.calls == nil {
		return
	}
	function = normalizeLabel(function)
	m.duration.WithLabelValues(function).Observe(duration.Seconds())
	m.calls.WithLabelValues(function, normalizeLabel(outcome)).Inc()
}

// CartMetrics tracks reconciliation engine behaviour.
type CartMetrics struct {
	rollbacks *prometheus.CounterVec
	syncs     *prometheus.CounterVec
	engines   prometheus.Gauge
}

// NewCartMetrics registers the cart engine metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	rollbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "rollbacks_total",
		Help:      "Optimistic edits reverted after a failed push.",
	}, []string{"operation"})
	syncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "exit_syncs_total",
		Help:      "Exit syncs by outcome.",
	}, []string{"outcome"})
	engines := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "active_engines",
		Help:      "Cart engines held in memory.",
	})
	reg.MustRegister(rollbacks, syncs, engines)
	return &CartMetrics{rollbacks: rollbacks, syncs: syncs, engines: engines}
}

func (m *CartMetrics) ObserveRollback(operation string) {
	if m == nil || m.rollbacks == nil {
		return
	}
	m.rollbacks.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *CartMetrics) ObserveSync(outcome string) {
	if m == nil || m.syncs == nil {
		return
	}
	m.syncs.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CartMetrics) SetActiveEngines(count int) {
	if m == nil || m.engines == nil {
		return
	}
	m.engines.Set(float64(count))
}

// PromotionMetrics exports the last evaluated promotional window.
type PromotionMetrics struct {
	active     prometheus.Gauge
	effective  prometheus.Gauge
	configured prometheus.Gauge
}

// NewPromotionMetrics registers the promotion gauges on the provided registerer.
func NewPromotionMetrics(reg prometheus.Registerer) *PromotionMetrics {
	if reg == nil {
		return &PromotionMetrics{}
	}
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "promotion",
		Name:      "active",
		Help:      "1 while the promotional window is open.",
	})
	effective := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "promotion",
		Name:      "effective_multiplier",
		Help:      "Multiplier currently applied to entries.",
	})
	configured := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "promotion",
		Name:      "configured_multiplier",
		Help:      "Multiplier configured for the window.",
	})
	reg.MustRegister(active, effective, configured)
	return &PromotionMetrics{active: active, effective: effective, configured: configured}
}

// RecordPromotion satisfies promotion.StateRecorder.
func (m *PromotionMetrics) RecordPromotion(active bool, effective, configured float64) {
	if m == nil || m.active == nil {
		return
	}
	if active {
		m.active.Set(1)
	} else {
		m.active.Set(0)
	}
	m.effective.Set(effective)
	m.configured.Set(configured)
}

// HTTPMetrics records served requests by route pattern.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
	requests *prometheus.CounterVec
}

// NewHTTPMetrics registers the request metrics on the provided registerer.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency of served HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Served HTTP requests by status.",
	}, []string{"method", "route", "status"})
	reg.MustRegister(duration, requests)
	return &HTTPMetrics{duration: duration, requests: requests}
}

func (m *HTTPMetrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	route = normalizeLabel(route)
	m.duration.WithLabelValues(method, route).Observe(duration.Seconds())
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
