package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type programMetrics struct {
	instructions *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	claimedDays  *prometheus.CounterVec
	disbursed    *prometheus.CounterVec
	minted       prometheus.Counter
	deposited    prometheus.Counter
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	programMetricsOnce sync.Once
	programRegistry    *programMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dlan",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dlan",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dlan",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dlan",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" or
// "quota_exceeded" so dashboards and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// Program returns the registry tracking instruction execution.
func Program() *programMetrics {
	programMetricsOnce.Do(func() {
		programRegistry = &programMetrics{
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dlan",
				Subsystem: "program",
				Name:      "instructions_total",
				Help:      "Instructions executed segmented by entry point and outcome.",
			}, []string{"kind", "outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dlan",
				Subsystem: "program",
				Name:      "rejections_total",
				Help:      "Rejected instructions segmented by entry point and error kind.",
			}, []string{"kind", "error_kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dlan",
				Subsystem: "program",
				Name:      "instruction_duration_seconds",
				Help:      "Time spent executing and committing an instruction.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
			claimedDays: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dlan",
				Subsystem: "program",
				Name:      "claimed_days_total",
				Help:      "Day-units released by timed claims segmented by track.",
			}, []string{"track"}),
			disbursed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dlan",
				Subsystem: "program",
				Name:      "disbursed_units_total",
				Help:      "Token units paid out of the pool segmented by leg.",
			}, []string{"leg"}),
			minted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "dlan",
				Subsystem: "program",
				Name:      "minted_units_total",
				Help:      "Token units minted on deposit.",
			}),
			deposited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "dlan",
				Subsystem: "program",
				Name:      "deposited_lamports_total",
				Help:      "Lamports forwarded to the admin account on deposit.",
			}),
		}
		prometheus.MustRegister(
			programRegistry.instructions,
			programRegistry.rejections,
			programRegistry.latency,
			programRegistry.claimedDays,
			programRegistry.disbursed,
			programRegistry.minted,
			programRegistry.deposited,
		)
	})
	return programRegistry
}

// ObserveInstruction records one executed instruction. errorKind is empty on
// success.
func (m *programMetrics) ObserveInstruction(kind, errorKind string, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if errorKind != "" {
		outcome = "rejected"
		m.rejections.WithLabelValues(kind, errorKind).Inc()
	}
	m.instructions.WithLabelValues(kind, outcome).Inc()
	m.latency.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *programMetrics) RecordClaim(track string, days, userAmount, feeAmount uint64) {
	if m == nil {
		return
	}
	if days > 0 {
		m.claimedDays.WithLabelValues(track).Add(float64(days))
	}
	m.disbursed.WithLabelValues("user").Add(float64(userAmount))
	m.disbursed.WithLabelValues("fee").Add(float64(feeAmount))
}

func (m *programMetrics) RecordDeposit(lamports, minted uint64) {
	if m == nil {
		return
	}
	m.deposited.Add(float64(lamports))
	m.minted.Add(float64(minted))
}
