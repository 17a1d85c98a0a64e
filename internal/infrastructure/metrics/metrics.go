// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors on a dedicated registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry         *prometheus.Registry
	StrategyAttempts *prometheus.CounterVec
	StrategyDuration *prometheus.HistogramVec
	Extractions      *prometheus.CounterVec
	QuotaDecisions   *prometheus.CounterVec
	AgentTasks       *prometheus.CounterVec
	FetchResponses   *prometheus.CounterVec
}

// New constructs and registers all collectors
func New() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "productinfo_strategy_attempts_total",
			Help: "Extraction strategy runs by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "productinfo_strategy_duration_seconds",
			Help:    "Time spent inside each extraction strategy.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		},
		[]string{"strategy"},
	)
	extractions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "productinfo_extractions_total",
			Help: "Coordinator extractions by result.",
		},
		[]string{"result"},
	)
	quota := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "productinfo_quota_decisions_total",
			Help: "Quota gate decisions by tier.",
		},
		[]string{"tier", "decision"},
	)
	tasks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "productinfo_agent_tasks_total",
			Help: "Agent tasks by agent and terminal status.",
		},
		[]string{"agent", "status"},
	)
	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "productinfo_fetch_responses_total",
			Help: "Page fetch responses by status class.",
		},
		[]string{"status_class"},
	)

	registry.MustRegister(attempts, duration, extractions, quota, tasks, fetches)

	return &Metrics{
		Registry:         registry,
		StrategyAttempts: attempts,
		StrategyDuration: duration,
		Extractions:      extractions,
		QuotaDecisions:   quota,
		AgentTasks:       tasks,
		FetchResponses:   fetches,
	}
}

// ObserveStrategy records one strategy run. An empty outcome means success.
func (m *Metrics) ObserveStrategy(strategy, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "success"
	}
	m.StrategyAttempts.WithLabelValues(strategy, outcome).Inc()
	m.StrategyDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// IncExtraction counts a finished extraction
func (m *Metrics) IncExtraction(result string) {
	if m == nil {
		return
	}
	m.Extractions.WithLabelValues(result).Inc()
}

// IncQuotaDecision counts an admit or deny
func (m *Metrics) IncQuotaDecision(tier string, admitted bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if admitted {
		decision = "admit"
	}
	m.QuotaDecisions.WithLabelValues(tier, decision).Inc()
}

// IncAgentTask counts a task reaching a terminal status
func (m *Metrics) IncAgentTask(agent, status string) {
	if m == nil {
		return
	}
	m.AgentTasks.WithLabelValues(agent, status).Inc()
}

// IncFetchResponse counts a fetched page by its status class (2xx, 4xx, ...)
func (m *Metrics) IncFetchResponse(status int) {
	if m == nil {
		return
	}
	m.FetchResponses.WithLabelValues(StatusClass(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// StatusClass buckets an HTTP status code
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
