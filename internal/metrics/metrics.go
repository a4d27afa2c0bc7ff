// Package metrics exposes the process-wide Prometheus registry for
// membria. It is ambient observability (spec.md's Non-goals exclude
// dashboards and TUI surfaces, not a scrape endpoint) — updated by the
// outcome tracker, calibration engine, context composer, chains, webhook
// receiver, tool server, firewall and MCP proxy. SignalQueueDepth and
// ContextCompositionLatency are registered but nothing sets them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OutcomeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "membria",
		Name:      "outcome_transitions_total",
		Help:      "Count of outcome state-machine transitions by target status.",
	}, []string{"status"})

	CalibrationUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "membria",
		Name:      "calibration_updates_total",
		Help:      "Count of calibration profile updates by domain and outcome.",
	}, []string{"domain", "success"})

	SignalQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "membria",
		Name:      "signal_queue_depth",
		Help:      "Current number of pending signals in the inbox.",
	})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "membria",
		Name:      "webhook_events_total",
		Help:      "Count of webhook events received by source and status.",
	}, []string{"source", "status"})

	ContextCompositionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "membria",
		Name:      "context_composition_seconds",
		Help:      "Latency of building a decision context payload.",
		Buckets:   prometheus.DefBuckets,
	})

	ContextTruncations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "membria",
		Name:      "context_truncations_total",
		Help:      "Count of context compositions that hit the token budget and truncated.",
	})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "membria",
		Name:      "tool_calls_total",
		Help:      "Count of JSON-RPC tool invocations by method and outcome.",
	}, []string{"method", "status"})

	FirewallVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "membria",
		Name:      "firewall_verdicts_total",
		Help:      "Count of firewall evaluations by verdict.",
	}, []string{"verdict"})

	MCPProxyCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "membria",
		Name:      "mcp_proxy_calls_total",
		Help:      "Count of MCP tool proxy calls by server and outcome.",
	}, []string{"server", "status"})
)
