// Package observability holds the prometheus metrics and OpenTelemetry
// tracing helpers shared by the parser, resolver and engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Parser metrics
	DirectivesMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screenpilot",
			Subsystem: "parser",
			Name:      "directives_matched_total",
			Help:      "Directive matches accepted into a command batch, by pattern.",
		},
		[]string{"pattern"},
	)

	DirectivesDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screenpilot",
			Subsystem: "parser",
			Name:      "directives_discarded_total",
			Help:      "Directive matches dropped, by pattern and reason.",
		},
		[]string{"pattern", "reason"},
	)

	// Resolver metrics
	TreeRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screenpilot",
			Subsystem: "resolver",
			Name:      "tree_refreshes_total",
			Help:      "Root refresh attempts, by result (fetched, throttled, no_root).",
		},
		[]string{"result"},
	)

	StrategyLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screenpilot",
			Subsystem: "resolver",
			Name:      "strategy_lookups_total",
			Help:      "Label resolution attempts, by strategy and result.",
		},
		[]string{"strategy", "result"},
	)

	// Gesture metrics
	Gestures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screenpilot",
			Subsystem: "gesture",
			Name:      "dispatched_total",
			Help:      "Gestures by type and outcome (completed, cancelled, not_dispatched, timeout).",
		},
		[]string{"type", "outcome"},
	)

	// Engine metrics
	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screenpilot",
			Subsystem: "engine",
			Name:      "commands_total",
			Help:      "Executed commands, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	CommandLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "screenpilot",
			Subsystem: "engine",
			Name:      "command_latency_seconds",
			Help:      "Command execution latency in seconds, excluding pacing delays.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"kind"},
	)

	BatchesAborted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "screenpilot",
			Subsystem: "engine",
			Name:      "batches_aborted_total",
			Help:      "Batches aborted because the automation surface was unavailable.",
		},
	)
)
