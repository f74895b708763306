// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lifecycle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/plugman/internal/plugin"
)

// Transitions counts lifecycle operations by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var Transitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plugman_transitions_total",
		Help: "Total number of module lifecycle operations",
	},
	[]string{"op", "outcome"},
)

// TransitionDuration observes how long each operation took, hooks included.
var TransitionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "plugman_transition_duration_seconds",
		Help:    "Module lifecycle operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"op"},
)

// ModulesByState is the number of registered modules in each state.
var ModulesByState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "plugman_modules",
		Help: "Registered modules by lifecycle state",
	},
	[]string{"state"},
)

// RegisterMetrics registers lifecycle metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Transitions)
	reg.MustRegister(TransitionDuration)
	reg.MustRegister(ModulesByState)
}

// RecordTransition counts one operation and its duration.
func RecordTransition(op Op, outcome Outcome, d time.Duration) {
	Transitions.WithLabelValues(string(op), string(outcome)).Inc()
	TransitionDuration.WithLabelValues(string(op)).Observe(d.Seconds())
}

// RecordModuleStates sets the per-state gauge from a registry snapshot.
func RecordModuleStates(mods []*plugin.Module) {
	counts := map[plugin.State]int{
		plugin.StateLoaded:   0,
		plugin.StateEnabled:  0,
		plugin.StateDisabled: 0,
	}
	for _, m := range mods {
		counts[m.State()]++
	}
	for state, n := range counts {
		ModulesByState.WithLabelValues(state.String()).Set(float64(n))
	}
}
