// Copyright 2026 Plateshare Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes prometheus counters for mutation outcomes. The
// host application decides whether and where to expose them; Handler() is a
// convenience for apps (and tests) that want the default registry served.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Component labels.
	ComponentLedger      = "ledger"
	ComponentPolicy      = "policy"
	ComponentReconciler  = "reconciler"
	ComponentCoordinator = "coordinator"
	ComponentGate        = "gate"
)

var (
	// Namespace and subsystem for all metrics.
	namespace = "plateshare"
	subsystem = "client_sync"

	mutationsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mutations_applied_total",
			Help:      "Optimistic mutations applied to local state",
		},
		[]string{"feature", "entity_type"},
	)

	mutationsConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mutations_confirmed_total",
			Help:      "Optimistic mutations confirmed by the server",
		},
		[]string{"feature", "entity_type"},
	)

	mutationsRolledBack = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mutations_rolled_back_total",
			Help:      "Optimistic mutations rolled back after failure",
		},
		[]string{"feature", "entity_type"},
	)

	mutationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mutations_failed_total",
			Help:      "Mutations that ended in a terminal failure without rollback",
		},
		[]string{"feature", "entity_type"},
	)

	mutationRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mutation_retries_total",
			Help:      "Retry attempts scheduled by the policy engine",
		},
		[]string{"feature", "entity_type"},
	)

	duplicatesSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duplicate_pushes_suppressed_total",
			Help:      "Real-time pushes absorbed as confirmations of local mutations",
		},
		[]string{"feature"},
	)

	gateRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "gate_rejections_total",
			Help:      "Mutations rejected by the rate/debounce gate",
		},
		[]string{"feature"},
	)

	stalePagesDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stale_pages_discarded_total",
			Help:      "Page-append results discarded because a refresh superseded them",
		},
		[]string{"feature"},
	)
)

// IncMutationApplied increments the applied counter for a feature/entity pair.
func IncMutationApplied(feature, entityType string) {
	mutationsApplied.WithLabelValues(feature, entityType).Inc()
}

// IncMutationConfirmed increments the confirmed counter.
func IncMutationConfirmed(feature, entityType string) {
	mutationsConfirmed.WithLabelValues(feature, entityType).Inc()
}

// IncMutationRolledBack increments the rolled-back counter.
func IncMutationRolledBack(feature, entityType string) {
	mutationsRolledBack.WithLabelValues(feature, entityType).Inc()
}

// IncMutationFailed increments the terminal-failure counter.
func IncMutationFailed(feature, entityType string) {
	mutationsFailed.WithLabelValues(feature, entityType).Inc()
}

// IncMutationRetry increments the retry counter.
func IncMutationRetry(feature, entityType string) {
	mutationRetries.WithLabelValues(feature, entityType).Inc()
}

// IncDuplicateSuppressed increments the duplicate-push counter.
func IncDuplicateSuppressed(feature string) {
	duplicatesSuppressed.WithLabelValues(feature).Inc()
}

// IncGateRejected increments the gate-rejection counter.
func IncGateRejected(feature string) {
	gateRejections.WithLabelValues(feature).Inc()
}

// IncStalePageDiscarded increments the stale-page counter.
func IncStalePageDiscarded(feature string) {
	stalePagesDiscarded.WithLabelValues(feature).Inc()
}

// InitFeature pre-registers all label combinations for a feature so counters
// report zero instead of being absent before the first event.
func InitFeature(feature, entityType string) {
	mutationsApplied.WithLabelValues(feature, entityType)
	mutationsConfirmed.WithLabelValues(feature, entityType)
	mutationsRolledBack.WithLabelValues(feature, entityType)
	mutationsFailed.WithLabelValues(feature, entityType)
	mutationRetries.WithLabelValues(feature, entityType)
	duplicatesSuppressed.WithLabelValues(feature)
	gateRejections.WithLabelValues(feature)
	stalePagesDiscarded.WithLabelValues(feature)
}

// Handler returns an HTTP handler serving the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
