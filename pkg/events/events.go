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

// Package events defines the structured observability events the coordinator
// emits. Format and destination are the host's concern; the default sink
// logs via zap and bumps prometheus counters.
package events

import (
	"go.uber.org/zap"

	"github.com/plateshare/optimistic/pkg/metrics"
)

// Name identifies an event kind.
type Name string

const (
	MutationApplied     Name = "mutation_applied"
	MutationConfirmed   Name = "mutation_confirmed"
	MutationRolledBack  Name = "mutation_rolled_back"
	MutationFailed      Name = "mutation_failed"
	MutationRetried     Name = "mutation_retried"
	DuplicateSuppressed Name = "duplicate_suppressed"
	GateRejected        Name = "gate_rejected"
	StalePageDiscarded  Name = "stale_page_discarded"
)

// Event is one structured observability event.
type Event struct {
	Name       Name
	Feature    string
	EntityType string
	EntityID   string
	UpdateID   string
	Err        error
}

// Sink consumes events. Implementations must be safe for concurrent use and
// must not block.
type Sink interface {
	Emit(e Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

type defaultSink struct {
	log *zap.SugaredLogger
}

// NewSink returns the default sink: zap logging plus prometheus counters.
func NewSink(log *zap.SugaredLogger) Sink {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &defaultSink{log: log}
}

func (s *defaultSink) Emit(e Event) {
	switch e.Name {
	case MutationApplied:
		metrics.IncMutationApplied(e.Feature, e.EntityType)
	case MutationConfirmed:
		metrics.IncMutationConfirmed(e.Feature, e.EntityType)
	case MutationRolledBack:
		metrics.IncMutationRolledBack(e.Feature, e.EntityType)
	case MutationFailed:
		metrics.IncMutationFailed(e.Feature, e.EntityType)
	case MutationRetried:
		metrics.IncMutationRetry(e.Feature, e.EntityType)
	case DuplicateSuppressed:
		metrics.IncDuplicateSuppressed(e.Feature)
	case GateRejected:
		metrics.IncGateRejected(e.Feature)
	case StalePageDiscarded:
		metrics.IncStalePageDiscarded(e.Feature)
	}

	if e.Err != nil {
		s.log.Infow(string(e.Name),
			"feature", e.Feature,
			"entity_type", e.EntityType,
			"entity_id", e.EntityID,
			"update_id", e.UpdateID,
			"error", e.Err,
		)
		return
	}

	s.log.Debugw(string(e.Name),
		"feature", e.Feature,
		"entity_type", e.EntityType,
		"entity_id", e.EntityID,
		"update_id", e.UpdateID,
	)
}
