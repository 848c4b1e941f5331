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

package coordinator

import (
	"context"
	"time"

	"github.com/plateshare/optimistic/pkg/collection"
	"github.com/plateshare/optimistic/pkg/events"
	"github.com/plateshare/optimistic/pkg/mutation"
	"github.com/plateshare/optimistic/pkg/reconcile"
)

// PageLoader fetches one page at a server offset.
type PageLoader[T collection.Entity] func(ctx context.Context, offset int) ([]T, error)

// RefreshLoader fetches the first page and returns the next-page cursor.
type RefreshLoader[T collection.Entity] func(ctx context.Context) ([]T, int, error)

// StepLoader fetches results for one widening step of a progressive search
// (e.g. a growing geo radius) and returns the next-page cursor.
type StepLoader[T collection.Entity] func(ctx context.Context, step int) ([]T, int, error)

// Refresh reloads the collection from the top. Concurrent refreshes collapse
// into one call; any page appends in flight are invalidated.
func (f *Facade[T]) Refresh(ctx context.Context, load RefreshLoader[T]) error {
	return reconcile.Refresh(f.reconciler, ctx, f.state, func(ctx context.Context) ([]T, int, error) {
		return load(ctx)
	})
}

// RefreshGated is Refresh behind the debounce gate, for "load recent" call
// sites that fire on every screen appearance.
func (f *Facade[T]) RefreshGated(ctx context.Context, key string, cooldown time.Duration, load RefreshLoader[T]) error {
	if !f.gate.ShouldProceedWithin(key, cooldown) {
		f.sink.Emit(events.Event{Name: events.GateRejected, Feature: f.feature, EntityType: string(f.entityType)})
		return ErrCoolingDown
	}
	return f.Refresh(ctx, load)
}

// LoadNextPage appends the next page at the current cursor. It reports
// whether the page was applied; a stale result (superseded by a refresh) is
// discarded and reported as applied == false with no error.
func (f *Facade[T]) LoadNextPage(ctx context.Context, load PageLoader[T]) (bool, error) {
	return reconcile.LoadPage(f.reconciler, ctx, f.state, func(ctx context.Context, offset int) ([]T, error) {
		return load(ctx, offset)
	})
}

// LoadInitial performs a progressive search: it runs load with widening
// steps until a step returns results or the steps are exhausted, then
// replaces the collection with the final step's results. The last step's
// outcome is applied even when empty, so the UI can render an empty state.
func (f *Facade[T]) LoadInitial(ctx context.Context, steps int, load StepLoader[T]) error {
	if steps < 1 {
		steps = 1
	}

	f.state.SetLoading(collection.LoadingState{Phase: collection.PhaseLoading})

	for step := 0; step < steps; step++ {
		items, next, err := load(ctx, step)
		if err != nil {
			f.state.SetLoading(collection.LoadingState{Phase: collection.PhaseFailed, Reason: err.Error()})
			return err
		}

		if len(items) > 0 || step == steps-1 {
			f.state.ReplaceAll(items, next)
			return nil
		}

		f.log.Debugw("progressive load widening", "feature", f.feature, "step", step+1)
	}

	return nil
}

// PushSource delivers out-of-band entity changes. Subscribe registers the
// handler and returns a cancel function.
type PushSource[T any] interface {
	Subscribe(onEvent func(T)) (cancel func())
}

// AttachPush wires a real-time push source into the reconciler. Events for
// entities with in-flight mutations are absorbed as confirmations rather
// than applied twice.
func (f *Facade[T]) AttachPush(src PushSource[T]) (cancel func()) {
	return src.Subscribe(func(item T) {
		f.HandlePush(context.Background(), item)
	})
}

// HandlePush feeds one push event through the reconciliation engine.
func (f *Facade[T]) HandlePush(ctx context.Context, item T) {
	ref := mutation.EntityRef{Type: f.entityType, ID: item.EntityID()}
	reconcile.AbsorbPush(f.reconciler, ctx, f.state, ref, item)
}
