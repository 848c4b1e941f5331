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

// Package reconcile merges server-confirmed state into the locally
// optimistic view. Reconciliation never throws: inconsistency is resolved by
// "authoritative data wins" and logged.
package reconcile

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/plateshare/optimistic/pkg/collection"
	"github.com/plateshare/optimistic/pkg/events"
	"github.com/plateshare/optimistic/pkg/ledger"
	"github.com/plateshare/optimistic/pkg/mutation"
)

// Engine coordinates confirmations, push deduplication and pagination races
// against one ledger. A single Engine is shared by all facades that share
// that ledger.
type Engine struct {
	ledger *ledger.Ledger
	log    *zap.SugaredLogger
	sink   events.Sink

	// refreshes collapses concurrent "refresh from top" calls per
	// collection so only one network call runs.
	refreshes singleflight.Group
}

// NewEngine creates an Engine.
func NewEngine(ldg *ledger.Ledger, log *zap.SugaredLogger, sink events.Sink) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Engine{ledger: ldg, log: log, sink: sink}
}

// Confirm resolves a successful mutation. If the server returned an
// authoritative value that differs from the optimistic one (e.g. a server
// recomputed derived field), the authoritative value replaces it in the
// observable state — confirmed values always win over optimistic ones.
func Confirm[T collection.Entity](e *Engine, ctx context.Context, st *collection.State[T], u *mutation.PendingUpdate, authoritative *T) error {
	if err := e.ledger.Resolve(ctx, u.ID, mutation.StatusConfirmed); err != nil {
		return err
	}

	if authoritative == nil {
		return nil
	}

	snap, err := mutation.NewSnapshot(*authoritative)
	if err != nil {
		// Cannot compare; apply the authoritative value anyway.
		e.log.Warnw("failed to snapshot authoritative value", "entity", u.Entity.String(), "error", err)
		st.Apply(*authoritative)
		return nil
	}

	if !snap.Equal(u.Optimistic) {
		e.log.Debugw("authoritative value overrides optimistic",
			"feature", st.Name(), "entity", u.Entity.String(), "update_id", u.ID)
		st.Apply(*authoritative)
	}

	return nil
}

// AbsorbPush consumes an out-of-band real-time event for an entity. When the
// entity has an unresolved (or recently resolved) update whose value matches
// the payload, the push is treated as confirmation of that update, not a
// second mutation. A differing payload is authoritative and wins.
func AbsorbPush[T collection.Entity](e *Engine, ctx context.Context, st *collection.State[T], ref mutation.EntityRef, payload T) {
	snap, err := mutation.NewSnapshot(payload)
	if err != nil {
		e.log.Warnw("failed to snapshot push payload", "entity", ref.String(), "error", err)
		st.Apply(payload)
		return
	}

	// Scan every active update before deciding: with concurrent mutations
	// on disjoint field sets, the push may match any one of them.
	active := e.ledger.ActiveFor(ref)
	for _, u := range active {
		if !snap.Equal(u.Optimistic) {
			continue
		}
		// The push confirms our in-flight mutation; absorb it so the
		// user sees no second state change.
		if err := e.ledger.Resolve(ctx, u.ID, mutation.StatusConfirmed); err != nil {
			e.log.Debugw("push confirmation raced with completion", "update_id", u.ID, "error", err)
		}
		e.sink.Emit(events.Event{
			Name:       events.DuplicateSuppressed,
			Feature:    st.Name(),
			EntityType: string(ref.Type),
			EntityID:   ref.ID,
			UpdateID:   u.ID.String(),
		})
		return
	}

	if len(active) > 0 {
		// Payload matches no optimistic value: the server state is
		// authoritative. Confirm every active update so no later rollback
		// can clobber the payload, then let the payload win.
		for _, u := range active {
			if err := e.ledger.Resolve(ctx, u.ID, mutation.StatusConfirmed); err != nil {
				e.log.Debugw("push override raced with completion", "update_id", u.ID, "error", err)
			}
		}
		st.Apply(payload)
		return
	}

	for _, u := range e.ledger.RecentlyResolvedFor(ref) {
		if u.Status() == mutation.StatusConfirmed && snap.Equal(u.Optimistic) {
			// Late echo of a mutation we already confirmed.
			e.sink.Emit(events.Event{
				Name:       events.DuplicateSuppressed,
				Feature:    st.Name(),
				EntityType: string(ref.Type),
				EntityID:   ref.ID,
				UpdateID:   u.ID.String(),
			})
			return
		}
	}

	st.Apply(payload)
}

// Refresh reloads the collection from the top. Concurrent refreshes for the
// same collection are collapsed into one network call; the replace bumps the
// collection generation so stale page appends are discarded.
func Refresh[T collection.Entity](e *Engine, ctx context.Context, st *collection.State[T], load func(ctx context.Context) ([]T, int, error)) error {
	st.SetLoading(collection.LoadingState{Phase: collection.PhaseLoading})

	type page struct {
		items      []T
		nextOffset int
	}

	v, err, _ := e.refreshes.Do(st.Name(), func() (any, error) {
		items, next, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return page{items: items, nextOffset: next}, nil
	})
	if err != nil {
		st.SetLoading(collection.LoadingState{Phase: collection.PhaseFailed, Reason: err.Error()})
		return err
	}

	p := v.(page)
	st.ReplaceAll(p.items, p.nextOffset)
	return nil
}

// LoadPage fetches the next page at the current server cursor and appends
// it. The append is discarded — and false returned — if a refresh superseded
// it while the request was in flight.
func LoadPage[T collection.Entity](e *Engine, ctx context.Context, st *collection.State[T], load func(ctx context.Context, offset int) ([]T, error)) (bool, error) {
	generation := st.Generation()
	offset := st.NextOffset()

	items, err := load(ctx, offset)
	if err != nil {
		return false, err
	}

	if !st.Append(generation, offset, items) {
		e.log.Debugw("stale page append discarded",
			"feature", st.Name(), "generation", generation, "offset", offset)
		e.sink.Emit(events.Event{Name: events.StalePageDiscarded, Feature: st.Name()})
		return false, nil
	}
	return true, nil
}
