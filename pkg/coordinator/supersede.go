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
	"errors"
	"time"

	"github.com/plateshare/optimistic/pkg/ledger"
	"github.com/plateshare/optimistic/pkg/mutation"
)

// DefaultSupersedeWait bounds how long a superseding mutation waits for the
// conflicting update to reach a terminal state after its retries are
// cancelled. Override via Deps.SupersedeWait or pkg/config.
const DefaultSupersedeWait = 2 * time.Second

// DefaultSupersedePollInterval is how often the wait polls for resolution.
const DefaultSupersedePollInterval = 10 * time.Millisecond

// InvokeSuperseding is Invoke for toggle-style UI where the newest tap wins:
// if an active mutation holds an overlapping field set, its retries are
// cancelled and the new mutation is chained after the old one resolves
// (rollback first, then the new optimistic apply — never two concurrent
// pending updates on the same fields).
//
// Unlike Invoke, the optimistic apply of a chained mutation happens
// asynchronously, after the superseded update resolves.
func (f *Facade[T]) InvokeSuperseding(ctx context.Context, m Mutation[T]) (*Result, error) {
	res, err := f.Invoke(ctx, m)
	if err == nil || !errors.Is(err, ledger.ErrDuplicateActiveMutation) {
		return res, err
	}

	entityID := m.EntityID
	if m.Op != mutation.OpDelete {
		entityID = m.Item.EntityID()
	}

	// Cancel the conflicting updates' retry loops; their resolutions
	// will free the field set.
	conflicting := f.cancelConflicting(entityID, m.Fields)
	if len(conflicting) == 0 {
		return nil, err
	}

	done := make(chan Outcome, 1)
	chainCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer cancel()

		if !f.awaitResolution(chainCtx, conflicting) {
			done <- Outcome{
				Status: mutation.StatusFailed,
				Err:    errors.New("superseded mutation did not resolve in time"),
			}
			return
		}

		inner, invokeErr := f.Invoke(chainCtx, m)
		if invokeErr != nil {
			done <- Outcome{Status: mutation.StatusFailed, Err: invokeErr}
			return
		}
		if inner.NoOp {
			// The rollback already landed the entity in the target
			// state.
			close(done)
			return
		}
		if out, ok := <-inner.Done; ok {
			done <- out
		}
	}()

	return &Result{Done: done, Cancel: cancel}, nil
}

// cancelConflicting cancels the retry loops of active updates overlapping
// the given field set and returns those updates.
func (f *Facade[T]) cancelConflicting(entityID string, fields []string) []*mutation.PendingUpdate {
	ref := mutation.EntityRef{Type: f.entityType, ID: entityID}

	var conflicting []*mutation.PendingUpdate
	for _, u := range f.ledger.ActiveFor(ref) {
		if !u.FieldsOverlap(fields) {
			continue
		}
		conflicting = append(conflicting, u)

		f.cancelMu.Lock()
		cancel, ok := f.cancels[u.ID]
		f.cancelMu.Unlock()
		if ok {
			cancel()
		}
	}
	return conflicting
}

// awaitResolution waits until every update is terminal, polling on the
// injected clock so tests stay deterministic.
func (f *Facade[T]) awaitResolution(ctx context.Context, updates []*mutation.PendingUpdate) bool {
	deadline := f.clk.Now().Add(f.supersedeWait)

	for {
		allTerminal := true
		for _, u := range updates {
			if !u.IsTerminal() {
				allTerminal = false
				break
			}
		}
		if allTerminal {
			return true
		}
		if f.clk.Now().After(deadline) {
			return false
		}

		select {
		case <-f.clk.After(f.supersedePoll):
		case <-ctx.Done():
			return false
		}
	}
}
