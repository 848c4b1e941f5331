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

// Package ledger tracks in-flight optimistic mutations. It is the only
// structure shared between the facade's synchronous UI path and the
// asynchronous completion callbacks; all mutation is funneled through
// Register and Resolve, which are the sole synchronization points.
//
// Terminal entries stay queryable for a retention window so late real-time
// pushes that duplicate an already-applied mutation can be detected, then
// they expire.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"
	"go.uber.org/zap"

	"github.com/plateshare/optimistic/pkg/mutation"
)

var (
	// ErrDuplicateActiveMutation is returned by Register when an
	// unresolved update already targets an overlapping field set on the
	// same entity.
	ErrDuplicateActiveMutation = errors.New("duplicate active mutation")

	// ErrNotFound is returned by Resolve for an unknown update id.
	ErrNotFound = errors.New("pending update not found")
)

// DefaultRetention is how long terminal entries remain queryable.
const DefaultRetention = 30 * time.Second

// Ledger is safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	active   map[uuid.UUID]*mutation.PendingUpdate
	byEntity map[uint64][]uuid.UUID

	// resolved holds terminal entries for the retention window, keyed by
	// update id. Lookups by entity scan it; retention windows are short
	// and entries few, so a scan is fine.
	resolved *expiremap.ExpireMap[uuid.UUID, *mutation.PendingUpdate]

	log *zap.SugaredLogger
}

// New creates a Ledger whose terminal entries expire after retention.
func New(retention time.Duration, log *zap.SugaredLogger) *Ledger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Ledger{
		active:   make(map[uuid.UUID]*mutation.PendingUpdate),
		byEntity: make(map[uint64][]uuid.UUID),
		resolved: expiremap.NewEx[uuid.UUID, *mutation.PendingUpdate](retention, retention),
		log:      log,
	}
}

// Register inserts a pending update. It fails with
// ErrDuplicateActiveMutation if an unresolved update already targets an
// overlapping field set on the same entity; the caller must supersede or
// queue, never race.
func (l *Ledger) Register(u *mutation.PendingUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := u.Entity.Key()
	for _, id := range l.byEntity[key] {
		existing, ok := l.active[id]
		if !ok {
			continue
		}
		if existing.Entity == u.Entity && existing.FieldsOverlap(u.Fields) {
			return fmt.Errorf("%w: %s already has pending update %s", ErrDuplicateActiveMutation, u.Entity, existing.ID)
		}
	}

	l.active[u.ID] = u
	l.byEntity[key] = append(l.byEntity[key], u.ID)
	l.log.Debugw("registered pending update", "update_id", u.ID, "entity", u.Entity.String(), "operation", u.Operation)

	return nil
}

// Resolve marks an update terminal and moves it into the retention window.
// Resolving twice returns an error from the status machine: terminal states
// have no outgoing transitions.
func (l *Ledger) Resolve(ctx context.Context, id uuid.UUID, outcome mutation.Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.active[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := u.Resolve(ctx, outcome); err != nil {
		return err
	}

	delete(l.active, id)
	l.dropFromEntityIndex(u.Entity.Key(), id)
	l.resolved.Set(id, u)
	l.log.Debugw("resolved pending update", "update_id", id, "entity", u.Entity.String(), "outcome", string(outcome))

	return nil
}

func (l *Ledger) dropFromEntityIndex(key uint64, id uuid.UUID) {
	ids := l.byEntity[key]
	for i, candidate := range ids {
		if candidate == id {
			l.byEntity[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(l.byEntity[key]) == 0 {
		delete(l.byEntity, key)
	}
}

// Get returns the update with the given id, whether active or recently
// resolved.
func (l *Ledger) Get(id uuid.UUID) (*mutation.PendingUpdate, bool) {
	l.mu.Lock()
	if u, ok := l.active[id]; ok {
		l.mu.Unlock()
		return u, true
	}
	l.mu.Unlock()

	if u, ok := l.resolved.Load(id); ok {
		return *u, true
	}
	return nil, false
}

// ActiveFor returns all unresolved updates targeting the given entity.
func (l *Ledger) ActiveFor(ref mutation.EntityRef) []*mutation.PendingUpdate {
	l.mu.Lock()
	defer l.mu.Unlock()

	var updates []*mutation.PendingUpdate
	for _, id := range l.byEntity[ref.Key()] {
		if u, ok := l.active[id]; ok && u.Entity == ref {
			updates = append(updates, u)
		}
	}
	return updates
}

// RecentlyResolvedFor returns terminal updates for the entity that are still
// inside the retention window.
func (l *Ledger) RecentlyResolvedFor(ref mutation.EntityRef) []*mutation.PendingUpdate {
	var updates []*mutation.PendingUpdate
	l.resolved.Range(func(_ uuid.UUID, u *mutation.PendingUpdate) bool {
		if u.Entity == ref {
			updates = append(updates, u)
		}
		return true
	})
	return updates
}

// ActiveCount returns the number of unresolved updates.
func (l *Ledger) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}
