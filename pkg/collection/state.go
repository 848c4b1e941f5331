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

// Package collection holds the per-feature observable state exposed to the
// UI: an ordered item list, a derived unread/pending count, and a loading
// phase. The owning mutation facade is the single writer; the UI only reads.
package collection

import (
	"sync"

	"github.com/tiendc/go-deepcopy"
)

// Entity is implemented by items managed in an observable collection.
type Entity interface {
	EntityID() string
}

// Phase is the coarse loading state of the collection.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseLoaded
	PhaseFailed
)

// String returns the phase name used in logs.
func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseLoaded:
		return "loaded"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// LoadingState is the tagged loading variant; Reason is set only for
// PhaseFailed.
type LoadingState struct {
	Phase  Phase
	Reason string
}

// State is the observable collection for one feature. Writes are serialized
// by the owning facade; the internal mutex exists because confirmations and
// pushes arrive on background goroutines.
type State[T Entity] struct {
	name string

	mu      sync.RWMutex
	items   []T
	index   map[string]int
	pending int
	loading LoadingState

	// pendingFn marks items that count toward PendingCount (e.g. unread
	// notifications). The count is recomputed from items on every write,
	// never incrementally drifted.
	pendingFn func(T) bool

	// generation is bumped by ReplaceAll; stale page appends carry an
	// older generation and are discarded.
	generation uint64
	// nextOffset is the server-provided cursor for the next page.
	nextOffset int

	watchers []chan struct{}
}

// NewState creates an empty collection. pendingFn may be nil, in which case
// PendingCount stays zero.
func NewState[T Entity](name string, pendingFn func(T) bool) *State[T] {
	return &State[T]{
		name:      name,
		index:     make(map[string]int),
		pendingFn: pendingFn,
	}
}

// Name returns the feature name this collection belongs to.
func (s *State[T]) Name() string {
	return s.name
}

// Items returns a copy of the ordered item slice.
func (s *State[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the item with the given id.
func (s *State[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i, ok := s.index[id]; ok {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

// Len returns the number of items.
func (s *State[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// PendingCount returns the derived unread/pending count.
func (s *State[T]) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// Loading returns the current loading state.
func (s *State[T]) Loading() LoadingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SetLoading updates the loading state and notifies watchers.
func (s *State[T]) SetLoading(ls LoadingState) {
	s.mu.Lock()
	s.loading = ls
	s.mu.Unlock()
	s.notify()
}

// Apply inserts or replaces an item in place. New items are appended;
// existing items keep their display position.
func (s *State[T]) Apply(item T) {
	s.mu.Lock()
	if i, ok := s.index[item.EntityID()]; ok {
		s.items[i] = item
	} else {
		s.index[item.EntityID()] = len(s.items)
		s.items = append(s.items, item)
	}
	s.recompute()
	s.mu.Unlock()
	s.notify()
}

// Remove deletes the item with the given id, returning the removed item and
// its former position so a rollback can reinsert it exactly.
func (s *State[T]) Remove(id string) (T, int, bool) {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		var zero T
		return zero, 0, false
	}

	item := s.items[i]
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.reindex()
	s.recompute()
	s.mu.Unlock()
	s.notify()
	return item, i, true
}

// InsertAt reinserts an item at a position (clamped to the current bounds).
// Used by rollback to undo an optimistic delete.
func (s *State[T]) InsertAt(pos int, item T) {
	s.mu.Lock()
	if pos < 0 {
		pos = 0
	}
	if pos > len(s.items) {
		pos = len(s.items)
	}
	s.items = append(s.items[:pos], append([]T{item}, s.items[pos:]...)...)
	s.reindex()
	s.recompute()
	s.mu.Unlock()
	s.notify()
}

// ReplaceAll swaps in a fresh authoritative item list (refresh from top) and
// bumps the generation so in-flight page appends are discarded.
func (s *State[T]) ReplaceAll(items []T, nextOffset int) {
	s.mu.Lock()
	s.items = items
	s.nextOffset = nextOffset
	s.generation++
	s.reindex()
	s.recompute()
	s.loading = LoadingState{Phase: PhaseLoaded}
	s.mu.Unlock()
	s.notify()
}

// Append adds a page of items at the given server offset. It returns false —
// leaving the state untouched — when the page is stale: loaded against an
// older generation or at an offset other than the current cursor. Ordering
// is defined by the server cursor, never by arrival order.
func (s *State[T]) Append(generation uint64, offset int, items []T) bool {
	s.mu.Lock()
	if generation != s.generation || offset != s.nextOffset {
		s.mu.Unlock()
		return false
	}

	for _, item := range items {
		if _, ok := s.index[item.EntityID()]; ok {
			continue
		}
		s.index[item.EntityID()] = len(s.items)
		s.items = append(s.items, item)
	}
	s.nextOffset = offset + len(items)
	s.recompute()
	s.mu.Unlock()
	s.notify()
	return true
}

// Generation returns the current refresh generation.
func (s *State[T]) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// NextOffset returns the server cursor for the next page.
func (s *State[T]) NextOffset() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextOffset
}

// Clone returns a deep copy of the item list, for structural-equality
// assertions and for snapshotting state across a mutation.
func (s *State[T]) Clone() ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []T
	if err := deepcopy.Copy(&out, s.items); err != nil {
		return nil, err
	}
	return out, nil
}

// Subscribe returns a channel that receives a signal after every state
// change. Notifications are best-effort; a slow reader misses intermediate
// signals, not the final state.
func (s *State[T]) Subscribe() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan struct{}, 1)
	s.watchers = append(s.watchers, ch)
	return ch
}

func (s *State[T]) notify() {
	s.mu.RLock()
	watchers := s.watchers
	s.mu.RUnlock()

	for _, ch := range watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// reindex rebuilds the id index after positional changes. Caller holds mu.
func (s *State[T]) reindex() {
	s.index = make(map[string]int, len(s.items))
	for i, item := range s.items {
		s.index[item.EntityID()] = i
	}
}

// recompute rebuilds the pending count from items. Caller holds mu.
func (s *State[T]) recompute() {
	if s.pendingFn == nil {
		s.pending = 0
		return
	}
	count := 0
	for _, item := range s.items {
		if s.pendingFn(item) {
			count++
		}
	}
	s.pending = count
}
