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

// Package mutation holds the data model for one in-flight optimistic
// mutation: what entity it targets, the original and optimistic value
// snapshots, and a state machine enforcing that the update resolves to a
// terminal status exactly once.
package mutation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// Operation is the kind of change a mutation applies.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpToggle Operation = "toggle"
)

// Status is the lifecycle state of a PendingUpdate.
type Status string

const (
	// StatusPending is the only non-terminal status.
	StatusPending Status = "pending"
	// StatusConfirmed means the server accepted the mutation.
	StatusConfirmed Status = "confirmed"
	// StatusRolledBack means the optimistic change was reverted.
	StatusRolledBack Status = "rolled_back"
	// StatusFailed means the mutation failed terminally without touching
	// the optimistic state (validation surface path).
	StatusFailed Status = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Status-machine events. Terminal states have no outgoing transitions, which
// is what enforces the resolve-exactly-once invariant.
const (
	eventConfirm  = "confirm"
	eventRollback = "rollback"
	eventFail     = "fail"
)

// PendingUpdate is one in-flight optimistic mutation. It is created by the
// mutation facade at optimistic-apply time, tracked by the ledger, and
// resolved exactly once by the policy or reconciliation engine.
type PendingUpdate struct {
	// ID is the opaque identifier generated at creation.
	ID uuid.UUID
	// Entity is the entity this update targets.
	Entity EntityRef
	// Operation is the kind of change applied.
	Operation Operation
	// Fields is the set of entity fields the mutation touches. An empty
	// set claims the whole entity.
	Fields []string
	// Original is the pre-mutation snapshot; zero for Create.
	Original Snapshot
	// Optimistic is the snapshot of the value applied locally.
	Optimistic Snapshot
	// CreatedAt is the optimistic-apply time.
	CreatedAt time.Time

	mu            sync.RWMutex
	retryCount    int
	lastAttemptAt time.Time
	machine       *fsm.FSM
}

// New creates a PendingUpdate in StatusPending.
func New(entity EntityRef, op Operation, fields []string, original, optimistic Snapshot, now time.Time) *PendingUpdate {
	return &PendingUpdate{
		ID:            uuid.New(),
		Entity:        entity,
		Operation:     op,
		Fields:        fields,
		Original:      original,
		Optimistic:    optimistic,
		CreatedAt:     now,
		lastAttemptAt: now,
		machine:       newStatusMachine(),
	}
}

func newStatusMachine() *fsm.FSM {
	return fsm.NewFSM(
		string(StatusPending),
		fsm.Events{
			{Name: eventConfirm, Src: []string{string(StatusPending)}, Dst: string(StatusConfirmed)},
			{Name: eventRollback, Src: []string{string(StatusPending)}, Dst: string(StatusRolledBack)},
			{Name: eventFail, Src: []string{string(StatusPending)}, Dst: string(StatusFailed)},
		},
		fsm.Callbacks{},
	)
}

// Status returns the current lifecycle status.
func (u *PendingUpdate) Status() Status {
	return Status(u.machine.Current())
}

// IsTerminal reports whether the update has resolved.
func (u *PendingUpdate) IsTerminal() bool {
	return u.Status().IsTerminal()
}

// Resolve transitions the update to a terminal status. It returns an error
// if outcome is not terminal or if the update already resolved; the
// underlying state machine has no transitions out of terminal states.
func (u *PendingUpdate) Resolve(ctx context.Context, outcome Status) error {
	var event string
	switch outcome {
	case StatusConfirmed:
		event = eventConfirm
	case StatusRolledBack:
		event = eventRollback
	case StatusFailed:
		event = eventFail
	default:
		return ErrNotTerminal
	}

	return u.machine.Event(ctx, event)
}

// RetryCount returns how many retries have been scheduled so far.
func (u *PendingUpdate) RetryCount() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.retryCount
}

// LastAttemptAt returns the time of the most recent attempt.
func (u *PendingUpdate) LastAttemptAt() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastAttemptAt
}

// RecordRetry increments the retry counter and stamps the attempt time.
func (u *PendingUpdate) RecordRetry(now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.retryCount++
	u.lastAttemptAt = now
}

// FieldsOverlap reports whether the update's field set overlaps the given
// one. An empty field set claims the whole entity and overlaps everything.
func (u *PendingUpdate) FieldsOverlap(fields []string) bool {
	if len(u.Fields) == 0 || len(fields) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(u.Fields))
	for _, f := range u.Fields {
		set[f] = struct{}{}
	}
	for _, f := range fields {
		if _, ok := set[f]; ok {
			return true
		}
	}
	return false
}
