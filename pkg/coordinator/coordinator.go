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

// Package coordinator is the per-feature entry point for optimistic
// mutations. A Facade applies the change to the observable state, registers
// it with the ledger, invokes the repository, and routes the result through
// the policy and reconciliation engines.
//
// One Facade owns one observable collection; all mutations for that
// collection go through it. Independent features run independent facades
// with no shared mutable state beyond the ledger.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tiendc/go-deepcopy"
	"go.uber.org/zap"

	"github.com/plateshare/optimistic/pkg/classify"
	"github.com/plateshare/optimistic/pkg/clock"
	"github.com/plateshare/optimistic/pkg/collection"
	"github.com/plateshare/optimistic/pkg/events"
	"github.com/plateshare/optimistic/pkg/gate"
	"github.com/plateshare/optimistic/pkg/ledger"
	"github.com/plateshare/optimistic/pkg/mutation"
	"github.com/plateshare/optimistic/pkg/policy"
	"github.com/plateshare/optimistic/pkg/reconcile"
	"github.com/plateshare/optimistic/pkg/sentry"
)

var (
	// ErrCoolingDown is returned when the rate/debounce gate rejects a
	// mutation. The optimistic state is unchanged.
	ErrCoolingDown = errors.New("operation is cooling down")

	// ErrUnknownEntity is returned when a mutation targets an entity that
	// is not in the collection.
	ErrUnknownEntity = errors.New("entity not in collection")
)

// Call is a repository operation. On success it may return the authoritative
// value the server computed (nil when the server returns no body).
type Call[T collection.Entity] func(ctx context.Context) (*T, error)

// Mutation describes one optimistic change.
type Mutation[T collection.Entity] struct {
	// Op is the kind of change.
	Op mutation.Operation
	// Item is the optimistic value; ignored for OpDelete.
	Item T
	// EntityID is required for OpDelete and otherwise derived from Item.
	EntityID string
	// Fields is the field set the mutation touches, named by the entity's
	// serialized (JSON) keys; empty claims the whole entity. Rollback
	// restores only the claimed fields, so a concurrent mutation on a
	// disjoint field set keeps its confirmed values.
	Fields []string
	// GateKey, when non-empty, subjects the mutation to the debounce
	// gate under this logical key.
	GateKey string
	// Cooldown overrides the gate's default window; zero uses the default.
	Cooldown time.Duration
	// Call performs the remote operation.
	Call Call[T]
}

// Outcome is the terminal result of a mutation, delivered once on
// Result.Done. Exactly one Outcome is produced per ledger entry, so callers
// can surface exactly one user-visible error signal.
type Outcome struct {
	Status   mutation.Status
	Category classify.Category
	Hint     policy.Hint
	Err      error
}

// Result is returned by Invoke after the optimistic apply.
type Result struct {
	// UpdateID is the ledger id of the pending update.
	UpdateID uuid.UUID
	// Done receives the terminal outcome (buffered, never blocks the
	// coordinator).
	Done <-chan Outcome
	// NoOp is true when the entity was already in the target state; no
	// ledger entry and no repository call were made. Done is closed.
	NoOp bool
	// Cancel aborts retry backoff waits for this mutation (e.g. on
	// screen teardown). The in-flight attempt's failure then follows
	// rollback policy rather than being silently dropped.
	Cancel context.CancelFunc
}

// Deps are the collaborators a Facade needs, injected explicitly — no
// ambient globals.
type Deps struct {
	Ledger     *ledger.Ledger
	Classifier *classify.Classifier
	Policy     *policy.Engine
	Reconciler *reconcile.Engine
	Gate       *gate.Gate
	Clock      clock.Clock
	Logger     *zap.SugaredLogger
	Sink       events.Sink

	// SupersedeWait bounds how long InvokeSuperseding waits for a
	// cancelled conflicting update to resolve; zero uses
	// DefaultSupersedeWait.
	SupersedeWait time.Duration
	// SupersedePollInterval is the resolution poll cadence; zero uses
	// DefaultSupersedePollInterval.
	SupersedePollInterval time.Duration
}

// Facade coordinates optimistic mutations for one feature.
type Facade[T collection.Entity] struct {
	feature    string
	entityType mutation.EntityType
	state      *collection.State[T]

	ledger     *ledger.Ledger
	classifier *classify.Classifier
	policy     *policy.Engine
	reconciler *reconcile.Engine
	gate       *gate.Gate
	clk        clock.Clock
	log        *zap.SugaredLogger
	sink       events.Sink

	supersedeWait time.Duration
	supersedePoll time.Duration

	// cancels maps in-flight update ids to their retry-loop cancel
	// functions, for supersede and screen-teardown paths.
	cancelMu sync.Mutex
	cancels  map[uuid.UUID]context.CancelFunc
}

// New creates a Facade for one feature. pendingFn marks which items count
// toward the collection's unread/pending counter and may be nil.
func New[T collection.Entity](feature string, entityType mutation.EntityType, deps Deps, pendingFn func(T) bool) (*Facade[T], error) {
	if deps.Ledger == nil {
		return nil, errors.New("coordinator: ledger is required")
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.New()
	}
	if deps.Policy == nil {
		deps.Policy = policy.NewEngine(policy.DefaultConfig())
	}
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Sink == nil {
		deps.Sink = events.NewSink(deps.Logger)
	}
	if deps.Reconciler == nil {
		deps.Reconciler = reconcile.NewEngine(deps.Ledger, deps.Logger, deps.Sink)
	}
	if deps.Gate == nil {
		deps.Gate = gate.New(deps.Clock, gate.DefaultCooldown)
	}
	if deps.SupersedeWait <= 0 {
		deps.SupersedeWait = DefaultSupersedeWait
	}
	if deps.SupersedePollInterval <= 0 {
		deps.SupersedePollInterval = DefaultSupersedePollInterval
	}

	return &Facade[T]{
		feature:    feature,
		entityType: entityType,
		state:      collection.NewState[T](feature, pendingFn),
		ledger:     deps.Ledger,
		classifier: deps.Classifier,
		policy:     deps.Policy,
		reconciler: deps.Reconciler,
		gate:       deps.Gate,
		clk:        deps.Clock,
		log:        deps.Logger,
		sink:       deps.Sink,

		supersedeWait: deps.SupersedeWait,
		supersedePoll: deps.SupersedePollInterval,

		cancels: make(map[uuid.UUID]context.CancelFunc),
	}, nil
}

// State returns the observable collection the UI reads.
func (f *Facade[T]) State() *collection.State[T] {
	return f.state
}

// applied records what the optimistic apply did, so rollback can undo it
// exactly.
type applied[T collection.Entity] struct {
	op       mutation.Operation
	entityID string
	// fields is the claimed field set; rollback restores only these.
	fields []string
	// original is a deep copy of the pre-mutation item; meaningless for
	// OpCreate.
	original T
	// position is the display index a deleted item must return to.
	position int
}

// Invoke applies m optimistically and starts the remote call. It returns
// after the synchronous apply; the terminal outcome arrives on Result.Done.
//
// A no-op (entity already in the target state) returns Result{NoOp: true}
// with no ledger entry and no repository call. A gate rejection returns
// ErrCoolingDown. A second mutation on an overlapping field set returns
// ledger.ErrDuplicateActiveMutation.
func (f *Facade[T]) Invoke(ctx context.Context, m Mutation[T]) (*Result, error) {
	entityID := m.EntityID
	if m.Op != mutation.OpDelete {
		entityID = m.Item.EntityID()
	}
	ref := mutation.EntityRef{Type: f.entityType, ID: entityID}

	// Precondition checks come before the gate so that no-ops never
	// consume the cooldown window.
	current, exists := f.state.Get(entityID)

	switch m.Op {
	case mutation.OpCreate:
		if exists {
			return nil, fmt.Errorf("%w: %s already exists", classify.ErrAlreadyExists, ref)
		}
	case mutation.OpDelete:
		if !exists {
			return noOpResult(), nil
		}
	default:
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, ref)
		}
	}

	var optimistic mutation.Snapshot
	if m.Op != mutation.OpDelete {
		snap, err := mutation.NewSnapshot(m.Item)
		if err != nil {
			return nil, fmt.Errorf("snapshot optimistic value: %w", err)
		}
		optimistic = snap
	}

	var original mutation.Snapshot
	if exists {
		snap, err := mutation.NewSnapshot(current)
		if err != nil {
			return nil, fmt.Errorf("snapshot original value: %w", err)
		}
		original = snap
	}

	// Idempotent no-op: the entity is already in the target state.
	if exists && (m.Op == mutation.OpUpdate || m.Op == mutation.OpToggle) && original.Equal(optimistic) {
		return noOpResult(), nil
	}

	if m.GateKey != "" && !f.gate.ShouldProceedWithin(m.GateKey, m.Cooldown) {
		f.sink.Emit(events.Event{Name: events.GateRejected, Feature: f.feature, EntityType: string(f.entityType), EntityID: entityID})
		return nil, fmt.Errorf("%w: %s", ErrCoolingDown, m.GateKey)
	}

	u := mutation.New(ref, m.Op, m.Fields, original, optimistic, f.clk.Now())

	// Register before touching the observable state: a duplicate must
	// leave the UI untouched.
	if err := f.ledger.Register(u); err != nil {
		return nil, err
	}

	rec := applied[T]{op: m.Op, entityID: entityID, fields: m.Fields}
	if exists {
		if err := deepcopy.Copy(&rec.original, current); err != nil {
			// Without an exact pre-mutation copy a rollback cannot
			// honor its contract; abandon the ledger entry.
			_ = f.ledger.Resolve(ctx, u.ID, mutation.StatusFailed)
			return nil, fmt.Errorf("copy original value: %w", err)
		}
	}

	// Optimistic apply.
	switch m.Op {
	case mutation.OpDelete:
		_, pos, _ := f.state.Remove(entityID)
		rec.position = pos
	default:
		f.state.Apply(m.Item)
	}

	f.sink.Emit(events.Event{
		Name:       events.MutationApplied,
		Feature:    f.feature,
		EntityType: string(f.entityType),
		EntityID:   entityID,
		UpdateID:   u.ID.String(),
	})

	done := make(chan Outcome, 1)
	runCtx, cancel := context.WithCancel(ctx)

	f.cancelMu.Lock()
	f.cancels[u.ID] = cancel
	f.cancelMu.Unlock()

	go f.run(runCtx, u, m, rec, done, cancel)

	return &Result{UpdateID: u.ID, Done: done, Cancel: cancel}, nil
}

func noOpResult() *Result {
	done := make(chan Outcome)
	close(done)
	return &Result{Done: done, NoOp: true, Cancel: func() {}}
}

// run drives the attempt/retry loop off the UI path.
func (f *Facade[T]) run(ctx context.Context, u *mutation.PendingUpdate, m Mutation[T], rec applied[T], done chan<- Outcome, cancel context.CancelFunc) {
	defer func() {
		cancel()
		f.cancelMu.Lock()
		delete(f.cancels, u.ID)
		f.cancelMu.Unlock()
	}()

	for {
		authoritative, err := m.Call(ctx)
		if err == nil {
			f.confirm(ctx, u, authoritative, done)
			return
		}

		category := f.classifier.Classify(err)
		recommendation := f.policy.Decide(u, category)

		switch {
		case recommendation.Retry:
			u.RecordRetry(f.clk.Now())
			f.sink.Emit(events.Event{
				Name:       events.MutationRetried,
				Feature:    f.feature,
				EntityType: string(f.entityType),
				EntityID:   u.Entity.ID,
				UpdateID:   u.ID.String(),
				Err:        err,
			})

			select {
			case <-f.clk.After(recommendation.Delay):
				continue
			case <-ctx.Done():
				// Cancelled mid-backoff: treat as a transient network
				// failure and follow rollback policy.
				f.rollback(u, rec, Outcome{
					Status:   mutation.StatusRolledBack,
					Category: classify.CategoryNetwork,
					Err:      ctx.Err(),
				}, done)
				return
			}

		case recommendation.Rollback:
			out := Outcome{
				Status:   mutation.StatusRolledBack,
				Category: category,
				Hint:     recommendation.Hint,
				Err:      err,
			}
			if category == classify.CategoryNetwork || category == classify.CategoryServerError || category == classify.CategoryUnknown {
				// Retry exhaustion, not a policy-mandated rollback.
				sentry.ReportMutationError(f.log, f.feature, string(f.entityType), u.Entity.ID, string(u.Operation), err)
			}
			f.rollback(u, rec, out, done)
			return

		default:
			// Validation surface path: state untouched, error raw.
			f.fail(u, category, recommendation.Hint, err, done)
			return
		}
	}
}

func (f *Facade[T]) confirm(ctx context.Context, u *mutation.PendingUpdate, authoritative *T, done chan<- Outcome) {
	if err := reconcile.Confirm(f.reconciler, ctx, f.state, u, authoritative); err != nil {
		// The update resolved concurrently (e.g. a push confirmed it
		// first). The ledger guarantees a single terminal transition,
		// so emit nothing here.
		f.log.Debugw("confirmation raced with another resolution", "update_id", u.ID, "error", err)
		done <- Outcome{Status: u.Status()}
		return
	}

	f.sink.Emit(events.Event{
		Name:       events.MutationConfirmed,
		Feature:    f.feature,
		EntityType: string(f.entityType),
		EntityID:   u.Entity.ID,
		UpdateID:   u.ID.String(),
	})
	done <- Outcome{Status: mutation.StatusConfirmed}
}

// rollback reverts the observable state to the exact pre-mutation value and
// resolves the ledger entry.
func (f *Facade[T]) rollback(u *mutation.PendingUpdate, rec applied[T], out Outcome, done chan<- Outcome) {
	resolveCtx := context.Background()
	if err := f.ledger.Resolve(resolveCtx, u.ID, mutation.StatusRolledBack); err != nil {
		// Already resolved (push confirmed it while we were failing).
		// The terminal transition happened elsewhere; do not touch the
		// state and do not emit a second signal.
		f.log.Debugw("rollback raced with another resolution", "update_id", u.ID, "error", err)
		done <- Outcome{Status: u.Status()}
		return
	}

	switch rec.op {
	case mutation.OpCreate:
		f.state.Remove(rec.entityID)
	case mutation.OpDelete:
		f.state.InsertAt(rec.position, rec.original)
	default:
		f.state.Apply(f.restored(rec))
	}

	f.sink.Emit(events.Event{
		Name:       events.MutationRolledBack,
		Feature:    f.feature,
		EntityType: string(f.entityType),
		EntityID:   rec.entityID,
		UpdateID:   u.ID.String(),
		Err:        out.Err,
	})
	done <- out
}

// restored computes the value a rollback writes back. A whole-entity claim
// restores the original item wholly. A field-set claim restores only the
// claimed fields into the entity's current value, so fields a concurrent
// disjoint mutation confirmed in the meantime keep their confirmed values.
func (f *Facade[T]) restored(rec applied[T]) T {
	if len(rec.fields) == 0 {
		return rec.original
	}

	current, ok := f.state.Get(rec.entityID)
	if !ok {
		return rec.original
	}

	merged, err := mergeFields(current, rec.original, rec.fields)
	if err != nil {
		f.log.Warnw("field-granular rollback merge failed, restoring whole entity",
			"feature", f.feature, "entity_id", rec.entityID, "error", err)
		return rec.original
	}
	return merged
}

// mergeFields returns current with the named serialized fields taken from
// original. A field absent from original's serialization is removed, so it
// decodes to its zero value.
func mergeFields[T collection.Entity](current, original T, fields []string) (T, error) {
	var zero T

	curRaw, err := json.Marshal(current)
	if err != nil {
		return zero, err
	}
	origRaw, err := json.Marshal(original)
	if err != nil {
		return zero, err
	}

	var curMap, origMap map[string]json.RawMessage
	if err := json.Unmarshal(curRaw, &curMap); err != nil {
		return zero, err
	}
	if err := json.Unmarshal(origRaw, &origMap); err != nil {
		return zero, err
	}

	for _, field := range fields {
		if v, ok := origMap[field]; ok {
			curMap[field] = v
		} else {
			delete(curMap, field)
		}
	}

	mergedRaw, err := json.Marshal(curMap)
	if err != nil {
		return zero, err
	}

	var merged T
	if err := json.Unmarshal(mergedRaw, &merged); err != nil {
		return zero, err
	}
	return merged, nil
}

func (f *Facade[T]) fail(u *mutation.PendingUpdate, category classify.Category, hint policy.Hint, err error, done chan<- Outcome) {
	if resolveErr := f.ledger.Resolve(context.Background(), u.ID, mutation.StatusFailed); resolveErr != nil {
		f.log.Debugw("failure raced with another resolution", "update_id", u.ID, "error", resolveErr)
		done <- Outcome{Status: u.Status()}
		return
	}

	f.sink.Emit(events.Event{
		Name:       events.MutationFailed,
		Feature:    f.feature,
		EntityType: string(f.entityType),
		EntityID:   u.Entity.ID,
		UpdateID:   u.ID.String(),
		Err:        err,
	})
	done <- Outcome{Status: mutation.StatusFailed, Category: category, Hint: hint, Err: err}
}
