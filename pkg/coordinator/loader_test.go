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

package coordinator_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest"

	"github.com/plateshare/optimistic/pkg/clock"
	"github.com/plateshare/optimistic/pkg/collection"
	"github.com/plateshare/optimistic/pkg/coordinator"
	"github.com/plateshare/optimistic/pkg/events"
	"github.com/plateshare/optimistic/pkg/gate"
	"github.com/plateshare/optimistic/pkg/ledger"
)

// fakePushSource delivers items to a single subscriber.
type fakePushSource struct {
	onEvent   func(note)
	cancelled bool
}

func (s *fakePushSource) Subscribe(onEvent func(note)) (cancel func()) {
	s.onEvent = onEvent
	return func() { s.cancelled = true }
}

var _ = Describe("Loading", func() {
	var (
		ctx    context.Context
		fake   *clock.Fake
		sink   *recordingSink
		facade *coordinator.Facade[note]
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
		sink = &recordingSink{}
		log := zaptest.NewLogger(GinkgoT()).Sugar()

		var err error
		facade, err = coordinator.New[note]("feed", "note", coordinator.Deps{
			Ledger: ledger.New(time.Second, log),
			Gate:   gate.New(fake, 2*time.Second),
			Clock:  fake,
			Logger: log,
			Sink:   sink,
		}, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Refresh", func() {
		It("replaces the collection from the top", func() {
			err := facade.Refresh(ctx, func(ctx context.Context) ([]note, int, error) {
				return []note{{ID: "a"}, {ID: "b"}}, 2, nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(facade.State().Len()).To(Equal(2))
			Expect(facade.State().Loading().Phase).To(Equal(collection.PhaseLoaded))
		})
	})

	Describe("RefreshGated", func() {
		It("debounces repeated refresh calls", func() {
			calls := 0
			load := func(ctx context.Context) ([]note, int, error) {
				calls++
				return nil, 0, nil
			}

			Expect(facade.RefreshGated(ctx, "feed:recent", 0, load)).To(Succeed())
			Expect(facade.RefreshGated(ctx, "feed:recent", 0, load)).To(MatchError(coordinator.ErrCoolingDown))
			Expect(calls).To(Equal(1))
			Expect(sink.count(events.GateRejected)).To(Equal(1))

			fake.Advance(2 * time.Second)
			Expect(facade.RefreshGated(ctx, "feed:recent", 0, load)).To(Succeed())
			Expect(calls).To(Equal(2))
		})
	})

	Describe("LoadNextPage", func() {
		It("appends pages at the server cursor", func() {
			Expect(facade.Refresh(ctx, func(ctx context.Context) ([]note, int, error) {
				return []note{{ID: "a"}}, 1, nil
			})).To(Succeed())

			applied, err := facade.LoadNextPage(ctx, func(ctx context.Context, offset int) ([]note, error) {
				Expect(offset).To(Equal(1))
				return []note{{ID: "b"}}, nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeTrue())
			Expect(facade.State().Len()).To(Equal(2))
		})
	})

	Describe("LoadInitial", func() {
		It("widens until a step returns results", func() {
			var steps []int
			err := facade.LoadInitial(ctx, 3, func(ctx context.Context, step int) ([]note, int, error) {
				steps = append(steps, step)
				if step < 2 {
					return nil, 0, nil
				}
				return []note{{ID: "far-away"}}, 1, nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(steps).To(Equal([]int{0, 1, 2}))
			Expect(facade.State().Len()).To(Equal(1))
		})

		It("applies the final step even when it is empty", func() {
			err := facade.LoadInitial(ctx, 2, func(ctx context.Context, step int) ([]note, int, error) {
				return nil, 0, nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(facade.State().Len()).To(BeZero())
			Expect(facade.State().Loading().Phase).To(Equal(collection.PhaseLoaded))
		})

		It("stops on the first error", func() {
			err := facade.LoadInitial(ctx, 3, func(ctx context.Context, step int) ([]note, int, error) {
				return nil, 0, context.DeadlineExceeded
			})
			Expect(err).To(HaveOccurred())
			Expect(facade.State().Loading().Phase).To(Equal(collection.PhaseFailed))
		})
	})

	Describe("AttachPush", func() {
		It("routes push events through the reconciler", func() {
			src := &fakePushSource{}
			cancel := facade.AttachPush(src)

			src.onEvent(note{ID: "pushed"})
			Expect(facade.State().Len()).To(Equal(1))

			cancel()
			Expect(src.cancelled).To(BeTrue())
		})
	})
})
