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

package mutation_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/plateshare/optimistic/pkg/mutation"
)

func TestMutation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Mutation Suite")
}

var _ = Describe("PendingUpdate", func() {
	var u *mutation.PendingUpdate

	BeforeEach(func() {
		u = mutation.New(
			mutation.EntityRef{Type: "review", ID: "r42"},
			mutation.OpUpdate,
			[]string{"rating", "comment"},
			nil, nil,
			time.Now(),
		)
	})

	It("starts pending with zero retries", func() {
		Expect(u.Status()).To(Equal(mutation.StatusPending))
		Expect(u.IsTerminal()).To(BeFalse())
		Expect(u.RetryCount()).To(BeZero())
	})

	It("resolves to a terminal status exactly once", func() {
		Expect(u.Resolve(context.Background(), mutation.StatusConfirmed)).To(Succeed())
		Expect(u.Status()).To(Equal(mutation.StatusConfirmed))
		Expect(u.IsTerminal()).To(BeTrue())

		// Terminal states have no outgoing transitions.
		Expect(u.Resolve(context.Background(), mutation.StatusRolledBack)).NotTo(Succeed())
		Expect(u.Status()).To(Equal(mutation.StatusConfirmed))
	})

	DescribeTable("accepts every terminal outcome",
		func(outcome mutation.Status) {
			Expect(u.Resolve(context.Background(), outcome)).To(Succeed())
			Expect(u.Status()).To(Equal(outcome))
		},
		Entry("confirmed", mutation.StatusConfirmed),
		Entry("rolled back", mutation.StatusRolledBack),
		Entry("failed", mutation.StatusFailed),
	)

	It("rejects resolving to pending", func() {
		Expect(u.Resolve(context.Background(), mutation.StatusPending)).To(MatchError(mutation.ErrNotTerminal))
	})

	It("tracks retry attempts", func() {
		now := time.Now()
		u.RecordRetry(now)
		u.RecordRetry(now.Add(time.Second))
		Expect(u.RetryCount()).To(Equal(2))
		Expect(u.LastAttemptAt()).To(Equal(now.Add(time.Second)))
	})

	Describe("FieldsOverlap", func() {
		It("detects shared fields", func() {
			Expect(u.FieldsOverlap([]string{"comment"})).To(BeTrue())
			Expect(u.FieldsOverlap([]string{"title"})).To(BeFalse())
		})

		It("treats an empty field set as claiming the whole entity", func() {
			Expect(u.FieldsOverlap(nil)).To(BeTrue())

			whole := mutation.New(u.Entity, mutation.OpUpdate, nil, nil, nil, time.Now())
			Expect(whole.FieldsOverlap([]string{"title"})).To(BeTrue())
		})
	})
})

var _ = Describe("Snapshot", func() {
	type review struct {
		ID     string `json:"id"`
		Rating int    `json:"rating"`
	}

	It("compares serialized values exactly", func() {
		a, err := mutation.NewSnapshot(review{ID: "r1", Rating: 5})
		Expect(err).NotTo(HaveOccurred())
		b, err := mutation.NewSnapshot(review{ID: "r1", Rating: 5})
		Expect(err).NotTo(HaveOccurred())
		c, err := mutation.NewSnapshot(review{ID: "r1", Rating: 4})
		Expect(err).NotTo(HaveOccurred())

		Expect(a.Equal(b)).To(BeTrue())
		Expect(a.Equal(c)).To(BeFalse())
	})

	It("round-trips through Decode", func() {
		snap, err := mutation.NewSnapshot(review{ID: "r1", Rating: 5})
		Expect(err).NotTo(HaveOccurred())

		var out review
		Expect(snap.Decode(&out)).To(Succeed())
		Expect(out).To(Equal(review{ID: "r1", Rating: 5}))
	})

	It("reports an empty snapshot as zero", func() {
		var empty mutation.Snapshot
		Expect(empty.IsZero()).To(BeTrue())
	})
})

var _ = Describe("EntityRef", func() {
	It("derives distinct keys for distinct entities", func() {
		a := mutation.EntityRef{Type: "notification", ID: "1"}
		b := mutation.EntityRef{Type: "notification", ID: "2"}
		c := mutation.EntityRef{Type: "review", ID: "1"}

		Expect(a.Key()).To(Equal(a.Key()))
		Expect(a.Key()).NotTo(Equal(b.Key()))
		Expect(a.Key()).NotTo(Equal(c.Key()))
	})
})
