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

package collection_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/plateshare/optimistic/pkg/collection"
)

func TestCollection(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Collection Suite")
}

type notification struct {
	ID   string
	Body string
	Read bool
}

func (n notification) EntityID() string { return n.ID }

func ids(items []notification) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

var _ = Describe("State", func() {
	var st *collection.State[notification]

	BeforeEach(func() {
		st = collection.NewState[notification]("notifications", func(n notification) bool {
			return !n.Read
		})
	})

	Describe("Apply", func() {
		It("appends new items and replaces existing ones in place", func() {
			st.Apply(notification{ID: "a"})
			st.Apply(notification{ID: "b"})
			st.Apply(notification{ID: "a", Body: "edited"})

			Expect(ids(st.Items())).To(Equal([]string{"a", "b"}))

			got, ok := st.Get("a")
			Expect(ok).To(BeTrue())
			Expect(got.Body).To(Equal("edited"))
		})

		It("recomputes the pending count on every write", func() {
			st.Apply(notification{ID: "a"})
			st.Apply(notification{ID: "b"})
			Expect(st.PendingCount()).To(Equal(2))

			st.Apply(notification{ID: "a", Read: true})
			Expect(st.PendingCount()).To(Equal(1))

			// Re-marking the same item read must not drift the count.
			st.Apply(notification{ID: "a", Read: true})
			Expect(st.PendingCount()).To(Equal(1))
		})
	})

	Describe("Remove and InsertAt", func() {
		BeforeEach(func() {
			st.ReplaceAll([]notification{{ID: "a"}, {ID: "b"}, {ID: "c"}}, 3)
		})

		It("returns the removed item and its position", func() {
			item, pos, ok := st.Remove("b")
			Expect(ok).To(BeTrue())
			Expect(item.ID).To(Equal("b"))
			Expect(pos).To(Equal(1))
			Expect(ids(st.Items())).To(Equal([]string{"a", "c"}))
		})

		It("reinserts at the original position", func() {
			item, pos, _ := st.Remove("b")
			st.InsertAt(pos, item)
			Expect(ids(st.Items())).To(Equal([]string{"a", "b", "c"}))
		})

		It("clamps out-of-range positions", func() {
			st.InsertAt(99, notification{ID: "z"})
			Expect(ids(st.Items())).To(Equal([]string{"a", "b", "c", "z"}))

			st.InsertAt(-1, notification{ID: "y"})
			Expect(ids(st.Items())).To(Equal([]string{"y", "a", "b", "c", "z"}))
		})

		It("reports a missing id", func() {
			_, _, ok := st.Remove("nope")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("ReplaceAll", func() {
		It("swaps the list, sets the cursor and marks the state loaded", func() {
			st.Apply(notification{ID: "stale"})

			st.ReplaceAll([]notification{{ID: "a"}, {ID: "b"}}, 2)

			Expect(ids(st.Items())).To(Equal([]string{"a", "b"}))
			Expect(st.NextOffset()).To(Equal(2))
			Expect(st.Loading().Phase).To(Equal(collection.PhaseLoaded))
		})

		It("bumps the generation", func() {
			before := st.Generation()
			st.ReplaceAll(nil, 0)
			Expect(st.Generation()).To(Equal(before + 1))
		})
	})

	Describe("Append", func() {
		BeforeEach(func() {
			st.ReplaceAll([]notification{{ID: "a"}, {ID: "b"}}, 2)
		})

		It("appends a page at the current cursor and advances it", func() {
			ok := st.Append(st.Generation(), 2, []notification{{ID: "c"}, {ID: "d"}})
			Expect(ok).To(BeTrue())
			Expect(ids(st.Items())).To(Equal([]string{"a", "b", "c", "d"}))
			Expect(st.NextOffset()).To(Equal(4))
		})

		It("discards a page from an older generation", func() {
			gen := st.Generation()
			st.ReplaceAll([]notification{{ID: "x"}}, 1)

			ok := st.Append(gen, 2, []notification{{ID: "c"}})
			Expect(ok).To(BeFalse())
			Expect(ids(st.Items())).To(Equal([]string{"x"}))
		})

		It("discards a page at the wrong offset", func() {
			ok := st.Append(st.Generation(), 5, []notification{{ID: "c"}})
			Expect(ok).To(BeFalse())
			Expect(st.Len()).To(Equal(2))
		})

		It("skips items already present", func() {
			ok := st.Append(st.Generation(), 2, []notification{{ID: "b"}, {ID: "c"}})
			Expect(ok).To(BeTrue())
			Expect(ids(st.Items())).To(Equal([]string{"a", "b", "c"}))
		})
	})

	Describe("Clone", func() {
		It("returns an independent copy", func() {
			st.Apply(notification{ID: "a", Body: "original"})

			clone, err := st.Clone()
			Expect(err).NotTo(HaveOccurred())
			clone[0].Body = "mutated"

			got, _ := st.Get("a")
			Expect(got.Body).To(Equal("original"))
		})
	})

	Describe("Subscribe", func() {
		It("signals after writes without blocking the writer", func() {
			ch := st.Subscribe()

			st.Apply(notification{ID: "a"})
			Eventually(ch).Should(Receive())

			// Coalesced notifications: many writes, at least one signal.
			for i := 0; i < 10; i++ {
				st.Apply(notification{ID: "a", Read: i%2 == 0})
			}
			Eventually(ch).Should(Receive())
		})
	})
})
