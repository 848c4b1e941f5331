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

package policy_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/plateshare/optimistic/pkg/classify"
	"github.com/plateshare/optimistic/pkg/mutation"
	"github.com/plateshare/optimistic/pkg/policy"
)

func TestPolicy(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Policy Suite")
}

func newUpdate(retries int) *mutation.PendingUpdate {
	u := mutation.New(
		mutation.EntityRef{Type: "notification", ID: "n1"},
		mutation.OpUpdate,
		[]string{"read"},
		nil, nil,
		time.Now(),
	)
	for i := 0; i < retries; i++ {
		u.RecordRetry(time.Now())
	}
	return u
}

var _ = Describe("Engine", func() {
	var engine *policy.Engine

	BeforeEach(func() {
		engine = policy.NewEngine(policy.DefaultConfig())
	})

	Context("for retryable categories", func() {
		DescribeTable("retries with exponential backoff until exhaustion",
			func(category classify.Category) {
				rec := engine.Decide(newUpdate(0), category)
				Expect(rec.Retry).To(BeTrue())
				Expect(rec.Rollback).To(BeFalse())
				Expect(rec.Delay).To(Equal(400 * time.Millisecond))

				rec = engine.Decide(newUpdate(1), category)
				Expect(rec.Retry).To(BeTrue())
				Expect(rec.Delay).To(Equal(800 * time.Millisecond))

				rec = engine.Decide(newUpdate(2), category)
				Expect(rec.Retry).To(BeTrue())
				Expect(rec.Delay).To(Equal(1600 * time.Millisecond))

				// Fourth failure: retries exhausted.
				rec = engine.Decide(newUpdate(3), category)
				Expect(rec.Retry).To(BeFalse())
				Expect(rec.Rollback).To(BeTrue())
			},
			Entry("network", classify.CategoryNetwork),
			Entry("server error", classify.CategoryServerError),
		)

		It("caps the delay at the configured maximum", func() {
			capped := policy.NewEngine(policy.Config{
				MaxRetries:     8,
				InitialBackoff: 400 * time.Millisecond,
				BackoffFactor:  2,
				MaxBackoff:     time.Second,
			})

			rec := capped.Decide(newUpdate(5), classify.CategoryNetwork)
			Expect(rec.Retry).To(BeTrue())
			Expect(rec.Delay).To(Equal(time.Second))
		})
	})

	Context("for conflict", func() {
		It("never retries and signals a refetch", func() {
			rec := engine.Decide(newUpdate(0), classify.CategoryConflict)
			Expect(rec.Retry).To(BeFalse())
			Expect(rec.Rollback).To(BeTrue())
			Expect(rec.Hint).To(Equal(policy.HintRefetch))
		})
	})

	Context("for authorization", func() {
		It("never retries and signals re-authentication", func() {
			rec := engine.Decide(newUpdate(0), classify.CategoryAuthorization)
			Expect(rec.Retry).To(BeFalse())
			Expect(rec.Rollback).To(BeTrue())
			Expect(rec.Hint).To(Equal(policy.HintReauthenticate))
		})
	})

	Context("for validation", func() {
		It("neither retries nor rolls back and surfaces the error", func() {
			rec := engine.Decide(newUpdate(0), classify.CategoryValidation)
			Expect(rec.Retry).To(BeFalse())
			Expect(rec.Rollback).To(BeFalse())
			Expect(rec.Hint).To(Equal(policy.HintSurface))
		})
	})

	Context("for unknown", func() {
		It("grants exactly one retry", func() {
			rec := engine.Decide(newUpdate(0), classify.CategoryUnknown)
			Expect(rec.Retry).To(BeTrue())

			rec = engine.Decide(newUpdate(1), classify.CategoryUnknown)
			Expect(rec.Retry).To(BeFalse())
			Expect(rec.Rollback).To(BeTrue())
		})
	})
})
