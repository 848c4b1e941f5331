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

package classify_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/plateshare/optimistic/pkg/classify"
)

func TestClassify(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Classify Suite")
}

// statusError carries an HTTP status code, like errors returned by REST
// repositories.
type statusError struct {
	code int
}

func (e *statusError) Error() string   { return fmt.Sprintf("http status %d", e.code) }
func (e *statusError) StatusCode() int { return e.code }

// timeoutError satisfies net.Error.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ = Describe("Classifier", func() {
	var classifier *classify.Classifier

	BeforeEach(func() {
		classifier = classify.New()
	})

	DescribeTable("maps HTTP status codes",
		func(code int, expected classify.Category) {
			Expect(classifier.Classify(&statusError{code: code})).To(Equal(expected))
		},
		Entry("400 is validation", 400, classify.CategoryValidation),
		Entry("401 is authorization", 401, classify.CategoryAuthorization),
		Entry("403 is authorization", 403, classify.CategoryAuthorization),
		Entry("408 is network", 408, classify.CategoryNetwork),
		Entry("409 is conflict", 409, classify.CategoryConflict),
		Entry("422 is validation", 422, classify.CategoryValidation),
		Entry("429 is network", 429, classify.CategoryNetwork),
		Entry("500 is server error", 500, classify.CategoryServerError),
		Entry("503 is server error", 503, classify.CategoryServerError),
		Entry("418 is unknown", 418, classify.CategoryUnknown),
	)

	DescribeTable("maps domain sentinels",
		func(err error, expected classify.Category) {
			wrapped := fmt.Errorf("repository: %w", err)
			Expect(classifier.Classify(wrapped)).To(Equal(expected))
		},
		Entry("unauthenticated", classify.ErrUnauthenticated, classify.CategoryAuthorization),
		Entry("unauthorized", classify.ErrUnauthorized, classify.CategoryAuthorization),
		Entry("already exists", classify.ErrAlreadyExists, classify.CategoryConflict),
		Entry("version mismatch", classify.ErrVersionMismatch, classify.CategoryConflict),
		Entry("invalid input", classify.ErrInvalidInput, classify.CategoryValidation),
	)

	It("classifies transport failures as network", func() {
		Expect(classifier.Classify(timeoutError{})).To(Equal(classify.CategoryNetwork))
	})

	It("classifies cancellation as network so rollback policy applies", func() {
		Expect(classifier.Classify(context.Canceled)).To(Equal(classify.CategoryNetwork))

		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()
		Expect(classifier.Classify(ctx.Err())).To(Equal(classify.CategoryNetwork))
	})

	It("classifies unrecognized errors as unknown", func() {
		Expect(classifier.Classify(errors.New("something odd"))).To(Equal(classify.CategoryUnknown))
	})

	It("keeps pre-assigned categories", func() {
		err := classify.WithCategory(errors.New("replica lag"), classify.CategoryServerError)
		Expect(classifier.Classify(err)).To(Equal(classify.CategoryServerError))
		Expect(classify.IsCategory(err, classify.CategoryServerError)).To(BeTrue())
		Expect(classify.IsCategory(err, classify.CategoryNetwork)).To(BeFalse())
	})

	It("evaluates extra rules before the defaults", func() {
		custom := classify.Rule{
			Name: "supabase rate limit",
			Classify: func(err error) (classify.Category, bool) {
				var se *statusError
				if errors.As(err, &se) && se.code == 429 {
					return classify.CategoryServerError, true
				}
				return 0, false
			},
		}

		extended := classify.New(custom)
		Expect(extended.Classify(&statusError{code: 429})).To(Equal(classify.CategoryServerError))
		// Other codes still hit the default table.
		Expect(extended.Classify(&statusError{code: 409})).To(Equal(classify.CategoryConflict))
	})
})
