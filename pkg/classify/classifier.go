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

// Package classify maps raw repository failures into the fixed set of
// categories the policy engine understands. Classification is table-driven:
// supporting a new backend means prepending rules, not editing call sites.
package classify

import (
	"context"
	"errors"
	"net"
)

// Domain sentinels repositories can wrap so the default table recognizes
// their failures without backend-specific rules.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrAlreadyExists   = errors.New("already exists")
	ErrVersionMismatch = errors.New("version mismatch")
	ErrInvalidInput    = errors.New("invalid input")
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// Rule matches one class of failure. Rules are evaluated in order; the first
// rule that returns ok wins.
type Rule struct {
	// Name identifies the rule in logs.
	Name string
	// Classify returns the category for err and whether the rule applies.
	Classify func(err error) (Category, bool)
}

// Classifier classifies errors using an ordered rule table.
type Classifier struct {
	rules []Rule
}

// New returns a Classifier with the default rule table. Extra rules are
// evaluated before the defaults so backends can override them.
func New(extra ...Rule) *Classifier {
	return &Classifier{rules: append(extra, defaultRules()...)}
}

// Classify maps err to a Category. A nil error classifies as Unknown; callers
// should not classify successes. Errors already wrapped by WithCategory keep
// their category.
func (c *Classifier) Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var ce *CategorizedError
	if errors.As(err, &ce) {
		return ce.Category
	}

	for _, rule := range c.rules {
		if cat, ok := rule.Classify(err); ok {
			return cat
		}
	}

	return CategoryUnknown
}

func defaultRules() []Rule {
	return []Rule{
		{
			Name: "context cancellation",
			// A cancelled in-flight call is a transient network-class
			// failure, never silently dropped.
			Classify: func(err error) (Category, bool) {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return CategoryNetwork, true
				}
				return 0, false
			},
		},
		{
			Name: "transport failure",
			Classify: func(err error) (Category, bool) {
				var netErr net.Error
				if errors.As(err, &netErr) {
					return CategoryNetwork, true
				}
				return 0, false
			},
		},
		{
			Name: "http status",
			Classify: func(err error) (Category, bool) {
				var sc StatusCoder
				if errors.As(err, &sc) {
					return categoryForStatus(sc.StatusCode()), true
				}
				return 0, false
			},
		},
		{
			Name: "domain authorization",
			Classify: func(err error) (Category, bool) {
				if errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrUnauthorized) {
					return CategoryAuthorization, true
				}
				return 0, false
			},
		},
		{
			Name: "domain conflict",
			Classify: func(err error) (Category, bool) {
				if errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrVersionMismatch) {
					return CategoryConflict, true
				}
				return 0, false
			},
		},
		{
			Name: "domain validation",
			Classify: func(err error) (Category, bool) {
				if errors.Is(err, ErrInvalidInput) {
					return CategoryValidation, true
				}
				return 0, false
			},
		},
	}
}

// statusTable maps specific HTTP status codes to categories. Codes not
// listed fall through to the 5xx range check in categoryForStatus.
var statusTable = map[int]Category{
	400: CategoryValidation,
	401: CategoryAuthorization,
	403: CategoryAuthorization,
	408: CategoryNetwork,
	409: CategoryConflict,
	422: CategoryValidation,
	429: CategoryNetwork,
}

func categoryForStatus(code int) Category {
	if cat, ok := statusTable[code]; ok {
		return cat
	}
	if code >= 500 && code < 600 {
		return CategoryServerError
	}
	return CategoryUnknown
}
