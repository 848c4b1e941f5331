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

package classify

import "errors"

// Category indicates how the policy engine should respond to a given failure.
type Category int

const (
	// CategoryUnknown is anything the rule table does not recognize.
	// Policy grants it a single retry before rollback.
	CategoryUnknown Category = iota

	// CategoryNetwork covers transport, timeout and connectivity failures,
	// including cancelled in-flight calls. Retryable.
	CategoryNetwork

	// CategoryAuthorization covers HTTP 401/403 and domain
	// unauthenticated/unauthorized errors. Never retried; the caller is
	// signalled to re-authenticate.
	CategoryAuthorization

	// CategoryConflict covers HTTP 409 and domain "already exists" or
	// version-mismatch errors. The local optimistic state is stale by
	// definition, so policy always rolls back and asks for a refetch.
	CategoryConflict

	// CategoryValidation covers HTTP 400/422 and domain validation
	// failures. Never retried and never silently rolled back; the message
	// is surfaced raw to the caller.
	CategoryValidation

	// CategoryServerError covers HTTP 5xx. Retryable.
	CategoryServerError
)

// String returns the category name used in logs and events.
func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryAuthorization:
		return "authorization"
	case CategoryConflict:
		return "conflict"
	case CategoryValidation:
		return "validation"
	case CategoryServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// CategorizedError is a wrapper that includes the underlying error plus a
// Category. Repositories that already know the category of a failure can
// return one to bypass the rule table.
type CategorizedError struct {
	Err      error
	Category Category
}

// Error returns the original error message.
func (ce *CategorizedError) Error() string {
	return ce.Err.Error()
}

// Unwrap returns the underlying wrapped error.
func (ce *CategorizedError) Unwrap() error {
	return ce.Err
}

// IsCategory checks if the CategorizedError has the specified category.
func (ce *CategorizedError) IsCategory(category Category) bool {
	return ce.Category == category
}

// WithCategory wraps err with an explicit category.
func WithCategory(err error, category Category) error {
	return &CategorizedError{Err: err, Category: category}
}

// IsCategory reports whether err carries the given pre-assigned category.
func IsCategory(err error, category Category) bool {
	var ce *CategorizedError
	return errors.As(err, &ce) && ce.IsCategory(category)
}
