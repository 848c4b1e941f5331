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

// Package policy is the single place retry semantics are defined. Feature
// code must not invent its own retry loops; it asks the engine what to do
// with a failed update and follows the recommendation.
package policy

import (
	"time"

	"github.com/cenkalti/backoff"

	"github.com/plateshare/optimistic/pkg/classify"
	"github.com/plateshare/optimistic/pkg/mutation"
)

// Hint tells the caller what corrective action to take beyond the mutation
// itself.
type Hint string

const (
	// HintNone means no action beyond the recommendation.
	HintNone Hint = ""
	// HintRefetch asks the caller to refetch authoritative state
	// (conflict: the local optimistic value is stale by definition).
	HintRefetch Hint = "refetch"
	// HintReauthenticate asks the caller to trigger re-authentication.
	HintReauthenticate Hint = "reauthenticate"
	// HintSurface asks the caller to show the raw message to the user
	// (validation: state is left at the decision point).
	HintSurface Hint = "surface"
)

// Recommendation is the policy engine's decision for one failure. For a
// non-terminal decision exactly one of Retry/Rollback is true. Both false
// means "surface the error, keep the optimistic state" — only produced for
// validation failures.
type Recommendation struct {
	Retry    bool
	Rollback bool
	// Delay is the backoff before the retry; meaningful only when Retry.
	Delay time.Duration
	Hint  Hint
}

// Config holds the retry limits and backoff schedule. Constants are
// deliberately configurable, not load-bearing.
type Config struct {
	// MaxRetries bounds retries for Network and ServerError failures.
	MaxRetries int
	// UnknownMaxRetries bounds retries for Unknown failures.
	UnknownMaxRetries int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// BackoffFactor multiplies the delay per retry.
	BackoffFactor float64
	// MaxBackoff caps the delay.
	MaxBackoff time.Duration
}

// DefaultConfig returns the stock schedule: base 400ms, factor 2, 3 attempts.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		UnknownMaxRetries: 1,
		InitialBackoff:    400 * time.Millisecond,
		BackoffFactor:     2,
		MaxBackoff:        10 * time.Second,
	}
}

// Engine decides retry vs. rollback per the policy table.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine. Zero-value config fields fall back to the
// defaults.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.UnknownMaxRetries <= 0 {
		cfg.UnknownMaxRetries = def.UnknownMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	return &Engine{cfg: cfg}
}

// Decide implements the policy table:
//
//	Network, ServerError  retry with exponential backoff up to MaxRetries,
//	                      then rollback
//	Conflict              rollback, hint refetch
//	Authorization         rollback, hint reauthenticate
//	Validation            neither retry nor rollback; surface raw
//	Unknown               one retry, then rollback
func (e *Engine) Decide(u *mutation.PendingUpdate, category classify.Category) Recommendation {
	switch category {
	case classify.CategoryNetwork, classify.CategoryServerError:
		return e.retryOrRollback(u.RetryCount(), e.cfg.MaxRetries)

	case classify.CategoryConflict:
		return Recommendation{Rollback: true, Hint: HintRefetch}

	case classify.CategoryAuthorization:
		return Recommendation{Rollback: true, Hint: HintReauthenticate}

	case classify.CategoryValidation:
		return Recommendation{Hint: HintSurface}

	default:
		return e.retryOrRollback(u.RetryCount(), e.cfg.UnknownMaxRetries)
	}
}

func (e *Engine) retryOrRollback(retryCount, maxRetries int) Recommendation {
	if retryCount >= maxRetries {
		return Recommendation{Rollback: true}
	}
	return Recommendation{Retry: true, Delay: e.Delay(retryCount)}
}

// Delay returns the backoff before retry number retryCount (0-based).
func (e *Engine) Delay(retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.InitialBackoff
	b.Multiplier = e.cfg.BackoffFactor
	b.MaxInterval = e.cfg.MaxBackoff
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 0; i < retryCount; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
