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

// Package gate prevents redundant remote calls for rapidly repeated
// identical operations (repeated mark-as-read taps, repeated "load recent"
// calls). The gate prevents issuing duplicate calls; the ledger prevents
// racing already-issued ones.
package gate

import (
	"sync"
	"time"

	"github.com/plateshare/optimistic/pkg/clock"
)

// DefaultCooldown is the window within which a repeated call for the same
// key is rejected.
const DefaultCooldown = 2 * time.Second

// Gate tracks the last invocation per logical key. It is pure bookkeeping:
// no network, no side effects beyond its own map.
type Gate struct {
	mu       sync.Mutex
	last     map[string]time.Time
	clk      clock.Clock
	cooldown time.Duration
}

// New creates a Gate. A non-positive cooldown falls back to DefaultCooldown;
// a nil clock falls back to the system clock.
func New(clk clock.Clock, cooldown time.Duration) *Gate {
	if clk == nil {
		clk = clock.System()
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Gate{
		last:     make(map[string]time.Time),
		clk:      clk,
		cooldown: cooldown,
	}
}

// ShouldProceed reports whether a call for the key may proceed under the
// gate's default cooldown, recording the invocation if so.
func (g *Gate) ShouldProceed(key string) bool {
	return g.ShouldProceedWithin(key, g.cooldown)
}

// ShouldProceedWithin is ShouldProceed with a per-call cooldown, for call
// sites whose window differs from the feature default.
func (g *Gate) ShouldProceedWithin(key string, cooldown time.Duration) bool {
	if cooldown <= 0 {
		cooldown = g.cooldown
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clk.Now()
	if prev, ok := g.last[key]; ok && now.Sub(prev) < cooldown {
		return false
	}

	g.last[key] = now
	return true
}

// Reset clears the cooldown for a key, e.g. after an explicit user "try
// again".
func (g *Gate) Reset(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, key)
}

// Prune drops entries older than the given age to keep the map bounded on
// long-lived screens.
func (g *Gate) Prune(olderThan time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.clk.Now().Add(-olderThan)
	for key, t := range g.last {
		if t.Before(cutoff) {
			delete(g.last, key)
		}
	}
}
