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

// Package clock provides an injectable time source so that backoff delays
// and debounce cooldowns can be tested without real sleeps.
package clock

import "time"

// Clock is the time source used by the coordinator, policy engine and gate.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that fires once the given duration has elapsed.
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

// System returns a Clock backed by the wall clock.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
