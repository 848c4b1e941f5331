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

// Package sentry reports retry-exhaustion failures to Sentry. All functions
// are no-ops until Init is called, so library consumers that do not use
// Sentry pay nothing.
package sentry

import (
	"sync/atomic"
	"time"

	sentrygo "github.com/getsentry/sentry-go"
)

var enabled atomic.Bool

// Init configures the Sentry client. An empty DSN leaves reporting disabled.
func Init(dsn string, release string) error {
	if dsn == "" {
		return nil
	}

	err := sentrygo.Init(sentrygo.ClientOptions{
		Dsn:     dsn,
		Release: release,
	})
	if err != nil {
		return err
	}

	enabled.Store(true)
	return nil
}

// Enabled reports whether Init completed with a non-empty DSN.
func Enabled() bool {
	return enabled.Load()
}

// Flush waits up to the given timeout for buffered events to be sent.
func Flush(timeout time.Duration) {
	if enabled.Load() {
		sentrygo.Flush(timeout)
	}
}
