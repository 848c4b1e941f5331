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

// Package config loads coordinator tuning from YAML with environment
// overrides. Every constant in the retry and debounce design is a default
// here, not load-bearing: hosts tune per feature.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/plateshare/optimistic/pkg/policy"
)

// Config is the full coordinator configuration. Durations are plain
// millisecond/second integers so YAML and env values stay unambiguous.
type Config struct {
	Retry     RetryConfig     `yaml:"retry"`
	Gate      GateConfig      `yaml:"gate"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Supersede SupersedeConfig `yaml:"supersede"`
	Sentry    SentryConfig    `yaml:"sentry"`
}

// RetryConfig tunes the policy engine.
type RetryConfig struct {
	// MaxRetries bounds retries for network and server errors.
	MaxRetries int `yaml:"maxRetries" env:"SYNC_MAX_RETRIES" validate:"gte=0,lte=10"`
	// UnknownMaxRetries bounds retries for unclassified errors.
	UnknownMaxRetries int `yaml:"unknownMaxRetries" env:"SYNC_UNKNOWN_MAX_RETRIES" validate:"gte=0,lte=10"`
	// InitialBackoffMs is the delay before the first retry.
	InitialBackoffMs int `yaml:"initialBackoffMs" env:"SYNC_INITIAL_BACKOFF_MS" validate:"gt=0"`
	// BackoffFactor multiplies the delay per retry.
	BackoffFactor float64 `yaml:"backoffFactor" env:"SYNC_BACKOFF_FACTOR" validate:"gte=1"`
	// MaxBackoffMs caps the delay.
	MaxBackoffMs int `yaml:"maxBackoffMs" env:"SYNC_MAX_BACKOFF_MS" validate:"gt=0"`
}

// GateConfig tunes the rate/debounce gate.
type GateConfig struct {
	// DefaultCooldownMs is the window within which a repeated call for
	// the same key is rejected.
	DefaultCooldownMs int `yaml:"defaultCooldownMs" env:"SYNC_GATE_COOLDOWN_MS" validate:"gt=0"`
}

// LedgerConfig tunes the pending-update ledger.
type LedgerConfig struct {
	// RetentionSeconds is how long terminal entries stay queryable for
	// late-push duplicate detection.
	RetentionSeconds int `yaml:"retentionSeconds" env:"SYNC_LEDGER_RETENTION_S" validate:"gt=0"`
}

// SupersedeConfig tunes how a superseding mutation waits for the conflicting
// update it cancelled.
type SupersedeConfig struct {
	// WaitMs bounds the wait for the cancelled update to resolve.
	WaitMs int `yaml:"waitMs" env:"SYNC_SUPERSEDE_WAIT_MS" validate:"gt=0"`
	// PollIntervalMs is the resolution poll cadence.
	PollIntervalMs int `yaml:"pollIntervalMs" env:"SYNC_SUPERSEDE_POLL_MS" validate:"gt=0"`
}

// SentryConfig configures optional crash reporting.
type SentryConfig struct {
	DSN     string `yaml:"dsn,omitempty" env:"SENTRY_DSN"`
	Release string `yaml:"release,omitempty" env:"SENTRY_RELEASE"`
}

// Default returns the stock configuration: 400ms base backoff, factor 2,
// 3 retries, 2s gate cooldown, 30s ledger retention.
func Default() Config {
	return Config{
		Retry: RetryConfig{
			MaxRetries:        3,
			UnknownMaxRetries: 1,
			InitialBackoffMs:  400,
			BackoffFactor:     2,
			MaxBackoffMs:      10_000,
		},
		Gate: GateConfig{
			DefaultCooldownMs: 2_000,
		},
		Ledger: LedgerConfig{
			RetentionSeconds: 30,
		},
		Supersede: SupersedeConfig{
			WaitMs:         2_000,
			PollIntervalMs: 10,
		},
	}
}

// Load reads the YAML file at path (a missing file yields the defaults),
// applies environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults only.
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// PolicyConfig maps the retry section onto the policy engine's config.
func (c Config) PolicyConfig() policy.Config {
	return policy.Config{
		MaxRetries:        c.Retry.MaxRetries,
		UnknownMaxRetries: c.Retry.UnknownMaxRetries,
		InitialBackoff:    time.Duration(c.Retry.InitialBackoffMs) * time.Millisecond,
		BackoffFactor:     c.Retry.BackoffFactor,
		MaxBackoff:        time.Duration(c.Retry.MaxBackoffMs) * time.Millisecond,
	}
}

// GateCooldown returns the gate's default cooldown window.
func (c Config) GateCooldown() time.Duration {
	return time.Duration(c.Gate.DefaultCooldownMs) * time.Millisecond
}

// LedgerRetention returns the terminal-entry retention window.
func (c Config) LedgerRetention() time.Duration {
	return time.Duration(c.Ledger.RetentionSeconds) * time.Second
}

// SupersedeWait returns the bound on waiting for a superseded update.
func (c Config) SupersedeWait() time.Duration {
	return time.Duration(c.Supersede.WaitMs) * time.Millisecond
}

// SupersedePollInterval returns the supersede resolution poll cadence.
func (c Config) SupersedePollInterval() time.Duration {
	return time.Duration(c.Supersede.PollIntervalMs) * time.Millisecond
}
