// Copyright 2025 UMH Systems GmbH
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

// Package backoff classifies failures as transient or permanent and retries
// the transient ones on an exponential schedule.
package backoff

import (
	"context"
	"time"

	cenkalti "github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

const (
	// DefaultInitialInterval is the delay before the first retry.
	DefaultInitialInterval = 50 * time.Millisecond

	// DefaultMaxInterval caps the delay between consecutive retries.
	DefaultMaxInterval = time.Second

	// DefaultMaxElapsedTime is the total retry budget. Once it is spent the
	// last error is handed back to the caller.
	DefaultMaxElapsedTime = 5 * time.Second
)

// Config tunes the retry schedule for one operation.
type Config struct {
	// Name labels the operation in retry logs.
	Name string

	// InitialInterval is the delay before the first retry. Subsequent
	// delays grow exponentially up to MaxInterval.
	InitialInterval time.Duration

	// MaxInterval caps the delay between consecutive retries.
	MaxInterval time.Duration

	// MaxElapsedTime is the total retry budget.
	MaxElapsedTime time.Duration

	// Logger receives one debug line per retry. May be nil.
	Logger *zap.SugaredLogger
}

// DefaultConfig returns the schedule used for fast local operations such as
// config file reads: a quick first retry and a bounded total budget, so a
// wedged disk surfaces as an error rather than a hang.
func DefaultConfig(name string, logger *zap.SugaredLogger) Config {
	return Config{
		Name:            name,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		MaxElapsedTime:  DefaultMaxElapsedTime,
		Logger:          logger,
	}
}

// Retry runs op until it succeeds, fails permanently, exhausts the schedule,
// or ctx ends. Errors carrying CategoryPermanent abort the loop immediately;
// every other error is treated as transient and retried. The returned error
// is the last error op produced.
func Retry(ctx context.Context, cfg Config, op func() error) error {
	expo := cenkalti.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		expo.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		expo.MaxInterval = cfg.MaxInterval
	}
	if cfg.MaxElapsedTime > 0 {
		expo.MaxElapsedTime = cfg.MaxElapsedTime
	}

	attempt := 0
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}

		if IsPermanentError(err) {
			return cenkalti.Permanent(err)
		}

		attempt++
		if cfg.Logger != nil {
			cfg.Logger.Debugf("%s failed (attempt %d), backing off: %v", cfg.Name, attempt, err)
		}

		return err
	}

	return cenkalti.Retry(wrapped, cenkalti.WithContext(expo, ctx))
}
