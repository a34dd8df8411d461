// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/penny-vault/pvfin/data"
	"github.com/rs/zerolog/log"
)

// RetryPolicy controls how failed provider calls are retried
type RetryPolicy struct {
	// MaxAttempts is the total number of calls including the first one
	MaxAttempts int

	// Delay is the wait between attempts unless the provider asked for a
	// different wait with a RateLimitError
	Delay time.Duration
}

// DefaultRetryPolicy tries each call three times a minute apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       time.Minute,
	}
}

// rateLimitBackOff waits a fixed delay between attempts unless the last
// failure carried a retry-after hint
type rateLimitBackOff struct {
	delay      time.Duration
	retryAfter time.Duration
}

func (b *rateLimitBackOff) NextBackOff() time.Duration {
	if b.retryAfter > 0 {
		wait := b.retryAfter
		b.retryAfter = 0
		return wait
	}
	return b.delay
}

func (b *rateLimitBackOff) Reset() {
	b.retryAfter = 0
}

func retry[T any](ctx context.Context, policy RetryPolicy, name string, op func() (T, error)) (T, error) {
	var result T

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	wait := &rateLimitBackOff{delay: policy.Delay}
	bo := backoff.WithContext(backoff.WithMaxRetries(wait, uint64(attempts-1)), ctx)

	err := backoff.RetryNotify(func() error {
		val, err := op()
		if err != nil {
			var rateLimited *RateLimitError
			if errors.As(err, &rateLimited) {
				wait.retryAfter = rateLimited.RetryAfter
			}

			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}

			return err
		}

		result = val
		return nil
	}, bo, func(err error, next time.Duration) {
		log.Warn().Err(err).Str("Call", name).Dur("RetryIn", next).Msg("provider call failed; retrying")
	})

	return result, err
}

// retryClient retries every call of the wrapped client according to policy
type retryClient struct {
	next   Client
	policy RetryPolicy
}

// WithRetry wraps client so each call is retried according to policy
func WithRetry(client Client, policy RetryPolicy) Client {
	return &retryClient{
		next:   client,
		policy: policy,
	}
}

func (rc *retryClient) Name() string {
	return rc.next.Name()
}

func (rc *retryClient) FetchProfile(ctx context.Context, ticker string) (*data.Table, error) {
	return retry(ctx, rc.policy, "FetchProfile", func() (*data.Table, error) {
		return rc.next.FetchProfile(ctx, ticker)
	})
}

func (rc *retryClient) FetchStatement(ctx context.Context, ticker string, statement Statement, period Period) (*data.Table, error) {
	return retry(ctx, rc.policy, "FetchStatement", func() (*data.Table, error) {
		return rc.next.FetchStatement(ctx, ticker, statement, period)
	})
}

func (rc *retryClient) FetchPriceHistory(ctx context.Context, ticker, start, end string) (*data.Table, error) {
	return retry(ctx, rc.policy, "FetchPriceHistory", func() (*data.Table, error) {
		return rc.next.FetchPriceHistory(ctx, ticker, start, end)
	})
}

func (rc *retryClient) FetchListing(ctx context.Context) ([]*Listing, error) {
	return retry(ctx, rc.policy, "FetchListing", func() ([]*Listing, error) {
		return rc.next.FetchListing(ctx)
	})
}
