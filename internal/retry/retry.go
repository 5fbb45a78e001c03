// Copyright 2026 Blink Labs Software
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

// Package retry retries RPC calls that failed because the connection dropped
// and is being re-established
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/blinklabs-io/gosubstrate/rpc"
)

const (
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
)

// Policy controls how often and how fast calls are retried
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *slog.Logger
}

// DefaultPolicy returns the policy used when none is given
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

// Do calls fn until it succeeds, fails with an error other than
// rpc.ErrDisconnectedWillReconnect, or runs out of attempts
func Do(ctx context.Context, policy Policy, fn func(context.Context) error) error {
	_, err := Value(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is like Do for calls that return a value
func Value[T any](
	ctx context.Context,
	policy Policy,
	fn func(context.Context) (T, error),
) (T, error) {
	maxAttempts := max(policy.MaxAttempts, 1)
	backoff := policy.InitialBackoff
	for attempt := 1; ; attempt++ {
		ret, err := fn(ctx)
		if err == nil || !rpc.IsDisconnectedWillReconnect(err) || attempt >= maxAttempts {
			return ret, err
		}
		if policy.Logger != nil {
			policy.Logger.Debug(
				"retrying request after disconnect",
				"component", "network",
				"role", "client",
				"attempt", attempt,
				"backoff", backoff,
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
}
