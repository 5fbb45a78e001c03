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

package chainhead

import (
	"log/slog"
	"time"

	"github.com/blinklabs-io/gosubstrate/protocol/followstream"
)

const (
	DefaultTransactionTimeout = 4 * time.Minute

	// Bound on stopping an abandoned operation
	stopTimeout = 5 * time.Second
)

// Config is used to configure a chainHead backend
type Config struct {
	Follow             followstream.Config
	WithRuntime        bool
	TransactionTimeout time.Duration
	// Wraps the function that opens follow subscriptions, for example to
	// record them
	SubscribeWrapper   func(followstream.SubscribeFunc) followstream.SubscribeFunc
	Logger             *slog.Logger
}

// ChainHeadOptionFunc represents a function used to modify the chainHead
// backend config
type ChainHeadOptionFunc func(*Config)

// NewConfig returns a new chainHead backend config object with the provided
// options
func NewConfig(options ...ChainHeadOptionFunc) Config {
	c := Config{
		Follow:             followstream.NewConfig(),
		WithRuntime:        true,
		TransactionTimeout: DefaultTransactionTimeout,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithFollowConfig specifies the block pinning configuration
func WithFollowConfig(cfg followstream.Config) ChainHeadOptionFunc {
	return func(c *Config) {
		c.Follow = cfg
	}
}

// WithRuntime specifies whether the follow subscription reports runtime
// updates. CurrentRuntimeVersion is unsupported without them
func WithRuntime(withRuntime bool) ChainHeadOptionFunc {
	return func(c *Config) {
		c.WithRuntime = withRuntime
	}
}

// WithTransactionTimeout specifies how long a submitted transaction is watched
// before giving up
func WithTransactionTimeout(timeout time.Duration) ChainHeadOptionFunc {
	return func(c *Config) {
		c.TransactionTimeout = timeout
	}
}

// WithSubscribeWrapper specifies a function that wraps the opening of
// follow subscriptions
func WithSubscribeWrapper(
	wrapper func(followstream.SubscribeFunc) followstream.SubscribeFunc,
) ChainHeadOptionFunc {
	return func(c *Config) {
		c.SubscribeWrapper = wrapper
	}
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ChainHeadOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}
