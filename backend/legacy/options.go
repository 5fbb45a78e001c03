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

package legacy

import (
	"log/slog"
	"time"
)

const (
	// Number of keys fetched per state_getKeysPaged call
	DefaultKeysPageSize       = 32
	DefaultTransactionTimeout = 4 * time.Minute
)

// Config is used to configure a legacy backend
type Config struct {
	KeysPageSize       uint32
	TransactionTimeout time.Duration
	Logger             *slog.Logger
}

// LegacyOptionFunc represents a function used to modify the legacy backend
// config
type LegacyOptionFunc func(*Config)

// NewConfig returns a new legacy backend config object with the provided
// options
func NewConfig(options ...LegacyOptionFunc) Config {
	c := Config{
		KeysPageSize:       DefaultKeysPageSize,
		TransactionTimeout: DefaultTransactionTimeout,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithKeysPageSize specifies how many storage keys are fetched at a time
func WithKeysPageSize(pageSize uint32) LegacyOptionFunc {
	return func(c *Config) {
		c.KeysPageSize = pageSize
	}
}

// WithTransactionTimeout specifies how long a submitted transaction is watched
// before giving up
func WithTransactionTimeout(timeout time.Duration) LegacyOptionFunc {
	return func(c *Config) {
		c.TransactionTimeout = timeout
	}
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) LegacyOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}
