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

package wsclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultReconnectInterval    = 1 * time.Second
	DefaultMaxReconnectInterval = 30 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
)

// Config is used to configure the websocket client
type Config struct {
	Logger               *slog.Logger
	Dialer               *websocket.Dialer
	Header               http.Header
	Reconnect            bool
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	WriteTimeout         time.Duration
}

// ClientOptionFunc represents a function used to modify the client config
type ClientOptionFunc func(*Config)

// NewConfig returns a new client config object with the provided options
func NewConfig(options ...ClientOptionFunc) Config {
	c := Config{
		Dialer:               websocket.DefaultDialer,
		Reconnect:            true,
		ReconnectInterval:    DefaultReconnectInterval,
		MaxReconnectInterval: DefaultMaxReconnectInterval,
		WriteTimeout:         DefaultWriteTimeout,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ClientOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithDialer specifies the websocket dialer to use
func WithDialer(dialer *websocket.Dialer) ClientOptionFunc {
	return func(c *Config) {
		c.Dialer = dialer
	}
}

// WithHeader specifies extra HTTP headers to send with the websocket handshake
func WithHeader(header http.Header) ClientOptionFunc {
	return func(c *Config) {
		c.Header = header
	}
}

// WithReconnect specifies whether the client re-establishes a dropped
// connection. Outstanding calls and subscriptions fail with
// rpc.ErrDisconnectedWillReconnect when it does
func WithReconnect(reconnect bool) ClientOptionFunc {
	return func(c *Config) {
		c.Reconnect = reconnect
	}
}

// WithReconnectInterval specifies the initial and maximum delay between
// reconnect attempts
func WithReconnectInterval(initial, maximum time.Duration) ClientOptionFunc {
	return func(c *Config) {
		c.ReconnectInterval = initial
		c.MaxReconnectInterval = maximum
	}
}

// WithWriteTimeout specifies the timeout for writing a single message
func WithWriteTimeout(timeout time.Duration) ClientOptionFunc {
	return func(c *Config) {
		c.WriteTimeout = timeout
	}
}
