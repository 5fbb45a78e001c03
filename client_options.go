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

package substrate

import (
	"log/slog"

	"github.com/blinklabs-io/gosubstrate/backend/archive"
	"github.com/blinklabs-io/gosubstrate/backend/chainhead"
	"github.com/blinklabs-io/gosubstrate/backend/legacy"
	"github.com/blinklabs-io/gosubstrate/rpc"
	"github.com/blinklabs-io/gosubstrate/rpc/wsclient"
)

// ClientOptionFunc is a type that represents functions that modify the Client config
type ClientOptionFunc func(*Client)

// WithRPCClient specifies an existing JSON-RPC client to use. If none is provided, the Dial() function can be
// used to create one later
func WithRPCClient(rpcClient rpc.Client) ClientOptionFunc {
	return func(c *Client) {
		c.rpcClient = rpcClient
	}
}

// WithURL specifies the websocket endpoint to dial when no RPC client is provided
func WithURL(url string) ClientOptionFunc {
	return func(c *Client) {
		c.url = url
	}
}

// WithNetwork specifies the network. Its public endpoint is dialed unless another URL or RPC client is
// provided, and the node's genesis hash is checked against it
func WithNetwork(network Network) ClientOptionFunc {
	return func(c *Client) {
		if c.url == "" {
			c.url = network.URL
		}
		c.genesisHash = network.GenesisHash
	}
}

// WithGenesisHash specifies the genesis hash the node must report
func WithGenesisHash(hash rpc.Hash) ClientOptionFunc {
	return func(c *Client) {
		c.genesisHash = hash
	}
}

// WithLogger specifies the logger to use. It is passed on to the backends and the websocket client
func WithLogger(logger *slog.Logger) ClientOptionFunc {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithWebsocketOptions specifies options for the websocket client created by Dial()
func WithWebsocketOptions(options ...wsclient.ClientOptionFunc) ClientOptionFunc {
	return func(c *Client) {
		c.wsOptions = append(c.wsOptions, options...)
	}
}

// WithArchiveConfig specifies archive backend config
func WithArchiveConfig(cfg archive.Config) ClientOptionFunc {
	return func(c *Client) {
		c.archiveConfig = &cfg
	}
}

// WithChainHeadConfig specifies chainHead backend config
func WithChainHeadConfig(cfg chainhead.Config) ClientOptionFunc {
	return func(c *Client) {
		c.chainHeadConfig = &cfg
	}
}

// WithLegacyConfig specifies legacy backend config
func WithLegacyConfig(cfg legacy.Config) ClientOptionFunc {
	return func(c *Client) {
		c.legacyConfig = &cfg
	}
}
