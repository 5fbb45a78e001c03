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

// Package substrate implements a client for Substrate based nodes built on
// their JSON-RPC interface.
//
// A node may serve the archive, chainHead and legacy method families in any
// combination. The Client probes which of them a node supports and combines
// the matching backends, so that each operation is served by the best
// available one. Blocks are followed through a single shared chainHead
// follow subscription when the node supports it.
//
// This package is the main entry point into this library. The other packages can
// be used outside of this one, but it's not a primary design goal.
package substrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/gosubstrate/backend"
	"github.com/blinklabs-io/gosubstrate/backend/archive"
	"github.com/blinklabs-io/gosubstrate/backend/chainhead"
	"github.com/blinklabs-io/gosubstrate/backend/legacy"
	"github.com/blinklabs-io/gosubstrate/protocol/followstream"
	"github.com/blinklabs-io/gosubstrate/rpc"
	"github.com/blinklabs-io/gosubstrate/rpc/wsclient"
)

const closeTimeout = 5 * time.Second

var (
	// ErrAlreadyConnected is returned by Dial when the Client already has an RPC client
	ErrAlreadyConnected = errors.New("client already connected")
	// ErrGenesisMismatch is returned when the node reports an unexpected genesis hash
	ErrGenesisMismatch = errors.New("genesis hash mismatch")
	// ErrFollowUnavailable is returned by Follow when the node does not serve chainHead methods
	ErrFollowUnavailable = errors.New("chainHead follow subscription unavailable")
)

// The Client type combines the backends that a node supports behind a single backend.Backend
type Client struct {
	rpcClient       rpc.Client
	wsClient        *wsclient.Client
	url             string
	genesisHash     rpc.Hash
	logger          *slog.Logger
	wsOptions       []wsclient.ClientOptionFunc
	archiveConfig   *archive.Config
	chainHeadConfig *chainhead.Config
	legacyConfig    *legacy.Config
	methods         *rpc.Methods
	support         backend.Support
	chainHead       *chainhead.Backend
	backend         *backend.Combined
	onceClose       sync.Once
	closeError      error
}

// NewClient returns a new Client object with the specified options. If an RPC client or URL is provided, the
// node is probed for its supported methods and the backends are started. An error is returned if that fails
func NewClient(ctx context.Context, options ...ClientOptionFunc) (*Client, error) {
	c := &Client{}
	// Apply provided options functions
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.rpcClient != nil {
		if err := c.setupClient(ctx); err != nil {
			return nil, err
		}
	} else if c.url != "" {
		if err := c.Dial(ctx, c.url); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Dial connects to a websocket endpoint. It is a convenience function for when no RPC client or URL was
// provided when calling NewClient()
func (c *Client) Dial(ctx context.Context, url string) error {
	if c.rpcClient != nil {
		return ErrAlreadyConnected
	}
	options := append(
		[]wsclient.ClientOptionFunc{wsclient.WithLogger(c.logger)},
		c.wsOptions...,
	)
	wsClient, err := wsclient.Dial(ctx, url, options...)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	c.url = url
	c.wsClient = wsClient
	c.rpcClient = wsClient
	if err := c.setupClient(ctx); err != nil {
		_ = wsClient.Close()
		c.wsClient = nil
		c.rpcClient = nil
		return err
	}
	return nil
}

// Close stops the follow subscription and closes the websocket connection if the Client created it
func (c *Client) Close() error {
	c.onceClose.Do(func() {
		var errs []error
		if c.chainHead != nil {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			errs = append(errs, c.chainHead.Close(ctx))
			cancel()
		}
		if c.wsClient != nil {
			errs = append(errs, c.wsClient.Close())
		}
		c.closeError = errors.Join(errs...)
	})
	return c.closeError
}

// Backend returns the combined backend. It is nil until the Client is connected
func (c *Client) Backend() *backend.Combined {
	return c.backend
}

// Methods returns the typed RPC bindings used by the backends
func (c *Client) Methods() *rpc.Methods {
	return c.methods
}

// Support reports which method families the node serves
func (c *Client) Support() backend.Support {
	return c.support
}

// ChainHead returns the chainHead backend, or nil if the node does not serve chainHead methods
func (c *Client) ChainHead() *chainhead.Backend {
	return c.chainHead
}

// Follow returns a new subscription to the shared follow subscription
func (c *Client) Follow() (*followstream.Subscription, error) {
	if c.chainHead == nil {
		return nil, ErrFollowUnavailable
	}
	return c.chainHead.Follow(), nil
}

func (c *Client) setupClient(ctx context.Context) error {
	c.methods = rpc.NewMethods(c.rpcClient)
	archiveCfg := archive.NewConfig()
	if c.archiveConfig != nil {
		archiveCfg = *c.archiveConfig
	}
	if archiveCfg.Logger == nil {
		archiveCfg.Logger = c.logger
	}
	chainHeadCfg := chainhead.NewConfig()
	if c.chainHeadConfig != nil {
		chainHeadCfg = *c.chainHeadConfig
	}
	if chainHeadCfg.Logger == nil {
		chainHeadCfg.Logger = c.logger
	}
	legacyCfg := legacy.NewConfig()
	if c.legacyConfig != nil {
		legacyCfg = *c.legacyConfig
	}
	if legacyCfg.Logger == nil {
		legacyCfg.Logger = c.logger
	}
	// Nothing is sent to the node until the chainHead backend is started
	chainHead := chainhead.New(c.methods, &chainHeadCfg)
	combinedCfg := backend.NewConfig(backend.WithLogger(c.logger))
	combined, support, err := backend.NewCombinedFromMethods(
		ctx,
		c.methods,
		backend.Backends{
			Archive:   archive.New(c.methods, &archiveCfg),
			ChainHead: chainHead,
			Legacy:    legacy.New(c.methods, &legacyCfg),
		},
		&combinedCfg,
	)
	if err != nil {
		return fmt.Errorf("probe methods: %w", err)
	}
	c.support = support
	if !support.Archive && !support.ChainHead && !support.Legacy {
		return fmt.Errorf(
			"node serves no supported method family: %w",
			backend.ErrNoBackendAvailable,
		)
	}
	if support.ChainHead {
		c.chainHead = chainHead
		c.chainHead.Start()
	}
	c.backend = combined
	c.logger.Debug(
		"client ready",
		"component", "network",
		"role", "client",
		"archive", support.Archive,
		"chain_head", support.ChainHead,
		"legacy", support.Legacy,
	)
	if c.genesisHash != (rpc.Hash{}) {
		hash, err := c.backend.GenesisHash(ctx)
		if err == nil && hash != c.genesisHash {
			err = fmt.Errorf(
				"%w: node reports %s, wanted %s",
				ErrGenesisMismatch,
				hash.Hex(),
				c.genesisHash.Hex(),
			)
		}
		if err != nil {
			c.stopChainHead()
			return err
		}
	}
	return nil
}

func (c *Client) stopChainHead() {
	if c.chainHead == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_ = c.chainHead.Close(ctx)
	c.chainHead = nil
}
