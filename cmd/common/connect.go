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

package common

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	substrate "github.com/blinklabs-io/gosubstrate"
	"github.com/blinklabs-io/gosubstrate/backend/chainhead"
	"github.com/blinklabs-io/gosubstrate/backend/legacy"
	"github.com/blinklabs-io/gosubstrate/protocol/followstream"
	"github.com/blinklabs-io/gosubstrate/rpc/wsclient"
)

// NewLogger returns a text logger on stderr
func NewLogger(f *GlobalFlags) *slog.Logger {
	level := slog.LevelInfo
	if f.Debug {
		level = slog.LevelDebug
	}
	return slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	)
}

// ClientOptions builds the client options for the parsed flags and config
func ClientOptions(f *GlobalFlags, logger *slog.Logger) []substrate.ClientOptionFunc {
	cfg := f.Config
	header := make(http.Header)
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}
	options := []substrate.ClientOptionFunc{
		substrate.WithLogger(logger),
		substrate.WithWebsocketOptions(
			wsclient.WithLogger(logger),
			wsclient.WithHeader(header),
			wsclient.WithReconnect(cfg.Reconnect),
		),
		substrate.WithChainHeadConfig(ChainHeadConfig(cfg, logger)),
		substrate.WithLegacyConfig(
			legacy.NewConfig(
				legacy.WithLogger(logger),
				legacy.WithKeysPageSize(cfg.Legacy.KeysPageSize),
				legacy.WithTransactionTimeout(cfg.Tx.Timeout),
			),
		),
	}
	if cfg.URL != "" {
		options = append(options, substrate.WithURL(cfg.URL))
	}
	if network := substrate.NetworkByName(cfg.Network); network != substrate.NetworkInvalid {
		options = append(options, substrate.WithNetwork(network))
	}
	return options
}

// ChainHeadConfig builds the chainHead backend config from cfg and any extra
// options
func ChainHeadConfig(
	cfg *Config,
	logger *slog.Logger,
	options ...chainhead.ChainHeadOptionFunc,
) chainhead.Config {
	options = append(
		[]chainhead.ChainHeadOptionFunc{
			chainhead.WithLogger(logger),
			chainhead.WithRuntime(cfg.Follow.WithRuntime),
			chainhead.WithTransactionTimeout(cfg.Tx.Timeout),
			chainhead.WithFollowConfig(
				followstream.NewConfig(
					followstream.WithLogger(logger),
					followstream.WithMaxBlockLife(cfg.Follow.MaxBlockLife),
					followstream.WithMinBlockLife(cfg.Follow.MinBlockLife),
				),
			),
		},
		options...,
	)
	return chainhead.NewConfig(options...)
}

// CreateClient connects to the configured node or exits. Extra options are
// applied after the ones built from the flags
func CreateClient(
	ctx context.Context,
	f *GlobalFlags,
	logger *slog.Logger,
	options ...substrate.ClientOptionFunc,
) *substrate.Client {
	ctx, cancel := context.WithTimeout(ctx, f.Config.Timeout)
	defer cancel()
	options = append(ClientOptions(f, logger), options...)
	client, err := substrate.NewClient(ctx, options...)
	if err != nil {
		fmt.Printf("Connection failed: %s\n", err)
		os.Exit(1)
	}
	return client
}
