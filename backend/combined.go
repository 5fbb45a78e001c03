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

package backend

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/blinklabs-io/gosubstrate/rpc"
)

// Backends holds one backend per RPC dialect. Unset backends are not used
type Backends struct {
	Archive   Backend
	ChainHead Backend
	Legacy    Backend
}

// Support reports which RPC dialects a node serves
type Support struct {
	Archive   bool
	ChainHead bool
	Legacy    bool
}

// Methods each dialect needs
var (
	ArchiveMethods = []string{
		rpc.MethodArchiveGenesisHash,
		rpc.MethodArchiveHeader,
		rpc.MethodArchiveBody,
		rpc.MethodArchiveCall,
		rpc.MethodArchiveFinalizedHeight,
		rpc.MethodArchiveHashByHeight,
		rpc.MethodArchiveStorage,
	}
	ChainHeadMethods = []string{
		rpc.MethodChainHeadFollow,
		rpc.MethodChainHeadUnpin,
		rpc.MethodChainHeadHeader,
		rpc.MethodChainHeadBody,
		rpc.MethodChainHeadStorage,
		rpc.MethodChainHeadCall,
		rpc.MethodChainHeadContinue,
		rpc.MethodChainHeadStopOperation,
	}
	LegacyMethods = []string{
		rpc.MethodChainGetBlockHash,
		rpc.MethodChainGetHeader,
		rpc.MethodChainGetBlock,
		rpc.MethodChainGetFinalizedHead,
		rpc.MethodStateGetKeysPaged,
		rpc.MethodStateQueryStorageAt,
		rpc.MethodStateCall,
		rpc.MethodStateGetRuntimeVersion,
	}
)

// SupportFromMethods checks a list of method names for the methods of each
// dialect
func SupportFromMethods(methods []string) Support {
	hasAll := func(required []string) bool {
		for _, method := range required {
			if !slices.Contains(methods, method) {
				return false
			}
		}
		return true
	}
	return Support{
		Archive:   hasAll(ArchiveMethods),
		ChainHead: hasAll(ChainHeadMethods),
		Legacy:    hasAll(LegacyMethods),
	}
}

// ProbeSupport asks the node for its methods
func ProbeSupport(ctx context.Context, methods *rpc.Methods) (Support, error) {
	names, err := methods.RPCMethods(ctx)
	if err != nil {
		return Support{}, err
	}
	return SupportFromMethods(names), nil
}

// Config is used to configure a Combined backend
type Config struct {
	Logger *slog.Logger
}

// BackendOptionFunc represents a function used to modify the backend config
type BackendOptionFunc func(*Config)

// NewConfig returns a new backend config object with the provided options
func NewConfig(options ...BackendOptionFunc) Config {
	c := Config{}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) BackendOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Combined tries the configured backends in an order that depends on the
// operation and returns the first success. It implements Backend
type Combined struct {
	logger         *slog.Logger
	readOrder      []namedBackend
	finalizedOrder []namedBackend
	streamOrder    []namedBackend
}

type namedBackend struct {
	name    string
	backend Backend
}

var _ Backend = (*Combined)(nil)

// NewCombined returns a Combined using the set backends
func NewCombined(backends Backends, cfg *Config) *Combined {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	c := &Combined{
		logger: cfg.Logger,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	archive := namedBackend{"archive", backends.Archive}
	chainHead := namedBackend{"chainHead", backends.ChainHead}
	legacy := namedBackend{"legacy", backends.Legacy}
	// Archive blocks don't expire, and chainHead already tracks the
	// finalized block
	c.readOrder = compact(archive, chainHead, legacy)
	c.finalizedOrder = compact(chainHead, archive, legacy)
	c.streamOrder = compact(chainHead, legacy)
	return c
}

// NewCombinedFromMethods probes the node's methods once and uses the
// candidates whose dialect it supports
func NewCombinedFromMethods(
	ctx context.Context,
	methods *rpc.Methods,
	candidates Backends,
	cfg *Config,
) (*Combined, Support, error) {
	support, err := ProbeSupport(ctx, methods)
	if err != nil {
		return nil, Support{}, err
	}
	if !support.Archive {
		candidates.Archive = nil
	}
	if !support.ChainHead {
		candidates.ChainHead = nil
	}
	if !support.Legacy {
		candidates.Legacy = nil
	}
	return NewCombined(candidates, cfg), support, nil
}

func compact(backends ...namedBackend) []namedBackend {
	return slices.DeleteFunc(backends, func(b namedBackend) bool {
		return b.backend == nil
	})
}

// try calls fn on each backend in order until one succeeds. It returns the
// last error if all of them fail
func try[T any](
	ctx context.Context,
	c *Combined,
	op string,
	order []namedBackend,
	fn func(Backend) (T, error),
) (T, error) {
	var zero T
	var lastErr error
	for _, b := range order {
		ret, err := fn(b.backend)
		if err == nil {
			return ret, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		c.logger.Debug(
			"backend failed, trying next",
			"component", "network",
			"role", "client",
			"operation", op,
			"backend", b.name,
			"error", err,
		)
		lastErr = err
	}
	if lastErr != nil {
		return zero, lastErr
	}
	return zero, ErrNoBackendAvailable
}

func (c *Combined) StorageFetchValues(
	ctx context.Context,
	keys [][]byte,
	at rpc.Hash,
) (Stream[StorageResponse], error) {
	return try(ctx, c, "StorageFetchValues", c.readOrder,
		func(b Backend) (Stream[StorageResponse], error) {
			return b.StorageFetchValues(ctx, keys, at)
		},
	)
}

func (c *Combined) StorageFetchDescendantKeys(
	ctx context.Context,
	prefix []byte,
	at rpc.Hash,
) (Stream[[]byte], error) {
	return try(ctx, c, "StorageFetchDescendantKeys", c.readOrder,
		func(b Backend) (Stream[[]byte], error) {
			return b.StorageFetchDescendantKeys(ctx, prefix, at)
		},
	)
}

func (c *Combined) StorageFetchDescendantValues(
	ctx context.Context,
	prefix []byte,
	at rpc.Hash,
) (Stream[StorageResponse], error) {
	return try(ctx, c, "StorageFetchDescendantValues", c.readOrder,
		func(b Backend) (Stream[StorageResponse], error) {
			return b.StorageFetchDescendantValues(ctx, prefix, at)
		},
	)
}

func (c *Combined) GenesisHash(ctx context.Context) (rpc.Hash, error) {
	return try(ctx, c, "GenesisHash", c.readOrder,
		func(b Backend) (rpc.Hash, error) {
			return b.GenesisHash(ctx)
		},
	)
}

func (c *Combined) BlockHeader(ctx context.Context, at rpc.Hash) ([]byte, error) {
	return try(ctx, c, "BlockHeader", c.readOrder,
		func(b Backend) ([]byte, error) {
			return b.BlockHeader(ctx, at)
		},
	)
}

func (c *Combined) BlockBody(ctx context.Context, at rpc.Hash) ([][]byte, error) {
	return try(ctx, c, "BlockBody", c.readOrder,
		func(b Backend) ([][]byte, error) {
			return b.BlockBody(ctx, at)
		},
	)
}

func (c *Combined) LatestFinalizedBlockRef(ctx context.Context) (BlockRef, error) {
	return try(ctx, c, "LatestFinalizedBlockRef", c.finalizedOrder,
		func(b Backend) (BlockRef, error) {
			return b.LatestFinalizedBlockRef(ctx)
		},
	)
}

func (c *Combined) CurrentRuntimeVersion(ctx context.Context) (RuntimeVersion, error) {
	return try(ctx, c, "CurrentRuntimeVersion", c.finalizedOrder,
		func(b Backend) (RuntimeVersion, error) {
			return b.CurrentRuntimeVersion(ctx)
		},
	)
}

func (c *Combined) StreamAllBlockHeaders(ctx context.Context) (Stream[BlockHeader], error) {
	return try(ctx, c, "StreamAllBlockHeaders", c.streamOrder,
		func(b Backend) (Stream[BlockHeader], error) {
			return b.StreamAllBlockHeaders(ctx)
		},
	)
}

func (c *Combined) StreamBestBlockHeaders(ctx context.Context) (Stream[BlockHeader], error) {
	return try(ctx, c, "StreamBestBlockHeaders", c.streamOrder,
		func(b Backend) (Stream[BlockHeader], error) {
			return b.StreamBestBlockHeaders(ctx)
		},
	)
}

func (c *Combined) StreamFinalizedBlockHeaders(ctx context.Context) (Stream[BlockHeader], error) {
	return try(ctx, c, "StreamFinalizedBlockHeaders", c.streamOrder,
		func(b Backend) (Stream[BlockHeader], error) {
			return b.StreamFinalizedBlockHeaders(ctx)
		},
	)
}

func (c *Combined) SubmitTransaction(
	ctx context.Context,
	tx []byte,
) (Stream[TransactionStatus], error) {
	return try(ctx, c, "SubmitTransaction", c.streamOrder,
		func(b Backend) (Stream[TransactionStatus], error) {
			return b.SubmitTransaction(ctx, tx)
		},
	)
}

func (c *Combined) Call(
	ctx context.Context,
	method string,
	params []byte,
	at rpc.Hash,
) ([]byte, error) {
	return try(ctx, c, "Call", c.readOrder,
		func(b Backend) ([]byte, error) {
			return b.Call(ctx, method, params, at)
		},
	)
}
