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

// Package legacy implements a backend on top of the RPC methods nodes served
// before the chainHead and archive families existed.
//
// These methods identify blocks by number or hash without pinning them, so a
// block may be pruned between two calls about it. Headers are returned in the
// JSON form the node reports them in.
package legacy

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/gosubstrate/backend"
	"github.com/blinklabs-io/gosubstrate/internal/retry"
	"github.com/blinklabs-io/gosubstrate/rpc"
)

// ProtocolName is used in log messages
const ProtocolName = "legacy"

// Backend serves backend operations with legacy RPC methods
type Backend struct {
	methods *rpc.Methods
	config  Config
	logger  *slog.Logger
	retry   retry.Policy
}

var _ backend.Backend = (*Backend)(nil)

// New returns a new legacy backend
func New(methods *rpc.Methods, cfg *Config) *Backend {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	b := &Backend{
		methods: methods,
		config:  *cfg,
		logger:  cfg.Logger,
	}
	if b.config.KeysPageSize == 0 {
		b.config.KeysPageSize = DefaultKeysPageSize
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.retry = retry.DefaultPolicy()
	b.retry.Logger = b.logger
	return b
}

func (b *Backend) StorageFetchValues(
	ctx context.Context,
	keys [][]byte,
	at rpc.Hash,
) (backend.Stream[backend.StorageResponse], error) {
	values, err := b.queryStorage(ctx, keys, at)
	if err != nil {
		return nil, err
	}
	return backend.NewSliceStream(values), nil
}

// queryStorage returns the values of keys that have one
func (b *Backend) queryStorage(
	ctx context.Context,
	keys [][]byte,
	at rpc.Hash,
) ([]backend.StorageResponse, error) {
	params := make([]rpc.Bytes, len(keys))
	for i, key := range keys {
		params[i] = key
	}
	changeSets, err := retry.Value(
		ctx,
		b.retry,
		func(ctx context.Context) ([]rpc.LegacyStorageChangeSet, error) {
			return b.methods.StateQueryStorageAt(ctx, params, at)
		},
	)
	if err != nil {
		return nil, err
	}
	var ret []backend.StorageResponse
	for _, changeSet := range changeSets {
		for _, change := range changeSet.Changes {
			// Each change is a [key, value] pair with a null value for keys
			// without one
			if len(change) != 2 || change[0] == nil || change[1] == nil {
				continue
			}
			ret = append(ret, backend.StorageResponse{Key: *change[0], Value: *change[1]})
		}
	}
	return ret, nil
}

// keyPager walks the keys below a prefix one page at a time
type keyPager struct {
	backend *Backend
	prefix  []byte
	at      rpc.Hash
	lastKey []byte
	done    bool
}

// next returns the next page of keys, or io.EOF once every key was returned
func (p *keyPager) next(ctx context.Context) ([][]byte, error) {
	if p.done {
		return nil, io.EOF
	}
	b := p.backend
	keys, err := retry.Value(
		ctx,
		b.retry,
		func(ctx context.Context) ([]rpc.Bytes, error) {
			return b.methods.StateGetKeysPaged(ctx, p.prefix, b.config.KeysPageSize, p.lastKey, p.at)
		},
	)
	if err != nil {
		return nil, err
	}
	if len(keys) < int(b.config.KeysPageSize) {
		p.done = true
	}
	if len(keys) == 0 {
		return nil, io.EOF
	}
	ret := make([][]byte, len(keys))
	for i, key := range keys {
		ret[i] = key
	}
	p.lastKey = ret[len(ret)-1]
	return ret, nil
}

func (b *Backend) StorageFetchDescendantKeys(
	ctx context.Context,
	prefix []byte,
	at rpc.Hash,
) (backend.Stream[[]byte], error) {
	pager := &keyPager{backend: b, prefix: prefix, at: at}
	var page [][]byte
	return backend.NewStream(
		func(ctx context.Context) ([]byte, error) {
			for len(page) == 0 {
				var err error
				page, err = pager.next(ctx)
				if err != nil {
					return nil, err
				}
			}
			key := page[0]
			page = page[1:]
			return key, nil
		},
		nil,
	), nil
}

func (b *Backend) StorageFetchDescendantValues(
	ctx context.Context,
	prefix []byte,
	at rpc.Hash,
) (backend.Stream[backend.StorageResponse], error) {
	pager := &keyPager{backend: b, prefix: prefix, at: at}
	var page []backend.StorageResponse
	return backend.NewStream(
		func(ctx context.Context) (backend.StorageResponse, error) {
			for len(page) == 0 {
				keys, err := pager.next(ctx)
				if err != nil {
					return backend.StorageResponse{}, err
				}
				page, err = b.queryStorage(ctx, keys, at)
				if err != nil {
					return backend.StorageResponse{}, err
				}
			}
			item := page[0]
			page = page[1:]
			return item, nil
		},
		nil,
	), nil
}

func (b *Backend) GenesisHash(ctx context.Context) (rpc.Hash, error) {
	var genesis uint64
	hash, err := b.blockHash(ctx, genesis)
	if err != nil {
		return rpc.Hash{}, err
	}
	return hash, nil
}

// blockHash returns the hash of the block at the given height on the best
// chain
func (b *Backend) blockHash(ctx context.Context, number uint64) (rpc.Hash, error) {
	hash, err := retry.Value(
		ctx,
		b.retry,
		func(ctx context.Context) (*rpc.Hash, error) {
			return b.methods.ChainGetBlockHash(ctx, &number)
		},
	)
	if err != nil {
		return rpc.Hash{}, err
	}
	if hash == nil {
		return rpc.Hash{}, fmt.Errorf("%w: no block at height %d", backend.ErrBlockNotFound, number)
	}
	return *hash, nil
}

// BlockHeader returns the header of a block as JSON
func (b *Backend) BlockHeader(ctx context.Context, at rpc.Hash) ([]byte, error) {
	header, err := retry.Value(
		ctx,
		b.retry,
		func(ctx context.Context) (rpc.LegacyHeader, error) {
			return b.methods.ChainGetHeader(ctx, &at)
		},
	)
	if err != nil || header == nil {
		return nil, err
	}
	return header, nil
}

func (b *Backend) BlockBody(ctx context.Context, at rpc.Hash) ([][]byte, error) {
	block, err := retry.Value(
		ctx,
		b.retry,
		func(ctx context.Context) (*rpc.LegacyBlock, error) {
			return b.methods.ChainGetBlock(ctx, &at)
		},
	)
	if err != nil || block == nil {
		return nil, err
	}
	ret := make([][]byte, len(block.Block.Extrinsics))
	for i, tx := range block.Block.Extrinsics {
		ret[i] = tx
	}
	return ret, nil
}

// LatestFinalizedBlockRef returns an unpinned reference to the finalized head
func (b *Backend) LatestFinalizedBlockRef(ctx context.Context) (backend.BlockRef, error) {
	hash, err := retry.Value(ctx, b.retry, b.methods.ChainGetFinalizedHead)
	if err != nil {
		return backend.BlockRef{}, err
	}
	return backend.NewBlockRef(hash), nil
}

func (b *Backend) CurrentRuntimeVersion(ctx context.Context) (backend.RuntimeVersion, error) {
	version, err := retry.Value(
		ctx,
		b.retry,
		func(ctx context.Context) (*rpc.LegacyRuntimeVersion, error) {
			return b.methods.StateGetRuntimeVersion(ctx, nil)
		},
	)
	if err != nil {
		return backend.RuntimeVersion{}, err
	}
	return backend.RuntimeVersion{
		SpecVersion:        version.SpecVersion,
		TransactionVersion: version.TransactionVersion,
	}, nil
}

func (b *Backend) Call(
	ctx context.Context,
	method string,
	params []byte,
	at rpc.Hash,
) ([]byte, error) {
	output, err := retry.Value(
		ctx,
		b.retry,
		func(ctx context.Context) (rpc.Bytes, error) {
			return b.methods.StateCall(ctx, method, params, at)
		},
	)
	if err != nil {
		return nil, err
	}
	return output, nil
}

