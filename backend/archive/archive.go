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

// Package archive implements a backend on top of the archive_v1 family of RPC
// methods. Archive nodes serve any block they have stored without pinning,
// but cannot watch the chain or submit transactions.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/gosubstrate/backend"
	"github.com/blinklabs-io/gosubstrate/internal/retry"
	"github.com/blinklabs-io/gosubstrate/rpc"
)

// ProtocolName is used in log messages
const ProtocolName = "archive"

// Bound on stopping an abandoned storage query
const stopTimeout = 5 * time.Second

// Config is used to configure an archive backend
type Config struct {
	Logger *slog.Logger
}

// ArchiveOptionFunc represents a function used to modify the archive backend
// config
type ArchiveOptionFunc func(*Config)

// NewConfig returns a new archive backend config object with the provided
// options
func NewConfig(options ...ArchiveOptionFunc) Config {
	c := Config{}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ArchiveOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Backend serves backend operations with archive_v1 methods
type Backend struct {
	methods *rpc.Methods
	logger  *slog.Logger
	retry   retry.Policy
}

var _ backend.Backend = (*Backend)(nil)

// New returns a new archive backend
func New(methods *rpc.Methods, cfg *Config) *Backend {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	b := &Backend{
		methods: methods,
		logger:  cfg.Logger,
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
	items := make([]rpc.StorageQuery, len(keys))
	for i, key := range keys {
		items[i] = rpc.StorageQuery{Key: key, Type: rpc.StorageQueryTypeValue}
	}
	return b.storageValues(ctx, items, at)
}

func (b *Backend) StorageFetchDescendantKeys(
	ctx context.Context,
	prefix []byte,
	at rpc.Hash,
) (backend.Stream[[]byte], error) {
	stream, err := b.storage(
		ctx,
		[]rpc.StorageQuery{{Key: prefix, Type: rpc.StorageQueryTypeDescendantsHashes}},
		at,
	)
	if err != nil {
		return nil, err
	}
	return backend.NewStream(
		func(ctx context.Context) ([]byte, error) {
			item, err := stream.next(ctx)
			if err != nil {
				return nil, err
			}
			return item.Key, nil
		},
		stream.close,
	), nil
}

func (b *Backend) StorageFetchDescendantValues(
	ctx context.Context,
	prefix []byte,
	at rpc.Hash,
) (backend.Stream[backend.StorageResponse], error) {
	return b.storageValues(
		ctx,
		[]rpc.StorageQuery{{Key: prefix, Type: rpc.StorageQueryTypeDescendantsValues}},
		at,
	)
}

func (b *Backend) storageValues(
	ctx context.Context,
	items []rpc.StorageQuery,
	at rpc.Hash,
) (backend.Stream[backend.StorageResponse], error) {
	stream, err := b.storage(ctx, items, at)
	if err != nil {
		return nil, err
	}
	return backend.NewStream(
		func(ctx context.Context) (backend.StorageResponse, error) {
			for {
				item, err := stream.next(ctx)
				if err != nil {
					return backend.StorageResponse{}, err
				}
				if item.Value == nil {
					continue
				}
				return backend.StorageResponse{Key: item.Key, Value: item.Value}, nil
			}
		},
		stream.close,
	), nil
}

// storageStream wraps an archive storage subscription, stopping it when
// abandoned before completion
type storageStream struct {
	backend *Backend
	sub     *rpc.ArchiveStorageSubscription
	err     error
}

func (b *Backend) storage(
	ctx context.Context,
	items []rpc.StorageQuery,
	at rpc.Hash,
) (*storageStream, error) {
	sub, err := retry.Value(
		ctx,
		b.retry,
		func(ctx context.Context) (*rpc.ArchiveStorageSubscription, error) {
			return b.methods.ArchiveStorage(ctx, at, items, nil)
		},
	)
	if err != nil {
		return nil, err
	}
	return &storageStream{backend: b, sub: sub}, nil
}

func (s *storageStream) next(ctx context.Context) (*rpc.StorageResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	item, err := s.sub.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.err = err
		if !errors.Is(err, io.EOF) {
			s.err = fmt.Errorf("archive storage: %w", err)
			s.stop(ctx)
		}
		return nil, s.err
	}
	return item, nil
}

func (s *storageStream) stop(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if err := s.sub.Close(ctx); err != nil {
		s.backend.logger.Debug(
			"failed to stop storage query",
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
			"error", err,
		)
	}
}

func (s *storageStream) close(ctx context.Context) error {
	if s.err != nil {
		return nil
	}
	s.err = backend.ErrStreamClosed
	s.stop(ctx)
	return nil
}

func (b *Backend) GenesisHash(ctx context.Context) (rpc.Hash, error) {
	return retry.Value(ctx, b.retry, b.methods.ArchiveGenesisHash)
}

func (b *Backend) BlockHeader(ctx context.Context, at rpc.Hash) ([]byte, error) {
	header, err := retry.Value(
		ctx,
		b.retry,
		func(ctx context.Context) (rpc.Bytes, error) {
			return b.methods.ArchiveHeader(ctx, at)
		},
	)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, nil
	}
	return header, nil
}

func (b *Backend) BlockBody(ctx context.Context, at rpc.Hash) ([][]byte, error) {
	body, err := retry.Value(
		ctx,
		b.retry,
		func(ctx context.Context) ([]rpc.Bytes, error) {
			return b.methods.ArchiveBody(ctx, at)
		},
	)
	if err != nil || body == nil {
		return nil, err
	}
	ret := make([][]byte, len(body))
	for i, tx := range body {
		ret[i] = tx
	}
	return ret, nil
}

// LatestFinalizedBlockRef looks up the hash of the block at the finalized
// height. The reference is not pinned
func (b *Backend) LatestFinalizedBlockRef(ctx context.Context) (backend.BlockRef, error) {
	height, err := retry.Value(ctx, b.retry, b.methods.ArchiveFinalizedHeight)
	if err != nil {
		return backend.BlockRef{}, err
	}
	hashes, err := retry.Value(
		ctx,
		b.retry,
		func(ctx context.Context) ([]rpc.Hash, error) {
			return b.methods.ArchiveHashByHeight(ctx, height)
		},
	)
	if err != nil {
		return backend.BlockRef{}, err
	}
	// Finalized heights have exactly one block
	if len(hashes) != 1 {
		return backend.BlockRef{}, fmt.Errorf(
			"%w: %d blocks at finalized height %d",
			backend.ErrBlockNotFound,
			len(hashes),
			height,
		)
	}
	return backend.NewBlockRef(hashes[0]), nil
}

// CurrentRuntimeVersion is unsupported, since archive nodes only report the
// runtime version SCALE encoded
func (b *Backend) CurrentRuntimeVersion(context.Context) (backend.RuntimeVersion, error) {
	return backend.RuntimeVersion{}, backend.ErrUnsupported
}

func (b *Backend) StreamAllBlockHeaders(context.Context) (backend.Stream[backend.BlockHeader], error) {
	return nil, backend.ErrUnsupported
}

func (b *Backend) StreamBestBlockHeaders(context.Context) (backend.Stream[backend.BlockHeader], error) {
	return nil, backend.ErrUnsupported
}

func (b *Backend) StreamFinalizedBlockHeaders(context.Context) (backend.Stream[backend.BlockHeader], error) {
	return nil, backend.ErrUnsupported
}

func (b *Backend) SubmitTransaction(context.Context, []byte) (backend.Stream[backend.TransactionStatus], error) {
	return nil, backend.ErrUnsupported
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
			return b.methods.ArchiveCall(ctx, at, method, params)
		},
	)
	if err != nil {
		return nil, err
	}
	return output, nil
}
