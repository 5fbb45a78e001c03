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
	"context"
	"fmt"
	"time"

	"github.com/blinklabs-io/gosubstrate/backend"
	"github.com/blinklabs-io/gosubstrate/rpc"
)

// Bound on unsubscribing from an abandoned header stream
const closeTimeout = 5 * time.Second

// headerStream reports the headers of a legacy header subscription.
//
// The subscriptions report headers without their hash, which is looked up by
// block number on the best chain. For finalized headers this is exact. For
// other headers the hash of a competing fork block at the same height may be
// returned
type headerStream struct {
	backend *Backend
	sub     *rpc.HeaderSubscription
	// Set for finalized header streams, which fill in skipped blocks
	fillGaps   bool
	lastNumber *uint64
	pending    []uint64
	held       rpc.LegacyHeader
}

func (b *Backend) streamHeaders(
	ctx context.Context,
	subscribe func(context.Context) (*rpc.HeaderSubscription, error),
	fillGaps bool,
) (backend.Stream[backend.BlockHeader], error) {
	sub, err := subscribe(ctx)
	if err != nil {
		return nil, err
	}
	return &headerStream{
		backend:  b,
		sub:      sub,
		fillGaps: fillGaps,
	}, nil
}

func (b *Backend) StreamAllBlockHeaders(ctx context.Context) (backend.Stream[backend.BlockHeader], error) {
	return b.streamHeaders(ctx, b.methods.ChainSubscribeAllHeads, false)
}

func (b *Backend) StreamBestBlockHeaders(ctx context.Context) (backend.Stream[backend.BlockHeader], error) {
	return b.streamHeaders(ctx, b.methods.ChainSubscribeNewHeads, false)
}

// StreamFinalizedBlockHeaders reports every finalized block in order, fetching
// the headers of blocks the node skipped
func (b *Backend) StreamFinalizedBlockHeaders(ctx context.Context) (backend.Stream[backend.BlockHeader], error) {
	return b.streamHeaders(ctx, b.methods.ChainSubscribeFinalizedHeads, true)
}

func (h *headerStream) Next(ctx context.Context) (backend.BlockHeader, error) {
	// Blocks stay queued until they have been reported, so that a failed
	// lookup is tried again by the next call
	if len(h.pending) > 0 {
		ret, err := h.headerAt(ctx, h.pending[0])
		if err != nil {
			return backend.BlockHeader{}, err
		}
		h.pending = h.pending[1:]
		return ret, nil
	}
	header := h.held
	h.held = nil
	if header == nil {
		var err error
		header, err = h.sub.Next(ctx)
		if err != nil {
			return backend.BlockHeader{}, err
		}
	}
	number, err := header.Number()
	if err != nil {
		return backend.BlockHeader{}, fmt.Errorf("legacy header: %w", err)
	}
	if h.fillGaps && h.lastNumber != nil && number > *h.lastNumber+1 {
		for missing := *h.lastNumber + 1; missing < number; missing++ {
			h.pending = append(h.pending, missing)
		}
		h.held = header
		h.lastNumber = &number
		return h.Next(ctx)
	}
	hash, err := h.backend.blockHash(ctx, number)
	if err != nil {
		h.held = header
		return backend.BlockHeader{}, err
	}
	if h.lastNumber == nil || number > *h.lastNumber {
		h.lastNumber = &number
	}
	return backend.BlockHeader{
		Ref:    backend.NewBlockRef(hash),
		Header: header,
	}, nil
}

// headerAt fetches the header of the block at number on the best chain
func (h *headerStream) headerAt(ctx context.Context, number uint64) (backend.BlockHeader, error) {
	hash, err := h.backend.blockHash(ctx, number)
	if err != nil {
		return backend.BlockHeader{}, err
	}
	header, err := h.backend.BlockHeader(ctx, hash)
	if err != nil {
		return backend.BlockHeader{}, err
	}
	if header == nil {
		return backend.BlockHeader{}, fmt.Errorf("%w: %s", backend.ErrBlockNotFound, hash.Hex())
	}
	return backend.BlockHeader{
		Ref:    backend.NewBlockRef(hash),
		Header: header,
	}, nil
}

func (h *headerStream) Close(ctx context.Context) error {
	h.pending = nil
	h.held = nil
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	return h.sub.Close(ctx)
}
