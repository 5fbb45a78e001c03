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
	"context"

	"github.com/blinklabs-io/gosubstrate/backend"
	"github.com/blinklabs-io/gosubstrate/internal/retry"
	"github.com/blinklabs-io/gosubstrate/protocol/followstream"
	"github.com/blinklabs-io/gosubstrate/rpc"
)

type headerKind int

const (
	headersAll headerKind = iota
	headersBest
	headersFinalized
)

// headerStream reports blocks from the follow subscription with their
// headers. It starts with the latest finalized block and carries on across
// follow subscriptions, so blocks may be reported again after the follow
// subscription is replaced
type headerStream struct {
	backend        *Backend
	kind           headerKind
	sub            *followstream.Subscription
	subscriptionID string
	pending        []*followstream.BlockRef
}

func (b *Backend) streamHeaders(kind headerKind) *headerStream {
	return &headerStream{
		backend: b,
		kind:    kind,
		sub:     b.handle.SubscribeWithReplay(),
	}
}

func (b *Backend) StreamAllBlockHeaders(ctx context.Context) (backend.Stream[backend.BlockHeader], error) {
	return b.streamHeaders(headersAll), nil
}

func (b *Backend) StreamBestBlockHeaders(ctx context.Context) (backend.Stream[backend.BlockHeader], error) {
	return b.streamHeaders(headersBest), nil
}

func (b *Backend) StreamFinalizedBlockHeaders(ctx context.Context) (backend.Stream[backend.BlockHeader], error) {
	return b.streamHeaders(headersFinalized), nil
}

func (h *headerStream) Next(ctx context.Context) (backend.BlockHeader, error) {
	for {
		if len(h.pending) > 0 {
			ref := h.pending[0]
			header, err := retry.Value(
				ctx,
				h.backend.retry,
				func(ctx context.Context) (rpc.Bytes, error) {
					return h.backend.methods.ChainHeadHeader(ctx, h.subscriptionID, ref.Hash())
				},
			)
			if err != nil {
				if rpc.IsRequestRejected(err) {
					// The follow subscription has stopped. Its blocks are
					// dropped when the stop arrives
					h.releasePending()
					continue
				}
				return backend.BlockHeader{}, err
			}
			h.pending = h.pending[1:]
			return backend.BlockHeader{
				Ref:    backend.NewPinnedBlockRef(ref),
				Header: header,
			}, nil
		}
		msg, err := h.sub.Next(ctx)
		if err != nil {
			return backend.BlockHeader{}, err
		}
		h.handle(msg)
		msg.Release()
	}
}

func (h *headerStream) handle(msg followstream.Message) {
	if msg.IsReady() {
		h.subscriptionID = msg.SubscriptionID
		return
	}
	switch ev := msg.Event.(type) {
	case rpc.Initialized[*followstream.BlockRef]:
		// Only the latest finalized block is reported on startup
		if n := len(ev.FinalizedBlockHashes); n > 0 {
			h.add(ev.FinalizedBlockHashes[n-1])
		}
	case rpc.NewBlock[*followstream.BlockRef]:
		if h.kind == headersAll {
			h.add(ev.BlockHash)
		}
	case rpc.BestBlockChanged[*followstream.BlockRef]:
		if h.kind == headersBest {
			h.add(ev.BestBlockHash)
		}
	case rpc.Finalized[*followstream.BlockRef]:
		if h.kind == headersFinalized {
			for _, ref := range ev.FinalizedBlockHashes {
				h.add(ref)
			}
		}
	case rpc.Stop:
		h.releasePending()
		h.subscriptionID = ""
	}
}

func (h *headerStream) add(ref *followstream.BlockRef) {
	h.pending = append(h.pending, ref.Clone())
}

func (h *headerStream) releasePending() {
	for _, ref := range h.pending {
		ref.Release()
	}
	h.pending = nil
}

func (h *headerStream) Close(ctx context.Context) error {
	h.releasePending()
	h.sub.Close()
	return nil
}
