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
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/blinklabs-io/gosubstrate/backend"
	"github.com/blinklabs-io/gosubstrate/protocol/followstream"
	"github.com/blinklabs-io/gosubstrate/rpc"
)

// How long to wait for the follow subscription to report a block that a
// transaction was included in
const blockLookupTimeout = 2 * time.Second

// transactionStream reports the progress of a submitted transaction. Blocks
// the transaction is included in are pinned if the follow subscription
// reports them
type transactionStream struct {
	backend  *Backend
	txSub    *rpc.TransactionSubscription
	follow   *followstream.Subscription
	blocks   map[rpc.Hash]*followstream.BlockRef
	deadline time.Time
	err      error
}

func (b *Backend) SubmitTransaction(
	ctx context.Context,
	tx []byte,
) (backend.Stream[backend.TransactionStatus], error) {
	follow := b.handle.Subscribe()
	txSub, err := b.methods.TransactionWatchSubmitAndWatch(ctx, tx)
	if err != nil {
		follow.Close()
		return nil, err
	}
	b.logger.Debug(
		"submitted transaction",
		"component", "network",
		"protocol", followstream.ProtocolName,
		"role", "client",
		"tx_hash", backend.HashTransaction(tx).Hex(),
	)
	return &transactionStream{
		backend:  b,
		txSub:    txSub,
		follow:   follow,
		blocks:   make(map[rpc.Hash]*followstream.BlockRef),
		deadline: time.Now().Add(b.config.TransactionTimeout),
	}, nil
}

func (t *transactionStream) Next(ctx context.Context) (backend.TransactionStatus, error) {
	if t.err != nil {
		return backend.TransactionStatus{}, t.err
	}
	txCtx, cancel := context.WithDeadline(ctx, t.deadline)
	defer cancel()
	ev, err := t.txSub.Next(txCtx)
	if err != nil {
		if ctx.Err() != nil {
			return backend.TransactionStatus{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = backend.ErrTransactionTimeout
		}
		t.finish(ctx, err)
		return backend.TransactionStatus{}, err
	}
	status := backend.TransactionStatus{Message: ev.Error}
	switch ev.Event {
	case rpc.TransactionEventValidated:
		status.Type = backend.TransactionStatusValidated
	case rpc.TransactionEventBroadcasted:
		status.Type = backend.TransactionStatusBroadcasted
	case rpc.TransactionEventBestChainBlock:
		if ev.Block == nil {
			status.Type = backend.TransactionStatusNoLongerInBestBlock
		} else {
			status.Type = backend.TransactionStatusInBestBlock
			status.Block = t.blockRef(txCtx, ev.Block.Hash)
		}
	case rpc.TransactionEventFinalized:
		status.Type = backend.TransactionStatusInFinalizedBlock
		if ev.Block != nil {
			status.Block = t.blockRef(txCtx, ev.Block.Hash)
		}
	case rpc.TransactionEventError:
		status.Type = backend.TransactionStatusError
	case rpc.TransactionEventInvalid:
		status.Type = backend.TransactionStatusInvalid
	case rpc.TransactionEventDropped:
		status.Type = backend.TransactionStatusDropped
	default:
		err := fmt.Errorf("%w: transaction event %q", rpc.ErrUnknownEvent, ev.Event)
		t.finish(ctx, err)
		return backend.TransactionStatus{}, err
	}
	if status.Terminal() {
		t.finish(ctx, io.EOF)
	}
	return status, nil
}

// blockRef returns a pinned reference to a block if the follow subscription
// reports it soon enough, and an unpinned one otherwise
func (t *transactionStream) blockRef(ctx context.Context, hash rpc.Hash) backend.BlockRef {
	ctx, cancel := context.WithTimeout(ctx, blockLookupTimeout)
	defer cancel()
	for {
		if ref, ok := t.blocks[hash]; ok {
			return backend.NewPinnedBlockRef(ref.Clone())
		}
		msg, err := t.follow.Next(ctx)
		if err != nil {
			return backend.NewBlockRef(hash)
		}
		switch ev := msg.Event.(type) {
		case rpc.Initialized[*followstream.BlockRef]:
			for _, ref := range ev.FinalizedBlockHashes {
				t.track(ref)
			}
		case rpc.NewBlock[*followstream.BlockRef]:
			t.track(ev.BlockHash)
		case rpc.Finalized[*followstream.BlockRef]:
			for _, ref := range ev.PrunedBlockHashes {
				t.forget(ref.Hash())
			}
		case rpc.Stop:
			for hash := range t.blocks {
				t.forget(hash)
			}
		}
		msg.Release()
	}
}

func (t *transactionStream) track(ref *followstream.BlockRef) {
	if _, ok := t.blocks[ref.Hash()]; !ok {
		t.blocks[ref.Hash()] = ref.Clone()
	}
}

func (t *transactionStream) forget(hash rpc.Hash) {
	if ref, ok := t.blocks[hash]; ok {
		ref.Release()
		delete(t.blocks, hash)
	}
}

func (t *transactionStream) finish(ctx context.Context, err error) {
	t.err = err
	for hash := range t.blocks {
		t.forget(hash)
	}
	t.follow.Close()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if err := t.txSub.Close(ctx); err != nil {
		t.backend.logger.Debug(
			"failed to stop watching transaction",
			"component", "network",
			"protocol", followstream.ProtocolName,
			"role", "client",
			"error", err,
		)
	}
}

func (t *transactionStream) Close(ctx context.Context) error {
	if t.err == nil {
		t.finish(ctx, followstream.ErrSubscriptionClosed)
	}
	return nil
}
