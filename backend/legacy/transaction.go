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
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/blinklabs-io/gosubstrate/backend"
	"github.com/blinklabs-io/gosubstrate/rpc"
)

// transactionStream maps author_submitAndWatchExtrinsic statuses onto
// transaction statuses
type transactionStream struct {
	backend  *Backend
	sub      *rpc.ExtrinsicSubscription
	deadline time.Time
	err      error
}

func (b *Backend) SubmitTransaction(
	ctx context.Context,
	tx []byte,
) (backend.Stream[backend.TransactionStatus], error) {
	sub, err := b.methods.AuthorSubmitAndWatchExtrinsic(ctx, tx)
	if err != nil {
		return nil, err
	}
	b.logger.Debug(
		"submitted transaction",
		"component", "network",
		"protocol", ProtocolName,
		"role", "client",
		"tx_hash", backend.HashTransaction(tx).Hex(),
	)
	return &transactionStream{
		backend:  b,
		sub:      sub,
		deadline: time.Now().Add(b.config.TransactionTimeout),
	}, nil
}

func (t *transactionStream) Next(ctx context.Context) (backend.TransactionStatus, error) {
	for {
		if t.err != nil {
			return backend.TransactionStatus{}, t.err
		}
		txCtx, cancel := context.WithDeadline(ctx, t.deadline)
		ev, err := t.sub.Next(txCtx)
		cancel()
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
		var status backend.TransactionStatus
		switch ev.Status {
		case rpc.ExtrinsicStatusFuture, rpc.ExtrinsicStatusReady:
			status.Type = backend.TransactionStatusValidated
		case rpc.ExtrinsicStatusBroadcast:
			status.Type = backend.TransactionStatusBroadcasted
		case rpc.ExtrinsicStatusInBlock:
			if ev.Block == nil {
				continue
			}
			status.Type = backend.TransactionStatusInBestBlock
			status.Block = backend.NewBlockRef(*ev.Block)
		case rpc.ExtrinsicStatusRetracted:
			status.Type = backend.TransactionStatusNoLongerInBestBlock
		case rpc.ExtrinsicStatusFinalized:
			if ev.Block == nil {
				continue
			}
			status.Type = backend.TransactionStatusInFinalizedBlock
			status.Block = backend.NewBlockRef(*ev.Block)
		case rpc.ExtrinsicStatusFinalityTimeout:
			status.Type = backend.TransactionStatusDropped
			status.Message = "finality timeout"
		case rpc.ExtrinsicStatusUsurped:
			status.Type = backend.TransactionStatusInvalid
			status.Message = "transaction was replaced by another with the same nonce"
		case rpc.ExtrinsicStatusDropped:
			status.Type = backend.TransactionStatusDropped
			status.Message = "transaction was dropped from the pool"
		case rpc.ExtrinsicStatusInvalid:
			status.Type = backend.TransactionStatusInvalid
			status.Message = "transaction is invalid"
		default:
			err := fmt.Errorf("%w: extrinsic status %q", rpc.ErrUnknownEvent, ev.Status)
			t.finish(ctx, err)
			return backend.TransactionStatus{}, err
		}
		if status.Terminal() {
			t.finish(ctx, io.EOF)
		}
		return status, nil
	}
}

func (t *transactionStream) finish(ctx context.Context, err error) {
	t.err = err
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := t.sub.Close(ctx); err != nil {
		t.backend.logger.Debug(
			"failed to stop watching transaction",
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
			"error", err,
		)
	}
}

func (t *transactionStream) Close(ctx context.Context) error {
	if t.err == nil {
		t.finish(ctx, backend.ErrStreamClosed)
	}
	return nil
}
