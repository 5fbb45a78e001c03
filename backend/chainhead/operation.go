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
	"fmt"
	"io"

	"github.com/blinklabs-io/gosubstrate/protocol"
	"github.com/blinklabs-io/gosubstrate/protocol/followstream"
	"github.com/blinklabs-io/gosubstrate/rpc"
)

// operation follows the events of a single chainHead operation
type operation struct {
	backend        *Backend
	sub            *followstream.Subscription
	subscriptionID string
	operationID    string
	// ID of the follow subscription the messages read so far belong to, if a
	// ready message was seen
	seenID string
	done   bool
}

// startOperation subscribes to the driver and then starts the operation, so
// that none of its events can be missed
func (b *Backend) startOperation(
	ctx context.Context,
	start func(ctx context.Context, subscriptionID string) (string, error),
) (*operation, error) {
	sub := b.handle.Subscribe()
	operationID, subscriptionID, err := withSubscriptionID(ctx, b, sub, start)
	if err != nil {
		sub.Close()
		return nil, err
	}
	op := &operation{
		backend:        b,
		sub:            sub,
		subscriptionID: subscriptionID,
		operationID:    operationID,
	}
	b.logger.Debug(
		"started operation",
		"component", "network",
		"protocol", followstream.ProtocolName,
		"role", "client",
		"subscription_id", subscriptionID,
		"operation_id", operationID,
	)
	return op, nil
}

// next returns the next event of the operation. Inaccessible and error
// events, and the end of the follow subscription, are returned as errors
func (o *operation) next(ctx context.Context) (rpc.OperationEvent, error) {
	for {
		msg, err := o.sub.Next(ctx)
		if err != nil {
			return nil, err
		}
		msg.Release()
		if msg.IsReady() {
			o.seenID = msg.SubscriptionID
			continue
		}
		switch ev := msg.Event.(type) {
		case rpc.Stop:
			if o.seenID == "" || o.seenID == o.subscriptionID {
				o.done = true
				return nil, ErrOperationInterrupted
			}
		case rpc.OperationEvent:
			if ev.Operation() != o.operationID {
				continue
			}
			switch ev := ev.(type) {
			case rpc.OperationInaccessible:
				o.done = true
				return nil, fmt.Errorf("%w: %s", ErrOperationInaccessible, o.operationID)
			case rpc.OperationError:
				o.done = true
				return nil, &rpc.OperationFailedError{
					OperationID: ev.OperationID,
					Message:     ev.Error,
				}
			}
			return ev, nil
		}
	}
}

// unexpected ends the operation after an event that does not belong to it
func (o *operation) unexpected(ev rpc.OperationEvent) error {
	return fmt.Errorf(
		"%w: %s for operation %s",
		protocol.ErrProtocolViolationInvalidMessage,
		rpc.EventName(ev),
		o.operationID,
	)
}

// close stops the operation if it has not completed
func (o *operation) close(ctx context.Context) error {
	o.sub.Close()
	if o.done {
		return nil
	}
	o.done = true
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	err := o.backend.methods.ChainHeadStopOperation(ctx, o.subscriptionID, o.operationID)
	if rpc.IsRequestRejected(err) {
		// The follow subscription is gone and the operation with it
		return nil
	}
	return err
}

// closeLogged closes the operation, logging a failure to stop it
func (o *operation) closeLogged(ctx context.Context) {
	if err := o.close(ctx); err != nil {
		o.backend.logger.Debug(
			"failed to stop operation",
			"component", "network",
			"protocol", followstream.ProtocolName,
			"role", "client",
			"subscription_id", o.subscriptionID,
			"operation_id", o.operationID,
			"error", err,
		)
	}
}

// StorageItems yields the results of a chainHead storage operation. The
// server sends them in batches and waits for the next batch to be requested,
// which happens as soon as the previous one has been read.
//
// Queries the server discards when it starts the operation are issued again
// in a new operation once the current one is done.
//
// StorageItems is not safe for concurrent use
type StorageItems struct {
	op           *operation
	at           rpc.Hash
	discarded    []rpc.StorageQuery
	buffer       []rpc.StorageResult
	needContinue bool
	err          error
}

// StorageItems starts a storage operation for the given queries on a pinned
// block
func (b *Backend) StorageItems(
	ctx context.Context,
	items []rpc.StorageQuery,
	at rpc.Hash,
) (*StorageItems, error) {
	op, discarded, err := b.startStorage(ctx, items, at)
	if err != nil {
		return nil, err
	}
	return &StorageItems{op: op, at: at, discarded: discarded}, nil
}

// startStorage starts a storage operation and returns the queries the server
// discarded. The server must accept at least one query
func (b *Backend) startStorage(
	ctx context.Context,
	items []rpc.StorageQuery,
	at rpc.Hash,
) (*operation, []rpc.StorageQuery, error) {
	var discarded int
	op, err := b.startOperation(
		ctx,
		func(ctx context.Context, subscriptionID string) (string, error) {
			operationID, n, err := b.methods.ChainHeadStorage(ctx, subscriptionID, at, items, nil)
			discarded = n
			return operationID, err
		},
	)
	if err != nil {
		return nil, nil, err
	}
	if discarded == 0 {
		return op, nil, nil
	}
	b.logger.Debug(
		"server discarded storage queries",
		"component", "network",
		"protocol", followstream.ProtocolName,
		"role", "client",
		"operation_id", op.operationID,
		"discarded", discarded,
		"queries", len(items),
	)
	if discarded >= len(items) {
		op.closeLogged(ctx)
		return nil, nil, fmt.Errorf(
			"%s: all %d queries discarded: %w",
			rpc.MethodChainHeadStorage,
			len(items),
			rpc.ErrLimitReached,
		)
	}
	return op, items[len(items)-discarded:], nil
}

// Next returns the next storage item, or io.EOF once the operation is done
func (s *StorageItems) Next(ctx context.Context) (rpc.StorageResult, error) {
	for {
		if len(s.buffer) > 0 {
			item := s.buffer[0]
			s.buffer = s.buffer[1:]
			return item, nil
		}
		if s.err != nil {
			return rpc.StorageResult{}, s.err
		}
		if s.needContinue {
			err := s.op.backend.methods.ChainHeadContinue(
				ctx,
				s.op.subscriptionID,
				s.op.operationID,
			)
			if err != nil {
				if ctx.Err() != nil {
					return rpc.StorageResult{}, ctx.Err()
				}
				s.finish(fmt.Errorf("continue storage operation: %w", err))
				continue
			}
			s.needContinue = false
		}
		ev, err := s.op.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return rpc.StorageResult{}, ctx.Err()
			}
			s.finish(err)
			continue
		}
		switch ev := ev.(type) {
		case rpc.OperationStorageItems:
			s.buffer = append(s.buffer, ev.Items...)
		case rpc.OperationWaitingForContinue:
			s.needContinue = true
		case rpc.OperationStorageDone:
			s.op.done = true
			if len(s.discarded) == 0 {
				s.finish(io.EOF)
				continue
			}
			s.op.sub.Close()
			op, discarded, err := s.op.backend.startStorage(ctx, s.discarded, s.at)
			if err != nil {
				if ctx.Err() != nil {
					return rpc.StorageResult{}, ctx.Err()
				}
				s.finish(err)
				continue
			}
			s.op, s.discarded = op, discarded
		default:
			s.finish(s.op.unexpected(ev))
		}
	}
}

func (s *StorageItems) finish(err error) {
	s.err = err
	// The operation is abandoned after an unexpected event or a failed
	// continue. It is stopped by Close
	if s.op.done {
		s.op.sub.Close()
	}
}

// Close stops the operation if it has not completed yet
func (s *StorageItems) Close(ctx context.Context) error {
	s.buffer = nil
	if s.err == nil {
		s.err = followstream.ErrSubscriptionClosed
	}
	return s.op.close(ctx)
}
