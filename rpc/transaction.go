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

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	MethodTransactionWatchSubmitAndWatch = "transactionWatch_v1_submitAndWatch"
	MethodTransactionWatchUnwatch        = "transactionWatch_v1_unwatch"
)

// transactionWatch event names
const (
	TransactionEventValidated      = "validated"
	TransactionEventBroadcasted    = "broadcasted"
	TransactionEventBestChainBlock = "bestChainBlockIncluded"
	TransactionEventFinalized      = "finalized"
	TransactionEventError          = "error"
	TransactionEventInvalid        = "invalid"
	TransactionEventDropped        = "dropped"
)

// TransactionBlock identifies the block a transaction was included in
type TransactionBlock struct {
	Hash  Hash `json:"hash"`
	Index int  `json:"index"`
}

// TransactionEvent is a notification of a transactionWatch subscription
type TransactionEvent struct {
	Event    string            `json:"event"`
	NumPeers int               `json:"numPeers,omitempty"`
	Block    *TransactionBlock `json:"block,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Terminal reports whether no further events follow this one
func (e *TransactionEvent) Terminal() bool {
	switch e.Event {
	case TransactionEventFinalized,
		TransactionEventError,
		TransactionEventInvalid,
		TransactionEventDropped:
		return true
	}
	return false
}

// TransactionSubscription is an open transactionWatch subscription
type TransactionSubscription struct {
	sub Subscription
}

// TransactionWatchSubmitAndWatch submits an encoded transaction and watches
// its progress
func (m *Methods) TransactionWatchSubmitAndWatch(
	ctx context.Context,
	tx Bytes,
) (*TransactionSubscription, error) {
	sub, err := m.client.Subscribe(
		ctx,
		MethodTransactionWatchSubmitAndWatch,
		[]any{tx},
		MethodTransactionWatchUnwatch,
	)
	if err != nil {
		return nil, err
	}
	return &TransactionSubscription{sub: sub}, nil
}

// Next returns the next transaction event
func (t *TransactionSubscription) Next(
	ctx context.Context,
) (*TransactionEvent, error) {
	data, err := t.sub.Next(ctx)
	if err != nil {
		return nil, err
	}
	var ev TransactionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode transaction event: %w", err)
	}
	return &ev, nil
}

// Close stops watching the transaction
func (t *TransactionSubscription) Close(ctx context.Context) error {
	return t.sub.Unsubscribe(ctx)
}
