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
	"fmt"
)

// chainHead method names
const (
	MethodChainHeadFollow        = "chainHead_v1_follow"
	MethodChainHeadUnfollow      = "chainHead_v1_unfollow"
	MethodChainHeadUnpin         = "chainHead_v1_unpin"
	MethodChainHeadBody          = "chainHead_v1_body"
	MethodChainHeadStorage       = "chainHead_v1_storage"
	MethodChainHeadCall          = "chainHead_v1_call"
	MethodChainHeadContinue      = "chainHead_v1_continue"
	MethodChainHeadStopOperation = "chainHead_v1_stopOperation"
	MethodChainHeadHeader        = "chainHead_v1_header"
	MethodChainSpecGenesisHash   = "chainSpec_v1_genesisHash"
)

// Results of methods that start an operation
const (
	MethodResultStarted      = "started"
	MethodResultLimitReached = "limitReached"
)

// MethodResponse is the response to chainHead_v1_body, chainHead_v1_storage
// and chainHead_v1_call
type MethodResponse struct {
	Result         string `json:"result"`
	OperationID    string `json:"operationId,omitempty"`
	DiscardedItems int    `json:"discardedItems,omitempty"`
}

// FollowSubscription is an open chainHead_v1_follow subscription
type FollowSubscription struct {
	sub Subscription
}

// ChainHeadFollow opens a follow subscription. The server reports the runtime
// of new blocks when withRuntime is set
func (m *Methods) ChainHeadFollow(
	ctx context.Context,
	withRuntime bool,
) (*FollowSubscription, error) {
	sub, err := m.client.Subscribe(
		ctx,
		MethodChainHeadFollow,
		[]any{withRuntime},
		MethodChainHeadUnfollow,
	)
	if err != nil {
		return nil, err
	}
	return &FollowSubscription{sub: sub}, nil
}

// SubscriptionID returns the follow subscription ID used to address the other
// chainHead methods
func (f *FollowSubscription) SubscriptionID() string {
	return f.sub.ID()
}

// Next returns the next follow event. It returns io.EOF when the server ended
// the subscription without a stop event
func (f *FollowSubscription) Next(ctx context.Context) (FollowEvent, error) {
	data, err := f.sub.Next(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeFollowEvent(data)
}

// Close unsubscribes from the follow subscription
func (f *FollowSubscription) Close(ctx context.Context) error {
	return f.sub.Unsubscribe(ctx)
}

// ChainHeadUnpin unpins a block so the server can release its resources
func (m *Methods) ChainHeadUnpin(
	ctx context.Context,
	subscriptionID string,
	hash Hash,
) error {
	return m.client.Request(
		ctx,
		MethodChainHeadUnpin,
		[]any{subscriptionID, hash},
		nil,
	)
}

// ChainHeadHeader returns the encoded header of a pinned block, or nil if the
// server doesn't know it
func (m *Methods) ChainHeadHeader(
	ctx context.Context,
	subscriptionID string,
	hash Hash,
) (Bytes, error) {
	var res *Bytes
	if err := m.client.Request(
		ctx,
		MethodChainHeadHeader,
		[]any{subscriptionID, hash},
		&res,
	); err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return *res, nil
}

// ChainHeadBody starts fetching the body of a pinned block and returns the
// operation ID
func (m *Methods) ChainHeadBody(
	ctx context.Context,
	subscriptionID string,
	hash Hash,
) (string, error) {
	res, err := m.startOperation(
		ctx,
		MethodChainHeadBody,
		[]any{subscriptionID, hash},
	)
	return res.OperationID, err
}

// ChainHeadStorage starts a storage query against a pinned block and returns
// the operation ID. The server may discard queries from the end of items,
// in which case it only reports how many. Those must be queried again
func (m *Methods) ChainHeadStorage(
	ctx context.Context,
	subscriptionID string,
	hash Hash,
	items []StorageQuery,
	childTrie Bytes,
) (string, int, error) {
	params := []any{subscriptionID, hash, items}
	if childTrie != nil {
		params = append(params, childTrie)
	}
	res, err := m.startOperation(ctx, MethodChainHeadStorage, params)
	if err != nil {
		return "", 0, err
	}
	return res.OperationID, min(max(res.DiscardedItems, 0), len(items)), nil
}

// ChainHeadCall starts a runtime call against a pinned block and returns the
// operation ID
func (m *Methods) ChainHeadCall(
	ctx context.Context,
	subscriptionID string,
	hash Hash,
	function string,
	callParameters Bytes,
) (string, error) {
	if callParameters == nil {
		callParameters = Bytes{}
	}
	res, err := m.startOperation(
		ctx,
		MethodChainHeadCall,
		[]any{subscriptionID, hash, function, callParameters},
	)
	return res.OperationID, err
}

// ChainHeadContinue resumes an operation that is waiting for continue
func (m *Methods) ChainHeadContinue(
	ctx context.Context,
	subscriptionID string,
	operationID string,
) error {
	return m.client.Request(
		ctx,
		MethodChainHeadContinue,
		[]any{subscriptionID, operationID},
		nil,
	)
}

// ChainHeadStopOperation abandons an operation
func (m *Methods) ChainHeadStopOperation(
	ctx context.Context,
	subscriptionID string,
	operationID string,
) error {
	return m.client.Request(
		ctx,
		MethodChainHeadStopOperation,
		[]any{subscriptionID, operationID},
		nil,
	)
}

// ChainSpecGenesisHash returns the genesis hash of the chain
func (m *Methods) ChainSpecGenesisHash(ctx context.Context) (Hash, error) {
	var res Hash
	if err := m.client.Request(ctx, MethodChainSpecGenesisHash, nil, &res); err != nil {
		return Hash{}, err
	}
	return res, nil
}

func (m *Methods) startOperation(
	ctx context.Context,
	method string,
	params []any,
) (MethodResponse, error) {
	var res MethodResponse
	if err := m.client.Request(ctx, method, params, &res); err != nil {
		return MethodResponse{}, err
	}
	switch res.Result {
	case MethodResultStarted:
		return res, nil
	case MethodResultLimitReached:
		return MethodResponse{}, fmt.Errorf("%s: %w", method, ErrLimitReached)
	default:
		return MethodResponse{}, fmt.Errorf("%s: unexpected result %q", method, res.Result)
	}
}
