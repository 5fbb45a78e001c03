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
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/gjson"
)

const (
	MethodArchiveGenesisHash     = "archive_v1_genesisHash"
	MethodArchiveHeader          = "archive_v1_header"
	MethodArchiveBody            = "archive_v1_body"
	MethodArchiveCall            = "archive_v1_call"
	MethodArchiveFinalizedHeight = "archive_v1_finalizedHeight"
	MethodArchiveHashByHeight    = "archive_v1_hashByHeight"
	MethodArchiveStorage         = "archive_v1_storage"
	MethodArchiveStopStorage     = "archive_v1_stopStorage"
)

// archive_v1_storage event names
const (
	ArchiveStorageEventItem  = "storage"
	ArchiveStorageEventDone  = "storageDone"
	ArchiveStorageEventError = "storageError"
)

// ArchiveCallResult is the result of archive_v1_call
type ArchiveCallResult struct {
	Success bool   `json:"success"`
	Value   Bytes  `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (m *Methods) ArchiveGenesisHash(ctx context.Context) (Hash, error) {
	var res Hash
	if err := m.client.Request(ctx, MethodArchiveGenesisHash, nil, &res); err != nil {
		return Hash{}, err
	}
	return res, nil
}

// ArchiveHeader returns the encoded header of a block, or nil if unknown
func (m *Methods) ArchiveHeader(ctx context.Context, hash Hash) (Bytes, error) {
	var res *Bytes
	if err := m.client.Request(ctx, MethodArchiveHeader, []any{hash}, &res); err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return *res, nil
}

// ArchiveBody returns the encoded extrinsics of a block, or nil if unknown
func (m *Methods) ArchiveBody(ctx context.Context, hash Hash) ([]Bytes, error) {
	var res []Bytes
	if err := m.client.Request(ctx, MethodArchiveBody, []any{hash}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// ArchiveCall runs a runtime API call at a block. A call the runtime rejects
// is returned as an *OperationFailedError
func (m *Methods) ArchiveCall(
	ctx context.Context,
	hash Hash,
	function string,
	callParameters Bytes,
) (Bytes, error) {
	if callParameters == nil {
		callParameters = Bytes{}
	}
	var res ArchiveCallResult
	if err := m.client.Request(
		ctx,
		MethodArchiveCall,
		[]any{hash, function, callParameters},
		&res,
	); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, &OperationFailedError{Message: res.Error}
	}
	return res.Value, nil
}

func (m *Methods) ArchiveFinalizedHeight(ctx context.Context) (uint64, error) {
	var res uint64
	if err := m.client.Request(ctx, MethodArchiveFinalizedHeight, nil, &res); err != nil {
		return 0, err
	}
	return res, nil
}

// ArchiveHashByHeight returns the hashes of all known blocks at a height.
// Below the finalized height there is at most one
func (m *Methods) ArchiveHashByHeight(
	ctx context.Context,
	height uint64,
) ([]Hash, error) {
	var res []Hash
	if err := m.client.Request(
		ctx,
		MethodArchiveHashByHeight,
		[]any{height},
		&res,
	); err != nil {
		return nil, err
	}
	return res, nil
}

// ArchiveStorageSubscription yields the results of an archive_v1_storage query
type ArchiveStorageSubscription struct {
	sub  Subscription
	done bool
}

// ArchiveStorage starts a storage query at a block
func (m *Methods) ArchiveStorage(
	ctx context.Context,
	hash Hash,
	items []StorageQuery,
	childTrie Bytes,
) (*ArchiveStorageSubscription, error) {
	var child any
	if childTrie != nil {
		child = childTrie
	}
	sub, err := m.client.Subscribe(
		ctx,
		MethodArchiveStorage,
		[]any{hash, items, child},
		MethodArchiveStopStorage,
	)
	if err != nil {
		return nil, err
	}
	return &ArchiveStorageSubscription{sub: sub}, nil
}

// Next returns the next storage result. It returns io.EOF once the query has
// completed
func (a *ArchiveStorageSubscription) Next(
	ctx context.Context,
) (*StorageResult, error) {
	if a.done {
		return nil, io.EOF
	}
	data, err := a.sub.Next(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			a.done = true
		}
		return nil, err
	}
	switch ev := gjson.GetBytes(data, "event").String(); ev {
	case ArchiveStorageEventItem:
		var res StorageResult
		if err := json.Unmarshal(data, &res); err != nil {
			return nil, fmt.Errorf("decode archive storage item: %w", err)
		}
		return &res, nil
	case ArchiveStorageEventDone:
		a.done = true
		return nil, io.EOF
	case ArchiveStorageEventError:
		a.done = true
		return nil, &OperationFailedError{
			Message: gjson.GetBytes(data, "error").String(),
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev)
	}
}

// Close stops the storage query
func (a *ArchiveStorageSubscription) Close(ctx context.Context) error {
	return a.sub.Unsubscribe(ctx)
}
