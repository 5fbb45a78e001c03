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

package archive_test

import (
	"context"
	"testing"
	"time"

	"github.com/blinklabs-io/gosubstrate/backend"
	"github.com/blinklabs-io/gosubstrate/backend/archive"
	"github.com/blinklabs-io/gosubstrate/internal/test"
	"github.com/blinklabs-io/gosubstrate/internal/test/mockrpc"
	"github.com/blinklabs-io/gosubstrate/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestBackend() (*mockrpc.Client, *archive.Backend) {
	client := mockrpc.New()
	return client, archive.New(rpc.NewMethods(client), nil)
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func storageItem(key string, value string) map[string]string {
	return map[string]string{
		"event": rpc.ArchiveStorageEventItem,
		"key":   key,
		"value": value,
	}
}

func TestStorageFetchValues(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, b := newTestBackend()
	ctx := testContext(t)
	client.HandleSubscribe(
		rpc.MethodArchiveStorage,
		func(sub *mockrpc.Subscription, params []any) error {
			sub.Send(storageItem("0x01", "0xaa"))
			sub.Send(map[string]string{"event": rpc.ArchiveStorageEventItem, "key": "0x02"})
			sub.Send(storageItem("0x03", "0xcc"))
			sub.Send(map[string]string{"event": rpc.ArchiveStorageEventDone})
			return nil
		},
	)
	stream, err := b.StorageFetchValues(ctx, [][]byte{{0x01}, {0x02}, {0x03}}, test.BlockHash(5))
	require.NoError(t, err)
	values, err := backend.Collect(ctx, stream)
	require.NoError(t, err)
	assert.Equal(
		t,
		[]backend.StorageResponse{
			{Key: []byte{0x01}, Value: []byte{0xaa}},
			{Key: []byte{0x03}, Value: []byte{0xcc}},
		},
		values,
	)
	calls := client.Calls(rpc.MethodArchiveStorage)
	require.Len(t, calls, 1)
	assert.Equal(t, test.BlockHash(5), calls[0].Params[0])
	// A completed query is not stopped
	assert.Empty(t, client.Calls(rpc.MethodArchiveStopStorage))
}

func TestStorageFetchDescendantKeys(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, b := newTestBackend()
	ctx := testContext(t)
	client.HandleSubscribe(
		rpc.MethodArchiveStorage,
		func(sub *mockrpc.Subscription, params []any) error {
			sub.Send(map[string]string{"event": rpc.ArchiveStorageEventItem, "key": "0x0101", "hash": "0xaa"})
			sub.Send(map[string]string{"event": rpc.ArchiveStorageEventItem, "key": "0x0102", "hash": "0xbb"})
			return nil
		},
	)
	stream, err := b.StorageFetchDescendantKeys(ctx, []byte{0x01}, test.BlockHash(5))
	require.NoError(t, err)
	key, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x01}, key)
	// Abandon the query early
	require.NoError(t, stream.Close(ctx))
	assert.Len(t, client.Calls(rpc.MethodArchiveStopStorage), 1)
	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, backend.ErrStreamClosed)
	calls := client.Calls(rpc.MethodArchiveStorage)
	require.Len(t, calls, 1)
	assert.Equal(
		t,
		[]rpc.StorageQuery{{Key: rpc.Bytes{0x01}, Type: rpc.StorageQueryTypeDescendantsHashes}},
		calls[0].Params[1],
	)
}

func TestStorageError(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, b := newTestBackend()
	ctx := testContext(t)
	client.HandleSubscribe(
		rpc.MethodArchiveStorage,
		func(sub *mockrpc.Subscription, params []any) error {
			sub.Send(storageItem("0x0101", "0xaa"))
			sub.Send(map[string]string{"event": rpc.ArchiveStorageEventError, "error": "trie missing"})
			return nil
		},
	)
	stream, err := b.StorageFetchDescendantValues(ctx, []byte{0x01}, test.BlockHash(5))
	require.NoError(t, err)
	values, err := backend.Collect(ctx, stream)
	var opErr *rpc.OperationFailedError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "trie missing", opErr.Message)
	assert.Len(t, values, 1)
}

func TestLatestFinalizedBlockRef(t *testing.T) {
	client, b := newTestBackend()
	ctx := testContext(t)
	client.HandleResult(rpc.MethodArchiveFinalizedHeight, 42)
	client.Handle(rpc.MethodArchiveHashByHeight, func(params []any) (any, error) {
		if params[0].(uint64) != 42 {
			return []rpc.Hash{}, nil
		}
		return []rpc.Hash{test.BlockHash(42)}, nil
	})
	ref, err := b.LatestFinalizedBlockRef(ctx)
	require.NoError(t, err)
	assert.Equal(t, test.BlockHash(42), ref.Hash)
	assert.False(t, ref.Pinned())

	client.HandleResult(rpc.MethodArchiveFinalizedHeight, 43)
	_, err = b.LatestFinalizedBlockRef(ctx)
	assert.ErrorIs(t, err, backend.ErrBlockNotFound)
}

func TestRetryOnDisconnect(t *testing.T) {
	client, b := newTestBackend()
	attempts := 0
	client.Handle(rpc.MethodArchiveGenesisHash, func([]any) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, rpc.ErrDisconnectedWillReconnect
		}
		return test.BlockHash(0), nil
	})
	hash, err := b.GenesisHash(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, test.BlockHash(0), hash)
	assert.Equal(t, 3, attempts)
}

func TestBlocksAndCall(t *testing.T) {
	client, b := newTestBackend()
	ctx := testContext(t)
	client.HandleResult(rpc.MethodArchiveHeader, rpc.Bytes{0x12})
	client.HandleResult(rpc.MethodArchiveBody, []rpc.Bytes{{0x01}, {0x02, 0x03}})
	client.Handle(rpc.MethodArchiveCall, func(params []any) (any, error) {
		if params[1] != "Core_version" {
			return rpc.ArchiveCallResult{Error: "unknown function"}, nil
		}
		return rpc.ArchiveCallResult{Success: true, Value: rpc.Bytes{0xab}}, nil
	})
	header, err := b.BlockHeader(ctx, test.BlockHash(1))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12}, header)
	body, err := b.BlockBody(ctx, test.BlockHash(1))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x01}, {0x02, 0x03}}, body)
	output, err := b.Call(ctx, "Core_version", nil, test.BlockHash(1))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xab}, output)
	_, err = b.Call(ctx, "Nope_nope", nil, test.BlockHash(1))
	var opErr *rpc.OperationFailedError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "unknown function", opErr.Message)

	client.HandleResult(rpc.MethodArchiveHeader, nil)
	header, err = b.BlockHeader(ctx, test.BlockHash(2))
	require.NoError(t, err)
	assert.Nil(t, header)
}

func TestUnsupported(t *testing.T) {
	_, b := newTestBackend()
	ctx := testContext(t)
	_, err := b.CurrentRuntimeVersion(ctx)
	assert.ErrorIs(t, err, backend.ErrUnsupported)
	_, err = b.StreamAllBlockHeaders(ctx)
	assert.ErrorIs(t, err, backend.ErrUnsupported)
	_, err = b.StreamBestBlockHeaders(ctx)
	assert.ErrorIs(t, err, backend.ErrUnsupported)
	_, err = b.StreamFinalizedBlockHeaders(ctx)
	assert.ErrorIs(t, err, backend.ErrUnsupported)
	_, err = b.SubmitTransaction(ctx, []byte{0x04})
	assert.ErrorIs(t, err, backend.ErrUnsupported)
}
