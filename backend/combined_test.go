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

package backend_test

import (
	"context"
	"errors"
	"testing"

	"github.com/blinklabs-io/gosubstrate/backend"
	"github.com/blinklabs-io/gosubstrate/internal/test"
	"github.com/blinklabs-io/gosubstrate/internal/test/mockrpc"
	"github.com/blinklabs-io/gosubstrate/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeBackend answers every operation with its own block hash, or fails with
// err
type fakeBackend struct {
	hash  rpc.Hash
	err   error
	calls int
	// hook runs before every operation
	hook func()
}

func (f *fakeBackend) result() error {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	return f.err
}

func (f *fakeBackend) StorageFetchValues(
	ctx context.Context,
	keys [][]byte,
	at rpc.Hash,
) (backend.Stream[backend.StorageResponse], error) {
	if err := f.result(); err != nil {
		return nil, err
	}
	return backend.NewSliceStream([]backend.StorageResponse{
		{Key: keys[0], Value: f.hash.Bytes()},
	}), nil
}

func (f *fakeBackend) StorageFetchDescendantKeys(
	ctx context.Context,
	prefix []byte,
	at rpc.Hash,
) (backend.Stream[[]byte], error) {
	if err := f.result(); err != nil {
		return nil, err
	}
	return backend.NewSliceStream([][]byte{f.hash.Bytes()}), nil
}

func (f *fakeBackend) StorageFetchDescendantValues(
	ctx context.Context,
	prefix []byte,
	at rpc.Hash,
) (backend.Stream[backend.StorageResponse], error) {
	return f.StorageFetchValues(ctx, [][]byte{prefix}, at)
}

func (f *fakeBackend) GenesisHash(ctx context.Context) (rpc.Hash, error) {
	return f.hash, f.result()
}

func (f *fakeBackend) BlockHeader(ctx context.Context, at rpc.Hash) ([]byte, error) {
	return f.hash.Bytes(), f.result()
}

func (f *fakeBackend) BlockBody(ctx context.Context, at rpc.Hash) ([][]byte, error) {
	return [][]byte{f.hash.Bytes()}, f.result()
}

func (f *fakeBackend) LatestFinalizedBlockRef(ctx context.Context) (backend.BlockRef, error) {
	return backend.NewBlockRef(f.hash), f.result()
}

func (f *fakeBackend) CurrentRuntimeVersion(ctx context.Context) (backend.RuntimeVersion, error) {
	return backend.RuntimeVersion{SpecVersion: uint32(f.hash[31])}, f.result()
}

func (f *fakeBackend) headers() (backend.Stream[backend.BlockHeader], error) {
	if err := f.result(); err != nil {
		return nil, err
	}
	return backend.NewSliceStream([]backend.BlockHeader{
		{Ref: backend.NewBlockRef(f.hash)},
	}), nil
}

func (f *fakeBackend) StreamAllBlockHeaders(ctx context.Context) (backend.Stream[backend.BlockHeader], error) {
	return f.headers()
}

func (f *fakeBackend) StreamBestBlockHeaders(ctx context.Context) (backend.Stream[backend.BlockHeader], error) {
	return f.headers()
}

func (f *fakeBackend) StreamFinalizedBlockHeaders(ctx context.Context) (backend.Stream[backend.BlockHeader], error) {
	return f.headers()
}

func (f *fakeBackend) SubmitTransaction(
	ctx context.Context,
	tx []byte,
) (backend.Stream[backend.TransactionStatus], error) {
	if err := f.result(); err != nil {
		return nil, err
	}
	return backend.NewSliceStream([]backend.TransactionStatus{
		{
			Type:  backend.TransactionStatusInFinalizedBlock,
			Block: backend.NewBlockRef(f.hash),
		},
	}), nil
}

func (f *fakeBackend) Call(
	ctx context.Context,
	method string,
	params []byte,
	at rpc.Hash,
) ([]byte, error) {
	return f.hash.Bytes(), f.result()
}

type fakeBackends struct {
	archive   *fakeBackend
	chainHead *fakeBackend
	legacy    *fakeBackend
}

func newFakeBackends() *fakeBackends {
	return &fakeBackends{
		archive:   &fakeBackend{hash: test.BlockHash(1)},
		chainHead: &fakeBackend{hash: test.BlockHash(2)},
		legacy:    &fakeBackend{hash: test.BlockHash(3)},
	}
}

func (f *fakeBackends) combined() *backend.Combined {
	return backend.NewCombined(
		backend.Backends{
			Archive:   f.archive,
			ChainHead: f.chainHead,
			Legacy:    f.legacy,
		},
		nil,
	)
}

func TestCombinedPriorities(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	fakes := newFakeBackends()
	c := fakes.combined()

	genesis, err := c.GenesisHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, fakes.archive.hash, genesis, "archive first for reads")

	values, err := c.StorageFetchValues(ctx, [][]byte{{0x01}}, test.BlockHash(9))
	require.NoError(t, err)
	items, err := backend.Collect(ctx, values)
	require.NoError(t, err)
	assert.Equal(t, fakes.archive.hash.Bytes(), items[0].Value)

	ref, err := c.LatestFinalizedBlockRef(ctx)
	require.NoError(t, err)
	assert.Equal(t, fakes.chainHead.hash, ref.Hash, "chainHead first for finalized block")
	assert.False(t, ref.Pinned())

	version, err := c.CurrentRuntimeVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(fakes.chainHead.hash[31]), version.SpecVersion)

	statuses, err := c.SubmitTransaction(ctx, []byte{0x04})
	require.NoError(t, err)
	status, err := statuses.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, fakes.chainHead.hash, status.Block.Hash)
	assert.True(t, status.Terminal())
	require.NoError(t, statuses.Close(ctx))

	assert.Equal(t, 0, fakes.legacy.calls)
}

func TestCombinedFallback(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	fakes := newFakeBackends()
	fakes.archive.err = errors.New("archive down")
	c := fakes.combined()

	header, err := c.BlockHeader(ctx, test.BlockHash(9))
	require.NoError(t, err)
	assert.Equal(t, fakes.chainHead.hash.Bytes(), header)
	assert.Equal(t, 1, fakes.archive.calls)

	fakes.chainHead.err = errors.New("chainHead down")
	body, err := c.BlockBody(ctx, test.BlockHash(9))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{fakes.legacy.hash.Bytes()}, body)
}

func TestCombinedLastError(t *testing.T) {
	defer goleak.VerifyNone(t)
	fakes := newFakeBackends()
	fakes.archive.err = errors.New("archive down")
	fakes.chainHead.err = errors.New("chainHead down")
	legacyErr := errors.New("legacy down")
	fakes.legacy.err = legacyErr
	_, err := fakes.combined().Call(context.Background(), "Core_version", nil, test.BlockHash(9))
	if !errors.Is(err, legacyErr) {
		t.Fatalf("did not get expected error\n  got: %v\n  wanted: %v", err, legacyErr)
	}
}

func TestCombinedUnsupported(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	fakes := newFakeBackends()
	fakes.chainHead.err = backend.ErrUnsupported
	fakes.legacy.err = backend.ErrUnsupported
	_, err := fakes.combined().StreamBestBlockHeaders(ctx)
	assert.ErrorIs(t, err, backend.ErrNoBackendAvailable)
	assert.Equal(t, 0, fakes.archive.calls, "archive does not stream headers")

	// An unsupported operation does not hide a real failure
	legacyErr := errors.New("legacy down")
	fakes.legacy.err = legacyErr
	_, err = fakes.combined().StreamAllBlockHeaders(ctx)
	assert.ErrorIs(t, err, legacyErr)
}

func TestCombinedNoBackends(t *testing.T) {
	defer goleak.VerifyNone(t)
	fakes := newFakeBackends()
	c := backend.NewCombined(backend.Backends{Archive: fakes.archive}, nil)
	_, err := c.SubmitTransaction(context.Background(), []byte{0x04})
	assert.ErrorIs(t, err, backend.ErrNoBackendAvailable)
	_, err = backend.NewCombined(backend.Backends{}, nil).GenesisHash(context.Background())
	assert.ErrorIs(t, err, backend.ErrNoBackendAvailable)
}

func TestCombinedContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fakes := newFakeBackends()
	fakes.archive.err = errors.New("archive down")
	fakes.archive.hook = cancel
	_, err := fakes.combined().GenesisHash(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fakes.chainHead.calls)
}

func TestNewCombinedFromMethods(t *testing.T) {
	defer goleak.VerifyNone(t)
	client := mockrpc.New()
	methods := append([]string{}, backend.ChainHeadMethods...)
	methods = append(methods, backend.LegacyMethods...)
	client.HandleResult(rpc.MethodRPCMethods, map[string]any{"methods": methods})
	fakes := newFakeBackends()
	c, support, err := backend.NewCombinedFromMethods(
		context.Background(),
		rpc.NewMethods(client),
		backend.Backends{
			Archive:   fakes.archive,
			ChainHead: fakes.chainHead,
			Legacy:    fakes.legacy,
		},
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, backend.Support{ChainHead: true, Legacy: true}, support)
	genesis, err := c.GenesisHash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fakes.chainHead.hash, genesis)
	assert.Equal(t, 0, fakes.archive.calls)
	assert.Len(t, client.Calls(rpc.MethodRPCMethods), 1)
}

func TestSupportFromMethods(t *testing.T) {
	support := backend.SupportFromMethods(backend.ArchiveMethods)
	assert.Equal(t, backend.Support{Archive: true}, support)
	support = backend.SupportFromMethods(backend.ChainHeadMethods[1:])
	assert.False(t, support.ChainHead)
}

func TestTransactionStatus(t *testing.T) {
	status := backend.TransactionStatus{
		Type:    backend.TransactionStatusInvalid,
		Message: "bad signature",
	}
	assert.True(t, status.Terminal())
	var txErr *backend.TransactionError
	require.ErrorAs(t, status.Err(), &txErr)
	assert.Equal(t, "transaction Invalid: bad signature", txErr.Error())
	assert.NoError(t, backend.TransactionStatus{Type: backend.TransactionStatusBroadcasted}.Err())
	assert.False(t, backend.TransactionStatus{Type: backend.TransactionStatusInBestBlock}.Terminal())
}

func TestHashTransaction(t *testing.T) {
	// blake2b-256 of the empty input
	assert.Equal(
		t,
		rpc.HexToHash("0x0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8"),
		backend.HashTransaction(nil),
	)
}
