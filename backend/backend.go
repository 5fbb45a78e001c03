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

// Package backend defines the operations a client needs from a node and
// combines several implementations of them, speaking different RPC
// dialects, behind a single fallback chain.
package backend

import (
	"context"
	"fmt"

	"github.com/blinklabs-io/gosubstrate/protocol/followstream"
	"github.com/blinklabs-io/gosubstrate/rpc"
)

// Backend is implemented by each RPC dialect. Operations a backend cannot
// serve return ErrUnsupported.
//
// Block hashes passed to a chainHead backend must refer to blocks pinned by
// its current follow subscription, such as those returned by
// LatestFinalizedBlockRef or a header stream
type Backend interface {
	// StorageFetchValues returns the values of the given keys. Keys without a
	// value are omitted
	StorageFetchValues(ctx context.Context, keys [][]byte, at rpc.Hash) (Stream[StorageResponse], error)
	// StorageFetchDescendantKeys returns every key below prefix
	StorageFetchDescendantKeys(ctx context.Context, prefix []byte, at rpc.Hash) (Stream[[]byte], error)
	// StorageFetchDescendantValues returns every key below prefix with its
	// value
	StorageFetchDescendantValues(ctx context.Context, prefix []byte, at rpc.Hash) (Stream[StorageResponse], error)
	GenesisHash(ctx context.Context) (rpc.Hash, error)
	// BlockHeader returns the encoded header of a block, or nil if the block
	// is unknown
	BlockHeader(ctx context.Context, at rpc.Hash) ([]byte, error)
	// BlockBody returns the encoded extrinsics of a block, or nil if the
	// block is unknown
	BlockBody(ctx context.Context, at rpc.Hash) ([][]byte, error)
	LatestFinalizedBlockRef(ctx context.Context) (BlockRef, error)
	CurrentRuntimeVersion(ctx context.Context) (RuntimeVersion, error)
	StreamAllBlockHeaders(ctx context.Context) (Stream[BlockHeader], error)
	StreamBestBlockHeaders(ctx context.Context) (Stream[BlockHeader], error)
	StreamFinalizedBlockHeaders(ctx context.Context) (Stream[BlockHeader], error)
	// SubmitTransaction submits an encoded transaction and reports its
	// progress until it reaches a terminal status
	SubmitTransaction(ctx context.Context, tx []byte) (Stream[TransactionStatus], error)
	// Call invokes a runtime API function at the given block
	Call(ctx context.Context, method string, params []byte, at rpc.Hash) ([]byte, error)
}

// BlockRef refers to a block. A reference returned by a chainHead backend
// keeps the block pinned until it is released
type BlockRef struct {
	Hash rpc.Hash
	pin  *followstream.BlockRef
}

// NewBlockRef returns a reference to a block that is not pinned
func NewBlockRef(hash rpc.Hash) BlockRef {
	return BlockRef{Hash: hash}
}

// NewPinnedBlockRef returns a reference that owns the given pin
func NewPinnedBlockRef(pin *followstream.BlockRef) BlockRef {
	return BlockRef{Hash: pin.Hash(), pin: pin}
}

// Pinned reports whether the reference holds a pin
func (b BlockRef) Pinned() bool {
	return b.pin != nil
}

// Release gives up the pin, if any
func (b BlockRef) Release() {
	b.pin.Release()
}

func (b BlockRef) String() string {
	return b.Hash.Hex()
}

// StorageResponse is a storage key with its value
type StorageResponse struct {
	Key   []byte
	Value []byte
}

// RuntimeVersion identifies the runtime a transaction must be built for
type RuntimeVersion struct {
	SpecVersion        uint32
	TransactionVersion uint32
}

// BlockHeader is a block reported by a header stream. The receiver must
// release Ref
type BlockHeader struct {
	Ref    BlockRef
	Header []byte
}

type TransactionStatusType int

const (
	TransactionStatusValidated TransactionStatusType = iota + 1
	TransactionStatusBroadcasted
	TransactionStatusNoLongerInBestBlock
	TransactionStatusInBestBlock
	TransactionStatusInFinalizedBlock
	TransactionStatusError
	TransactionStatusInvalid
	TransactionStatusDropped
)

func (t TransactionStatusType) String() string {
	switch t {
	case TransactionStatusValidated:
		return "Validated"
	case TransactionStatusBroadcasted:
		return "Broadcasted"
	case TransactionStatusNoLongerInBestBlock:
		return "NoLongerInBestBlock"
	case TransactionStatusInBestBlock:
		return "InBestBlock"
	case TransactionStatusInFinalizedBlock:
		return "InFinalizedBlock"
	case TransactionStatusError:
		return "Error"
	case TransactionStatusInvalid:
		return "Invalid"
	case TransactionStatusDropped:
		return "Dropped"
	}
	return fmt.Sprintf("TransactionStatusType(%d)", int(t))
}

// TransactionStatus is a step in the life of a submitted transaction. Block
// is set for InBestBlock and InFinalizedBlock, Message for the failure
// statuses
type TransactionStatus struct {
	Type    TransactionStatusType
	Block   BlockRef
	Message string
}

// Terminal reports whether no further statuses follow
func (s TransactionStatus) Terminal() bool {
	switch s.Type {
	case TransactionStatusInFinalizedBlock,
		TransactionStatusError,
		TransactionStatusInvalid,
		TransactionStatusDropped:
		return true
	}
	return false
}

// Err returns a *TransactionError for the failure statuses, and nil
// otherwise
func (s TransactionStatus) Err() error {
	switch s.Type {
	case TransactionStatusError,
		TransactionStatusInvalid,
		TransactionStatusDropped:
		return &TransactionError{Type: s.Type, Message: s.Message}
	}
	return nil
}
