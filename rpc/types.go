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
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/jinzhu/copier"
)

// Hash is a 32-byte block hash, encoded as 0x-prefixed hex on the wire
type Hash = common.Hash

// Bytes is an opaque byte buffer, encoded as 0x-prefixed hex on the wire
type Bytes = hexutil.Bytes

// HexToHash parses a 0x-prefixed hex string into a Hash
func HexToHash(s string) Hash {
	return common.HexToHash(s)
}

// Runtime event types
const (
	RuntimeTypeValid   = "valid"
	RuntimeTypeInvalid = "invalid"
)

// RuntimeEvent describes the runtime of a block as reported by chainHead
type RuntimeEvent struct {
	Type  string       `json:"type"`
	Spec  *RuntimeSpec `json:"spec,omitempty"`
	Error string       `json:"error,omitempty"`
}

// RuntimeSpec is the version information of a valid runtime
type RuntimeSpec struct {
	SpecName           string            `json:"specName"`
	ImplName           string            `json:"implName"`
	SpecVersion        uint32            `json:"specVersion"`
	ImplVersion        uint32            `json:"implVersion"`
	TransactionVersion uint32            `json:"transactionVersion"`
	Apis               map[string]uint32 `json:"apis"`
}

// Clone returns a deep copy of the runtime event
func (r *RuntimeEvent) Clone() *RuntimeEvent {
	if r == nil {
		return nil
	}
	ret := &RuntimeEvent{}
	if err := copier.CopyWithOption(ret, r, copier.Option{DeepCopy: true}); err != nil {
		// Shallow copy is still correct for read-only consumers
		tmp := *r
		return &tmp
	}
	return ret
}

// Storage query types for chainHead_v1_storage and archive_v1_storage
const (
	StorageQueryTypeValue                        = "value"
	StorageQueryTypeHash                         = "hash"
	StorageQueryTypeClosestDescendantMerkleValue = "closestDescendantMerkleValue"
	StorageQueryTypeDescendantsValues            = "descendantsValues"
	StorageQueryTypeDescendantsHashes            = "descendantsHashes"
)

// StorageQuery is a single item of a storage request
type StorageQuery struct {
	Key  Bytes  `json:"key"`
	Type string `json:"type"`
}

// StorageResult is a single item of a storage response
type StorageResult struct {
	Key                          Bytes `json:"key"`
	Value                        Bytes `json:"value,omitempty"`
	Hash                         Bytes `json:"hash,omitempty"`
	ClosestDescendantMerkleValue Bytes `json:"closestDescendantMerkleValue,omitempty"`
	ChildTrieKey                 Bytes `json:"childTrieKey,omitempty"`
}
