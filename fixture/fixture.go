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

// Package fixture records chainHead follow subscriptions to files and replays
// them, so that the follow stream can be exercised without a node.
//
// A recording is a zstd compressed sequence of CBOR records. It starts with a
// header record, followed by a ready record for each follow subscription and
// the events reported on it.
package fixture

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/gosubstrate/cbor"
	"github.com/blinklabs-io/gosubstrate/rpc"
	"github.com/jinzhu/copier"
)

// FormatVersion is the version written to the header of new recordings
const FormatVersion = 1

var (
	ErrInvalidRecording = errors.New("invalid recording")
	// ErrEndOfRecording is returned when a replayed follow subscription runs
	// past the end of the recording
	ErrEndOfRecording = errors.New("end of recording")
)

// Record alternatives
const (
	recordHeader uint = iota
	recordReady
	recordInitialized
	recordNewBlock
	recordBestBlockChanged
	recordFinalized
	recordStop
	recordOperation
)

type headerRecord struct {
	cbor.StructAsArray
	Version uint
	Created int64
}

type readyRecord struct {
	cbor.StructAsArray
	SubscriptionID string
}

type runtimeRecord struct {
	cbor.StructAsArray
	Type               string
	Error              string
	SpecName           string
	ImplName           string
	SpecVersion        uint32
	ImplVersion        uint32
	TransactionVersion uint32
	Apis               map[string]uint32
}

type initializedRecord struct {
	cbor.StructAsArray
	FinalizedBlockHashes [][]byte
	Runtime              *runtimeRecord
}

type newBlockRecord struct {
	cbor.StructAsArray
	BlockHash       []byte
	ParentBlockHash []byte
	NewRuntime      *runtimeRecord
}

type bestBlockChangedRecord struct {
	cbor.StructAsArray
	BestBlockHash []byte
}

type finalizedRecord struct {
	cbor.StructAsArray
	FinalizedBlockHashes [][]byte
	PrunedBlockHashes    [][]byte
}

// Operation events are kept in their JSON form
type operationRecord struct {
	cbor.StructAsArray
	Event []byte
}

func encodeRuntime(runtime *rpc.RuntimeEvent) (*runtimeRecord, error) {
	if runtime == nil {
		return nil, nil
	}
	ret := &runtimeRecord{
		Type:  runtime.Type,
		Error: runtime.Error,
	}
	if runtime.Spec != nil {
		if err := copier.Copy(ret, runtime.Spec); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func decodeRuntime(record *runtimeRecord) (*rpc.RuntimeEvent, error) {
	if record == nil {
		return nil, nil
	}
	ret := &rpc.RuntimeEvent{
		Type:  record.Type,
		Error: record.Error,
	}
	if record.Type == rpc.RuntimeTypeValid {
		ret.Spec = &rpc.RuntimeSpec{}
		if err := copier.Copy(ret.Spec, record); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func encodeHashes(hashes []rpc.Hash) [][]byte {
	ret := make([][]byte, len(hashes))
	for i, hash := range hashes {
		ret[i] = hash.Bytes()
	}
	return ret
}

func decodeHash(data []byte) (rpc.Hash, error) {
	if len(data) != len(rpc.Hash{}) {
		return rpc.Hash{}, fmt.Errorf("%w: hash of length %d", ErrInvalidRecording, len(data))
	}
	return rpc.Hash(data), nil
}

func decodeHashes(data [][]byte) ([]rpc.Hash, error) {
	ret := make([]rpc.Hash, len(data))
	for i, item := range data {
		hash, err := decodeHash(item)
		if err != nil {
			return nil, err
		}
		ret[i] = hash
	}
	return ret, nil
}

// encodeEvent returns the record for a follow event
func encodeEvent(ev rpc.FollowEvent) (cbor.ConstructorEncoder, error) {
	switch ev := ev.(type) {
	case rpc.Initialized[rpc.Hash]:
		runtime, err := encodeRuntime(ev.FinalizedBlockRuntime)
		if err != nil {
			return cbor.ConstructorEncoder{}, err
		}
		return cbor.NewConstructorEncoder(recordInitialized, initializedRecord{
			FinalizedBlockHashes: encodeHashes(ev.FinalizedBlockHashes),
			Runtime:              runtime,
		}), nil
	case rpc.NewBlock[rpc.Hash]:
		runtime, err := encodeRuntime(ev.NewRuntime)
		if err != nil {
			return cbor.ConstructorEncoder{}, err
		}
		return cbor.NewConstructorEncoder(recordNewBlock, newBlockRecord{
			BlockHash:       ev.BlockHash.Bytes(),
			ParentBlockHash: ev.ParentBlockHash.Bytes(),
			NewRuntime:      runtime,
		}), nil
	case rpc.BestBlockChanged[rpc.Hash]:
		return cbor.NewConstructorEncoder(recordBestBlockChanged, bestBlockChangedRecord{
			BestBlockHash: ev.BestBlockHash.Bytes(),
		}), nil
	case rpc.Finalized[rpc.Hash]:
		return cbor.NewConstructorEncoder(recordFinalized, finalizedRecord{
			FinalizedBlockHashes: encodeHashes(ev.FinalizedBlockHashes),
			PrunedBlockHashes:    encodeHashes(ev.PrunedBlockHashes),
		}), nil
	case rpc.Stop:
		return cbor.NewConstructorEncoder(recordStop, []any{}), nil
	case rpc.OperationEvent:
		data, err := rpc.EncodeFollowEvent(ev)
		if err != nil {
			return cbor.ConstructorEncoder{}, err
		}
		return cbor.NewConstructorEncoder(recordOperation, operationRecord{Event: data}), nil
	}
	return cbor.ConstructorEncoder{}, fmt.Errorf("%w: %T", rpc.ErrUnknownEvent, ev)
}

// decodeEvent returns the follow event of a record. The record must not be a
// header or ready record
func decodeEvent(cd cbor.ConstructorDecoder) (rpc.FollowEvent, error) {
	switch cd.Tag() {
	case recordInitialized:
		var record initializedRecord
		if err := cd.DecodeFields(&record); err != nil {
			return nil, err
		}
		hashes, err := decodeHashes(record.FinalizedBlockHashes)
		if err != nil {
			return nil, err
		}
		runtime, err := decodeRuntime(record.Runtime)
		if err != nil {
			return nil, err
		}
		return rpc.Initialized[rpc.Hash]{
			FinalizedBlockHashes:  hashes,
			FinalizedBlockRuntime: runtime,
		}, nil
	case recordNewBlock:
		var record newBlockRecord
		if err := cd.DecodeFields(&record); err != nil {
			return nil, err
		}
		blockHash, err := decodeHash(record.BlockHash)
		if err != nil {
			return nil, err
		}
		parentHash, err := decodeHash(record.ParentBlockHash)
		if err != nil {
			return nil, err
		}
		runtime, err := decodeRuntime(record.NewRuntime)
		if err != nil {
			return nil, err
		}
		return rpc.NewBlock[rpc.Hash]{
			BlockHash:       blockHash,
			ParentBlockHash: parentHash,
			NewRuntime:      runtime,
		}, nil
	case recordBestBlockChanged:
		var record bestBlockChangedRecord
		if err := cd.DecodeFields(&record); err != nil {
			return nil, err
		}
		hash, err := decodeHash(record.BestBlockHash)
		if err != nil {
			return nil, err
		}
		return rpc.BestBlockChanged[rpc.Hash]{BestBlockHash: hash}, nil
	case recordFinalized:
		var record finalizedRecord
		if err := cd.DecodeFields(&record); err != nil {
			return nil, err
		}
		finalized, err := decodeHashes(record.FinalizedBlockHashes)
		if err != nil {
			return nil, err
		}
		pruned, err := decodeHashes(record.PrunedBlockHashes)
		if err != nil {
			return nil, err
		}
		return rpc.Finalized[rpc.Hash]{
			FinalizedBlockHashes: finalized,
			PrunedBlockHashes:    pruned,
		}, nil
	case recordStop:
		return rpc.Stop{}, nil
	case recordOperation:
		var record operationRecord
		if err := cd.DecodeFields(&record); err != nil {
			return nil, err
		}
		return rpc.DecodeFollowEvent(record.Event)
	}
	return nil, fmt.Errorf("%w: unexpected record type %d", ErrInvalidRecording, cd.Tag())
}
