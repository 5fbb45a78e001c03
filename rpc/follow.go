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
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Follow event names as they appear in the "event" field
const (
	EventInitialized                 = "initialized"
	EventNewBlock                    = "newBlock"
	EventBestBlockChanged            = "bestBlockChanged"
	EventFinalized                   = "finalized"
	EventOperationBodyDone           = "operationBodyDone"
	EventOperationCallDone           = "operationCallDone"
	EventOperationStorageItems       = "operationStorageItems"
	EventOperationWaitingForContinue = "operationWaitingForContinue"
	EventOperationStorageDone        = "operationStorageDone"
	EventOperationInaccessible       = "operationInaccessible"
	EventOperationError              = "operationError"
	EventStop                        = "stop"
)

// FollowEvent is an event of a chainHead_v1_follow subscription. Events that
// carry block hashes are generic over the hash representation so that the
// same shapes can carry pinned block references further up the stack
type FollowEvent interface {
	eventName() string
}

// OperationEvent is a FollowEvent scoped to a long-running operation
type OperationEvent interface {
	FollowEvent
	Operation() string
}

type Initialized[H any] struct {
	FinalizedBlockHashes  []H           `json:"finalizedBlockHashes"`
	FinalizedBlockRuntime *RuntimeEvent `json:"finalizedBlockRuntime,omitempty"`
}

type NewBlock[H any] struct {
	BlockHash       H             `json:"blockHash"`
	ParentBlockHash H             `json:"parentBlockHash"`
	NewRuntime      *RuntimeEvent `json:"newRuntime,omitempty"`
}

type BestBlockChanged[H any] struct {
	BestBlockHash H `json:"bestBlockHash"`
}

type Finalized[H any] struct {
	FinalizedBlockHashes []H `json:"finalizedBlockHashes"`
	PrunedBlockHashes    []H `json:"prunedBlockHashes"`
}

type OperationBodyDone struct {
	OperationID string  `json:"operationId"`
	Value       []Bytes `json:"value"`
}

type OperationCallDone struct {
	OperationID string `json:"operationId"`
	Output      Bytes  `json:"output"`
}

type OperationStorageItems struct {
	OperationID string          `json:"operationId"`
	Items       []StorageResult `json:"items"`
}

type OperationWaitingForContinue struct {
	OperationID string `json:"operationId"`
}

type OperationStorageDone struct {
	OperationID string `json:"operationId"`
}

type OperationInaccessible struct {
	OperationID string `json:"operationId"`
}

type OperationError struct {
	OperationID string `json:"operationId"`
	Error       string `json:"error"`
}

// Stop means the server ended the follow subscription. No further events
// arrive on it
type Stop struct{}

func (Initialized[H]) eventName() string              { return EventInitialized }
func (NewBlock[H]) eventName() string                 { return EventNewBlock }
func (BestBlockChanged[H]) eventName() string         { return EventBestBlockChanged }
func (Finalized[H]) eventName() string                { return EventFinalized }
func (OperationBodyDone) eventName() string           { return EventOperationBodyDone }
func (OperationCallDone) eventName() string           { return EventOperationCallDone }
func (OperationStorageItems) eventName() string       { return EventOperationStorageItems }
func (OperationWaitingForContinue) eventName() string { return EventOperationWaitingForContinue }
func (OperationStorageDone) eventName() string        { return EventOperationStorageDone }
func (OperationInaccessible) eventName() string       { return EventOperationInaccessible }
func (OperationError) eventName() string              { return EventOperationError }
func (Stop) eventName() string                        { return EventStop }

func (e OperationBodyDone) Operation() string           { return e.OperationID }
func (e OperationCallDone) Operation() string           { return e.OperationID }
func (e OperationStorageItems) Operation() string       { return e.OperationID }
func (e OperationWaitingForContinue) Operation() string { return e.OperationID }
func (e OperationStorageDone) Operation() string        { return e.OperationID }
func (e OperationInaccessible) Operation() string       { return e.OperationID }
func (e OperationError) Operation() string              { return e.OperationID }

// DecodeFollowEvent decodes a follow subscription notification
func DecodeFollowEvent(data []byte) (FollowEvent, error) {
	tag := gjson.GetBytes(data, "event")
	if !tag.Exists() {
		return nil, fmt.Errorf("%w: missing event field", ErrUnknownEvent)
	}
	switch tag.String() {
	case EventInitialized:
		return decodeEvent[Initialized[Hash]](data)
	case EventNewBlock:
		return decodeEvent[NewBlock[Hash]](data)
	case EventBestBlockChanged:
		return decodeEvent[BestBlockChanged[Hash]](data)
	case EventFinalized:
		return decodeEvent[Finalized[Hash]](data)
	case EventOperationBodyDone:
		return decodeEvent[OperationBodyDone](data)
	case EventOperationCallDone:
		return decodeEvent[OperationCallDone](data)
	case EventOperationStorageItems:
		return decodeEvent[OperationStorageItems](data)
	case EventOperationWaitingForContinue:
		return decodeEvent[OperationWaitingForContinue](data)
	case EventOperationStorageDone:
		return decodeEvent[OperationStorageDone](data)
	case EventOperationInaccessible:
		return decodeEvent[OperationInaccessible](data)
	case EventOperationError:
		return decodeEvent[OperationError](data)
	case EventStop:
		return Stop{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, tag.String())
	}
}

func decodeEvent[T FollowEvent](data []byte) (FollowEvent, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode follow event: %w", err)
	}
	return ev, nil
}

// EventName returns the wire name of a follow event
func EventName(ev FollowEvent) string {
	return ev.eventName()
}

// EncodeFollowEvent encodes a follow event in its wire representation
func EncodeFollowEvent(ev FollowEvent) ([]byte, error) {
	name := ev.eventName()
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	// Splice the event tag into the object
	tagged := make([]byte, 0, len(data)+len(name)+12)
	tagged = append(tagged, `{"event":"`...)
	tagged = append(tagged, name...)
	tagged = append(tagged, '"')
	if len(data) > 2 {
		tagged = append(tagged, ',')
		tagged = append(tagged, data[1:]...)
	} else {
		tagged = append(tagged, '}')
	}
	return tagged, nil
}
