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

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tidwall/gjson"
)

// Legacy method names
const (
	MethodChainGetBlockHash              = "chain_getBlockHash"
	MethodChainGetHeader                 = "chain_getHeader"
	MethodChainGetBlock                  = "chain_getBlock"
	MethodChainGetFinalizedHead          = "chain_getFinalizedHead"
	MethodChainSubscribeAllHeads         = "chain_subscribeAllHeads"
	MethodChainUnsubscribeAllHeads       = "chain_unsubscribeAllHeads"
	MethodChainSubscribeNewHeads         = "chain_subscribeNewHeads"
	MethodChainUnsubscribeNewHeads       = "chain_unsubscribeNewHeads"
	MethodChainSubscribeFinalizedHeads   = "chain_subscribeFinalizedHeads"
	MethodChainUnsubscribeFinalizedHeads = "chain_unsubscribeFinalizedHeads"
	MethodStateGetStorage                = "state_getStorage"
	MethodStateQueryStorageAt            = "state_queryStorageAt"
	MethodStateGetKeysPaged              = "state_getKeysPaged"
	MethodStateCall                      = "state_call"
	MethodStateGetRuntimeVersion         = "state_getRuntimeVersion"
	MethodAuthorSubmitExtrinsic          = "author_submitExtrinsic"
	MethodAuthorSubmitAndWatchExtrinsic  = "author_submitAndWatchExtrinsic"
	MethodAuthorUnwatchExtrinsic         = "author_unwatchExtrinsic"
)

// LegacyHeader is a block header as returned by chain_getHeader. The raw JSON
// is kept since its shape depends on the chain
type LegacyHeader json.RawMessage

// Number returns the block number of the header
func (h LegacyHeader) Number() (uint64, error) {
	res := gjson.GetBytes(h, "number")
	if !res.Exists() {
		return 0, fmt.Errorf("header has no number field")
	}
	if res.Type == gjson.Number {
		return res.Uint(), nil
	}
	return hexutil.DecodeUint64(res.String())
}

// ParentHash returns the parent hash of the header
func (h LegacyHeader) ParentHash() Hash {
	return HexToHash(gjson.GetBytes(h, "parentHash").String())
}

func (h LegacyHeader) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("null"), nil
	}
	return h, nil
}

func (h *LegacyHeader) UnmarshalJSON(data []byte) error {
	*h = append((*h)[0:0], data...)
	return nil
}

// LegacyBlock is the result of chain_getBlock
type LegacyBlock struct {
	Block struct {
		Header     LegacyHeader `json:"header"`
		Extrinsics []Bytes      `json:"extrinsics"`
	} `json:"block"`
	Justifications json.RawMessage `json:"justifications,omitempty"`
}

// LegacyStorageChangeSet is an item of the state_queryStorageAt result
type LegacyStorageChangeSet struct {
	Block   Hash       `json:"block"`
	Changes [][]*Bytes `json:"changes"`
}

// LegacyRuntimeVersion is the result of state_getRuntimeVersion
type LegacyRuntimeVersion struct {
	SpecName           string            `json:"specName"`
	ImplName           string            `json:"implName"`
	SpecVersion        uint32            `json:"specVersion"`
	ImplVersion        uint32            `json:"implVersion"`
	TransactionVersion uint32            `json:"transactionVersion"`
	Apis               map[string]uint32 `json:"-"`
}

func (v *LegacyRuntimeVersion) UnmarshalJSON(data []byte) error {
	type tmp LegacyRuntimeVersion
	var t tmp
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	*v = LegacyRuntimeVersion(t)
	// APIs are a list of [id, version] pairs
	v.Apis = make(map[string]uint32)
	gjson.GetBytes(data, "apis").ForEach(func(_, value gjson.Result) bool {
		pair := value.Array()
		if len(pair) == 2 {
			v.Apis[pair[0].String()] = uint32(pair[1].Uint())
		}
		return true
	})
	return nil
}

func (m *Methods) ChainGetBlockHash(
	ctx context.Context,
	number *uint64,
) (*Hash, error) {
	var params []any
	if number != nil {
		params = []any{*number}
	}
	var res *Hash
	if err := m.client.Request(ctx, MethodChainGetBlockHash, params, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Methods) ChainGetHeader(
	ctx context.Context,
	hash *Hash,
) (LegacyHeader, error) {
	var params []any
	if hash != nil {
		params = []any{*hash}
	}
	var res LegacyHeader
	if err := m.client.Request(ctx, MethodChainGetHeader, params, &res); err != nil {
		return nil, err
	}
	if string(res) == "null" {
		return nil, nil
	}
	return res, nil
}

func (m *Methods) ChainGetBlock(
	ctx context.Context,
	hash *Hash,
) (*LegacyBlock, error) {
	var params []any
	if hash != nil {
		params = []any{*hash}
	}
	var res *LegacyBlock
	if err := m.client.Request(ctx, MethodChainGetBlock, params, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Methods) ChainGetFinalizedHead(ctx context.Context) (Hash, error) {
	var res Hash
	if err := m.client.Request(ctx, MethodChainGetFinalizedHead, nil, &res); err != nil {
		return Hash{}, err
	}
	return res, nil
}

func (m *Methods) StateGetStorage(
	ctx context.Context,
	key Bytes,
	hash Hash,
) (Bytes, error) {
	var res *Bytes
	if err := m.client.Request(
		ctx,
		MethodStateGetStorage,
		[]any{key, hash},
		&res,
	); err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return *res, nil
}

func (m *Methods) StateQueryStorageAt(
	ctx context.Context,
	keys []Bytes,
	hash Hash,
) ([]LegacyStorageChangeSet, error) {
	var res []LegacyStorageChangeSet
	if err := m.client.Request(
		ctx,
		MethodStateQueryStorageAt,
		[]any{keys, hash},
		&res,
	); err != nil {
		return nil, err
	}
	return res, nil
}

// StateGetKeysPaged returns up to count keys with the given prefix, starting
// after startKey when it is set
func (m *Methods) StateGetKeysPaged(
	ctx context.Context,
	prefix Bytes,
	count uint32,
	startKey Bytes,
	hash Hash,
) ([]Bytes, error) {
	var start any
	if startKey != nil {
		start = startKey
	}
	var res []Bytes
	if err := m.client.Request(
		ctx,
		MethodStateGetKeysPaged,
		[]any{prefix, count, start, hash},
		&res,
	); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Methods) StateCall(
	ctx context.Context,
	function string,
	callParameters Bytes,
	hash Hash,
) (Bytes, error) {
	if callParameters == nil {
		callParameters = Bytes{}
	}
	var res Bytes
	if err := m.client.Request(
		ctx,
		MethodStateCall,
		[]any{function, callParameters, hash},
		&res,
	); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Methods) StateGetRuntimeVersion(
	ctx context.Context,
	hash *Hash,
) (*LegacyRuntimeVersion, error) {
	var params []any
	if hash != nil {
		params = []any{*hash}
	}
	var res LegacyRuntimeVersion
	if err := m.client.Request(ctx, MethodStateGetRuntimeVersion, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (m *Methods) AuthorSubmitExtrinsic(ctx context.Context, tx Bytes) (Hash, error) {
	var res Hash
	if err := m.client.Request(ctx, MethodAuthorSubmitExtrinsic, []any{tx}, &res); err != nil {
		return Hash{}, err
	}
	return res, nil
}

// Legacy extrinsic status names
const (
	ExtrinsicStatusFuture          = "future"
	ExtrinsicStatusReady           = "ready"
	ExtrinsicStatusBroadcast       = "broadcast"
	ExtrinsicStatusInBlock         = "inBlock"
	ExtrinsicStatusRetracted       = "retracted"
	ExtrinsicStatusFinalityTimeout = "finalityTimeout"
	ExtrinsicStatusFinalized       = "finalized"
	ExtrinsicStatusUsurped         = "usurped"
	ExtrinsicStatusDropped         = "dropped"
	ExtrinsicStatusInvalid         = "invalid"
)

// ExtrinsicStatus is a notification of author_submitAndWatchExtrinsic. The
// wire form is either a bare string or an object with a single key
type ExtrinsicStatus struct {
	Status string
	Peers  []string
	Block  *Hash
}

func (s *ExtrinsicStatus) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	switch res.Type {
	case gjson.String:
		s.Status = res.String()
		return nil
	case gjson.JSON:
		if !res.IsObject() {
			break
		}
		var found bool
		res.ForEach(func(key, value gjson.Result) bool {
			found = true
			s.Status = key.String()
			switch {
			case value.IsArray():
				for _, peer := range value.Array() {
					s.Peers = append(s.Peers, peer.String())
				}
			case value.Type == gjson.String:
				h := HexToHash(value.String())
				s.Block = &h
			}
			return false
		})
		if found {
			return nil
		}
	}
	return fmt.Errorf("invalid extrinsic status: %s", string(data))
}

// Terminal reports whether no further statuses follow this one
func (s *ExtrinsicStatus) Terminal() bool {
	switch s.Status {
	case ExtrinsicStatusFinalized,
		ExtrinsicStatusFinalityTimeout,
		ExtrinsicStatusUsurped,
		ExtrinsicStatusDropped,
		ExtrinsicStatusInvalid:
		return true
	}
	return false
}

// ExtrinsicSubscription is an open author_submitAndWatchExtrinsic
// subscription
type ExtrinsicSubscription struct {
	sub Subscription
}

func (m *Methods) AuthorSubmitAndWatchExtrinsic(
	ctx context.Context,
	tx Bytes,
) (*ExtrinsicSubscription, error) {
	sub, err := m.client.Subscribe(
		ctx,
		MethodAuthorSubmitAndWatchExtrinsic,
		[]any{tx},
		MethodAuthorUnwatchExtrinsic,
	)
	if err != nil {
		return nil, err
	}
	return &ExtrinsicSubscription{sub: sub}, nil
}

func (e *ExtrinsicSubscription) Next(ctx context.Context) (*ExtrinsicStatus, error) {
	data, err := e.sub.Next(ctx)
	if err != nil {
		return nil, err
	}
	var status ExtrinsicStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (e *ExtrinsicSubscription) Close(ctx context.Context) error {
	return e.sub.Unsubscribe(ctx)
}

// HeaderSubscription is an open legacy header subscription
type HeaderSubscription struct {
	sub Subscription
}

func (m *Methods) subscribeHeads(
	ctx context.Context,
	method string,
	unsubscribeMethod string,
) (*HeaderSubscription, error) {
	sub, err := m.client.Subscribe(ctx, method, nil, unsubscribeMethod)
	if err != nil {
		return nil, err
	}
	return &HeaderSubscription{sub: sub}, nil
}

// ChainSubscribeAllHeads reports every imported block header
func (m *Methods) ChainSubscribeAllHeads(ctx context.Context) (*HeaderSubscription, error) {
	return m.subscribeHeads(ctx, MethodChainSubscribeAllHeads, MethodChainUnsubscribeAllHeads)
}

// ChainSubscribeNewHeads reports the header of each new best block
func (m *Methods) ChainSubscribeNewHeads(ctx context.Context) (*HeaderSubscription, error) {
	return m.subscribeHeads(ctx, MethodChainSubscribeNewHeads, MethodChainUnsubscribeNewHeads)
}

// ChainSubscribeFinalizedHeads reports the header of each finalized block.
// Blocks may be skipped when several are finalized at once
func (m *Methods) ChainSubscribeFinalizedHeads(ctx context.Context) (*HeaderSubscription, error) {
	return m.subscribeHeads(
		ctx,
		MethodChainSubscribeFinalizedHeads,
		MethodChainUnsubscribeFinalizedHeads,
	)
}

func (h *HeaderSubscription) Next(ctx context.Context) (LegacyHeader, error) {
	data, err := h.sub.Next(ctx)
	if err != nil {
		return nil, err
	}
	return LegacyHeader(data), nil
}

func (h *HeaderSubscription) Close(ctx context.Context) error {
	return h.sub.Unsubscribe(ctx)
}
