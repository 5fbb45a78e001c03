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

package rpc_test

import (
	"encoding/json"
	"testing"

	"github.com/blinklabs-io/gosubstrate/internal/test"
	"github.com/blinklabs-io/gosubstrate/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegacyHeaderNumber(t *testing.T) {
	testDefs := []struct {
		data     string
		expected uint64
	}{
		{data: `{"number":"0x1a","parentHash":"0x00"}`, expected: 26},
		{data: `{"number":7}`, expected: 7},
	}
	for _, testDef := range testDefs {
		var header rpc.LegacyHeader
		require.NoError(t, json.Unmarshal([]byte(testDef.data), &header))
		number, err := header.Number()
		require.NoError(t, err)
		if number != testDef.expected {
			t.Fatalf(
				"did not get expected block number\n  got: %d\n  wanted: %d",
				number,
				testDef.expected,
			)
		}
	}
	_, err := rpc.LegacyHeader(`{"parentHash":"0x00"}`).Number()
	assert.Error(t, err)
}

func TestLegacyHeaderParentHash(t *testing.T) {
	header := rpc.LegacyHeader(
		`{"number":"0x2","parentHash":"` + test.BlockHash(1).Hex() + `"}`,
	)
	assert.Equal(t, test.BlockHash(1), header.ParentHash())
	data, err := json.Marshal(header)
	require.NoError(t, err)
	assert.JSONEq(t, string(header), string(data))
}

func TestLegacyRuntimeVersion(t *testing.T) {
	data := `{"specName":"kusama","implName":"parity-kusama","specVersion":1002005,"implVersion":0,"transactionVersion":26,"apis":[["0xdf6acb689907609b",5],["0x37e397fc7c91f5e4",2]]}`
	var version rpc.LegacyRuntimeVersion
	require.NoError(t, json.Unmarshal([]byte(data), &version))
	assert.Equal(t, rpc.LegacyRuntimeVersion{
		SpecName:           "kusama",
		ImplName:           "parity-kusama",
		SpecVersion:        1002005,
		TransactionVersion: 26,
		Apis: map[string]uint32{
			"0xdf6acb689907609b": 5,
			"0x37e397fc7c91f5e4": 2,
		},
	}, version)
}

func TestExtrinsicStatus(t *testing.T) {
	block := test.BlockHash(3)
	testDefs := []struct {
		data     string
		expected rpc.ExtrinsicStatus
		terminal bool
	}{
		{
			data:     `"ready"`,
			expected: rpc.ExtrinsicStatus{Status: rpc.ExtrinsicStatusReady},
		},
		{
			data: `{"broadcast":["peer-1","peer-2"]}`,
			expected: rpc.ExtrinsicStatus{
				Status: rpc.ExtrinsicStatusBroadcast,
				Peers:  []string{"peer-1", "peer-2"},
			},
		},
		{
			data: `{"inBlock":"` + block.Hex() + `"}`,
			expected: rpc.ExtrinsicStatus{
				Status: rpc.ExtrinsicStatusInBlock,
				Block:  &block,
			},
		},
		{
			data: `{"finalized":"` + block.Hex() + `"}`,
			expected: rpc.ExtrinsicStatus{
				Status: rpc.ExtrinsicStatusFinalized,
				Block:  &block,
			},
			terminal: true,
		},
		{
			data:     `"dropped"`,
			expected: rpc.ExtrinsicStatus{Status: rpc.ExtrinsicStatusDropped},
			terminal: true,
		},
	}
	for _, testDef := range testDefs {
		var status rpc.ExtrinsicStatus
		require.NoError(t, json.Unmarshal([]byte(testDef.data), &status))
		assert.Equal(t, testDef.expected, status, testDef.data)
		assert.Equal(t, testDef.terminal, status.Terminal(), testDef.data)
	}
	for _, data := range []string{`{}`, `[1]`, `12`} {
		var status rpc.ExtrinsicStatus
		assert.Error(t, json.Unmarshal([]byte(data), &status), data)
	}
}
