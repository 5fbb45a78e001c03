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

package substrate_test

import (
	"testing"

	substrate "github.com/blinklabs-io/gosubstrate"
	"github.com/blinklabs-io/gosubstrate/rpc"
)

type networkLookupTestDefinition struct {
	name        string
	genesisHash rpc.Hash
	expected    substrate.Network
}

var networkLookupTests = []networkLookupTestDefinition{
	{
		name:        "polkadot",
		genesisHash: rpc.HexToHash("0x91b171bb158e2d3848fa23a9f1c25182fb8e20313b2c1eb49219da7a70ce90c3"),
		expected:    substrate.NetworkPolkadot,
	},
	{
		name:        "westend",
		genesisHash: rpc.HexToHash("0xe143f23803ac50e8f6f8e62695d1ce9e4e1d68aa36c1cd2cfd15340213f3423e"),
		expected:    substrate.NetworkWestend,
	},
	{
		name:        "rococo",
		genesisHash: rpc.HexToHash("0x01"),
		expected:    substrate.NetworkInvalid,
	},
}

func TestNetworkLookup(t *testing.T) {
	for _, test := range networkLookupTests {
		if network := substrate.NetworkByName(test.name); network != test.expected {
			t.Fatalf(
				"did not get expected network by name\n  got: %s\n  wanted: %s",
				network,
				test.expected,
			)
		}
		if network := substrate.NetworkByGenesisHash(test.genesisHash); network != test.expected {
			t.Fatalf(
				"did not get expected network by genesis hash\n  got: %s\n  wanted: %s",
				network,
				test.expected,
			)
		}
	}
}
