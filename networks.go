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

package substrate

import "github.com/blinklabs-io/gosubstrate/rpc"

// Network definitions
var (
	NetworkPolkadot = Network{
		Name:        "polkadot",
		URL:         "wss://rpc.polkadot.io",
		GenesisHash: rpc.HexToHash("0x91b171bb158e2d3848fa23a9f1c25182fb8e20313b2c1eb49219da7a70ce90c3"),
	}
	NetworkKusama = Network{
		Name:        "kusama",
		URL:         "wss://kusama-rpc.polkadot.io",
		GenesisHash: rpc.HexToHash("0xb0a8d493285c2df73290dfb7e61f870f17b41801197a149ca93654499ea3dafe"),
	}
	NetworkWestend = Network{
		Name:        "westend",
		URL:         "wss://westend-rpc.polkadot.io",
		GenesisHash: rpc.HexToHash("0xe143f23803ac50e8f6f8e62695d1ce9e4e1d68aa36c1cd2cfd15340213f3423e"),
	}
	NetworkPaseo = Network{
		Name:        "paseo",
		URL:         "wss://rpc.ibp.network/paseo",
		GenesisHash: rpc.HexToHash("0x77afd6190f1554ad45fd0d31aee62aacc33c6db0ea801129acb813f913e0764f"),
	}

	NetworkInvalid = Network{
		Name: "invalid",
	} // NetworkInvalid is used as a return value for lookup functions when a network isn't found
)

// List of valid networks for use in lookup functions
var networks = []Network{
	NetworkPolkadot,
	NetworkKusama,
	NetworkWestend,
	NetworkPaseo,
}

// NetworkByName returns a predefined network by name
func NetworkByName(name string) Network {
	for _, network := range networks {
		if network.Name == name {
			return network
		}
	}
	return NetworkInvalid
}

// NetworkByGenesisHash returns a predefined network by genesis hash
func NetworkByGenesisHash(hash rpc.Hash) Network {
	for _, network := range networks {
		if network.GenesisHash == hash {
			return network
		}
	}
	return NetworkInvalid
}

// Network represents a Substrate chain and a public endpoint serving it
type Network struct {
	Name        string
	URL         string
	GenesisHash rpc.Hash
}

func (n Network) String() string {
	return n.Name
}
