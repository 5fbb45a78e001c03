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

package test

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/blinklabs-io/gosubstrate/rpc"
)

// DecodeHexString is a helper function for tests that decodes hex strings. It doesn't return
// an error value, which makes it usable inline.
func DecodeHexString(hexData string) []byte {
	// Strip off any leading/trailing whitespace and 0x prefix in hex string
	hexData = strings.TrimPrefix(strings.TrimSpace(hexData), "0x")
	decoded, err := hex.DecodeString(hexData)
	if err != nil {
		panic(fmt.Sprintf("error decoding hex: %s", err))
	}
	return decoded
}

// BlockHash returns a distinct, deterministic block hash for n
func BlockHash(n int) rpc.Hash {
	var h rpc.Hash
	h[0] = 0xb1
	binary.BigEndian.PutUint64(h[24:], uint64(n))
	return h
}
