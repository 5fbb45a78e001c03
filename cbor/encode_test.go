// Copyright 2023 Blink Labs Software
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

package cbor_test

import (
	"encoding/hex"
	"testing"

	"github.com/blinklabs-io/gosubstrate/cbor"
)

type encodeTestDefinition struct {
	CborHex string
	Object  any
}

type testRecord struct {
	cbor.StructAsArray
	Name  string
	Count uint64
}

var encodeTests = []encodeTestDefinition{
	// Simple list of numbers
	{
		CborHex: "83010203",
		Object:  []any{1, 2, 3},
	},
	// Map keys are sorted
	{
		CborHex: "a2616102616201",
		Object:  map[string]int{"b": 1, "a": 2},
	},
	// Struct as array
	{
		CborHex: "82636162630a",
		Object:  testRecord{Name: "abc", Count: 10},
	},
}

func TestEncode(t *testing.T) {
	for _, test := range encodeTests {
		cborData, err := cbor.Encode(test.Object)
		if err != nil {
			t.Fatalf("failed to encode object to CBOR: %s", err)
		}
		cborHex := hex.EncodeToString(cborData)
		if cborHex != test.CborHex {
			t.Fatalf(
				"object did not encode to expected CBOR\n  got: %s\n  wanted: %s",
				cborHex,
				test.CborHex,
			)
		}
	}
}

func TestStreamDecoder(t *testing.T) {
	var data []byte
	for _, item := range []any{uint64(1), "abc", testRecord{Name: "x", Count: 2}} {
		cborData, err := cbor.Encode(item)
		if err != nil {
			t.Fatalf("failed to encode object to CBOR: %s", err)
		}
		data = append(data, cborData...)
	}
	dec, err := cbor.NewStreamDecoder(data)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	var num uint64
	if _, _, err := dec.Decode(&num); err != nil || num != 1 {
		t.Fatalf("did not decode expected number\n  got: %d (%v)\n  wanted: 1", num, err)
	}
	var str string
	start, length, err := dec.Decode(&str)
	if err != nil || str != "abc" {
		t.Fatalf("did not decode expected string\n  got: %q (%v)\n  wanted: abc", str, err)
	}
	if start != 1 || length != 4 {
		t.Fatalf("did not get expected range\n  got: %d+%d\n  wanted: 1+4", start, length)
	}
	var record testRecord
	if _, _, err := dec.Decode(&record); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if record.Name != "x" || record.Count != 2 {
		t.Fatalf("did not decode expected record\n  got: %#v", record)
	}
	if !dec.EOF() {
		t.Fatalf("decoder not at EOF at position %d of %d", dec.Position(), len(data))
	}
}
