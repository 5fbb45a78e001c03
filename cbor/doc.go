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

// Package cbor wraps github.com/fxamacker/cbor/v2 with the encoding
// conventions used for recorded follow streams.
//
// Records are written as a sequence of CBOR items. Variants are encoded as
// enumerated alternatives (tags 121-127, 1280-1400 and 101), with their fields
// as an array, using ConstructorEncoder and ConstructorDecoder. Structs embed
// StructAsArray to be encoded as arrays instead of maps.
package cbor
