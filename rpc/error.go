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
	"errors"
	"fmt"
)

// Transport error classes. A transport should wrap or return these so that
// callers can decide whether to retry
var (
	// ErrDisconnectedWillReconnect is transient: the connection dropped and the
	// transport is re-establishing it
	ErrDisconnectedWillReconnect = errors.New("disconnected, will reconnect")
	// ErrRequestRejected means the server refused the request, for example
	// because it referenced a stale subscription ID
	ErrRequestRejected = errors.New("request rejected")
	// ErrLimitReached is returned when the server reports that it is at
	// capacity for the requested kind of operation
	ErrLimitReached = errors.New("server limit reached")
)

var ErrUnknownEvent = errors.New("unknown event type")

// JSON-RPC error codes with a specific meaning for this library
const (
	CodeInvalidParams = -32602
	// Returned by chainHead methods for an unknown or stale follow
	// subscription or block reference
	CodeInvalidBlockHash = -32801
)

// Error is a JSON-RPC error object returned by the server
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf(
			"rpc error %d: %s (%s)",
			e.Code,
			e.Message,
			string(e.Data),
		)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is allows errors.Is(err, ErrRequestRejected) to match server errors that
// signal a stale reference
func (e *Error) Is(target error) bool {
	return target == ErrRequestRejected && e.Code == CodeInvalidBlockHash
}

// OperationFailedError is a server-reported failure of a long-running
// operation
type OperationFailedError struct {
	OperationID string
	Message     string
}

func (e *OperationFailedError) Error() string {
	if e.OperationID == "" {
		return "operation failed: " + e.Message
	}
	return fmt.Sprintf("operation %s failed: %s", e.OperationID, e.Message)
}

// IsDisconnectedWillReconnect reports whether err is a transient disconnect
func IsDisconnectedWillReconnect(err error) bool {
	return errors.Is(err, ErrDisconnectedWillReconnect)
}

// IsRequestRejected reports whether err is a rejected request
func IsRequestRejected(err error) bool {
	return errors.Is(err, ErrRequestRejected)
}
