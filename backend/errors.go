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

package backend

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by a backend for operations its RPC dialect
// cannot serve
var ErrUnsupported = errors.New("operation not supported by backend")

// ErrNoBackendAvailable is returned when no configured backend supports an
// operation
var ErrNoBackendAvailable = errors.New("no backend available")

// ErrBlockNotFound is returned when the node does not know a block it was
// expected to
var ErrBlockNotFound = errors.New("block not found")

// ErrStreamClosed is returned by a stream that was closed before it ended
var ErrStreamClosed = errors.New("stream closed")

// ErrTransactionTimeout is returned by a transaction status stream that did
// not reach a terminal status in time
var ErrTransactionTimeout = errors.New("transaction status timeout")

// TransactionError reports a transaction the node failed to include
type TransactionError struct {
	Type    TransactionStatusType
	Message string
}

func (e *TransactionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("transaction %s", e.Type)
	}
	return fmt.Sprintf("transaction %s: %s", e.Type, e.Message)
}
