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

package chainhead

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/gosubstrate/protocol"
)

// ErrOperationInaccessible is returned when the server could not complete an
// operation for now. The same request may succeed later
var ErrOperationInaccessible = errors.New("operation inaccessible")

// ErrOperationInterrupted is returned when the follow subscription stopped
// before an operation completed
var ErrOperationInterrupted = fmt.Errorf(
	"operation interrupted: %w",
	protocol.ErrProtocolViolationUnexpectedStop,
)

// ErrInvalidRuntime is returned when the runtime of the finalized block is
// unknown or could not be loaded by the server
var ErrInvalidRuntime = errors.New("invalid runtime")
