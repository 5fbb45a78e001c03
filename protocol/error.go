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

package protocol

import (
	"errors"
	"fmt"
)

var ErrProtocolViolation = errors.New("protocol violation")

// Protocol violation errors end the affected operation. They never take down
// the follow subscription shared by other operations
var (
	ErrProtocolViolationUnexpectedStop = fmt.Errorf(
		"%w: subscription stopped during operation",
		ErrProtocolViolation,
	)
	ErrProtocolViolationInvalidMessage = fmt.Errorf(
		"%w: invalid message received",
		ErrProtocolViolation,
	)
)
