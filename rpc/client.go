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

// Package rpc defines the JSON-RPC surface consumed by this library: the
// transport interfaces, the wire event types and typed bindings for the
// chainHead, archive, transactionWatch and legacy method families.
//
// The transport itself is pluggable. Anything that can issue a request and
// open a subscription can back the bindings; see the wsclient package for a
// websocket implementation.
package rpc

import (
	"context"
	"encoding/json"
)

// Client issues JSON-RPC requests and opens subscriptions
type Client interface {
	// Request calls method with params and decodes the response into result.
	// A nil result discards the response
	Request(ctx context.Context, method string, params []any, result any) error
	// Subscribe calls method with params and returns the resulting
	// subscription. unsubscribeMethod is called when the subscription is
	// closed by the caller
	Subscribe(
		ctx context.Context,
		method string,
		params []any,
		unsubscribeMethod string,
	) (Subscription, error)
}

// Subscription is a server-driven stream of notification payloads
type Subscription interface {
	// ID returns the server assigned subscription ID
	ID() string
	// Next blocks until the next notification arrives. It returns io.EOF once
	// the server has ended the subscription
	Next(ctx context.Context) (json.RawMessage, error)
	// Unsubscribe ends the subscription
	Unsubscribe(ctx context.Context) error
}

// Methods provides typed bindings on top of a Client
type Methods struct {
	client Client
}

// NewMethods returns a Methods object using the provided client
func NewMethods(client Client) *Methods {
	return &Methods{
		client: client,
	}
}

// Client returns the underlying transport
func (m *Methods) Client() Client {
	return m.client
}

// MethodRPCMethods lists the methods a server supports
const MethodRPCMethods = "rpc_methods"

// RPCMethods returns the list of methods supported by the server
func (m *Methods) RPCMethods(ctx context.Context) ([]string, error) {
	var res struct {
		Methods []string `json:"methods"`
	}
	if err := m.client.Request(ctx, MethodRPCMethods, nil, &res); err != nil {
		return nil, err
	}
	return res.Methods, nil
}
