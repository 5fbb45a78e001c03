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

// Package mockrpc provides a scriptable in-memory rpc.Client for tests
package mockrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/blinklabs-io/gosubstrate/rpc"
)

// CodeMethodNotFound is returned for methods without a handler
const CodeMethodNotFound = -32601

// HandlerFunc answers a request. The result is JSON encoded before it is
// decoded into the caller's result value
type HandlerFunc func(params []any) (any, error)

// SubscribeFunc is called for each new subscription. Returning an error fails
// the subscribe call
type SubscribeFunc func(sub *Subscription, params []any) error

// Call is a recorded request or subscribe call
type Call struct {
	Method string
	Params []any
}

// Client mocks an rpc.Client
type Client struct {
	mu                sync.Mutex
	handlers          map[string]HandlerFunc
	subscribeHandlers map[string]SubscribeFunc
	calls             []Call
	subs              map[string][]*Subscription
	changedChan       chan struct{}
}

// New returns a new mock client with no handlers
func New() *Client {
	return &Client{
		handlers:          make(map[string]HandlerFunc),
		subscribeHandlers: make(map[string]SubscribeFunc),
		subs:              make(map[string][]*Subscription),
		changedChan:       make(chan struct{}),
	}
}

// Handle registers a request handler for method
func (c *Client) Handle(method string, handler HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = handler
}

// HandleResult registers a request handler for method that always returns
// result
func (c *Client) HandleResult(method string, result any) {
	c.Handle(method, func([]any) (any, error) {
		return result, nil
	})
}

// HandleError registers a request handler for method that always fails
func (c *Client) HandleError(method string, err error) {
	c.Handle(method, func([]any) (any, error) {
		return nil, err
	})
}

// HandleSubscribe registers a handler for subscriptions opened with method.
// Subscriptions to methods without a handler succeed and stay silent until
// the test sends on them
func (c *Client) HandleSubscribe(method string, handler SubscribeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeHandlers[method] = handler
}

// Request implements rpc.Client
func (c *Client) Request(
	ctx context.Context,
	method string,
	params []any,
	result any,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	handler, ok := c.handlers[method]
	c.mu.Unlock()
	// The call is recorded after the handler runs so that waiting for it
	// implies its side effects are visible
	defer c.record(method, params)
	if !ok {
		return &rpc.Error{
			Code:    CodeMethodNotFound,
			Message: "method not found: " + method,
		}
	}
	res, err := handler(params)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("mockrpc: encode %s result: %w", method, err)
	}
	return json.Unmarshal(data, result)
}

// Subscribe implements rpc.Client
func (c *Client) Subscribe(
	ctx context.Context,
	method string,
	params []any,
	unsubscribeMethod string,
) (rpc.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	handler := c.subscribeHandlers[method]
	c.mu.Unlock()
	defer c.record(method, params)
	sub := newSubscription(c, unsubscribeMethod)
	if handler != nil {
		if err := handler(sub, params); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	c.subs[method] = append(c.subs[method], sub)
	c.mu.Unlock()
	return sub, nil
}

func (c *Client) record(method string, params []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Method: method, Params: params})
	c.changed()
}

// changed wakes waiters. The caller must hold the lock
func (c *Client) changed() {
	close(c.changedChan)
	c.changedChan = make(chan struct{})
}

// Calls returns the recorded calls to method, or all calls if method is empty
func (c *Client) Calls(method string) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ret []Call
	for _, call := range c.calls {
		if method == "" || call.Method == method {
			ret = append(ret, call)
		}
	}
	return ret
}

// Subscriptions returns the subscriptions opened with method
func (c *Client) Subscriptions(method string) []*Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Subscription(nil), c.subs[method]...)
}

// WaitCalls blocks until at least n calls to method were recorded
func (c *Client) WaitCalls(ctx context.Context, method string, n int) ([]Call, error) {
	for {
		c.mu.Lock()
		changedChan := c.changedChan
		c.mu.Unlock()
		if calls := c.Calls(method); len(calls) >= n {
			return calls, nil
		}
		select {
		case <-changedChan:
		case <-ctx.Done():
			return nil, fmt.Errorf(
				"waiting for %d calls to %s (got %d): %w",
				n,
				method,
				len(c.Calls(method)),
				ctx.Err(),
			)
		}
	}
}

// WaitSubscription blocks until the nth (1-based) subscription to method has
// been opened and returns it
func (c *Client) WaitSubscription(
	ctx context.Context,
	method string,
	n int,
) (*Subscription, error) {
	if _, err := c.WaitCalls(ctx, method, n); err != nil {
		return nil, err
	}
	subs := c.Subscriptions(method)
	if len(subs) < n {
		return nil, fmt.Errorf("subscription %d to %s failed", n, method)
	}
	return subs[n-1], nil
}
