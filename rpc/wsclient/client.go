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

// Package wsclient implements rpc.Client as JSON-RPC 2.0 over a websocket
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/gosubstrate/rpc"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const protocolName = "json-rpc"

var (
	ErrClientClosed     = errors.New("client closed")
	ErrConnectionClosed = errors.New("connection closed")
)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *rpc.Error      `json:"error"`
}

type callResult struct {
	result json.RawMessage
	sub    *subscription
	err    error
}

type pendingCall struct {
	resultChan        chan callResult
	subscribe         bool
	unsubscribeMethod string
}

// Client is a websocket JSON-RPC client. It is safe for concurrent use
type Client struct {
	config      Config
	url         string
	logger      *slog.Logger
	mu          sync.Mutex
	conn        *websocket.Conn
	readyChan   chan struct{}
	err         error
	pending     map[uint64]*pendingCall
	subs        map[string]*subscription
	nextID      atomic.Uint64
	writeMutex  sync.Mutex
	doneChan    chan struct{}
	closeCtx    context.Context
	closeCancel context.CancelFunc
	onceClose   sync.Once
	waitGroup   sync.WaitGroup
}

// Dial connects to the websocket JSON-RPC endpoint at url
func Dial(
	ctx context.Context,
	url string,
	options ...ClientOptionFunc,
) (*Client, error) {
	cfg := NewConfig(options...)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		config:    cfg,
		url:       url,
		logger:    logger,
		readyChan: make(chan struct{}),
		pending:   make(map[uint64]*pendingCall),
		subs:      make(map[string]*subscription),
		doneChan:  make(chan struct{}),
	}
	c.closeCtx, c.closeCancel = context.WithCancel(context.Background())
	conn, err := c.dial(ctx)
	if err != nil {
		c.closeCancel()
		return nil, err
	}
	c.conn = conn
	close(c.readyChan)
	c.logger.Debug(
		"connected",
		"component", "network",
		"protocol", protocolName,
		"url", url,
	)
	c.waitGroup.Add(1)
	go c.connectionLoop(conn)
	return c, nil
}

// Close closes the connection. Outstanding calls fail with ErrClientClosed
func (c *Client) Close() error {
	c.onceClose.Do(func() {
		c.mu.Lock()
		conn := c.conn
		c.err = ErrClientClosed
		c.mu.Unlock()
		close(c.doneChan)
		c.closeCancel()
		if conn != nil {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			_ = conn.Close()
		}
	})
	c.waitGroup.Wait()
	return nil
}

// Request implements rpc.Client
func (c *Client) Request(
	ctx context.Context,
	method string,
	params []any,
	result any,
) error {
	res, err := c.call(ctx, method, params, false, "")
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(res.result, result); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// Subscribe implements rpc.Client
func (c *Client) Subscribe(
	ctx context.Context,
	method string,
	params []any,
	unsubscribeMethod string,
) (rpc.Subscription, error) {
	res, err := c.call(ctx, method, params, true, unsubscribeMethod)
	if err != nil {
		return nil, err
	}
	return res.sub, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.config.Dialer.DialContext(ctx, c.url, c.config.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	return conn, nil
}

func (c *Client) connectionLoop(conn *websocket.Conn) {
	defer c.waitGroup.Done()
	for {
		err := c.readLoop(conn)
		select {
		case <-c.doneChan:
			c.failAll(ErrClientClosed)
			return
		default:
		}
		if !c.config.Reconnect {
			c.logger.Error(
				"connection lost",
				"component", "network",
				"protocol", protocolName,
				"error", err,
			)
			closeErr := fmt.Errorf("%w: %w", ErrConnectionClosed, err)
			c.mu.Lock()
			c.conn = nil
			c.err = closeErr
			c.mu.Unlock()
			c.failAll(closeErr)
			return
		}
		c.logger.Warn(
			"connection lost, reconnecting",
			"component", "network",
			"protocol", protocolName,
			"error", err,
		)
		c.mu.Lock()
		c.conn = nil
		c.readyChan = make(chan struct{})
		c.mu.Unlock()
		c.failAll(fmt.Errorf("%w: %w", rpc.ErrDisconnectedWillReconnect, err))
		conn = c.reconnect()
		if conn == nil {
			c.failAll(ErrClientClosed)
			return
		}
	}
}

func (c *Client) reconnect() *websocket.Conn {
	backoff := c.config.ReconnectInterval
	for {
		select {
		case <-c.doneChan:
			return nil
		case <-time.After(backoff):
		}
		conn, err := c.dial(c.closeCtx)
		if err != nil {
			if c.closeCtx.Err() != nil {
				return nil
			}
			c.logger.Warn(
				"reconnect failed",
				"component", "network",
				"protocol", protocolName,
				"error", err,
				"backoff", backoff,
			)
			backoff = min(backoff*2, c.config.MaxReconnectInterval)
			continue
		}
		c.mu.Lock()
		if c.err != nil {
			c.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		c.conn = conn
		close(c.readyChan)
		c.mu.Unlock()
		c.logger.Info(
			"reconnected",
			"component", "network",
			"protocol", protocolName,
			"url", c.url,
		)
		return conn
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	if id := gjson.GetBytes(data, "id"); id.Exists() && id.Type != gjson.Null {
		c.handleResponse(id.Uint(), data)
		return
	}
	subID := gjson.GetBytes(data, "params.subscription")
	if !subID.Exists() {
		c.logger.Debug(
			"ignoring unexpected message",
			"component", "network",
			"protocol", protocolName,
		)
		return
	}
	c.mu.Lock()
	sub := c.subs[subID.String()]
	c.mu.Unlock()
	if sub == nil {
		c.logger.Debug(
			"notification for unknown subscription",
			"component", "network",
			"protocol", protocolName,
			"subscription_id", subID.String(),
		)
		return
	}
	sub.push(json.RawMessage(gjson.GetBytes(data, "params.result").Raw))
}

func (c *Client) handleResponse(id uint64, data []byte) {
	var res callResult
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		res.err = fmt.Errorf("decode response: %w", err)
	} else if resp.Error != nil {
		res.err = resp.Error
	} else {
		res.result = resp.Result
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	call, ok := c.pending[id]
	if !ok {
		return
	}
	delete(c.pending, id)
	if call.subscribe && res.err == nil {
		subID := gjson.ParseBytes(res.result).String()
		res.sub = newSubscription(c, subID, call.unsubscribeMethod)
		c.subs[subID] = res.sub
	}
	// Buffered, never blocks
	call.resultChan <- res
}

func (c *Client) waitConn(ctx context.Context) (*websocket.Conn, error) {
	for {
		c.mu.Lock()
		conn, ready, err := c.conn, c.readyChan, c.err
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if conn != nil {
			return conn, nil
		}
		select {
		case <-ready:
		case <-c.doneChan:
			return nil, ErrClientClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) call(
	ctx context.Context,
	method string,
	params []any,
	subscribe bool,
	unsubscribeMethod string,
) (callResult, error) {
	if err := ctx.Err(); err != nil {
		return callResult{}, err
	}
	conn, err := c.waitConn(ctx)
	if err != nil {
		return callResult{}, err
	}
	if params == nil {
		params = []any{}
	}
	id := c.nextID.Add(1)
	call := &pendingCall{
		resultChan:        make(chan callResult, 1),
		subscribe:         subscribe,
		unsubscribeMethod: unsubscribeMethod,
	}
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return callResult{}, err
	}
	c.pending[id] = call
	c.mu.Unlock()
	req := request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := c.write(conn, req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return callResult{}, err
	}
	select {
	case res := <-call.resultChan:
		if res.err != nil {
			return res, fmt.Errorf("%s: %w", method, res.err)
		}
		return res, nil
	case <-ctx.Done():
		c.mu.Lock()
		_, stillPending := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if !stillPending {
			// The response raced with the cancellation
			if res := <-call.resultChan; res.sub != nil {
				c.abandon(res.sub)
			}
		}
		return callResult{}, ctx.Err()
	}
}

func (c *Client) write(conn *websocket.Conn, req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", req.Method, err)
	}
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	if c.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if c.config.Reconnect {
			return fmt.Errorf("%w: %w", rpc.ErrDisconnectedWillReconnect, err)
		}
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	return nil
}

// abandon drops a subscription nobody is waiting for and tells the server
// without waiting for its answer
func (c *Client) abandon(sub *subscription) {
	sub.end(ErrClientClosed)
	c.removeSubscription(sub)
	if sub.unsubscribeMethod == "" {
		return
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	_ = c.write(conn, request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  sub.unsubscribeMethod,
		Params:  []any{sub.id},
	})
}

func (c *Client) removeSubscription(sub *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[sub.id] == sub {
		delete(c.subs, sub.id)
	}
}

func (c *Client) failAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, call := range c.pending {
		call.resultChan <- callResult{err: err}
		delete(c.pending, id)
	}
	for id, sub := range c.subs {
		sub.end(err)
		delete(c.subs, id)
	}
}
