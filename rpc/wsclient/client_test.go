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

package wsclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blinklabs-io/gosubstrate/rpc"
	"github.com/blinklabs-io/gosubstrate/rpc/wsclient"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// testServer answers a handful of fixed methods:
//
//	echo   returns its first parameter
//	fail   returns a stale-reference error
//	sub    opens subscription "sub-1" and sends two notifications
//	unsub  records the call and returns true
//	drop   closes the connection without answering
type testServer struct {
	*httptest.Server
	connections atomic.Int32
	unsubCalls  atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			s.connections.Add(1)
			s.serve(conn)
		}),
	)
	return s
}

func (s *testServer) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

func (s *testServer) serve(conn *websocket.Conn) {
	for {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		reply := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "echo":
			reply["result"] = req.Params[0]
		case "fail":
			reply["error"] = map[string]any{
				"code":    rpc.CodeInvalidBlockHash,
				"message": "invalid block hash",
			}
		case "sub":
			reply["result"] = "sub-1"
		case "unsub":
			s.unsubCalls.Add(1)
			reply["result"] = true
		case "drop":
			return
		default:
			reply["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
		if req.Method == "sub" {
			for i := 1; i <= 2; i++ {
				notification := map[string]any{
					"jsonrpc": "2.0",
					"method":  "sub_notification",
					"params": map[string]any{
						"subscription": "sub-1",
						"result":       map[string]any{"n": i},
					},
				}
				if err := conn.WriteJSON(notification); err != nil {
					return
				}
			}
		}
	}
}

func dial(t *testing.T, s *testServer, options ...wsclient.ClientOptionFunc) *wsclient.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	options = append(
		[]wsclient.ClientOptionFunc{
			wsclient.WithReconnectInterval(10*time.Millisecond, 50*time.Millisecond),
		},
		options...,
	)
	c, err := wsclient.Dial(ctx, s.URL(), options...)
	require.NoError(t, err)
	return c
}

func TestRequest(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestServer(t)
	defer s.Close()
	c := dial(t, s)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var res string
	require.NoError(t, c.Request(ctx, "echo", []any{"hello"}, &res))
	assert.Equal(t, "hello", res)
}

func TestRequestError(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestServer(t)
	defer s.Close()
	c := dial(t, s)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Request(ctx, "fail", nil, nil)
	require.Error(t, err)
	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeInvalidBlockHash, rpcErr.Code)
	assert.True(t, rpc.IsRequestRejected(err))
}

func TestSubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestServer(t)
	defer s.Close()
	c := dial(t, s)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub, err := c.Subscribe(ctx, "sub", nil, "unsub")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub.ID())
	for i := 1; i <= 2; i++ {
		msg, err := sub.Next(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(msg))
	}
	require.NoError(t, sub.Unsubscribe(ctx))
	assert.Equal(t, int32(1), s.unsubCalls.Load())
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestServer(t)
	defer s.Close()
	c := dial(t, s)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub, err := c.Subscribe(ctx, "sub", nil, "unsub")
	require.NoError(t, err)

	err = c.Request(ctx, "drop", nil, nil)
	require.ErrorIs(t, err, rpc.ErrDisconnectedWillReconnect)

	// Queued notifications are still delivered before the disconnect
	for {
		_, err = sub.Next(ctx)
		if err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, rpc.ErrDisconnectedWillReconnect)

	var res int
	require.NoError(t, c.Request(ctx, "echo", []any{42}, &res))
	assert.Equal(t, 42, res)
	assert.Equal(t, int32(2), s.connections.Load())

	// The server forgot the subscription with the old connection
	require.NoError(t, sub.Unsubscribe(ctx))
	assert.Equal(t, int32(0), s.unsubCalls.Load())
}

func TestNoReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestServer(t)
	defer s.Close()
	c := dial(t, s, wsclient.WithReconnect(false))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Request(ctx, "drop", nil, nil)
	require.ErrorIs(t, err, wsclient.ErrConnectionClosed)
	assert.False(t, rpc.IsDisconnectedWillReconnect(err))
	err = c.Request(ctx, "echo", []any{1}, nil)
	assert.ErrorIs(t, err, wsclient.ErrConnectionClosed)
}

func TestClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestServer(t)
	defer s.Close()
	c := dial(t, s)
	require.NoError(t, c.Close())

	err := c.Request(context.Background(), "echo", []any{1}, nil)
	if !errors.Is(err, wsclient.ErrClientClosed) {
		t.Fatalf("did not get expected error\n  got: %v\n  wanted: %v", err, wsclient.ErrClientClosed)
	}
}

func TestContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newTestServer(t)
	defer s.Close()
	c := dial(t, s)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Request(ctx, "echo", []any{1}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
