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

package mockrpc

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/blinklabs-io/gosubstrate/rpc"
	"github.com/google/uuid"
)

// Subscription is a mock subscription fed by the test
type Subscription struct {
	client            *Client
	id                string
	unsubscribeMethod string
	mu                sync.Mutex
	queue             []json.RawMessage
	err               error
	unsubscribed      bool
	notifyChan        chan struct{}
}

func newSubscription(client *Client, unsubscribeMethod string) *Subscription {
	return &Subscription{
		client:            client,
		id:                uuid.NewString(),
		unsubscribeMethod: unsubscribeMethod,
		notifyChan:        make(chan struct{}, 1),
	}
}

func (s *Subscription) ID() string {
	return s.id
}

// Send queues a notification. Values other than []byte and json.RawMessage
// are JSON encoded
func (s *Subscription) Send(v any) {
	var data json.RawMessage
	switch msg := v.(type) {
	case json.RawMessage:
		data = msg
	case []byte:
		data = msg
	case rpc.FollowEvent:
		tmp, err := rpc.EncodeFollowEvent(msg)
		if err != nil {
			panic("mockrpc: " + err.Error())
		}
		data = tmp
	default:
		tmp, err := json.Marshal(v)
		if err != nil {
			panic("mockrpc: " + err.Error())
		}
		data = tmp
	}
	s.mu.Lock()
	s.queue = append(s.queue, data)
	s.mu.Unlock()
	s.notify()
}

// End ends the subscription from the server side. Next returns io.EOF once
// the queue is drained
func (s *Subscription) End() {
	s.Fail(io.EOF)
}

// Fail ends the subscription with err once the queue is drained
func (s *Subscription) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.notify()
}

// Unsubscribed reports whether the client unsubscribed
func (s *Subscription) Unsubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribed
}

func (s *Subscription) notify() {
	select {
	case s.notifyChan <- struct{}{}:
	default:
	}
}

func (s *Subscription) Next(ctx context.Context) (json.RawMessage, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			msg := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return msg, nil
		}
		err := s.err
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		select {
		case <-s.notifyChan:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.unsubscribed {
		s.mu.Unlock()
		return nil
	}
	s.unsubscribed = true
	if s.err == nil {
		s.err = io.EOF
	}
	s.queue = nil
	s.mu.Unlock()
	s.notify()
	if s.unsubscribeMethod != "" {
		s.client.record(s.unsubscribeMethod, []any{s.id})
	}
	return nil
}
