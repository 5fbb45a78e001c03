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

package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/blinklabs-io/gosubstrate/rpc"
)

type subscription struct {
	client            *Client
	id                string
	unsubscribeMethod string
	mu                sync.Mutex
	queue             []json.RawMessage
	notifyChan        chan struct{}
	err               error
	unsubscribed      bool
}

func newSubscription(
	client *Client,
	id string,
	unsubscribeMethod string,
) *subscription {
	return &subscription{
		client:            client,
		id:                id,
		unsubscribeMethod: unsubscribeMethod,
		notifyChan:        make(chan struct{}, 1),
	}
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) push(msg json.RawMessage) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()
	s.notify()
}

func (s *subscription) end(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.notify()
}

func (s *subscription) notify() {
	select {
	case s.notifyChan <- struct{}{}:
	default:
	}
}

// Next returns queued notifications before reporting why the subscription
// ended
func (s *subscription) Next(ctx context.Context) (json.RawMessage, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			msg := s.queue[0]
			s.queue[0] = nil
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

func (s *subscription) Unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.unsubscribed {
		s.mu.Unlock()
		return nil
	}
	s.unsubscribed = true
	// The server has already forgotten a subscription from a dead connection
	alive := s.err == nil
	if alive {
		s.err = io.EOF
	}
	s.queue = nil
	s.mu.Unlock()
	s.notify()
	s.client.removeSubscription(s)
	if !alive || s.unsubscribeMethod == "" {
		return nil
	}
	err := s.client.Request(ctx, s.unsubscribeMethod, []any{s.id}, nil)
	if rpc.IsDisconnectedWillReconnect(err) ||
		errors.Is(err, ErrClientClosed) ||
		errors.Is(err, ErrConnectionClosed) {
		return nil
	}
	return err
}
