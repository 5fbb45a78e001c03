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

package followstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/gosubstrate/protocol"
	"github.com/blinklabs-io/gosubstrate/rpc"
)

// EventStream is a single open follow subscription
type EventStream interface {
	SubscriptionID() string
	// Next returns the next event. It returns io.EOF if the subscription
	// ended without a stop event
	Next(ctx context.Context) (rpc.FollowEvent, error)
	Close(ctx context.Context) error
}

const closeTimeout = 5 * time.Second

// SubscribeFunc opens a new follow subscription
type SubscribeFunc func(ctx context.Context) (EventStream, error)

var (
	sourceStateNew             = protocol.NewState(1, "New")
	sourceStateInitializing    = protocol.NewState(2, "Initializing")
	sourceStateReady           = protocol.NewState(3, "Ready")
	sourceStateReceivingEvents = protocol.NewState(4, "ReceivingEvents")
	sourceStateStopped         = protocol.NewState(5, "Stopped")
	sourceStateFinished        = protocol.NewState(6, "Finished")
)

// Source produces the events of a follow subscription, opening a new
// subscription whenever the server stops the current one. Each new
// subscription is announced with a ready message carrying its ID, and each
// stopped subscription with a Stop event.
//
// Errors opening or reading the subscription are not retried: the Source
// returns the error once and ErrSourceFinished after that
type Source struct {
	subscribe SubscribeFunc
	logger    *slog.Logger
	mu        sync.Mutex
	state     protocol.State
	stream    EventStream
}

// NewSource returns a new Source using subscribe to open subscriptions
func NewSource(subscribe SubscribeFunc, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		subscribe: subscribe,
		logger:    logger,
		state:     sourceStateNew,
	}
}

// Next returns the next message. A cancelled context does not change the
// state of the Source
func (s *Source) Next(ctx context.Context) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		switch s.state {
		case sourceStateNew:
			s.setState(sourceStateInitializing)
		case sourceStateInitializing:
			stream, err := s.subscribe(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return Message{}, ctx.Err()
				}
				s.setState(sourceStateFinished)
				return Message{}, fmt.Errorf("follow subscribe: %w", err)
			}
			s.stream = stream
			s.setState(sourceStateReady)
		case sourceStateReady:
			s.setState(sourceStateReceivingEvents)
			return Message{SubscriptionID: s.stream.SubscriptionID()}, nil
		case sourceStateReceivingEvents:
			ev, err := s.stream.Next(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) {
					s.setState(sourceStateStopped)
					continue
				}
				if ctx.Err() != nil {
					return Message{}, ctx.Err()
				}
				s.closeStream(ctx)
				s.setState(sourceStateFinished)
				return Message{}, fmt.Errorf("follow subscription: %w", err)
			}
			if _, ok := ev.(rpc.Stop); ok {
				s.setState(sourceStateStopped)
				continue
			}
			return Message{Event: ev}, nil
		case sourceStateStopped:
			s.closeStream(ctx)
			s.setState(sourceStateNew)
			return Message{Event: rpc.Stop{}}, nil
		default:
			return Message{}, ErrSourceFinished
		}
	}
}

// Close closes the current subscription. The Source produces no further
// messages
func (s *Source) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeStream(ctx)
	s.setState(sourceStateFinished)
	return nil
}

func (s *Source) setState(state protocol.State) {
	s.logger.Debug(
		"follow source state change",
		"component", "network",
		"protocol", ProtocolName,
		"role", "client",
		"from", s.state.String(),
		"to", state.String(),
	)
	s.state = state
}

func (s *Source) closeStream(ctx context.Context) {
	if s.stream == nil {
		return
	}
	stream := s.stream
	s.stream = nil
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := stream.Close(ctx); err != nil {
		s.logger.Debug(
			"failed to close follow subscription",
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
			"subscription_id", stream.SubscriptionID(),
			"error", err,
		)
	}
}
