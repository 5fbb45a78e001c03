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

package fixture

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/blinklabs-io/gosubstrate/cbor"
	"github.com/blinklabs-io/gosubstrate/protocol/followstream"
	"github.com/blinklabs-io/gosubstrate/rpc"
	"github.com/klauspost/compress/zstd"
)

// segment is one recorded follow subscription
type segment struct {
	subscriptionID string
	events         []rpc.FollowEvent
}

// Unpin is an unpin call made against a replayed subscription
type Unpin struct {
	SubscriptionID string
	Hash           rpc.Hash
}

// Replayer replays a recording. Each call to Subscribe opens the next
// recorded follow subscription. It also serves as the Unpinner for the
// replayed subscriptions, remembering the unpin calls made
type Replayer struct {
	mu       sync.Mutex
	segments []segment
	next     int
	unpins   []Unpin
}

// NewReplayer reads a recording from r
func NewReplayer(r io.Reader) (*Replayer, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	stream, err := cbor.NewStreamDecoder(data)
	if err != nil {
		return nil, err
	}
	ret := &Replayer{}
	first := true
	for !stream.EOF() {
		var cd cbor.ConstructorDecoder
		if _, _, err := stream.Decode(&cd); err != nil {
			return nil, fmt.Errorf(
				"%w: decode record at %d: %w",
				ErrInvalidRecording,
				stream.Position(),
				err,
			)
		}
		if first {
			if err := checkHeader(cd); err != nil {
				return nil, err
			}
			first = false
			continue
		}
		switch cd.Tag() {
		case recordReady:
			var record readyRecord
			if err := cd.DecodeFields(&record); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidRecording, err)
			}
			ret.segments = append(ret.segments, segment{subscriptionID: record.SubscriptionID})
		default:
			if len(ret.segments) == 0 {
				return nil, fmt.Errorf("%w: event before first subscription", ErrInvalidRecording)
			}
			ev, err := decodeEvent(cd)
			if err != nil {
				return nil, err
			}
			last := &ret.segments[len(ret.segments)-1]
			last.events = append(last.events, ev)
		}
	}
	if first {
		return nil, fmt.Errorf("%w: missing header", ErrInvalidRecording)
	}
	return ret, nil
}

func checkHeader(cd cbor.ConstructorDecoder) error {
	if cd.Tag() != recordHeader {
		return fmt.Errorf("%w: missing header", ErrInvalidRecording)
	}
	var header headerRecord
	if err := cd.DecodeFields(&header); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecording, err)
	}
	if header.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidRecording, header.Version)
	}
	return nil
}

// Subscriptions returns the number of recorded follow subscriptions
func (r *Replayer) Subscriptions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.segments)
}

// Subscribe opens the next recorded follow subscription. It implements
// followstream.SubscribeFunc
func (r *Replayer) Subscribe(ctx context.Context) (followstream.EventStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.segments) {
		return nil, ErrEndOfRecording
	}
	seg := r.segments[r.next]
	r.next++
	return &replayStream{segment: seg}, nil
}

// Unpin records an unpin call
func (r *Replayer) Unpin(ctx context.Context, subscriptionID string, hash rpc.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unpins = append(r.unpins, Unpin{SubscriptionID: subscriptionID, Hash: hash})
	return nil
}

// Unpins returns the unpin calls made so far
func (r *Replayer) Unpins() []Unpin {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Unpin(nil), r.unpins...)
}

type replayStream struct {
	segment segment
	pos     int
	stopped bool
}

func (s *replayStream) SubscriptionID() string {
	return s.segment.subscriptionID
}

func (s *replayStream) Next(ctx context.Context) (rpc.FollowEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.stopped {
		return nil, io.EOF
	}
	if s.pos >= len(s.segment.events) {
		return nil, ErrEndOfRecording
	}
	ev := s.segment.events[s.pos]
	s.pos++
	if _, ok := ev.(rpc.Stop); ok {
		s.stopped = true
	}
	return ev, nil
}

func (s *replayStream) Close(context.Context) error {
	return nil
}
