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
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/blinklabs-io/gosubstrate/cbor"
	"github.com/blinklabs-io/gosubstrate/protocol/followstream"
	"github.com/blinklabs-io/gosubstrate/rpc"
	"github.com/klauspost/compress/zstd"
)

// Recorder writes the follow subscriptions opened through it to a recording
type Recorder struct {
	mu      sync.Mutex
	enc     *zstd.Encoder
	err     error
	closed  bool
	records int
}

// NewRecorder starts a recording written to w. Close must be called to flush
// it
func NewRecorder(w io.Writer) (*Recorder, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, err
	}
	r := &Recorder{enc: enc}
	header := cbor.NewConstructorEncoder(recordHeader, headerRecord{
		Version: FormatVersion,
		Created: time.Now().Unix(),
	})
	if err := r.write(header); err != nil {
		enc.Close()
		return nil, err
	}
	return r, nil
}

// Wrap returns a SubscribeFunc that records every subscription opened with
// subscribe
func (r *Recorder) Wrap(subscribe followstream.SubscribeFunc) followstream.SubscribeFunc {
	return func(ctx context.Context) (followstream.EventStream, error) {
		stream, err := subscribe(ctx)
		if err != nil {
			return nil, err
		}
		ready := cbor.NewConstructorEncoder(recordReady, readyRecord{
			SubscriptionID: stream.SubscriptionID(),
		})
		if err := r.write(ready); err != nil {
			_ = stream.Close(ctx)
			return nil, err
		}
		return &recordingStream{recorder: r, stream: stream}, nil
	}
}

// Records returns the number of records written, including the header
func (r *Recorder) Records() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records
}

// Close flushes the recording. It does not close the underlying writer
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return r.err
	}
	r.closed = true
	if err := r.enc.Close(); err != nil && r.err == nil {
		r.err = err
	}
	return r.err
}

func (r *Recorder) write(record cbor.ConstructorEncoder) error {
	data, err := cbor.Encode(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("recorder closed")
	}
	if r.err != nil {
		return r.err
	}
	if _, err := r.enc.Write(data); err != nil {
		r.err = fmt.Errorf("write record: %w", err)
		return r.err
	}
	r.records++
	return nil
}

type recordingStream struct {
	recorder *Recorder
	stream   followstream.EventStream
	ended    bool
}

func (s *recordingStream) SubscriptionID() string {
	return s.stream.SubscriptionID()
}

func (s *recordingStream) Next(ctx context.Context) (rpc.FollowEvent, error) {
	ev, err := s.stream.Next(ctx)
	if err != nil {
		// The end of the subscription is recorded as a stop event
		if errors.Is(err, io.EOF) && !s.ended {
			s.ended = true
			if err := s.write(rpc.Stop{}); err != nil {
				return nil, err
			}
		}
		return nil, err
	}
	if _, ok := ev.(rpc.Stop); ok {
		s.ended = true
	}
	if err := s.write(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *recordingStream) write(ev rpc.FollowEvent) error {
	record, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return s.recorder.write(record)
}

func (s *recordingStream) Close(ctx context.Context) error {
	return s.stream.Close(ctx)
}
