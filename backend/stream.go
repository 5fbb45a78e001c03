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

package backend

import (
	"context"
	"errors"
	"io"

	"github.com/blinklabs-io/gosubstrate/rpc"
	"golang.org/x/crypto/blake2b"
)

// Stream yields items one at a time. Next returns io.EOF after the last item.
// Close must be called if the stream is abandoned before io.EOF
type Stream[T any] interface {
	Next(ctx context.Context) (T, error)
	Close(ctx context.Context) error
}

type funcStream[T any] struct {
	next  func(context.Context) (T, error)
	close func(context.Context) error
}

// NewStream returns a Stream backed by the given functions. close may be nil
func NewStream[T any](
	next func(context.Context) (T, error),
	close func(context.Context) error,
) Stream[T] {
	return &funcStream[T]{next: next, close: close}
}

func (s *funcStream[T]) Next(ctx context.Context) (T, error) {
	return s.next(ctx)
}

func (s *funcStream[T]) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

type sliceStream[T any] struct {
	items []T
}

// NewSliceStream returns a Stream over items
func NewSliceStream[T any](items []T) Stream[T] {
	return &sliceStream[T]{items: items}
}

func (s *sliceStream[T]) Next(ctx context.Context) (T, error) {
	var ret T
	if err := ctx.Err(); err != nil {
		return ret, err
	}
	if len(s.items) == 0 {
		return ret, io.EOF
	}
	ret = s.items[0]
	s.items = s.items[1:]
	return ret, nil
}

func (s *sliceStream[T]) Close(context.Context) error {
	s.items = nil
	return nil
}

// Collect reads a stream to the end and closes it
func Collect[T any](ctx context.Context, stream Stream[T]) ([]T, error) {
	defer stream.Close(context.WithoutCancel(ctx)) //nolint:errcheck
	var ret []T
	for {
		item, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ret, nil
			}
			return ret, err
		}
		ret = append(ret, item)
	}
}

// HashTransaction returns the hash a node reports for an encoded transaction
func HashTransaction(tx []byte) rpc.Hash {
	return rpc.Hash(blake2b.Sum256(tx))
}
