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

package followstream_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blinklabs-io/gosubstrate/internal/test"
	"github.com/blinklabs-io/gosubstrate/internal/test/mockrpc"
	"github.com/blinklabs-io/gosubstrate/protocol/followstream"
	"github.com/blinklabs-io/gosubstrate/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testTimeout = 2 * time.Second

func subscribeFunc(methods *rpc.Methods) followstream.SubscribeFunc {
	return func(ctx context.Context) (followstream.EventStream, error) {
		sub, err := methods.ChainHeadFollow(ctx, true)
		if err != nil {
			return nil, err
		}
		return sub, nil
	}
}

func waitFollow(
	t *testing.T,
	client *mockrpc.Client,
	n int,
) *mockrpc.Subscription {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	sub, err := client.WaitSubscription(ctx, rpc.MethodChainHeadFollow, n)
	require.NoError(t, err)
	return sub
}

func sourceNext(t *testing.T, source *followstream.Source) followstream.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	msg, err := source.Next(ctx)
	require.NoError(t, err)
	return msg
}

func TestSourceResubscribes(t *testing.T) {
	defer goleak.VerifyNone(t)
	client := mockrpc.New()
	source := followstream.NewSource(subscribeFunc(rpc.NewMethods(client)), nil)

	msg := sourceNext(t, source)
	require.True(t, msg.IsReady())
	first := waitFollow(t, client, 1)
	assert.Equal(t, first.ID(), msg.SubscriptionID)

	first.Send(rpc.Initialized[rpc.Hash]{
		FinalizedBlockHashes: []rpc.Hash{test.BlockHash(0)},
	})
	msg = sourceNext(t, source)
	ev, ok := msg.Event.(rpc.Initialized[rpc.Hash])
	require.True(t, ok, "got %T", msg.Event)
	assert.Equal(t, []rpc.Hash{test.BlockHash(0)}, ev.FinalizedBlockHashes)

	first.Send(rpc.Stop{})
	msg = sourceNext(t, source)
	assert.Equal(t, rpc.Stop{}, msg.Event)
	assert.True(t, first.Unsubscribed())

	msg = sourceNext(t, source)
	require.True(t, msg.IsReady())
	second := waitFollow(t, client, 2)
	assert.Equal(t, second.ID(), msg.SubscriptionID)

	// Ending the subscription without a stop event is treated the same
	second.End()
	msg = sourceNext(t, source)
	assert.Equal(t, rpc.Stop{}, msg.Event)
	msg = sourceNext(t, source)
	require.True(t, msg.IsReady())
	third := waitFollow(t, client, 3)

	require.NoError(t, source.Close(context.Background()))
	assert.True(t, third.Unsubscribed())
	_, err := source.Next(context.Background())
	assert.ErrorIs(t, err, followstream.ErrSourceFinished)
}

func TestSourceSubscribeError(t *testing.T) {
	defer goleak.VerifyNone(t)
	testErr := errors.New("subscribe failed")
	client := mockrpc.New()
	client.HandleSubscribe(
		rpc.MethodChainHeadFollow,
		func(*mockrpc.Subscription, []any) error {
			return testErr
		},
	)
	source := followstream.NewSource(subscribeFunc(rpc.NewMethods(client)), nil)
	_, err := source.Next(context.Background())
	if !errors.Is(err, testErr) {
		t.Fatalf("did not get expected error\n  got: %v\n  wanted: %v", err, testErr)
	}
	_, err = source.Next(context.Background())
	assert.ErrorIs(t, err, followstream.ErrSourceFinished)
}

func TestSourceStreamError(t *testing.T) {
	defer goleak.VerifyNone(t)
	testErr := errors.New("connection lost")
	client := mockrpc.New()
	source := followstream.NewSource(subscribeFunc(rpc.NewMethods(client)), nil)
	sourceNext(t, source)
	sub := waitFollow(t, client, 1)
	sub.Fail(testErr)
	_, err := source.Next(context.Background())
	assert.ErrorIs(t, err, testErr)
	assert.True(t, sub.Unsubscribed())
	_, err = source.Next(context.Background())
	assert.ErrorIs(t, err, followstream.ErrSourceFinished)
}

func TestSourceContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	client := mockrpc.New()
	source := followstream.NewSource(subscribeFunc(rpc.NewMethods(client)), nil)
	sourceNext(t, source)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := source.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// The subscription survives the cancelled call
	sub := waitFollow(t, client, 1)
	sub.Send(rpc.BestBlockChanged[rpc.Hash]{BestBlockHash: test.BlockHash(3)})
	msg := sourceNext(t, source)
	assert.Equal(
		t,
		rpc.BestBlockChanged[rpc.Hash]{BestBlockHash: test.BlockHash(3)},
		msg.Event,
	)
	assert.False(t, sub.Unsubscribed())
	require.NoError(t, source.Close(context.Background()))
}
