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

type testChain struct {
	client *mockrpc.Client
	driver *followstream.Driver
}

func newTestChain(
	t *testing.T,
	options ...followstream.FollowStreamOptionFunc,
) *testChain {
	t.Helper()
	client := mockrpc.New()
	client.HandleResult(rpc.MethodChainHeadUnpin, nil)
	methods := rpc.NewMethods(client)
	cfg := followstream.NewConfig(options...)
	return &testChain{
		client: client,
		driver: followstream.New(
			subscribeFunc(methods),
			followstream.UnpinFunc(methods.ChainHeadUnpin),
			&cfg,
		),
	}
}

func (c *testChain) step(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, c.driver.Step(ctx))
}

func (c *testChain) close(t *testing.T) {
	t.Helper()
	require.NoError(t, c.driver.Close(context.Background()))
}

func next(t *testing.T, sub *followstream.Subscription) followstream.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	return msg
}

func hashes(refs []*followstream.BlockRef) []rpc.Hash {
	ret := make([]rpc.Hash, len(refs))
	for i, ref := range refs {
		ret[i] = ref.Hash()
	}
	return ret
}

// describe reduces a message to comparable values
func describe(msg followstream.Message) any {
	if msg.IsReady() {
		return "ready:" + msg.SubscriptionID
	}
	switch ev := msg.Event.(type) {
	case rpc.Initialized[*followstream.BlockRef]:
		return rpc.Initialized[rpc.Hash]{
			FinalizedBlockHashes:  hashes(ev.FinalizedBlockHashes),
			FinalizedBlockRuntime: ev.FinalizedBlockRuntime,
		}
	case rpc.NewBlock[*followstream.BlockRef]:
		return rpc.NewBlock[rpc.Hash]{
			BlockHash:       ev.BlockHash.Hash(),
			ParentBlockHash: ev.ParentBlockHash.Hash(),
			NewRuntime:      ev.NewRuntime,
		}
	case rpc.BestBlockChanged[*followstream.BlockRef]:
		return rpc.BestBlockChanged[rpc.Hash]{
			BestBlockHash: ev.BestBlockHash.Hash(),
		}
	case rpc.Finalized[*followstream.BlockRef]:
		return rpc.Finalized[rpc.Hash]{
			FinalizedBlockHashes: hashes(ev.FinalizedBlockHashes),
			PrunedBlockHashes:    hashes(ev.PrunedBlockHashes),
		}
	}
	return msg.Event
}

func testRuntime(version uint32) *rpc.RuntimeEvent {
	return &rpc.RuntimeEvent{
		Type: rpc.RuntimeTypeValid,
		Spec: &rpc.RuntimeSpec{
			SpecName:    "test",
			ImplName:    "test",
			SpecVersion: version,
			Apis:        map[string]uint32{"0xdf6acb689907609b": 4},
		},
	}
}

func TestDriverFanOut(t *testing.T) {
	defer goleak.VerifyNone(t)
	chain := newTestChain(t)
	handle := chain.driver.Handle()
	subA := handle.Subscribe()
	subB := handle.Subscribe()
	assert.NotEqual(t, subA.ID(), subB.ID())

	chain.step(t)
	follow := waitFollow(t, chain.client, 1)
	events := []rpc.FollowEvent{
		rpc.Initialized[rpc.Hash]{
			FinalizedBlockHashes: []rpc.Hash{test.BlockHash(0)},
		},
		rpc.NewBlock[rpc.Hash]{
			BlockHash:       test.BlockHash(1),
			ParentBlockHash: test.BlockHash(0),
		},
		rpc.BestBlockChanged[rpc.Hash]{BestBlockHash: test.BlockHash(1)},
		rpc.Finalized[rpc.Hash]{
			FinalizedBlockHashes: []rpc.Hash{test.BlockHash(1)},
			PrunedBlockHashes:    []rpc.Hash{},
		},
	}
	for _, ev := range events {
		follow.Send(ev)
		chain.step(t)
	}
	expected := []any{"ready:" + follow.ID()}
	for _, ev := range events {
		expected = append(expected, ev)
	}
	for _, sub := range []*followstream.Subscription{subA, subB} {
		var got []any
		for range expected {
			msg := next(t, sub)
			got = append(got, describe(msg))
			msg.Release()
		}
		assert.Equal(t, expected, got, "subscription %d", sub.ID())
		sub.Close()
	}
	chain.close(t)
}

func TestDriverSubscribeWithReplay(t *testing.T) {
	defer goleak.VerifyNone(t)
	chain := newTestChain(t)
	handle := chain.driver.Handle()

	// Nothing to replay before the first subscription is ready
	early := handle.SubscribeWithReplay()

	chain.step(t)
	follow := waitFollow(t, chain.client, 1)
	for _, ev := range []rpc.FollowEvent{
		rpc.Initialized[rpc.Hash]{
			FinalizedBlockHashes:  []rpc.Hash{test.BlockHash(0)},
			FinalizedBlockRuntime: testRuntime(1),
		},
		rpc.NewBlock[rpc.Hash]{
			BlockHash:       test.BlockHash(1),
			ParentBlockHash: test.BlockHash(0),
			NewRuntime:      testRuntime(2),
		},
		rpc.BestBlockChanged[rpc.Hash]{BestBlockHash: test.BlockHash(1)},
		rpc.NewBlock[rpc.Hash]{
			BlockHash:       test.BlockHash(2),
			ParentBlockHash: test.BlockHash(1),
		},
		rpc.Finalized[rpc.Hash]{
			FinalizedBlockHashes: []rpc.Hash{test.BlockHash(1)},
		},
	} {
		follow.Send(ev)
		chain.step(t)
	}

	late := handle.SubscribeWithReplay()
	expected := []any{
		"ready:" + follow.ID(),
		rpc.Initialized[rpc.Hash]{
			FinalizedBlockHashes:  []rpc.Hash{test.BlockHash(1)},
			FinalizedBlockRuntime: testRuntime(2),
		},
		rpc.NewBlock[rpc.Hash]{
			BlockHash:       test.BlockHash(2),
			ParentBlockHash: test.BlockHash(1),
		},
	}
	for _, want := range expected {
		msg := next(t, late)
		assert.Equal(t, want, describe(msg))
		msg.Release()
	}

	// Live messages follow the replay
	follow.Send(rpc.BestBlockChanged[rpc.Hash]{BestBlockHash: test.BlockHash(2)})
	chain.step(t)
	msg := next(t, late)
	assert.Equal(
		t,
		rpc.BestBlockChanged[rpc.Hash]{BestBlockHash: test.BlockHash(2)},
		describe(msg),
	)
	msg.Release()

	msg = next(t, early)
	assert.Equal(t, "ready:"+follow.ID(), describe(msg))
	early.Close()
	late.Close()
	chain.close(t)
}

func TestDriverReplayAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	chain := newTestChain(t)
	handle := chain.driver.Handle()
	chain.step(t)
	follow := waitFollow(t, chain.client, 1)
	follow.Send(rpc.Initialized[rpc.Hash]{
		FinalizedBlockHashes: []rpc.Hash{test.BlockHash(0)},
	})
	chain.step(t)
	follow.Send(rpc.Stop{})
	chain.step(t)

	sub := handle.SubscribeWithReplay()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	_, err := sub.Next(ctx)
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded, "nothing is replayed after a stop")

	// The next step opens a new follow subscription
	chain.step(t)
	second := waitFollow(t, chain.client, 2)
	msg := next(t, sub)
	assert.Equal(t, "ready:"+second.ID(), describe(msg))
	sub.Close()
	chain.close(t)
}

func TestDriverSubscriptionID(t *testing.T) {
	defer goleak.VerifyNone(t)
	chain := newTestChain(t)
	sub := chain.driver.Handle().Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- chain.driver.Run(ctx)
	}()
	idCtx, idCancel := context.WithTimeout(context.Background(), testTimeout)
	defer idCancel()
	id, err := sub.SubscriptionID(idCtx)
	require.NoError(t, err)
	follow := waitFollow(t, chain.client, 1)
	assert.Equal(t, follow.ID(), id)
	cancel()
	if err := <-runErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("did not get expected error\n  got: %v\n  wanted: %v", err, context.Canceled)
	}
	sub.Close()
	chain.close(t)
}

func TestDriverSourceError(t *testing.T) {
	defer goleak.VerifyNone(t)
	testErr := errors.New("subscribe failed")
	chain := newTestChain(t)
	chain.client.HandleSubscribe(
		rpc.MethodChainHeadFollow,
		func(*mockrpc.Subscription, []any) error {
			return testErr
		},
	)
	sub := chain.driver.Handle().Subscribe()
	err := chain.driver.Step(context.Background())
	assert.ErrorIs(t, err, testErr)
	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, testErr)
	_, err = sub.SubscriptionID(context.Background())
	assert.ErrorIs(t, err, testErr)
	sub.Close()
	chain.close(t)
}

func TestDriverErrorAfterQueuedMessages(t *testing.T) {
	defer goleak.VerifyNone(t)
	testErr := errors.New("connection lost")
	chain := newTestChain(t)
	sub := chain.driver.Handle().Subscribe()
	chain.step(t)
	follow := waitFollow(t, chain.client, 1)
	follow.Fail(testErr)
	assert.ErrorIs(t, chain.driver.Step(context.Background()), testErr)
	// Queued messages are delivered before the error
	msg := next(t, sub)
	assert.True(t, msg.IsReady())
	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, testErr)
	sub.Close()
	chain.close(t)
}

func TestSubscriptionClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	chain := newTestChain(
		t,
		followstream.WithMinBlockLife(1),
	)
	handle := chain.driver.Handle()
	reader := handle.Subscribe()
	idle := handle.Subscribe()
	chain.step(t)
	follow := waitFollow(t, chain.client, 1)
	follow.Send(rpc.Initialized[rpc.Hash]{
		FinalizedBlockHashes: []rpc.Hash{test.BlockHash(0)},
	})
	chain.step(t)
	for range 2 {
		next(t, reader).Release()
	}
	// Closing releases the messages the subscription never read
	idle.Close()
	_, err := idle.Next(context.Background())
	assert.ErrorIs(t, err, followstream.ErrSubscriptionClosed)

	for i := 1; i <= 2; i++ {
		follow.Send(rpc.Finalized[rpc.Hash]{
			FinalizedBlockHashes: []rpc.Hash{test.BlockHash(i)},
		})
		chain.step(t)
	}
	for range 2 {
		next(t, reader).Release()
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	calls, err := chain.client.WaitCalls(ctx, rpc.MethodChainHeadUnpin, 1)
	require.NoError(t, err)
	require.Len(t, calls[0].Params, 2)
	assert.Equal(t, follow.ID(), calls[0].Params[0])
	assert.Equal(t, test.BlockHash(0), calls[0].Params[1])
	reader.Close()
	chain.close(t)
}
