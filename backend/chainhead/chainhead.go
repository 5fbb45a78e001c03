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

// Package chainhead implements a backend on top of the chainHead_v1 family
// of RPC methods.
//
// All block-scoped operations go through a single follow subscription, which
// the backend keeps open and shares between callers. Blocks stay pinned
// while the BlockRef values handed out for them are held.
package chainhead

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/gosubstrate/backend"
	"github.com/blinklabs-io/gosubstrate/internal/retry"
	"github.com/blinklabs-io/gosubstrate/protocol/followstream"
	"github.com/blinklabs-io/gosubstrate/rpc"
)

// Backend serves backend operations with chainHead_v1 methods. Start must be
// called before using it
type Backend struct {
	methods    *rpc.Methods
	config     Config
	logger     *slog.Logger
	retry      retry.Policy
	driver     *followstream.Driver
	handle     *followstream.DriverHandle
	mu         sync.Mutex
	running    bool
	runCancel  context.CancelFunc
	doneChan   chan struct{}
	onceClose  sync.Once
	closeError error
}

var _ backend.Backend = (*Backend)(nil)

// New returns a new chainHead backend
func New(methods *rpc.Methods, cfg *Config) *Backend {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	b := &Backend{
		methods: methods,
		config:  *cfg,
		logger:  cfg.Logger,
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.config.Follow.Logger = b.logger
	b.retry = retry.DefaultPolicy()
	b.retry.Logger = b.logger
	subscribe := followstream.SubscribeFunc(b.subscribe)
	if cfg.SubscribeWrapper != nil {
		subscribe = cfg.SubscribeWrapper(subscribe)
	}
	b.driver = followstream.New(
		subscribe,
		followstream.UnpinFunc(methods.ChainHeadUnpin),
		&b.config.Follow,
	)
	b.handle = b.driver.Handle()
	return b
}

// Start drives the follow subscription in the background until Close is
// called
func (b *Backend) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	ctx, cancel := context.WithCancel(context.Background())
	b.runCancel = cancel
	b.doneChan = make(chan struct{})
	go func() {
		defer close(b.doneChan)
		if err := b.driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Error(
				"chainHead follow subscription failed",
				"component", "network",
				"protocol", followstream.ProtocolName,
				"role", "client",
				"error", err,
			)
		}
	}()
}

// Close stops the follow subscription. Operations in progress fail
func (b *Backend) Close(ctx context.Context) error {
	b.onceClose.Do(func() {
		b.mu.Lock()
		if b.running {
			b.runCancel()
			<-b.doneChan
		}
		b.mu.Unlock()
		b.closeError = b.driver.Close(ctx)
	})
	return b.closeError
}

// Follow returns a subscription to the shared follow subscription. It starts
// with the latest finalized block and the blocks reported since
func (b *Backend) Follow() *followstream.Subscription {
	return b.handle.SubscribeWithReplay()
}

func (b *Backend) subscribe(ctx context.Context) (followstream.EventStream, error) {
	return retry.Value(
		ctx,
		b.retry,
		func(ctx context.Context) (followstream.EventStream, error) {
			sub, err := b.methods.ChainHeadFollow(ctx, b.config.WithRuntime)
			if err != nil {
				return nil, err
			}
			return &followStream{sub: sub}, nil
		},
	)
}

// followStream ends the follow subscription when the connection drops, so
// that a new one is opened after the client reconnects
type followStream struct {
	sub *rpc.FollowSubscription
}

func (f *followStream) SubscriptionID() string {
	return f.sub.SubscriptionID()
}

func (f *followStream) Next(ctx context.Context) (rpc.FollowEvent, error) {
	ev, err := f.sub.Next(ctx)
	if rpc.IsDisconnectedWillReconnect(err) {
		return nil, io.EOF
	}
	return ev, err
}

func (f *followStream) Close(ctx context.Context) error {
	return f.sub.Close(ctx)
}

// withSubscriptionID calls fn with the follow subscription ID that sub starts
// on. If the server rejects the ID, fn is retried once with the ID of the
// next follow subscription
func withSubscriptionID[T any](
	ctx context.Context,
	b *Backend,
	sub *followstream.Subscription,
	fn func(ctx context.Context, subscriptionID string) (T, error),
) (T, string, error) {
	var zero T
	subscriptionID, err := sub.SubscriptionID(ctx)
	if err != nil {
		return zero, "", err
	}
	call := func(ctx context.Context) (T, error) {
		return fn(ctx, subscriptionID)
	}
	ret, err := retry.Value(ctx, b.retry, call)
	if err == nil || !rpc.IsRequestRejected(err) {
		return ret, subscriptionID, err
	}
	b.logger.Debug(
		"follow subscription rejected, waiting for the next one",
		"component", "network",
		"protocol", followstream.ProtocolName,
		"role", "client",
		"subscription_id", subscriptionID,
	)
	subscriptionID, err = nextSubscriptionID(ctx, sub, subscriptionID)
	if err != nil {
		return zero, "", err
	}
	ret, err = retry.Value(ctx, b.retry, call)
	return ret, subscriptionID, err
}

// nextSubscriptionID skips messages until a follow subscription other than
// previous is ready
func nextSubscriptionID(
	ctx context.Context,
	sub *followstream.Subscription,
	previous string,
) (string, error) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return "", err
		}
		msg.Release()
		if msg.IsReady() && msg.SubscriptionID != previous {
			return msg.SubscriptionID, nil
		}
	}
}

func (b *Backend) GenesisHash(ctx context.Context) (rpc.Hash, error) {
	return retry.Value(ctx, b.retry, b.methods.ChainSpecGenesisHash)
}

func (b *Backend) BlockHeader(ctx context.Context, at rpc.Hash) ([]byte, error) {
	sub := b.handle.Subscribe()
	defer sub.Close()
	header, _, err := withSubscriptionID(
		ctx,
		b,
		sub,
		func(ctx context.Context, subscriptionID string) (rpc.Bytes, error) {
			return b.methods.ChainHeadHeader(ctx, subscriptionID, at)
		},
	)
	if err != nil {
		return nil, err
	}
	return header, nil
}

func (b *Backend) BlockBody(ctx context.Context, at rpc.Hash) ([][]byte, error) {
	op, err := b.startOperation(
		ctx,
		func(ctx context.Context, subscriptionID string) (string, error) {
			return b.methods.ChainHeadBody(ctx, subscriptionID, at)
		},
	)
	if err != nil {
		return nil, err
	}
	defer op.closeLogged(ctx)
	ev, err := op.next(ctx)
	if err != nil {
		return nil, err
	}
	done, ok := ev.(rpc.OperationBodyDone)
	if !ok {
		return nil, op.unexpected(ev)
	}
	op.done = true
	ret := make([][]byte, len(done.Value))
	for i, tx := range done.Value {
		ret[i] = tx
	}
	return ret, nil
}

func (b *Backend) Call(
	ctx context.Context,
	method string,
	params []byte,
	at rpc.Hash,
) ([]byte, error) {
	op, err := b.startOperation(
		ctx,
		func(ctx context.Context, subscriptionID string) (string, error) {
			return b.methods.ChainHeadCall(ctx, subscriptionID, at, method, params)
		},
	)
	if err != nil {
		return nil, err
	}
	defer op.closeLogged(ctx)
	ev, err := op.next(ctx)
	if err != nil {
		return nil, err
	}
	done, ok := ev.(rpc.OperationCallDone)
	if !ok {
		return nil, op.unexpected(ev)
	}
	op.done = true
	return done.Output, nil
}

func (b *Backend) StorageFetchValues(
	ctx context.Context,
	keys [][]byte,
	at rpc.Hash,
) (backend.Stream[backend.StorageResponse], error) {
	items := make([]rpc.StorageQuery, len(keys))
	for i, key := range keys {
		items[i] = rpc.StorageQuery{Key: key, Type: rpc.StorageQueryTypeValue}
	}
	return b.storageValues(ctx, items, at)
}

func (b *Backend) StorageFetchDescendantKeys(
	ctx context.Context,
	prefix []byte,
	at rpc.Hash,
) (backend.Stream[[]byte], error) {
	stream, err := b.StorageItems(
		ctx,
		[]rpc.StorageQuery{{Key: prefix, Type: rpc.StorageQueryTypeDescendantsHashes}},
		at,
	)
	if err != nil {
		return nil, err
	}
	return backend.NewStream(
		func(ctx context.Context) ([]byte, error) {
			item, err := stream.Next(ctx)
			if err != nil {
				return nil, err
			}
			return item.Key, nil
		},
		stream.Close,
	), nil
}

func (b *Backend) StorageFetchDescendantValues(
	ctx context.Context,
	prefix []byte,
	at rpc.Hash,
) (backend.Stream[backend.StorageResponse], error) {
	return b.storageValues(
		ctx,
		[]rpc.StorageQuery{{Key: prefix, Type: rpc.StorageQueryTypeDescendantsValues}},
		at,
	)
}

func (b *Backend) storageValues(
	ctx context.Context,
	items []rpc.StorageQuery,
	at rpc.Hash,
) (backend.Stream[backend.StorageResponse], error) {
	stream, err := b.StorageItems(ctx, items, at)
	if err != nil {
		return nil, err
	}
	return backend.NewStream(
		func(ctx context.Context) (backend.StorageResponse, error) {
			for {
				item, err := stream.Next(ctx)
				if err != nil {
					return backend.StorageResponse{}, err
				}
				if item.Value == nil {
					continue
				}
				return backend.StorageResponse{Key: item.Key, Value: item.Value}, nil
			}
		},
		stream.Close,
	), nil
}

// latestFinalized returns a new handle to the latest finalized block along
// with its runtime
func (b *Backend) latestFinalized(
	ctx context.Context,
) (*followstream.BlockRef, *rpc.RuntimeEvent, error) {
	sub := b.handle.SubscribeWithReplay()
	defer sub.Close()
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return nil, nil, err
		}
		ev, ok := msg.Event.(rpc.Initialized[*followstream.BlockRef])
		if !ok || len(ev.FinalizedBlockHashes) == 0 {
			msg.Release()
			continue
		}
		ref := ev.FinalizedBlockHashes[len(ev.FinalizedBlockHashes)-1].Clone()
		msg.Release()
		return ref, ev.FinalizedBlockRuntime, nil
	}
}

func (b *Backend) LatestFinalizedBlockRef(ctx context.Context) (backend.BlockRef, error) {
	ref, _, err := b.latestFinalized(ctx)
	if err != nil {
		return backend.BlockRef{}, err
	}
	return backend.NewPinnedBlockRef(ref), nil
}

func (b *Backend) CurrentRuntimeVersion(ctx context.Context) (backend.RuntimeVersion, error) {
	if !b.config.WithRuntime {
		return backend.RuntimeVersion{}, backend.ErrUnsupported
	}
	ref, runtime, err := b.latestFinalized(ctx)
	if err != nil {
		return backend.RuntimeVersion{}, err
	}
	ref.Release()
	if runtime == nil {
		return backend.RuntimeVersion{}, ErrInvalidRuntime
	}
	if runtime.Spec == nil {
		return backend.RuntimeVersion{}, fmt.Errorf("%w: %s", ErrInvalidRuntime, runtime.Error)
	}
	return backend.RuntimeVersion{
		SpecVersion:        runtime.Spec.SpecVersion,
		TransactionVersion: runtime.Spec.TransactionVersion,
	}, nil
}
