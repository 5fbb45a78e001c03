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
	"log/slog"
	"slices"
	"sync"

	"github.com/blinklabs-io/gosubstrate/rpc"
)

// Driver polls a MessageSource and hands every message to each of its
// subscriptions.
//
// Nothing happens unless something drives the Driver, by calling Run in a
// goroutine or Step repeatedly. Messages queue up without bound for
// subscriptions that are not read from
type Driver struct {
	source      MessageSource
	logger      *slog.Logger
	mu          sync.Mutex
	subs        map[uint64]*subscriberState
	nextSubID   uint64
	err         error
	changedChan chan struct{}
	replay      replayState
}

type subscriberState struct {
	queue      []Message
	notifyChan chan struct{}
}

func (s *subscriberState) notify() {
	select {
	case s.notifyChan <- struct{}{}:
	default:
	}
}

// replayState is what a late subscriber needs to catch up: the current
// subscription ID, the latest finalized block with its runtime, and the
// block events reported since
type replayState struct {
	subscriptionID string
	finalized      *BlockRef
	runtime        *rpc.RuntimeEvent
	runtimes       map[rpc.Hash]*rpc.RuntimeEvent
	events         []Message
}

// NewDriver returns a new Driver for source
func NewDriver(source MessageSource, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		source:      source,
		logger:      logger,
		subs:        make(map[uint64]*subscriberState),
		changedChan: make(chan struct{}),
		replay: replayState{
			runtimes: make(map[rpc.Hash]*rpc.RuntimeEvent),
		},
	}
}

// Step polls the source once and queues the result for every subscription.
// An error from the source other than a cancelled context ends all
// subscriptions once they have drained their queues
func (d *Driver) Step(ctx context.Context) error {
	msg, err := d.source.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Error(
			"follow stream failed",
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
			"error", err,
		)
		d.mu.Lock()
		d.err = err
		for _, sub := range d.subs {
			sub.notify()
		}
		d.changed()
		d.mu.Unlock()
		return err
	}
	d.mu.Lock()
	d.updateReplay(msg)
	for _, sub := range d.subs {
		sub.queue = append(sub.queue, msg.Clone())
		sub.notify()
	}
	d.mu.Unlock()
	msg.Release()
	return nil
}

// Run drives the Driver until ctx is cancelled or the source fails
func (d *Driver) Run(ctx context.Context) error {
	for {
		if err := d.Step(ctx); err != nil {
			return err
		}
	}
}

// Close releases the replay state and closes the source. Run must have
// returned before calling Close
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	d.clearReplay()
	if d.err == nil {
		d.err = ErrSubscriptionClosed
	}
	for _, sub := range d.subs {
		sub.notify()
	}
	d.changed()
	d.mu.Unlock()
	return d.source.Close(ctx)
}

// Handle returns a handle for creating subscriptions
func (d *Driver) Handle() *DriverHandle {
	return &DriverHandle{driver: d}
}

// changed wakes everything waiting on the subscription ID. The caller must
// hold the lock
func (d *Driver) changed() {
	close(d.changedChan)
	d.changedChan = make(chan struct{})
}

// updateReplay must be called with the lock held
func (d *Driver) updateReplay(msg Message) {
	r := &d.replay
	if msg.IsReady() {
		r.subscriptionID = msg.SubscriptionID
		d.changed()
		return
	}
	switch ev := msg.Event.(type) {
	case rpc.Initialized[*BlockRef]:
		subscriptionID := r.subscriptionID
		d.clearReplay()
		r.subscriptionID = subscriptionID
		if n := len(ev.FinalizedBlockHashes); n > 0 {
			r.finalized = ev.FinalizedBlockHashes[n-1].Clone()
		}
		r.runtime = ev.FinalizedBlockRuntime.Clone()
	case rpc.NewBlock[*BlockRef]:
		if ev.NewRuntime != nil {
			r.runtimes[ev.BlockHash.Hash()] = ev.NewRuntime.Clone()
		}
		r.events = append(r.events, msg.Clone())
	case rpc.BestBlockChanged[*BlockRef]:
		r.events = append(r.events, msg.Clone())
	case rpc.Finalized[*BlockRef]:
		if n := len(ev.FinalizedBlockHashes); n > 0 {
			r.finalized.Release()
			r.finalized = ev.FinalizedBlockHashes[n-1].Clone()
		}
		done := make(map[rpc.Hash]struct{})
		for _, ref := range ev.FinalizedBlockHashes {
			hash := ref.Hash()
			if runtime, ok := r.runtimes[hash]; ok {
				r.runtime = runtime
			}
			done[hash] = struct{}{}
		}
		for _, ref := range ev.PrunedBlockHashes {
			done[ref.Hash()] = struct{}{}
		}
		for hash := range done {
			delete(r.runtimes, hash)
		}
		// The latest finalized block is reported by the synthetic
		// Initialized event, so its block events are dropped too
		r.events = slices.DeleteFunc(r.events, func(m Message) bool {
			var hash rpc.Hash
			switch ev := m.Event.(type) {
			case rpc.NewBlock[*BlockRef]:
				hash = ev.BlockHash.Hash()
			case rpc.BestBlockChanged[*BlockRef]:
				hash = ev.BestBlockHash.Hash()
			}
			if _, ok := done[hash]; ok {
				m.Release()
				return true
			}
			return false
		})
	case rpc.Stop:
		d.clearReplay()
		d.changed()
	}
}

// clearReplay must be called with the lock held
func (d *Driver) clearReplay() {
	r := &d.replay
	r.finalized.Release()
	for _, msg := range r.events {
		msg.Release()
	}
	*r = replayState{
		runtimes: make(map[rpc.Hash]*rpc.RuntimeEvent),
	}
}

// replayMessages returns the messages that bring a new subscriber up to the
// current state. The caller must hold the lock
func (d *Driver) replayMessages() []Message {
	r := &d.replay
	if r.subscriptionID == "" {
		return nil
	}
	ret := []Message{{SubscriptionID: r.subscriptionID}}
	if r.finalized == nil {
		return ret
	}
	ret = append(ret, Message{Event: rpc.Initialized[*BlockRef]{
		FinalizedBlockHashes:  []*BlockRef{r.finalized.Clone()},
		FinalizedBlockRuntime: r.runtime.Clone(),
	}})
	for _, msg := range r.events {
		ret = append(ret, msg.Clone())
	}
	return ret
}

func (d *Driver) subscribe(replay bool) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextSubID++
	state := &subscriberState{
		notifyChan: make(chan struct{}, 1),
	}
	if replay {
		state.queue = d.replayMessages()
	}
	d.subs[d.nextSubID] = state
	return &Subscription{
		driver:         d,
		id:             d.nextSubID,
		state:          state,
		subscriptionID: d.replay.subscriptionID,
	}
}

func (d *Driver) unsubscribe(id uint64) []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.subs[id]
	if !ok {
		return nil
	}
	delete(d.subs, id)
	queue := state.queue
	state.queue = nil
	return queue
}

// DriverHandle creates subscriptions to a Driver
type DriverHandle struct {
	driver *Driver
}

// Subscribe returns a subscription that receives every message the driver
// polls from now on
func (h *DriverHandle) Subscribe() *Subscription {
	return h.driver.subscribe(false)
}

// SubscribeWithReplay returns a subscription that first receives a ready
// message for the current follow subscription, an Initialized event for the
// latest finalized block and the block events reported since, followed by
// every message the driver polls from now on.
//
// Before the first follow subscription is ready, it behaves like Subscribe
func (h *DriverHandle) SubscribeWithReplay() *Subscription {
	return h.driver.subscribe(true)
}

// Subscription receives the messages of a Driver in order. It is not safe
// for concurrent use
type Subscription struct {
	driver         *Driver
	id             uint64
	state          *subscriberState
	buffer         []Message
	closed         bool
	subscriptionID string
}

// ID returns the unique ID of the subscription within its Driver
func (s *Subscription) ID() uint64 {
	return s.id
}

// Next returns the next message, waiting for the Driver to poll one if
// necessary. The caller must release the message
func (s *Subscription) Next(ctx context.Context) (Message, error) {
	for {
		if s.closed {
			return Message{}, ErrSubscriptionClosed
		}
		if len(s.buffer) > 0 {
			msg := s.buffer[0]
			s.buffer[0] = Message{}
			s.buffer = s.buffer[1:]
			return msg, nil
		}
		d := s.driver
		d.mu.Lock()
		if len(s.state.queue) > 0 {
			s.buffer, s.state.queue = s.state.queue, nil
			d.mu.Unlock()
			continue
		}
		err := d.err
		d.mu.Unlock()
		if err != nil {
			return Message{}, err
		}
		select {
		case <-s.state.notifyChan:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// SubscriptionID returns the ID of the follow subscription that the messages
// of this subscription start on: the one that was ready when it was created,
// or else the next one to become ready. A Stop message received before a
// ready message refers to this follow subscription
func (s *Subscription) SubscriptionID(ctx context.Context) (string, error) {
	if s.subscriptionID != "" {
		return s.subscriptionID, nil
	}
	id, err := s.driver.SubscriptionID(ctx)
	if err != nil {
		return "", err
	}
	s.subscriptionID = id
	return id, nil
}

// SubscriptionID returns the ID of the current follow subscription, waiting
// for one to become ready if necessary
func (d *Driver) SubscriptionID(ctx context.Context) (string, error) {
	for {
		d.mu.Lock()
		id := d.replay.subscriptionID
		err := d.err
		changedChan := d.changedChan
		d.mu.Unlock()
		if id != "" {
			return id, nil
		}
		if err != nil {
			return "", err
		}
		select {
		case <-changedChan:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Close unregisters the subscription and releases the messages it has not
// read yet
func (s *Subscription) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for _, msg := range s.driver.unsubscribe(s.id) {
		msg.Release()
	}
	for _, msg := range s.buffer {
		msg.Release()
	}
	s.buffer = nil
}
