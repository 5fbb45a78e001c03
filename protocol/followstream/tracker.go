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
	"sync"

	"github.com/blinklabs-io/gosubstrate/rpc"
)

// Unpinner issues chainHead unpin calls
type Unpinner interface {
	Unpin(ctx context.Context, subscriptionID string, hash rpc.Hash) error
}

// UnpinFunc adapts a function to the Unpinner interface
type UnpinFunc func(ctx context.Context, subscriptionID string, hash rpc.Hash) error

func (f UnpinFunc) Unpin(
	ctx context.Context,
	subscriptionID string,
	hash rpc.Hash,
) error {
	return f(ctx, subscriptionID, hash)
}

// Tracker pins the blocks reported by a MessageSource and replaces their
// hashes with BlockRef handles.
//
// Every block is assigned a height relative to the first finalized block
// seen on the current subscription. After each Finalized event, blocks that
// are at least MaxBlockLife finalized blocks old are unpinned, and so are
// blocks at least MinBlockLife old that have no outstanding handles. Unpin
// calls run in the background and their failures are ignored
type Tracker struct {
	source         MessageSource
	unpinner       Unpinner
	maxBlockLife   int
	minBlockLife   int
	logger         *slog.Logger
	subscriptionID string
	height         int
	pinned         map[rpc.Hash]*pinnedBlock
	table          *pinTable
	unpinCtx       context.Context
	unpinCancel    context.CancelFunc
	unpinWaitGroup sync.WaitGroup
}

// NewTracker returns a new Tracker on top of source
func NewTracker(source MessageSource, unpinner Unpinner, cfg *Config) *Tracker {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	t := &Tracker{
		source:       source,
		unpinner:     unpinner,
		maxBlockLife: cfg.MaxBlockLife,
		minBlockLife: cfg.MinBlockLife,
		logger:       cfg.logger(),
	}
	t.reset()
	return t
}

// Next returns the next message from the source with block hashes replaced
// by pinned block handles
func (t *Tracker) Next(ctx context.Context) (Message, error) {
	msg, err := t.source.Next(ctx)
	if err != nil {
		return Message{}, err
	}
	if msg.IsReady() {
		t.subscriptionID = msg.SubscriptionID
		return msg, nil
	}
	switch ev := msg.Event.(type) {
	case rpc.Initialized[rpc.Hash]:
		refs := make([]*BlockRef, len(ev.FinalizedBlockHashes))
		for i, hash := range ev.FinalizedBlockHashes {
			refs[i] = t.pinBlockAt(t.height, hash)
		}
		return Message{Event: rpc.Initialized[*BlockRef]{
			FinalizedBlockHashes:  refs,
			FinalizedBlockRuntime: ev.FinalizedBlockRuntime,
		}}, nil
	case rpc.NewBlock[rpc.Hash]:
		parentHeight := t.height
		if parent, ok := t.pinned[ev.ParentBlockHash]; ok {
			parentHeight = parent.height
		}
		parentRef := t.pinBlockAt(parentHeight, ev.ParentBlockHash)
		blockRef := t.pinBlockAt(parentHeight+1, ev.BlockHash)
		return Message{Event: rpc.NewBlock[*BlockRef]{
			BlockHash:       blockRef,
			ParentBlockHash: parentRef,
			NewRuntime:      ev.NewRuntime,
		}}, nil
	case rpc.BestBlockChanged[rpc.Hash]:
		return Message{Event: rpc.BestBlockChanged[*BlockRef]{
			BestBlockHash: t.pinBlockAt(t.height+1, ev.BestBlockHash),
		}}, nil
	case rpc.Finalized[rpc.Hash]:
		finalized := make([]*BlockRef, len(ev.FinalizedBlockHashes))
		for i, hash := range ev.FinalizedBlockHashes {
			finalized[i] = t.pinBlockAt(t.height+1+i, hash)
		}
		t.height += len(finalized)
		// The height of pruned blocks is unknown if they were never
		// reported before
		pruned := make([]*BlockRef, len(ev.PrunedBlockHashes))
		for i, hash := range ev.PrunedBlockHashes {
			pruned[i] = t.pinBlockAt(t.height+1, hash)
		}
		t.evict()
		return Message{Event: rpc.Finalized[*BlockRef]{
			FinalizedBlockHashes: finalized,
			PrunedBlockHashes:    pruned,
		}}, nil
	case rpc.Stop:
		t.logger.Debug(
			"follow subscription stopped, discarding pinned blocks",
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
			"subscription_id", t.subscriptionID,
			"pinned", len(t.pinned),
		)
		t.unpinCancel()
		t.reset()
		return msg, nil
	}
	return msg, nil
}

// Close stops pending unpin calls and closes the source
func (t *Tracker) Close(ctx context.Context) error {
	t.unpinCancel()
	t.unpinWaitGroup.Wait()
	return t.source.Close(ctx)
}

// reset forgets all pin state. Handles from before the reset no longer
// affect unpinning
func (t *Tracker) reset() {
	if t.table != nil {
		t.table.mu.Lock()
		for _, block := range t.pinned {
			block.evicted = true
		}
		t.table.mu.Unlock()
	}
	t.subscriptionID = ""
	t.height = 0
	t.pinned = make(map[rpc.Hash]*pinnedBlock)
	t.table = newPinTable()
	t.unpinCtx, t.unpinCancel = context.WithCancel(context.Background())
}

// pinBlockAt returns a new handle to a block, pinning it at height if it is
// not pinned yet. Pinning a block again clears its unpin flag
func (t *Tracker) pinBlockAt(height int, hash rpc.Hash) *BlockRef {
	block, ok := t.pinned[hash]
	if !ok {
		block = &pinnedBlock{
			hash:   hash,
			table:  t.table,
			refs:   1,
			height: height,
		}
		t.pinned[hash] = block
	}
	ref := block.acquire()
	t.table.mu.Lock()
	delete(t.table.flags, hash)
	t.table.mu.Unlock()
	return ref
}

func (t *Tracker) evict() {
	var unpin []rpc.Hash
	t.table.mu.Lock()
	for hash, block := range t.pinned {
		age := t.height - block.height
		_, flagged := t.table.flags[hash]
		if age < t.maxBlockLife && (age < t.minBlockLife || !flagged) {
			continue
		}
		delete(t.table.flags, hash)
		delete(t.pinned, hash)
		block.evicted = true
		block.refs--
		unpin = append(unpin, hash)
	}
	t.table.mu.Unlock()
	for _, hash := range unpin {
		t.unpin(hash)
	}
}

func (t *Tracker) unpin(hash rpc.Hash) {
	ctx := t.unpinCtx
	subscriptionID := t.subscriptionID
	t.unpinWaitGroup.Add(1)
	go func() {
		defer t.unpinWaitGroup.Done()
		if err := t.unpinner.Unpin(ctx, subscriptionID, hash); err != nil {
			t.logger.Debug(
				"failed to unpin block",
				"component", "network",
				"protocol", ProtocolName,
				"role", "client",
				"subscription_id", subscriptionID,
				"hash", hash.Hex(),
				"error", err,
			)
		}
	}()
}
