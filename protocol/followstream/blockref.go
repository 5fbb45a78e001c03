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
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/blinklabs-io/gosubstrate/rpc"
)

// pinTable holds the unpin flags of one follow subscription and guards the
// reference counts of the blocks pinned on it
type pinTable struct {
	mu    sync.Mutex
	flags map[rpc.Hash]struct{}
}

func newPinTable() *pinTable {
	return &pinTable{
		flags: make(map[rpc.Hash]struct{}),
	}
}

// pinnedBlock is shared by the tracker and every BlockRef for the same pin.
// refs and evicted are guarded by table.mu
type pinnedBlock struct {
	hash    rpc.Hash
	table   *pinTable
	refs    int
	evicted bool
	// Only touched by the tracker
	height int
}

func (b *pinnedBlock) acquire() *BlockRef {
	b.table.mu.Lock()
	b.refs++
	b.table.mu.Unlock()
	return newBlockRef(b)
}

func (b *pinnedBlock) release() {
	b.table.mu.Lock()
	defer b.table.mu.Unlock()
	b.refs--
	// The tracker holds the last reference
	if b.refs == 1 && !b.evicted {
		b.table.flags[b.hash] = struct{}{}
	}
}

// BlockRef is a handle to a pinned block. The block stays pinned on the
// server while any handle to it is held, until it grows older than the
// configured maximum block life.
//
// Callers must call Release when they no longer need the block. A handle that
// becomes unreachable without being released is released by the garbage
// collector eventually, which delays unpinning
type BlockRef struct {
	block    *pinnedBlock
	released atomic.Bool
	cleanup  runtime.Cleanup
}

func newBlockRef(block *pinnedBlock) *BlockRef {
	ref := &BlockRef{block: block}
	ref.cleanup = runtime.AddCleanup(ref, (*pinnedBlock).release, block)
	return ref
}

// Hash returns the block hash
func (b *BlockRef) Hash() rpc.Hash {
	return b.block.hash
}

// Clone returns a new handle to the same block
func (b *BlockRef) Clone() *BlockRef {
	if b == nil {
		return nil
	}
	return b.block.acquire()
}

// Release gives up this handle. Calling it more than once has no effect
func (b *BlockRef) Release() {
	if b == nil || !b.released.CompareAndSwap(false, true) {
		return
	}
	b.cleanup.Stop()
	b.block.release()
}

// String returns the hex encoded block hash
func (b *BlockRef) String() string {
	return b.block.hash.Hex()
}

func cloneRefs(refs []*BlockRef) []*BlockRef {
	if refs == nil {
		return nil
	}
	ret := make([]*BlockRef, len(refs))
	for i, ref := range refs {
		ret[i] = ref.Clone()
	}
	return ret
}

func releaseRefs(refs []*BlockRef) {
	for _, ref := range refs {
		ref.Release()
	}
}
