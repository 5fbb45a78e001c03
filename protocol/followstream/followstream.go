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

// Package followstream implements the client side of a chainHead follow
// subscription.
//
// It is built from three layers. A Source opens the subscription and opens a
// new one whenever the server stops the current one. A Tracker pins every
// block the Source reports, hands out BlockRef handles for them and unpins
// blocks once they are no longer referenced or have grown too old. A Driver
// polls the Tracker and fans the resulting messages out to any number of
// Subscriptions, so that a single follow subscription can serve many
// consumers.
package followstream

import (
	"context"
	"log/slog"

	"github.com/blinklabs-io/gosubstrate/rpc"
)

// ProtocolName is used in log messages
const ProtocolName = "chain-head-follow"

const (
	DefaultMaxBlockLife = 16
	DefaultMinBlockLife = 2
)

// Message is an item produced by a Source, Tracker or Driver. A message
// either marks that a (new) follow subscription is ready, in which case
// SubscriptionID is set, or carries a follow event.
//
// Events from a Source carry rpc.Hash values. Events from a Tracker or Driver
// carry *BlockRef values instead, which the receiver must release
type Message struct {
	SubscriptionID string
	Event          rpc.FollowEvent
}

// IsReady reports whether the message marks a new subscription
func (m Message) IsReady() bool {
	return m.Event == nil
}

// Clone returns a copy of the message with new handles to every block it
// references
func (m Message) Clone() Message {
	switch ev := m.Event.(type) {
	case rpc.Initialized[*BlockRef]:
		return Message{Event: rpc.Initialized[*BlockRef]{
			FinalizedBlockHashes:  cloneRefs(ev.FinalizedBlockHashes),
			FinalizedBlockRuntime: ev.FinalizedBlockRuntime.Clone(),
		}}
	case rpc.NewBlock[*BlockRef]:
		return Message{Event: rpc.NewBlock[*BlockRef]{
			BlockHash:       ev.BlockHash.Clone(),
			ParentBlockHash: ev.ParentBlockHash.Clone(),
			NewRuntime:      ev.NewRuntime.Clone(),
		}}
	case rpc.BestBlockChanged[*BlockRef]:
		return Message{Event: rpc.BestBlockChanged[*BlockRef]{
			BestBlockHash: ev.BestBlockHash.Clone(),
		}}
	case rpc.Finalized[*BlockRef]:
		return Message{Event: rpc.Finalized[*BlockRef]{
			FinalizedBlockHashes: cloneRefs(ev.FinalizedBlockHashes),
			PrunedBlockHashes:    cloneRefs(ev.PrunedBlockHashes),
		}}
	}
	return m
}

// Release releases every block handle the message carries
func (m Message) Release() {
	switch ev := m.Event.(type) {
	case rpc.Initialized[*BlockRef]:
		releaseRefs(ev.FinalizedBlockHashes)
	case rpc.NewBlock[*BlockRef]:
		ev.BlockHash.Release()
		ev.ParentBlockHash.Release()
	case rpc.BestBlockChanged[*BlockRef]:
		ev.BestBlockHash.Release()
	case rpc.Finalized[*BlockRef]:
		releaseRefs(ev.FinalizedBlockHashes)
		releaseRefs(ev.PrunedBlockHashes)
	}
}

// MessageSource produces follow messages one at a time
type MessageSource interface {
	Next(ctx context.Context) (Message, error)
	Close(ctx context.Context) error
}

// Config is used to configure the follow stream
type Config struct {
	// Blocks are unpinned once this many blocks have been finalized after
	// them, whether or not they are still referenced
	MaxBlockLife int
	// Unreferenced blocks are unpinned once this many blocks have been
	// finalized after them
	MinBlockLife int
	Logger       *slog.Logger
}

// FollowStreamOptionFunc represents a function used to modify the follow
// stream config
type FollowStreamOptionFunc func(*Config)

// NewConfig returns a new follow stream config object with the provided
// options
func NewConfig(options ...FollowStreamOptionFunc) Config {
	c := Config{
		MaxBlockLife: DefaultMaxBlockLife,
		MinBlockLife: DefaultMinBlockLife,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithMaxBlockLife specifies the age at which blocks are always unpinned
func WithMaxBlockLife(maxBlockLife int) FollowStreamOptionFunc {
	return func(c *Config) {
		c.MaxBlockLife = maxBlockLife
	}
}

// WithMinBlockLife specifies the age at which unreferenced blocks are
// unpinned
func WithMinBlockLife(minBlockLife int) FollowStreamOptionFunc {
	return func(c *Config) {
		c.MinBlockLife = minBlockLife
	}
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) FollowStreamOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

func (c *Config) logger() *slog.Logger {
	if c == nil || c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// New returns a Driver for a follow subscription opened with subscribe,
// unpinning blocks through unpinner
func New(subscribe SubscribeFunc, unpinner Unpinner, cfg *Config) *Driver {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	source := NewSource(subscribe, cfg.logger())
	tracker := NewTracker(source, unpinner, cfg)
	return NewDriver(tracker, cfg.logger())
}
