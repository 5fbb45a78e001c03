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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	substrate "github.com/blinklabs-io/gosubstrate"
	"github.com/blinklabs-io/gosubstrate/backend/chainhead"
	"github.com/blinklabs-io/gosubstrate/cmd/common"
	"github.com/blinklabs-io/gosubstrate/fixture"
	"github.com/blinklabs-io/gosubstrate/protocol/followstream"
	"github.com/blinklabs-io/gosubstrate/rpc"
)

type chainFollowFlags struct {
	*common.GlobalFlags
	record string
	count  int
}

func main() {
	// Parse commandline
	f := chainFollowFlags{
		GlobalFlags: common.NewGlobalFlags(),
	}
	f.Flagset.StringVar(
		&f.record,
		"record",
		"",
		"path to write a recording of the follow subscription to",
	)
	f.Flagset.IntVar(
		&f.count,
		"count",
		0,
		"number of messages to print before exiting (0 for no limit)",
	)
	f.Parse()
	logger := common.NewLogger(f.GlobalFlags)

	var options []substrate.ClientOptionFunc
	var recorder *fixture.Recorder
	var recordFile *os.File
	if f.record != "" {
		var err error
		recordFile, err = os.Create(f.record)
		if err != nil {
			fmt.Printf("ERROR: %s\n", err)
			os.Exit(1)
		}
		recorder, err = fixture.NewRecorder(recordFile)
		if err != nil {
			fmt.Printf("ERROR: %s\n", err)
			os.Exit(1)
		}
		options = append(
			options,
			substrate.WithChainHeadConfig(
				common.ChainHeadConfig(
					f.Config,
					logger,
					chainhead.WithSubscribeWrapper(recorder.Wrap),
				),
			),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	c := common.CreateClient(ctx, f.GlobalFlags, logger, options...)
	sub, err := c.Follow()
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}
	err = follow(ctx, sub, f.count)
	sub.Close()
	if closeErr := c.Close(); closeErr != nil {
		logger.Debug("failed to close client", "error", closeErr)
	}
	if recorder != nil {
		if err := recorder.Close(); err != nil {
			fmt.Printf("ERROR: failed to write recording: %s\n", err)
		}
		fmt.Printf("Recorded %d records to %s\n", recorder.Records(), f.record)
		_ = recordFile.Close()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}
}

func follow(ctx context.Context, sub *followstream.Subscription, count int) error {
	for i := 0; count == 0 || i < count; i++ {
		msg, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		fmt.Println(formatMessage(msg))
		msg.Release()
	}
	return nil
}

func formatMessage(msg followstream.Message) string {
	if msg.IsReady() {
		return fmt.Sprintf("ready: subscription %s", msg.SubscriptionID)
	}
	switch ev := msg.Event.(type) {
	case rpc.Initialized[*followstream.BlockRef]:
		return fmt.Sprintf(
			"initialized: finalized %s%s",
			formatRefs(ev.FinalizedBlockHashes),
			formatRuntime(ev.FinalizedBlockRuntime),
		)
	case rpc.NewBlock[*followstream.BlockRef]:
		return fmt.Sprintf(
			"new block: %s parent %s%s",
			ev.BlockHash,
			ev.ParentBlockHash,
			formatRuntime(ev.NewRuntime),
		)
	case rpc.BestBlockChanged[*followstream.BlockRef]:
		return fmt.Sprintf("best block: %s", ev.BestBlockHash)
	case rpc.Finalized[*followstream.BlockRef]:
		return fmt.Sprintf(
			"finalized: %s pruned %s",
			formatRefs(ev.FinalizedBlockHashes),
			formatRefs(ev.PrunedBlockHashes),
		)
	case rpc.Stop:
		return "stop"
	}
	return rpc.EventName(msg.Event)
}

func formatRefs(refs []*followstream.BlockRef) string {
	ret := make([]string, len(refs))
	for i, ref := range refs {
		ret[i] = ref.String()
	}
	return "[" + strings.Join(ret, " ") + "]"
}

func formatRuntime(runtime *rpc.RuntimeEvent) string {
	switch {
	case runtime == nil:
		return ""
	case runtime.Spec == nil:
		return fmt.Sprintf(" runtime invalid: %s", runtime.Error)
	}
	return fmt.Sprintf(
		" runtime %s/%d",
		runtime.Spec.SpecName,
		runtime.Spec.SpecVersion,
	)
}
