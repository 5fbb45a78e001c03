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
	"encoding/json"
	"fmt"
	"os"

	"github.com/blinklabs-io/gosubstrate/cmd/common"
)

type chainTipFlags struct {
	*common.GlobalFlags
}

func main() {
	// Parse commandline
	f := chainTipFlags{
		GlobalFlags: common.NewGlobalFlags(),
	}
	f.Parse()
	logger := common.NewLogger(f.GlobalFlags)
	ctx := context.Background()
	c := common.CreateClient(ctx, f.GlobalFlags, logger)
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, f.Config.Timeout)
	defer cancel()
	b := c.Backend()
	genesis, err := b.GenesisHash(ctx)
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}
	tip, err := b.LatestFinalizedBlockRef(ctx)
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}
	defer tip.Release()
	header, err := b.BlockHeader(ctx, tip.Hash)
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}

	support := c.Support()
	fmt.Print("Current chain tip:\n\n")
	fmt.Printf("Genesis hash: %s\n", genesis.Hex())
	fmt.Printf("Block hash: %s\n", tip.Hash.Hex())
	// The legacy backend reports headers as JSON
	if json.Valid(header) {
		fmt.Printf("Header: %s\n", header)
	} else {
		fmt.Printf("Header: %x\n", header)
	}
	version, err := b.CurrentRuntimeVersion(ctx)
	if err == nil {
		fmt.Printf(
			"Runtime: spec version %d, transaction version %d\n",
			version.SpecVersion,
			version.TransactionVersion,
		)
	}
	fmt.Printf(
		"Method families: archive=%t chainHead=%t legacy=%t\n",
		support.Archive,
		support.ChainHead,
		support.Legacy,
	)
}
