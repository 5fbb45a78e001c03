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
	"io"
	"os"
	"strings"

	"github.com/blinklabs-io/gosubstrate/backend"
	"github.com/blinklabs-io/gosubstrate/cmd/common"
	"github.com/blinklabs-io/gosubstrate/rpc"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type txSubmissionFlags struct {
	*common.GlobalFlags
	txHex     string
	txFile    string
	rawTxFile string
}

func main() {
	// Parse commandline
	f := txSubmissionFlags{
		GlobalFlags: common.NewGlobalFlags(),
	}
	f.Flagset.StringVar(
		&f.txHex,
		"tx",
		"",
		"hex encoded transaction to submit",
	)
	f.Flagset.StringVar(
		&f.txFile,
		"tx-file",
		"",
		"path to a file containing the hex encoded transaction to submit",
	)
	f.Flagset.StringVar(
		&f.rawTxFile,
		"raw-tx-file",
		"",
		"path to the raw transaction file to submit",
	)
	f.Parse()

	// Read the transaction
	var txBytes []byte
	var err error
	switch {
	case f.txHex != "":
		txBytes, err = decodeHex(f.txHex)
	case f.txFile != "":
		var txData []byte
		txData, err = os.ReadFile(f.txFile)
		if err == nil {
			txBytes, err = decodeHex(string(txData))
		}
	case f.rawTxFile != "":
		txBytes, err = os.ReadFile(f.rawTxFile)
	default:
		fmt.Printf("You must specify one of -tx, -tx-file or -raw-tx-file\n")
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("Failed to load transaction: %s\n", err)
		os.Exit(1)
	}

	logger := common.NewLogger(f.GlobalFlags)
	ctx := context.Background()
	c := common.CreateClient(ctx, f.GlobalFlags, logger)
	defer c.Close()

	fmt.Printf("Submitting transaction %s\n", backend.HashTransaction(txBytes).Hex())
	stream, err := c.Backend().SubmitTransaction(ctx, txBytes)
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}
	defer stream.Close(ctx)
	for {
		status, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			fmt.Printf("ERROR: %s\n", err)
			os.Exit(1)
		}
		if status.Block.Hash != (rpc.Hash{}) {
			fmt.Printf("%s: %s\n", status.Type, status.Block.Hash.Hex())
		} else {
			fmt.Printf("%s\n", status.Type)
		}
		status.Block.Release()
		if err := status.Err(); err != nil {
			fmt.Printf("ERROR: %s\n", err)
			os.Exit(1)
		}
		if status.Terminal() {
			return
		}
	}
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}
