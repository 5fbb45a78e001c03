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

package common

import (
	"flag"
	"fmt"
	"os"

	substrate "github.com/blinklabs-io/gosubstrate"
)

// DefaultNetwork is used when neither a URL nor a network is specified
const DefaultNetwork = "polkadot"

type GlobalFlags struct {
	Flagset    *flag.FlagSet
	ConfigFile string
	Url        string
	Network    string
	Debug      bool
	Config     *Config
}

func NewGlobalFlags() *GlobalFlags {
	f := &GlobalFlags{
		Flagset: flag.NewFlagSet(os.Args[0], flag.ExitOnError),
	}
	f.Flagset.StringVar(
		&f.ConfigFile,
		"config",
		"",
		"path to YAML config file",
	)
	f.Flagset.StringVar(
		&f.Url,
		"url",
		"",
		"websocket URL to connect to. this overrides the -network option",
	)
	f.Flagset.StringVar(
		&f.Network,
		"network",
		"",
		"specifies network that node is participating in",
	)
	f.Flagset.BoolVar(&f.Debug, "debug", false, "enable debug logging")
	return f
}

func (f *GlobalFlags) Parse() {
	if err := f.Flagset.Parse(os.Args[1:]); err != nil {
		fmt.Printf("failed to parse command args: %s\n", err)
		os.Exit(1)
	}
	cfg, err := LoadConfig(f.ConfigFile)
	if err != nil {
		fmt.Printf("failed to load config: %s\n", err)
		os.Exit(1)
	}
	// Command line flags override the config file
	if f.Network != "" {
		cfg.Network = f.Network
	}
	if f.Url != "" {
		cfg.URL = f.Url
	}
	if cfg.URL == "" && cfg.Network == "" {
		cfg.Network = DefaultNetwork
	}
	if cfg.Network != "" {
		network := substrate.NetworkByName(cfg.Network)
		if network == substrate.NetworkInvalid {
			fmt.Printf("Invalid network specified: %s\n", cfg.Network)
			os.Exit(1)
		}
	}
	f.Config = cfg
}
