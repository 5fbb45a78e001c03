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
	"fmt"
	"os"
	"time"

	"github.com/blinklabs-io/gosubstrate/backend/chainhead"
	"github.com/blinklabs-io/gosubstrate/backend/legacy"
	"github.com/blinklabs-io/gosubstrate/protocol/followstream"
	"gopkg.in/yaml.v3"
)

// Config is the optional YAML configuration shared by the command line tools
type Config struct {
	// Predefined network name. The node's genesis hash is checked against
	// it when set
	Network string `yaml:"network"`
	// Websocket endpoint. It overrides the network's public endpoint
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	Reconnect bool              `yaml:"reconnect"`
	Timeout   time.Duration     `yaml:"timeout"`
	Follow    FollowConfig      `yaml:"follow"`
	Legacy    LegacyConfig      `yaml:"legacy"`
	Tx        TxConfig          `yaml:"transaction"`
}

type FollowConfig struct {
	MaxBlockLife int  `yaml:"max_block_life"`
	MinBlockLife int  `yaml:"min_block_life"`
	WithRuntime  bool `yaml:"with_runtime"`
}

type LegacyConfig struct {
	KeysPageSize uint32 `yaml:"keys_page_size"`
}

type TxConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		Reconnect: true,
		Timeout:   30 * time.Second,
		Follow: FollowConfig{
			MaxBlockLife: followstream.DefaultMaxBlockLife,
			MinBlockLife: followstream.DefaultMinBlockLife,
			WithRuntime:  true,
		},
		Legacy: LegacyConfig{
			KeysPageSize: legacy.DefaultKeysPageSize,
		},
		Tx: TxConfig{
			Timeout: chainhead.DefaultTransactionTimeout,
		},
	}
}

// LoadConfig reads the YAML file at path on top of the defaults. An empty
// path returns the defaults
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}
