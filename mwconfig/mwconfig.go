// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mwconfig defines the wallet's on-disk TOML configuration file.
// The file holds only settings that survive restarts; transient
// overrides belong on the command line, which takes precedence over
// every value here.
package mwconfig

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/naoina/toml"

	"github.com/mwsuite/mwwallet/netparams"
)

// DefaultFilename is the name of the configuration file inside the
// wallet's data directory.
const DefaultFilename = "mwwallet.toml"

// WalletConfig is the [wallet] table of the configuration file.
type WalletConfig struct {
	// ChainType selects the network the wallet operates on: one of
	// "mainnet", "testnet" or "simnet".
	ChainType string `toml:"chain_type"`

	// CheckNodeAPIHTTPAddr is the base URL of the node REST API that
	// transaction inputs are checked against.
	CheckNodeAPIHTTPAddr string `toml:"check_node_api_http_addr"`

	// NodeAPISecretPath points at a file whose first line is the basic
	// auth secret for the node API.  An empty path or a missing file
	// disables authentication.
	NodeAPISecretPath string `toml:"node_api_secret_path,omitempty"`

	// DataFileDir is the directory holding the wallet database and the
	// sealed seed file.  A relative path is resolved against the
	// directory of the configuration file.
	DataFileDir string `toml:"data_file_dir"`

	// DBBackend names the wallet database driver, "bdb" or "sqlite".
	DBBackend string `toml:"db_backend"`

	// MinimumConfirmations is the confirmation depth before an output
	// is treated as spendable.
	MinimumConfirmations uint64 `toml:"minimum_confirmations"`
}

// LoggingConfig is the [logging] table of the configuration file.
type LoggingConfig struct {
	// LogLevel is the base log level applied to all subsystems.  The
	// command line debuglevel option overrides it and additionally
	// accepts per-subsystem pairs.
	LogLevel string `toml:"log_level"`

	// LogDir is the directory for rotated log files.  Empty selects
	// the logs directory under the data directory.
	LogDir string `toml:"log_dir,omitempty"`
}

// Config is the root of the configuration file.
type Config struct {
	Wallet  WalletConfig  `toml:"wallet"`
	Logging LoggingConfig `toml:"logging"`
}

// Default returns the configuration written on first run for the given
// network.
func Default(params *netparams.Params) *Config {
	return &Config{
		Wallet: WalletConfig{
			ChainType:            params.Name,
			CheckNodeAPIHTTPAddr: params.DefaultNodeAPIAddr,
			DataFileDir:          ".",
			DBBackend:            "bdb",
			MinimumConfirmations: 10,
		},
		Logging: LoggingConfig{
			LogLevel: "info",
		},
	}
}

// Load reads and decodes the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := new(Config)
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %v", path, err)
	}
	return cfg, nil
}

// fileHeader is written above the generated settings so a reader of
// the file knows where it came from and how it interacts with flags.
const fileHeader = `# Generated wallet configuration.
# Values here are overridden by matching command line options.

`

// Save writes the configuration to path, creating or replacing the
// file.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(*c)
	if err != nil {
		return fmt.Errorf("encoding configuration: %v", err)
	}

	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	buf.Write(data)
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// ReadAPISecret returns the trimmed first line of the file at path.
// An empty path or a missing file yields an empty secret, matching a
// node that runs without authentication.
func ReadAPISecret(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return "", scanner.Err()
	}
	return strings.TrimSpace(scanner.Text()), nil
}
