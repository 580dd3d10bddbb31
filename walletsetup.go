// Copyright (c) 2014-2015 The btcsuite developers
// Copyright (c) 2015 The Decred developers
// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mwsuite/mwwallet/internal/cfgutil"
	"github.com/mwsuite/mwwallet/internal/prompt"
	"github.com/mwsuite/mwwallet/internal/zero"
	"github.com/mwsuite/mwwallet/mwconfig"
	"github.com/mwsuite/mwwallet/netparams"
	"github.com/mwsuite/mwwallet/wallet"
	"github.com/mwsuite/mwwallet/walletdb"
	_ "github.com/mwsuite/mwwallet/walletdb/bdb"
	_ "github.com/mwsuite/mwwallet/walletdb/sqlite"
)

// defaultDBTimeout is how long the bdb driver waits for the database
// file lock before giving up.
const defaultDBTimeout = 60 * time.Second

// networkDir returns the directory name of a network directory to hold wallet
// files.
func networkDir(dataDir string, params *netparams.Params) string {
	return filepath.Join(dataDir, params.Name)
}

// createDB creates the wallet database at dbPath using the configured
// database driver.
func createDB(dbType, dbPath string) (walletdb.DB, error) {
	switch dbType {
	case "bdb":
		return walletdb.Create("bdb", dbPath, true, defaultDBTimeout)
	case "sqlite":
		return walletdb.Create("sqlite", dbPath)
	}
	return nil, fmt.Errorf("unknown database type %q", dbType)
}

// openDB opens the wallet database at dbPath using the configured
// database driver.
func openDB(dbType, dbPath string) (walletdb.DB, error) {
	switch dbType {
	case "bdb":
		return walletdb.Open("bdb", dbPath, true, defaultDBTimeout)
	case "sqlite":
		return walletdb.Open("sqlite", dbPath)
	}
	return nil, fmt.Errorf("unknown database type %q", dbType)
}

// createWallet prompts the user for information needed to generate a new
// wallet and generates the wallet accordingly.  The new wallet database and
// sealed seed file will reside in the network directory under the
// application data directory.  A configuration file is generated next to
// them when none exists yet.
func createWallet(cfg *config, configFilePath string) error {
	netDir := networkDir(cfg.AppDataDir.Value, activeNet)
	dbPath := filepath.Join(netDir, walletDbName)
	seedPath := filepath.Join(netDir, walletSeedName)

	reader := bufio.NewReader(os.Stdin)
	privPass, seed, err := prompt.Setup(reader)
	if err != nil {
		return err
	}

	fmt.Println("Creating the wallet...")

	db, err := createDB(cfg.DBType.Value, dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	err = wallet.CreateWallet(db, seedPath, seed, privPass)
	zero.Bytes(seed)
	zero.Bytes(privPass)
	if err != nil {
		return err
	}

	// Generate the configuration file when none exists so the chosen
	// network and database backend stick for later runs.
	configExists, err := cfgutil.FileExists(configFilePath)
	if err != nil {
		return err
	}
	if !configExists {
		generated := mwconfig.Default(activeNet)
		generated.Wallet.DBBackend = cfg.DBType.Value
		generated.Wallet.MinimumConfirmations = cfg.MinConf
		if cfg.NodeAPI.ExplicitlySet() {
			generated.Wallet.CheckNodeAPIHTTPAddr = cfg.NodeAPI.Value
		}
		if cfg.NodeAPISecretFile.Value != "" {
			generated.Wallet.NodeAPISecretPath = cfg.NodeAPISecretFile.Value
		}
		if err := generated.Save(configFilePath); err != nil {
			return err
		}
		fmt.Println("Wrote generated configuration file", configFilePath)
	}

	fmt.Println("The wallet has been created successfully.")

	return nil
}

// checkCreateDir checks that the path exists and is a directory.
// If path does not exist, it is created.
func checkCreateDir(path string) error {
	if fi, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			// Attempt data directory creation
			if err = os.MkdirAll(path, 0700); err != nil {
				return fmt.Errorf("cannot create directory: %s", err)
			}
		} else {
			return fmt.Errorf("error checking directory: %s", err)
		}
	} else {
		if !fi.IsDir() {
			return fmt.Errorf("path '%s' is not a directory", path)
		}
	}

	return nil
}
