// Copyright (c) 2015-2016 The btcsuite developers
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

	"github.com/jessevdk/go-flags"

	"github.com/mwsuite/mwwallet/internal/cfgutil"
	"github.com/mwsuite/mwwallet/mwtxmgr"
	"github.com/mwsuite/mwwallet/walletdb"
	_ "github.com/mwsuite/mwwallet/walletdb/bdb"
	_ "github.com/mwsuite/mwwallet/walletdb/sqlite"
)

const defaultNet = "mainnet"

var datadir = cfgutil.AppDataDir("mwwallet", false)

// Flags.
var opts = struct {
	Force  bool   `short:"f" description:"Force removal without prompt"`
	DbPath string `long:"db" description:"Path to wallet database"`
	DbType string `long:"dbtype" description:"Database backend (bdb or sqlite)"`
}{
	Force:  false,
	DbPath: filepath.Join(datadir, defaultNet, "wallet.db"),
	DbType: "bdb",
}

func init() {
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}
}

// txmgrNamespace is the top level bucket holding the output set and the
// transaction log.  The seed and derivation counter are restored by the
// next full scan, so dropping the namespace loses no funds.
var txmgrNamespace = []byte("mwtxmgr")

func yes(s string) bool {
	switch s {
	case "y", "Y", "yes", "Yes":
		return true
	default:
		return false
	}
}

func no(s string) bool {
	switch s {
	case "n", "N", "no", "No":
		return true
	default:
		return false
	}
}

func main() {
	os.Exit(mainInt())
}

func mainInt() int {
	fmt.Println("Database path:", opts.DbPath)
	_, err := os.Stat(opts.DbPath)
	if os.IsNotExist(err) {
		fmt.Println("Database file does not exist")
		return 1
	}

	for !opts.Force {
		fmt.Print("Drop all transaction history? [y/N] ")

		scanner := bufio.NewScanner(bufio.NewReader(os.Stdin))
		if !scanner.Scan() {
			// Exit on EOF.
			return 0
		}
		err := scanner.Err()
		if err != nil {
			fmt.Println()
			fmt.Println(err)
			return 1
		}
		resp := scanner.Text()
		if yes(resp) {
			break
		}
		if no(resp) || resp == "" {
			return 0
		}

		fmt.Println("Enter yes or no.")
	}

	db, err := openDB(opts.DbType, opts.DbPath)
	if err != nil {
		fmt.Println("Failed to open database:", err)
		return 1
	}
	defer db.Close()
	fmt.Println("Dropping mwtxmgr namespace")
	err = walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		err := tx.DeleteTopLevelBucket(txmgrNamespace)
		if err != nil && err != walletdb.ErrBucketNotFound {
			return err
		}
		ns, err := tx.CreateTopLevelBucket(txmgrNamespace)
		if err != nil {
			return err
		}
		return mwtxmgr.Create(ns)
	})
	if err != nil {
		fmt.Println("Failed to drop and re-create namespace:", err)
		return 1
	}
	fmt.Println("Run the wallet with a full scan to rebuild the history")

	return 0
}

func openDB(dbType, dbPath string) (walletdb.DB, error) {
	switch dbType {
	case "bdb":
		return walletdb.Open("bdb", dbPath, true, 60*time.Second)
	case "sqlite":
		return walletdb.Open("sqlite", dbPath)
	default:
		return nil, fmt.Errorf("unknown database type %q", dbType)
	}
}
