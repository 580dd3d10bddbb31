// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sqlite_test

import (
	"path/filepath"
	"testing"

	_ "github.com/mwsuite/mwwallet/walletdb/sqlite"
	"github.com/mwsuite/mwwallet/walletdb/walletdbtest"
)

// dbType is the database type name for this driver.
const dbType = "sqlite"

// TestInterface performs all interfaces tests for this database driver.
func TestInterface(t *testing.T) {
	t.Parallel()

	// Create a new database to run tests against.
	dbPath := filepath.Join(t.TempDir(), "db.sqlite")
	walletdbtest.TestInterface(t, dbType, dbPath)
}
