// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet implements a confidential transaction wallet on top
// of the slate negotiation protocol.  It ties together the keychain,
// the output and transaction ledger, and a node client: negotiation
// operations advance slates and record their state, and the
// reconciliation operations keep the ledger consistent with the chain.
package wallet

import (
	"context"
	"sync"

	"github.com/mwsuite/mwwallet/chain"
	"github.com/mwsuite/mwwallet/internal/zero"
	"github.com/mwsuite/mwwallet/keychain"
	"github.com/mwsuite/mwwallet/mwtxmgr"
	"github.com/mwsuite/mwwallet/netparams"
	"github.com/mwsuite/mwwallet/walletdb"
)

// txmgrNamespaceKey is the database namespace the transaction store
// lives under.
var txmgrNamespaceKey = []byte("mwtxmgr")

// Wallet coordinates the keychain, the transaction store and the node
// client behind the caller-facing operations.
//
// A single mutex serializes wallet state transitions.  The mutex is
// never held across node calls; operations that need both first talk
// to the node, then take the lock to apply the result, revalidating
// anything that could have changed in between.
type Wallet struct {
	params *netparams.Params
	db     walletdb.DB
	store  *mwtxmgr.Store
	keys   keychain.Keychain
	node   chain.NodeClient

	mtx sync.Mutex
}

// Create initializes the wallet database layout.  It fails if the
// database already holds a wallet.
func Create(db walletdb.DB) error {
	return walletdb.Update(db, func(dbtx walletdb.ReadWriteTx) error {
		ns, err := dbtx.CreateTopLevelBucket(txmgrNamespaceKey)
		if err != nil {
			return err
		}
		return mwtxmgr.Create(ns)
	})
}

// CreateWallet seals the master seed at seedPath and initializes the
// wallet database.  The seed file is written first: a database without
// its seed can be recreated, the reverse cannot.
func CreateWallet(db walletdb.DB, seedPath string, seed,
	passphrase []byte) error {

	if err := SaveSeed(seedPath, seed, passphrase); err != nil {
		return err
	}
	return Create(db)
}

// OpenWallet unseals the master seed, rebuilds the keychain from it,
// and opens the wallet.  The plaintext seed does not outlive the call.
func OpenWallet(db walletdb.DB, seedPath string, passphrase []byte,
	params *netparams.Params, node chain.NodeClient) (*Wallet, error) {

	seed, err := LoadSeed(seedPath, passphrase)
	if err != nil {
		return nil, err
	}
	keys, err := keychain.NewExtKeychain(seed)
	zero.Bytes(seed)
	if err != nil {
		return nil, walletError(ErrKeychain,
			"deriving keychain from seed", err)
	}
	return Open(db, params, keys, node)
}

// Open opens a wallet over an initialized database.  The keychain must
// be the one the wallet was created with or outputs will not be
// recognized.
func Open(db walletdb.DB, params *netparams.Params, keys keychain.Keychain,
	node chain.NodeClient) (*Wallet, error) {

	var store *mwtxmgr.Store
	err := walletdb.View(db, func(dbtx walletdb.ReadTx) error {
		ns := dbtx.ReadBucket(txmgrNamespaceKey)
		if ns == nil {
			return walletError(ErrData, "wallet database is not "+
				"initialized", nil)
		}
		var err error
		store, err = mwtxmgr.Open(ns, params)
		return err
	})
	if err != nil {
		return nil, convertStoreError(err)
	}

	return &Wallet{
		params: params,
		db:     db,
		store:  store,
		keys:   keys,
		node:   node,
	}, nil
}

// ChainParams returns the network parameters the wallet operates
// under.
func (w *Wallet) ChainParams() *netparams.Params {
	return w.params
}

// update runs fn in a read/write database transaction over the
// transaction store namespace and converts store errors to the wallet
// taxonomy.
func (w *Wallet) update(fn func(ns walletdb.ReadWriteBucket) error) error {
	err := walletdb.Update(w.db, func(dbtx walletdb.ReadWriteTx) error {
		return fn(dbtx.ReadWriteBucket(txmgrNamespaceKey))
	})
	if err != nil {
		return convertStoreError(err)
	}
	return nil
}

// view runs fn in a read-only database transaction over the
// transaction store namespace.
func (w *Wallet) view(fn func(ns walletdb.ReadBucket) error) error {
	err := walletdb.View(w.db, func(dbtx walletdb.ReadTx) error {
		return fn(dbtx.ReadBucket(txmgrNamespaceKey))
	})
	if err != nil {
		return convertStoreError(err)
	}
	return nil
}

// chainTip fetches the node's chain head, mapping failures onto the
// client callback error kind.  Callers must not hold the wallet mutex.
func (w *Wallet) chainTip(ctx context.Context) (*chain.Tip, error) {
	tip, err := w.node.GetChainTip(ctx)
	if err != nil {
		return nil, walletError(ErrClientCallback,
			"getting chain tip from node", err)
	}
	return tip, nil
}
