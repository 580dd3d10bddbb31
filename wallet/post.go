// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/mwsuite/mwwallet/walletdb"
	"github.com/mwsuite/mwwallet/wire"
)

// PostTx broadcasts a finalized transaction to the node's transaction
// pool.  With fluff set the node relays it immediately instead of
// through the stem phase.
//
// Posting mutates no wallet state, so a rejected or lost broadcast is
// simply retried: the transaction stays locked and stored, and
// confirmation is picked up by the refresh pipeline once the kernel
// appears on chain.
func (w *Wallet) PostTx(ctx context.Context, tx *wire.Transaction,
	fluff bool) error {

	if tx == nil {
		return walletError(ErrData, "no transaction to post", nil)
	}
	if err := tx.Validate(); err != nil {
		return walletError(ErrInvalidSlate,
			"transaction does not verify", err)
	}

	if err := w.node.PostTx(ctx, tx, fluff); err != nil {
		return walletError(ErrClientCallback,
			"posting transaction to node", err)
	}

	log.Infof("Posted transaction with kernel excess %v (fluff=%v)",
		tx.Body.Kernels[0].Excess, fluff)
	return nil
}

// GetStoredTx returns the finalized transaction retained for a slate,
// for inspection or rebroadcast.
func (w *Wallet) GetStoredTx(slateID uuid.UUID) (*wire.Transaction, error) {
	var tx wire.Transaction
	err := w.view(func(ns walletdb.ReadBucket) error {
		b, err := w.store.FetchStoredTx(ns, slateID)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(b, &tx); err != nil {
			return walletError(ErrData,
				"decoding stored transaction", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
