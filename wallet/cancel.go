// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"github.com/google/uuid"

	"github.com/mwsuite/mwwallet/walletdb"
)

// CancelTx abandons the transaction with the given log entry id.
// Locked inputs return to the unspent pool, unconfirmed outputs the
// transaction would have created are removed, and the slate's secret
// context and stored transaction are destroyed.  Cancelling is
// idempotent: repeating it leaves the same terminal state and never
// double-unlocks an output.  A confirmed transaction cannot be
// cancelled; the chain has the final word.
//
// This is the only way to release locked outputs short of the
// transaction confirming.  A slate whose TTL cutoff height has passed
// is eligible for cancellation but is never cancelled automatically.
func (w *Wallet) CancelTx(txID uint32) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	err := w.update(func(ns walletdb.ReadWriteBucket) error {
		return w.store.CancelTx(ns, txID)
	})
	if err != nil {
		return err
	}

	log.Infof("Cancelled transaction %d", txID)
	return nil
}

// CancelTxBySlateID cancels the transaction negotiated through the
// given slate.  See CancelTx.
func (w *Wallet) CancelTxBySlateID(slateID uuid.UUID) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	err := w.update(func(ns walletdb.ReadWriteBucket) error {
		entries, err := w.store.TxLogEntriesBySlateID(ns, slateID)
		if err != nil {
			return err
		}
		for i := range entries {
			if err := w.store.CancelTx(ns, entries[i].ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Infof("Cancelled transaction for slate %v", slateID)
	return nil
}
