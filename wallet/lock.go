// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"

	"github.com/mwsuite/mwwallet/mwtxmgr"
	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/slate"
	"github.com/mwsuite/mwwallet/walletdb"
)

// TxLockOutputs commits this wallet to the transaction described by
// the slate: the inputs selected at initiation are locked against
// other negotiations, the planned change outputs are recorded as
// unconfirmed, and a TxSent log entry ties them together.  Everything
// happens in one database transaction, so two negotiations contending
// for an input leave exactly one winner and an untouched ledger for
// the loser.
//
// The caller's participant id must match the one recorded when the
// context was created.  Locking is the sender's acknowledgement that
// the slate left the wallet; until then a slate can simply be dropped.
func (w *Wallet) TxLockOutputs(s *slate.Slate, participantID uint64) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	var numInputs int
	err := w.update(func(ns walletdb.ReadWriteBucket) error {
		sctx, err := w.store.FetchContext(ns, s.ID)
		if err != nil {
			return err
		}
		defer sctx.Zero()

		if sctx.ParticipantID != participantID {
			str := fmt.Sprintf("context for slate %v belongs to "+
				"participant %d, not %d", s.ID, sctx.ParticipantID,
				participantID)
			return walletError(ErrInvalidState, str, nil)
		}
		if sctx.Amount != s.Amount || sctx.Fee != s.Fee {
			return walletError(ErrInvalidSlate, "slate amount or fee "+
				"does not match the negotiation context", nil)
		}

		// A second lock attempt for the same slate would try to
		// re-create the log entry and change outputs.
		entries, err := w.store.TxLogEntriesBySlateID(ns, s.ID)
		if err != nil && !mwtxmgr.IsNoExists(err) {
			return err
		}
		if len(entries) > 0 {
			return walletError(ErrInvalidState, "outputs for slate "+
				s.ID.String()+" are already locked", nil)
		}

		numInputs = len(sctx.InputIDs)
		return w.lockContext(ns, s, sctx)
	})
	if err != nil {
		return err
	}

	log.Infof("Locked %d %s for slate %v", numInputs,
		pickNoun(numInputs, "input", "inputs"), s.ID)
	return nil
}

// lockContext applies the ledger side of committing to a spend: a
// TxSent entry, input locks, and unconfirmed change output records.
// The input locks are validated as a set before any state changes, so
// a contended input fails the whole operation with
// ErrOutputAlreadyLocked.
func (w *Wallet) lockContext(ns walletdb.ReadWriteBucket, s *slate.Slate,
	sctx *mwtxmgr.Context) error {

	entry, err := w.store.NewTxLogEntry(ns, mwtxmgr.TxSent)
	if err != nil {
		return err
	}

	var debited mwutil.Amount
	for _, id := range sctx.InputIDs {
		out, err := w.store.FetchOutput(ns, id)
		if err != nil {
			return err
		}
		debited += out.Value
	}
	var credited mwutil.Amount
	for _, co := range sctx.Outputs {
		credited += co.Value
	}

	slateID := sctx.SlateID
	entry.SlateID = &slateID
	entry.AmountDebited = debited
	entry.AmountCredited = credited
	entry.Fee = sctx.Fee
	entry.NumInputs = uint32(len(sctx.InputIDs))
	entry.NumOutputs = uint32(len(sctx.Outputs))
	entry.TTLCutoffHeight = s.TTLCutoffHeight
	if err := w.store.PutTxLogEntry(ns, entry); err != nil {
		return err
	}

	err = w.store.LockOutputs(ns, entry.ID, sctx.InputIDs)
	if err != nil {
		return err
	}

	for _, co := range sctx.Outputs {
		com, err := w.keys.Commit(uint64(co.Value), co.KeyID)
		if err != nil {
			return walletError(ErrKeychain,
				"rebuilding change commitment", err)
		}
		err = w.store.ReceiveOutput(ns, &mwtxmgr.Output{
			KeyID:   co.KeyID,
			NChild:  lastPathChild(co.KeyID),
			Commit:  com,
			Value:   co.Value,
			Status:  mwtxmgr.StatusUnconfirmed,
			Height:  s.Height,
			TxLogID: &entry.ID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
