// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mwsuite/mwwallet/mwtxmgr"
	"github.com/mwsuite/mwwallet/slate"
	"github.com/mwsuite/mwwallet/walletdb"
)

// FinalizeTx completes a negotiation whose counterparty has signed.
// The wallet restores its secrets from the stored context, contributes
// its own partial signature, aggregates the kernel signature, and
// fully verifies the finished transaction, including conservation of
// value against the stated fee.  On success the finalized transaction
// is retained for broadcast, the log entry learns the kernel excess
// used for confirmation polling, and the secret context is destroyed.
//
// In the send flow the sender finalizes after ReceiveTx; in the
// invoice flow the payee finalizes after ProcessInvoiceTx.  The stored
// context knows which role this wallet plays.
func (w *Wallet) FinalizeTx(s *slate.Slate) (*slate.Slate, error) {
	if err := s.VerifyMessages(); err != nil {
		return nil, convertSlateError(err)
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()

	err := w.update(func(ns walletdb.ReadWriteBucket) error {
		if s.TTLExpired(w.store.LastConfirmedHeight(ns)) {
			return walletError(ErrTTLExpired,
				"slate ttl cutoff height has passed", nil)
		}

		sctx, err := w.store.FetchContext(ns, s.ID)
		if err != nil {
			return err
		}
		defer sctx.Zero()

		// The counterparty returns the whole slate, so the amount and
		// fee are re-checked against what this wallet agreed to.  An
		// invoice context has no fee; the payer's choice stands.
		if sctx.Amount != s.Amount {
			str := fmt.Sprintf("slate amount %v does not match the "+
				"negotiated %v", s.Amount, sctx.Amount)
			return walletError(ErrInvalidSlate, str, nil)
		}
		if sctx.Fee != 0 && sctx.Fee != s.Fee {
			str := fmt.Sprintf("slate fee %v does not match the "+
				"negotiated %v", s.Fee, sctx.Fee)
			return walletError(ErrInvalidSlate, str, nil)
		}

		entry, err := w.entryForSlate(ns, s.ID)
		if err != nil {
			return err
		}

		secKey, err := sctx.SecKey.SecretKey()
		if err != nil {
			return walletError(ErrKeychain,
				"restoring context secret key", err)
		}
		defer secKey.Zero()
		secNonce, err := sctx.SecNonce.SecretKey()
		if err != nil {
			return walletError(ErrKeychain,
				"restoring context secret nonce", err)
		}
		defer secNonce.Zero()

		err = s.FillRound2(secKey, secNonce, sctx.ParticipantID)
		if err != nil && !errors.Is(err, slate.ErrAlreadySigned) {
			return convertSlateError(err)
		}

		tx, err := s.Finalize()
		if err != nil {
			return convertSlateError(err)
		}

		excess := tx.Body.Kernels[0].Excess
		if err := verifyPaymentProof(s, excess); err != nil {
			return err
		}

		txBytes, err := json.Marshal(tx)
		if err != nil {
			return walletError(ErrData,
				"serializing finalized transaction", err)
		}
		if err := w.store.PutStoredTx(ns, s.ID, txBytes); err != nil {
			return err
		}

		entry.Fee = s.Fee
		entry.KernelExcess = &excess
		entry.KernelLookupMinHeight = s.Height
		entry.StoredTx = true
		if err := w.store.PutTxLogEntry(ns, entry); err != nil {
			return err
		}

		return w.store.DeleteContext(ns, s.ID)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Finalized slate %v (kernel excess %v)", s.ID,
		s.Tx.Body.Kernels[0].Excess)
	return s, nil
}

// entryForSlate returns the live transaction log entry for a slate.
// Outputs must have been locked (or the invoice issued) before
// finalizing, so a missing entry is an ordering error by the caller.
func (w *Wallet) entryForSlate(ns walletdb.ReadBucket,
	slateID uuid.UUID) (*mwtxmgr.TxLogEntry, error) {

	entries, err := w.store.TxLogEntriesBySlateID(ns, slateID)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Type.Cancelled() {
			continue
		}
		return &entries[i], nil
	}
	return nil, walletError(ErrNotFound, "no transaction found for "+
		"slate "+slateID.String(), nil)
}
