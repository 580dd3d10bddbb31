// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/keychain"
	"github.com/mwsuite/mwwallet/mwtxmgr"
	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/slate"
	"github.com/mwsuite/mwwallet/walletdb"
)

// ReceiveTx processes an incoming send slate as the receiving party.
// The wallet appends an output for the slate's amount, fills its round
// one entry, signs its partial signature, and answers a payment proof
// request if one is addressed to it.  The credited output and a
// TxReceived log entry are recorded atomically with the signing, so a
// crash cannot leave a signed slate the ledger knows nothing about.
//
// Receiving needs no node round-trip, so a wallet can accept slates
// while offline.  The slate's TTL is checked against the last chain
// height the wallet saw.
func (w *Wallet) ReceiveTx(s *slate.Slate, message string) (
	*slate.Slate, error) {

	if s.Amount == 0 {
		return nil, walletError(ErrInvalidSlate,
			"slate amount may not be zero", nil)
	}
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

		// A slate id is only ever accepted once.
		entries, err := w.store.TxLogEntriesBySlateID(ns, s.ID)
		if err != nil && !mwtxmgr.IsNoExists(err) {
			return err
		}
		if len(entries) > 0 {
			return walletError(ErrInvalidState,
				"slate "+s.ID.String()+" has already been received", nil)
		}

		return w.contributeReceive(ns, s, message)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Received slate %v crediting %v", s.ID, s.Amount)
	return s, nil
}

// contributeReceive adds the receiving side to a slate: one output for
// the full amount, round one and round two entries under the receiver
// participant id, and the ledger records tracking the credit.
func (w *Wallet) contributeReceive(ns walletdb.ReadWriteBucket,
	s *slate.Slate, message string) error {

	outputs, ctxOuts, blinds, err := w.deriveOutputs(ns,
		[]mwutil.Amount{s.Amount})
	if err != nil {
		return err
	}
	defer zeroKeys(blinds)

	// The receiver's excess is the output blind itself; the kernel
	// offset was already split out by the party that built the
	// transaction.
	secKey := blinds[0]

	secNonce, err := commit.NewSecretKey()
	if err != nil {
		return walletError(ErrKeychain, "generating signing nonce", err)
	}
	defer secNonce.Zero()

	s.AddTransactionElements(nil, outputs)

	var msg *string
	if message != "" {
		msg = &message
	}
	if err := s.FillRound1(secKey, secNonce,
		receiverParticipantID, msg); err != nil {

		return convertSlateError(err)
	}

	// Both round one entries are now present, so the kernel excess is
	// fixed and a payment proof can be answered before signing.
	if err := w.signPaymentProof(s); err != nil {
		return err
	}

	if err := s.FillRound2(secKey, secNonce,
		receiverParticipantID); err != nil {

		return convertSlateError(err)
	}

	entry, err := w.store.NewTxLogEntry(ns, mwtxmgr.TxReceived)
	if err != nil {
		return err
	}
	slateID := s.ID
	entry.SlateID = &slateID
	entry.AmountCredited = s.Amount
	entry.Fee = s.Fee
	entry.NumOutputs = 1
	entry.TTLCutoffHeight = s.TTLCutoffHeight
	if err := w.store.PutTxLogEntry(ns, entry); err != nil {
		return err
	}

	return w.store.ReceiveOutput(ns, &mwtxmgr.Output{
		KeyID:   ctxOuts[0].KeyID,
		NChild:  lastPathChild(ctxOuts[0].KeyID),
		Commit:  outputs[0].Commit,
		Value:   s.Amount,
		Status:  mwtxmgr.StatusUnconfirmed,
		Height:  s.Height,
		TxLogID: &entry.ID,
	})
}

// lastPathChild returns the final derivation path element of a key
// identifier, for display alongside the output record.
func lastPathChild(id keychain.Identifier) uint32 {
	path := id.Path()
	if len(path) == 0 {
		return 0
	}
	return path[len(path)-1]
}
