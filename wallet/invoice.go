// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"fmt"

	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/mwtxmgr"
	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/slate"
	"github.com/mwsuite/mwwallet/walletdb"
)

// IssueInvoiceTxArgs carries the payee's parameters for creating an
// invoice slate.
type IssueInvoiceTxArgs struct {
	// Amount is the payment requested.
	Amount mwutil.Amount

	// Message is an optional note recorded with the payee's
	// participant entry.  Empty means no message.
	Message string

	// TargetSlateVersion requests the slate schema version the paying
	// party should be sent.  Nil selects the current version.
	TargetSlateVersion *uint16
}

// IssueInvoiceTx creates an invoice slate requesting payment of the
// given amount to this wallet.  The invoice flow swaps which party
// supplies inputs: the issuing payee contributes only its output and
// its round one entry, signing as the receiving participant, and the
// paying party later adds inputs, sets the fee, and signs.  The payee
// completes the transaction with FinalizeTx once the processed slate
// comes back.
//
// The credited output and a TxReceived log entry are recorded
// immediately so an unanswered invoice can be cancelled like any other
// pending transaction.
func (w *Wallet) IssueInvoiceTx(ctx context.Context,
	args IssueInvoiceTxArgs) (*slate.Slate, error) {

	if args.Amount == 0 {
		return nil, walletError(ErrData,
			"invoice amount may not be zero", nil)
	}
	if args.TargetSlateVersion != nil {
		v := slate.Version(*args.TargetSlateVersion)
		if v < slate.MinVersion || v > slate.CurrentVersion {
			str := fmt.Sprintf("cannot create slates of version %d", v)
			return nil, walletError(ErrSlateVersionMismatch, str, nil)
		}
	}

	tip, err := w.chainTip(ctx)
	if err != nil {
		return nil, err
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()

	// The fee is left at zero; the paying party sets it when they add
	// their inputs.
	s := slate.New(2, args.Amount, 0, tip.Height, 0,
		w.params.BlockHeaderVersion)
	if args.TargetSlateVersion != nil {
		s.VersionInfo.Version = *args.TargetSlateVersion
	}

	err = w.update(func(ns walletdb.ReadWriteBucket) error {
		outputs, ctxOuts, blinds, err := w.deriveOutputs(ns,
			[]mwutil.Amount{s.Amount})
		if err != nil {
			return err
		}
		defer zeroKeys(blinds)

		secKey := blinds[0]
		secNonce, err := commit.NewSecretKey()
		if err != nil {
			return walletError(ErrKeychain,
				"generating signing nonce", err)
		}
		defer secNonce.Zero()

		s.AddTransactionElements(nil, outputs)

		var msg *string
		if args.Message != "" {
			msg = &args.Message
		}
		if err := s.FillRound1(secKey, secNonce,
			receiverParticipantID, msg); err != nil {

			return convertSlateError(err)
		}

		entry, err := w.store.NewTxLogEntry(ns, mwtxmgr.TxReceived)
		if err != nil {
			return err
		}
		slateID := s.ID
		entry.SlateID = &slateID
		entry.AmountCredited = s.Amount
		entry.NumOutputs = 1
		if err := w.store.PutTxLogEntry(ns, entry); err != nil {
			return err
		}

		err = w.store.ReceiveOutput(ns, &mwtxmgr.Output{
			KeyID:   ctxOuts[0].KeyID,
			NChild:  lastPathChild(ctxOuts[0].KeyID),
			Commit:  outputs[0].Commit,
			Value:   s.Amount,
			Status:  mwtxmgr.StatusUnconfirmed,
			Height:  s.Height,
			TxLogID: &entry.ID,
		})
		if err != nil {
			return err
		}

		sctx := &mwtxmgr.Context{
			SlateID:       s.ID,
			ParticipantID: receiverParticipantID,
			SecKey:        commit.BlindingFactorFromSecretKey(secKey),
			SecNonce:      commit.BlindingFactorFromSecretKey(secNonce),
			Amount:        s.Amount,
			Outputs:       ctxOuts,
		}
		err = w.store.PutContext(ns, sctx)
		sctx.Zero()
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Issued invoice slate %v requesting %v", s.ID, s.Amount)
	return s, nil
}

// ProcessInvoiceTx pays an invoice slate issued by another party.  The
// wallet verifies the invoice shape, selects inputs and sets the fee,
// contributes its round one entry and partial signature as the sending
// participant, and locks the selected inputs, all atomically.  The
// returned slate goes back to the payee for finalization.
//
// A nonzero args.Amount is treated as the amount the caller agreed to
// pay; a slate requesting a different amount is rejected.
func (w *Wallet) ProcessInvoiceTx(ctx context.Context, s *slate.Slate,
	args InitTxArgs) (*slate.Slate, error) {

	if args.Amount != 0 && args.Amount != s.Amount {
		str := fmt.Sprintf("invoice requests %v but %v was authorized",
			s.Amount, args.Amount)
		return nil, walletError(ErrInvalidSlate, str, nil)
	}
	if s.Amount == 0 {
		return nil, walletError(ErrInvalidSlate,
			"invoice amount may not be zero", nil)
	}
	if s.PaymentProof != nil {
		return nil, walletError(ErrInvalidSlate,
			"payment proofs are not supported in the invoice flow", nil)
	}
	if len(s.ParticipantData) != 1 ||
		s.Participant(receiverParticipantID) == nil {

		return nil, walletError(ErrInvalidSlate,
			"invoice slate must carry exactly the payee's entry", nil)
	}
	if err := s.VerifyMessages(); err != nil {
		return nil, convertSlateError(err)
	}

	tip, err := w.chainTip(ctx)
	if err != nil {
		return nil, err
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()

	err = w.update(func(ns walletdb.ReadWriteBucket) error {
		if s.TTLExpired(tip.Height) {
			return walletError(ErrTTLExpired,
				"slate ttl cutoff height has passed", nil)
		}

		// A slate id is only ever paid once.
		entries, err := w.store.TxLogEntriesBySlateID(ns, s.ID)
		if err != nil && !mwtxmgr.IsNoExists(err) {
			return err
		}
		if len(entries) > 0 {
			return walletError(ErrInvalidState,
				"invoice "+s.ID.String()+" has already been paid", nil)
		}

		sendArgs := args
		sendArgs.Amount = s.Amount
		coins, fee, err := w.selectCoinsAndFee(ns, sendArgs, tip.Height,
			len(s.Tx.Body.Outputs))
		if err != nil {
			return err
		}
		s.Fee = fee

		err = w.contributeSpend(ns, s, coins, sendArgs, true)
		if err != nil {
			return err
		}

		// Paying an invoice commits immediately, so the inputs are
		// locked in the same transaction that signs.
		sctx, err := w.store.FetchContext(ns, s.ID)
		if err != nil {
			return err
		}
		defer sctx.Zero()
		return w.lockContext(ns, s, sctx)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Processed invoice slate %v paying %v (fee %v)", s.ID,
		s.Amount, s.Fee)
	return s, nil
}
