// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"fmt"

	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/keychain"
	"github.com/mwsuite/mwwallet/mwtxmgr"
	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/rangeproof"
	"github.com/mwsuite/mwwallet/slate"
	"github.com/mwsuite/mwwallet/wallet/txrules"
	"github.com/mwsuite/mwwallet/walletdb"
	"github.com/mwsuite/mwwallet/wire"
)

// DefaultMaxOutputs is the input count cap applied when InitTxArgs
// leaves MaxOutputs unset.
const DefaultMaxOutputs = 500

// InitTxArgs carries the caller's parameters for building an outgoing
// transaction.  Optional fields at their zero value select the
// documented default.
type InitTxArgs struct {
	// Amount is the value transferred to the receiving party, not
	// counting the fee.
	Amount mwutil.Amount

	// MinimumConfirmations is the confirmation depth an output must
	// have before it can be selected as an input.
	MinimumConfirmations uint64

	// MaxOutputs caps how many wallet outputs may be consumed as
	// inputs.  Zero selects DefaultMaxOutputs.  The cap is never
	// exceeded to make a payment possible; selection fails instead.
	MaxOutputs uint32

	// NumChangeOutputs is how many change outputs to split the change
	// value across.  Zero selects one.
	NumChangeOutputs uint32

	// SelectionStrategyIsUseAll spends every eligible output rather
	// than the smallest covering set, consolidating the wallet's
	// outputs into the change.
	SelectionStrategyIsUseAll bool

	// Message is an optional note recorded with this wallet's
	// participant entry and signed by its blinding excess.  Empty
	// means no message.
	Message string

	// TargetSlateVersion requests the slate schema version the
	// counterparty should be sent.  Nil selects the current version.
	TargetSlateVersion *uint16

	// TTLBlocks, when nonzero, marks the slate stale once the chain
	// reaches the creation height plus this many blocks.  Expiry makes
	// the transaction eligible for cancellation; it never cancels
	// automatically.
	TTLBlocks uint64

	// PaymentProofRecipientAddress, when set, asks the recipient to
	// return a payment proof signature binding the payment to this
	// address.  Hex encoded ed25519 public key.
	PaymentProofRecipientAddress string

	// EstimateOnly computes the selection and fee without deriving
	// keys or recording any negotiation state.
	EstimateOnly bool
}

// InitSendTx starts a new send negotiation and returns the slate to
// hand to the receiving party.  The wallet selects inputs, plans its
// change outputs, fills its round one share as the initiating
// participant, and records a private context holding the secrets
// needed to sign once the counterparty responds.  Nothing is locked
// until TxLockOutputs; until then the selected inputs remain spendable
// by other negotiations.
func (w *Wallet) InitSendTx(ctx context.Context, args InitTxArgs) (
	*slate.Slate, error) {

	if args.Amount == 0 {
		return nil, walletError(ErrData, "send amount may not be zero", nil)
	}
	if err := checkTargetVersion(&args); err != nil {
		return nil, err
	}

	tip, err := w.chainTip(ctx)
	if err != nil {
		return nil, err
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()

	if args.EstimateOnly {
		return w.estimateSendTx(args, tip.Height)
	}

	var s *slate.Slate
	err = w.update(func(ns walletdb.ReadWriteBucket) error {
		coins, fee, err := w.selectCoinsAndFee(ns, args, tip.Height, 1)
		if err != nil {
			return err
		}

		s = slate.New(2, args.Amount, fee, tip.Height, 0,
			w.params.BlockHeaderVersion)
		if args.TargetSlateVersion != nil {
			s.VersionInfo.Version = *args.TargetSlateVersion
		}
		if args.TTLBlocks > 0 {
			s.TTLCutoffHeight = tip.Height + args.TTLBlocks
		}
		if args.PaymentProofRecipientAddress != "" {
			sender, err := w.ProofAddress()
			if err != nil {
				return err
			}
			s.PaymentProof = &slate.PaymentProofInfo{
				SenderAddress:   sender,
				ReceiverAddress: args.PaymentProofRecipientAddress,
			}
		}

		return w.contributeSpend(ns, s, coins, args, false)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Initiated slate %v sending %v (fee %v)", s.ID, s.Amount,
		s.Fee)
	return s, nil
}

// Participant ids are fixed by the protocol: the party that will end
// up finalizing the transaction signs as id 0 and the counterparty as
// id 1.  The invoice flow swaps which wallet plays which role but
// keeps the numbering.
const (
	senderParticipantID   uint64 = 0
	receiverParticipantID uint64 = 1
)

// estimateSendTx runs selection against a read-only view and returns a
// skeleton slate carrying only the amount, fee and height.  No keys
// are derived and no state is recorded.
func (w *Wallet) estimateSendTx(args InitTxArgs, height uint64) (
	*slate.Slate, error) {

	var s *slate.Slate
	err := w.view(func(ns walletdb.ReadBucket) error {
		_, fee, err := w.selectCoinsAndFee(ns, args, height, 1)
		if err != nil {
			return err
		}
		s = slate.New(2, args.Amount, fee, height, 0,
			w.params.BlockHeaderVersion)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// checkTargetVersion validates a requested slate version against this
// build and against features the requested version cannot carry.
func checkTargetVersion(args *InitTxArgs) error {
	if args.TargetSlateVersion == nil {
		return nil
	}
	v := slate.Version(*args.TargetSlateVersion)
	if v < slate.MinVersion || v > slate.CurrentVersion {
		str := fmt.Sprintf("cannot create slates of version %d", v)
		return walletError(ErrSlateVersionMismatch, str, nil)
	}
	if v < slate.V3 && (args.TTLBlocks > 0 ||
		args.PaymentProofRecipientAddress != "") {

		str := fmt.Sprintf("slate version %s cannot carry a ttl or "+
			"payment proof", v)
		return walletError(ErrSlateVersionMismatch, str, nil)
	}
	return nil
}

// selectCoinsAndFee picks the inputs for a spend of args.Amount and
// computes the fee for the resulting transaction shape.
// numRecipientOutputs is how many outputs beyond this wallet's change
// the final transaction will carry.
//
// Selection runs once against the worst case single-input fee and the
// fee is then recomputed for the actual input count.  Additional
// inputs only lower the transaction weight, so the selected set always
// covers the recomputed fee.
func (w *Wallet) selectCoinsAndFee(ns walletdb.ReadBucket, args InitTxArgs,
	chainHeight uint64, numRecipientOutputs int) (
	[]mwtxmgr.Output, mwutil.Amount, error) {

	strategy := mwtxmgr.StrategySmallest
	if args.SelectionStrategyIsUseAll {
		strategy = mwtxmgr.StrategyUseAll
	}
	numChange := int(args.NumChangeOutputs)
	if numChange == 0 {
		numChange = 1
	}
	maxOutputs := int(args.MaxOutputs)
	if maxOutputs == 0 {
		maxOutputs = DefaultMaxOutputs
	}

	numOutputs := numChange + numRecipientOutputs
	fee := txrules.TxFee(1, numOutputs, 1, 0)
	coins, err := w.store.SelectCoins(ns, args.Amount+fee, chainHeight,
		args.MinimumConfirmations, strategy)
	if err != nil {
		return nil, 0, err
	}
	if len(coins) > maxOutputs {
		str := fmt.Sprintf("transaction requires %d inputs but "+
			"max_outputs allows %d", len(coins), maxOutputs)
		return nil, 0, walletError(ErrInsufficientFunds, str, nil)
	}

	fee = txrules.TxFee(len(coins), numOutputs, 1, 0)
	if err := txrules.CheckFee(args.Amount, fee); err != nil {
		return nil, 0, walletError(ErrData, "fee policy", err)
	}
	return coins, fee, nil
}

// contributeSpend adds the spending side of a transaction to the
// slate: the selected inputs, the change outputs, a fresh kernel
// offset, and this wallet's round one entry as the sending
// participant.  When signRound2 is set the partial signature is
// computed as well, which requires every other participant's round one
// entry to already be present.  The negotiation context is persisted
// in the same database transaction.
func (w *Wallet) contributeSpend(ns walletdb.ReadWriteBucket,
	s *slate.Slate, coins []mwtxmgr.Output, args InitTxArgs,
	signRound2 bool) error {

	var total mwutil.Amount
	inputs := make([]wire.Input, 0, len(coins))
	inputIDs := make([]keychain.Identifier, 0, len(coins))
	for i := range coins {
		features := wire.PlainOutput
		if coins[i].IsCoinbase {
			features = wire.CoinbaseOutput
		}
		inputs = append(inputs, wire.Input{
			Features: features,
			Commit:   coins[i].Commit,
		})
		inputIDs = append(inputIDs, coins[i].KeyID)
		total += coins[i].Value
	}

	changeAmounts := splitChange(total-s.Amount-s.Fee,
		int(args.NumChangeOutputs))
	outputs, ctxOuts, changeBlinds, err := w.deriveOutputs(ns,
		changeAmounts)
	if err != nil {
		return err
	}
	defer zeroKeys(changeBlinds)

	inBlinds, err := w.blindsFor(inputIDs)
	if err != nil {
		return err
	}
	defer zeroKeys(inBlinds)

	rawExcess, err := commit.BlindSum(changeBlinds, inBlinds)
	if err != nil {
		return walletError(ErrKeychain, "summing blinding factors", err)
	}
	defer rawExcess.Zero()

	// Splitting a random offset out of the excess hides which kernel
	// belongs to this transaction once it is aggregated on chain.
	secKey, err := s.GenerateOffset(rawExcess)
	if err != nil {
		return walletError(ErrKeychain, "generating kernel offset", err)
	}
	defer secKey.Zero()

	secNonce, err := commit.NewSecretKey()
	if err != nil {
		return walletError(ErrKeychain, "generating signing nonce", err)
	}
	defer secNonce.Zero()

	s.AddTransactionElements(inputs, outputs)

	var message *string
	if args.Message != "" {
		message = &args.Message
	}
	if err := s.FillRound1(secKey, secNonce, senderParticipantID,
		message); err != nil {

		return convertSlateError(err)
	}
	if signRound2 {
		if err := s.FillRound2(secKey, secNonce,
			senderParticipantID); err != nil {

			return convertSlateError(err)
		}
	}

	sctx := &mwtxmgr.Context{
		SlateID:       s.ID,
		ParticipantID: senderParticipantID,
		SecKey:        commit.BlindingFactorFromSecretKey(secKey),
		SecNonce:      commit.BlindingFactorFromSecretKey(secNonce),
		Amount:        s.Amount,
		Fee:           s.Fee,
		Outputs:       ctxOuts,
		InputIDs:      inputIDs,
	}
	err = w.store.PutContext(ns, sctx)
	sctx.Zero()
	return err
}

// splitChange divides the change value across n planned outputs.  A
// zero change yields no outputs regardless of n, and outputs are never
// created with a zero value, so fewer than n outputs may result.  The
// remainder of an uneven split lands on the last output.
func splitChange(change mwutil.Amount, n int) []mwutil.Amount {
	if change == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if mwutil.Amount(n) > change {
		n = int(change)
	}

	per := change / mwutil.Amount(n)
	amounts := make([]mwutil.Amount, n)
	for i := range amounts {
		amounts[i] = per
	}
	amounts[n-1] += change - per*mwutil.Amount(n)
	return amounts
}

// deriveOutputs allocates fresh key paths for the given values and
// builds the wire outputs with their range proofs.  The returned
// blinding keys are live secrets the caller must zero.
func (w *Wallet) deriveOutputs(ns walletdb.ReadWriteBucket,
	amounts []mwutil.Amount) ([]wire.Output, []mwtxmgr.ContextOutput,
	[]*commit.SecretKey, error) {

	root := w.keys.RootKeyID()
	outputs := make([]wire.Output, 0, len(amounts))
	ctxOuts := make([]mwtxmgr.ContextOutput, 0, len(amounts))
	blinds := make([]*commit.SecretKey, 0, len(amounts))

	fail := func(desc string, err error) ([]wire.Output,
		[]mwtxmgr.ContextOutput, []*commit.SecretKey, error) {

		zeroKeys(blinds)
		return nil, nil, nil, walletError(ErrKeychain, desc, err)
	}

	for _, amount := range amounts {
		child, err := w.store.NextChild(ns)
		if err != nil {
			zeroKeys(blinds)
			return nil, nil, nil, err
		}
		keyID, err := root.Child(child)
		if err != nil {
			return fail("deriving output key path", err)
		}
		blind, err := w.keys.DeriveKey(keyID)
		if err != nil {
			return fail("deriving output key", err)
		}
		blinds = append(blinds, blind)

		com, err := commit.Commit(uint64(amount), blind)
		if err != nil {
			return fail("committing output value", err)
		}
		proof, err := rangeproof.Build(w.keys.RewindHash(),
			uint64(amount), keyID, com)
		if err != nil {
			return fail("building range proof", err)
		}

		outputs = append(outputs, wire.Output{
			Features: wire.PlainOutput,
			Commit:   com,
			Proof:    proof,
		})
		ctxOuts = append(ctxOuts, mwtxmgr.ContextOutput{
			KeyID: keyID,
			Value: amount,
		})
	}
	return outputs, ctxOuts, blinds, nil
}

// blindsFor re-derives the blinding keys for the given key paths.  The
// returned keys are live secrets the caller must zero.
func (w *Wallet) blindsFor(ids []keychain.Identifier) (
	[]*commit.SecretKey, error) {

	blinds := make([]*commit.SecretKey, 0, len(ids))
	for _, id := range ids {
		blind, err := w.keys.DeriveKey(id)
		if err != nil {
			zeroKeys(blinds)
			return nil, walletError(ErrKeychain, "deriving input key", err)
		}
		blinds = append(blinds, blind)
	}
	return blinds, nil
}

// zeroKeys clears a batch of secret keys.
func zeroKeys(keys []*commit.SecretKey) {
	for _, k := range keys {
		if k != nil {
			k.Zero()
		}
	}
}
