// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/keychain"
	"github.com/mwsuite/mwwallet/mwtxmgr"
	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/rangeproof"
	"github.com/mwsuite/mwwallet/walletdb"
)

// scanBatchSize is how many outputs one MMR listing request asks for.
const scanBatchSize = 1000

// foundOutput is an output recovered from the chain during a scan,
// carrying everything needed to restore its ledger record.
type foundOutput struct {
	keyID      keychain.Identifier
	value      uint64
	commit     commit.Commitment
	isCoinbase bool
	height     uint64
	mmrIndex   uint64
}

// Scan rebuilds the ledger from the chain.  It walks the node's
// unspent output set in position-indexed windows, attempts to rewind
// every range proof it sees, and restores ledger records for the
// outputs that prove to be this wallet's.  Outputs the ledger believes
// are spendable but that no longer appear in the node's set within the
// scanned height range are marked spent.  When deleteUnconfirmed is
// set, transactions still under negotiation are cancelled and the
// unconfirmed outputs they would have created are removed, releasing
// any inputs they hold locked.
//
// The walk is keyed by MMR position rather than height since positions
// are stable across reorgs, and each window refreshes the set's end
// position, so a scan that is interrupted and rerun converges even
// while the chain grows underneath it.  startHeight bounds the scan;
// zero scans from the genesis block.
func (w *Wallet) Scan(ctx context.Context, startHeight uint64,
	deleteUnconfirmed bool) error {

	tip, err := w.chainTip(ctx)
	if err != nil {
		return err
	}
	if startHeight == 0 {
		startHeight = 1
	}

	log.Infof("Starting chain scan from height %d to %d", startHeight,
		tip.Height)

	var found []foundOutput
	if startHeight <= tip.Height {
		found, err = w.walkOutputSet(ctx, startHeight)
		if err != nil {
			return err
		}
	}

	seen := make(map[keychain.Identifier]struct{}, len(found))
	for i := range found {
		seen[found[i].keyID] = struct{}{}
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()

	var restored, reconciled, spent, removed int
	err = w.update(func(ns walletdb.ReadWriteBucket) error {
		var maxChild uint32
		for i := range found {
			f := &found[i]
			existing, err := w.store.FetchOutput(ns, f.keyID)
			switch {
			case err == nil:
				n, err := w.reconcileScanned(ns, existing, f)
				if err != nil {
					return err
				}
				reconciled += n
				continue
			case !mwtxmgr.IsNoExists(err):
				return err
			}

			if err := w.restoreOutput(ns, f); err != nil {
				return err
			}
			restored++
			if next := lastPathChild(f.keyID) + 1; next > maxChild {
				maxChild = next
			}
		}
		if maxChild > 0 {
			// Restored paths must never be handed out again.
			if err := w.store.SetNextChild(ns, maxChild); err != nil {
				return err
			}
		}

		// Anything the ledger holds spendable inside the scanned range
		// that the walk did not see has been consumed on chain.
		outs, err := w.store.Outputs(ns, nil)
		if err != nil {
			return err
		}
		for i := range outs {
			out := &outs[i]
			if _, ok := seen[out.KeyID]; ok {
				continue
			}
			if out.Status != mwtxmgr.StatusUnspent &&
				out.Status != mwtxmgr.StatusLocked {

				continue
			}
			if out.Height < startHeight || out.Height > tip.Height {
				continue
			}
			if err := w.store.ApplySpend(ns, out.KeyID); err != nil {
				return err
			}
			spent++
		}

		if deleteUnconfirmed {
			removed, err = w.dropUnconfirmed(ns, tip.Height)
			if err != nil {
				return err
			}
		}

		return w.store.PutLastConfirmedHeight(ns, tip.Height)
	})
	if err != nil {
		return err
	}

	log.Infof("Chain scan complete at height %d: %d %s restored, "+
		"%d reconciled, %d marked spent, %d unconfirmed removed",
		tip.Height, restored, pickNoun(restored, "output", "outputs"),
		reconciled, spent, removed)
	return nil
}

// walkOutputSet pages through the node's output MMR from the first
// position covering startHeight and returns the outputs whose range
// proofs rewind under this wallet's keychain.
func (w *Wallet) walkOutputSet(ctx context.Context, startHeight uint64) (
	[]foundOutput, error) {

	lowIndex, _, err := w.node.HeightRangeToPMMRIndices(ctx, startHeight, 0)
	if err != nil {
		return nil, walletError(ErrClientCallback,
			"mapping scan height to output positions", err)
	}

	rewindHash := w.keys.RewindHash()

	var found []foundOutput
	cursor := lowIndex
	for {
		listing, err := w.node.GetOutputsByPMMRIndex(ctx, cursor, 0,
			scanBatchSize)
		if err != nil {
			return nil, walletError(ErrClientCallback,
				"walking the node output set", err)
		}

		// Rewinding is pure computation, so try the whole window in
		// parallel.  Proofs that fail to open belong to other wallets.
		page := make([]*foundOutput, len(listing.Outputs))
		var g errgroup.Group
		g.SetLimit(runtime.NumCPU())
		for i := range listing.Outputs {
			i, out := i, &listing.Outputs[i]
			g.Go(func() error {
				value, keyID, err := rangeproof.Rewind(rewindHash,
					out.Commit, out.Proof)
				if err != nil {
					return nil
				}
				page[i] = &foundOutput{
					keyID:      keyID,
					value:      value,
					commit:     out.Commit,
					isCoinbase: out.IsCoinbase,
					height:     out.Height,
					mmrIndex:   out.MMRIndex,
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, f := range page {
			if f != nil {
				found = append(found, *f)
			}
		}

		log.Debugf("Scanned output positions %d through %d of %d",
			cursor, listing.LastRetrievedIndex, listing.HighestIndex)

		if listing.LastRetrievedIndex >= listing.HighestIndex {
			return found, nil
		}
		cursor = listing.LastRetrievedIndex + 1

		if err := ctx.Err(); err != nil {
			return nil, walletError(ErrClientCallback,
				"chain scan interrupted", err)
		}
	}
}

// reconcileScanned lines an already tracked output up with its chain
// placement.  It returns how many records were changed.
func (w *Wallet) reconcileScanned(ns walletdb.ReadWriteBucket,
	existing *mwtxmgr.Output, f *foundOutput) (int, error) {

	switch existing.Status {
	case mwtxmgr.StatusUnconfirmed:
		err := w.store.ApplyConfirm(ns, f.keyID, f.height, f.mmrIndex)
		if err != nil {
			return 0, err
		}
		return 1, nil

	case mwtxmgr.StatusSpent:
		// The chain still lists the output, so the local spend never
		// happened or was reorged away.
		existing.Status = mwtxmgr.StatusUnspent

	default:
		if existing.Height == f.height && existing.MMRIndex == f.mmrIndex {
			return 0, nil
		}
	}

	existing.Height = f.height
	existing.MMRIndex = f.mmrIndex
	if existing.IsCoinbase {
		// A repositioned coinbase matures relative to its new height.
		existing.LockHeight = f.height + w.params.CoinbaseMaturity
	}
	if err := w.store.PutOutput(ns, existing); err != nil {
		return 0, err
	}
	return 1, nil
}

// restoreOutput synthesizes the ledger records for an output recovered
// from the chain: one confirmed transaction log entry and the output
// row itself.
func (w *Wallet) restoreOutput(ns walletdb.ReadWriteBucket,
	f *foundOutput) error {

	txType := mwtxmgr.TxReceived
	if f.isCoinbase {
		txType = mwtxmgr.TxConfirmedCoinbase
	}
	entry, err := w.store.NewTxLogEntry(ns, txType)
	if err != nil {
		return err
	}
	entry.AmountCredited = mwutil.Amount(f.value)
	entry.NumOutputs = 1
	if err := w.store.ConfirmTxLogEntry(ns, entry); err != nil {
		return err
	}

	out := &mwtxmgr.Output{
		KeyID:      f.keyID,
		NChild:     lastPathChild(f.keyID),
		Commit:     f.commit,
		MMRIndex:   f.mmrIndex,
		Value:      mwutil.Amount(f.value),
		Status:     mwtxmgr.StatusUnspent,
		Height:     f.height,
		IsCoinbase: f.isCoinbase,
		TxLogID:    &entry.ID,
	}
	if f.isCoinbase {
		out.LockHeight = f.height + w.params.CoinbaseMaturity
	}

	log.Debugf("Restoring output %v at height %d (%s)", f.keyID,
		f.height, mwutil.Amount(f.value))
	return w.store.PutOutput(ns, out)
}

// dropUnconfirmed cancels transactions still under negotiation and
// removes the unconfirmed outputs left behind.  Cancelling releases
// inputs the negotiations held locked.  Negotiations younger than the
// network's grace window are kept: the counterparty may yet complete
// them.
func (w *Wallet) dropUnconfirmed(ns walletdb.ReadWriteBucket,
	tipHeight uint64) (int, error) {

	grace := w.params.UnconfirmedGraceWindow
	inGrace := func(createdAt uint64) bool {
		return createdAt+grace > tipHeight
	}

	entries, err := w.store.UnconfirmedTxLogEntries(ns)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := range entries {
		entryOuts, err := w.store.Outputs(ns, &entries[i].ID)
		if err != nil {
			return 0, err
		}
		keep := false
		for j := range entryOuts {
			out := &entryOuts[j]
			switch out.Status {
			case mwtxmgr.StatusUnconfirmed:
				if inGrace(out.Height) {
					keep = true
				}
			case mwtxmgr.StatusUnspent, mwtxmgr.StatusSpent:
				// An output of this negotiation made it to the
				// chain, so the transaction may well have settled.
				// Confirming the entry is the refresh pipeline's
				// call, not the sweep's.
				keep = true
			}
			if keep {
				break
			}
		}
		if keep {
			continue
		}
		if err := w.store.CancelTx(ns, entries[i].ID); err != nil {
			return 0, err
		}
		removed++
	}

	// Orphaned unconfirmed outputs have no entry to cancel through.
	outs, err := w.store.Outputs(ns, nil)
	if err != nil {
		return 0, err
	}
	for i := range outs {
		out := &outs[i]
		if out.Status != mwtxmgr.StatusUnconfirmed || inGrace(out.Height) {
			continue
		}
		if err := w.store.DeleteOutput(ns, out.KeyID); err != nil {
			return 0, err
		}
		removed++
	}
	return removed, nil
}
