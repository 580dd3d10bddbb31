// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/mwtxmgr"
	"github.com/mwsuite/mwwallet/walletdb"
)

// refreshOutputs reconciles the ledger against the node's view of the
// chain: unconfirmed outputs that have appeared in the chain are marked
// confirmed, outputs that have disappeared from it are marked spent,
// and unconfirmed transaction log entries are confirmed once their
// kernel, or failing that all of their outputs, can be located.  The
// pass finishes by recording the chain height it reconciled against.
//
// The wallet mutex is not held while the node is queried.  The ledger
// is snapshotted first and every record is reread before a result is
// applied, so operations that ran in the meantime are never clobbered.
// Returns whether the ledger now reflects the node's state; on a node
// failure the ledger is left as it was.
func (w *Wallet) refreshOutputs(ctx context.Context) bool {
	tip, err := w.chainTip(ctx)
	if err != nil {
		log.Warnf("Ledger refresh skipped: %v", err)
		return false
	}

	// Snapshot the records whose state the node can advance.
	var (
		watch   []commit.Commitment
		pending []mwtxmgr.TxLogEntry
	)
	err = w.view(func(ns walletdb.ReadBucket) error {
		err := w.store.ForEachOutput(ns, func(out *mwtxmgr.Output) error {
			if out.Status != mwtxmgr.StatusSpent {
				watch = append(watch, out.Commit)
			}
			return nil
		})
		if err != nil {
			return err
		}
		pending, err = w.store.UnconfirmedTxLogEntries(ns)
		return err
	})
	if err != nil {
		log.Errorf("Unable to snapshot ledger for refresh: %v", err)
		return false
	}

	onChain, err := w.node.GetOutputsFromNode(ctx, watch)
	if err != nil {
		log.Warnf("Ledger refresh skipped: output lookup: %v", err)
		return false
	}

	// Kernel lookups confirm transactions whose outputs alone cannot: a
	// send spending the wallet's whole balance leaves no change output
	// to watch.  A failed lookup degrades the refresh rather than
	// aborting it, since the output results above are still good.
	refreshed := true
	kernelHeight := make(map[uint32]uint64)
	for i := range pending {
		entry := &pending[i]
		if entry.KernelExcess == nil {
			continue
		}
		located, err := w.node.GetKernel(ctx, *entry.KernelExcess,
			entry.KernelLookupMinHeight, 0)
		if err != nil {
			log.Warnf("Kernel lookup for transaction %d: %v",
				entry.ID, err)
			refreshed = false
			continue
		}
		if located != nil {
			kernelHeight[entry.ID] = located.Height
		}
	}

	queried := make(map[commit.Commitment]struct{}, len(watch))
	for _, cm := range watch {
		queried[cm] = struct{}{}
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()

	var confirmed, spent, moved, settled int
	err = w.update(func(ns walletdb.ReadWriteBucket) error {
		// Reread the output set: only outputs the node was actually
		// asked about can be judged absent, and statuses may have
		// moved while the queries ran.
		outs, err := w.store.Outputs(ns, nil)
		if err != nil {
			return err
		}
		for i := range outs {
			out := &outs[i]
			if _, asked := queried[out.Commit]; !asked {
				continue
			}
			loc, found := onChain[out.Commit]
			switch out.Status {
			case mwtxmgr.StatusUnconfirmed:
				if !found {
					continue
				}
				err := w.store.ApplyConfirm(ns, out.KeyID,
					loc.Height, loc.MMRIndex)
				if err != nil {
					return err
				}
				confirmed++

			case mwtxmgr.StatusUnspent, mwtxmgr.StatusLocked:
				if !found {
					if err := w.store.ApplySpend(ns, out.KeyID); err != nil {
						return err
					}
					spent++
					continue
				}
				// A reorg can leave the output in the chain at a
				// different position.
				if out.Height != loc.Height || out.MMRIndex != loc.MMRIndex {
					out.Height = loc.Height
					out.MMRIndex = loc.MMRIndex
					if out.IsCoinbase {
						out.LockHeight = loc.Height +
							w.params.CoinbaseMaturity
					}
					if err := w.store.PutOutput(ns, out); err != nil {
						return err
					}
					moved++
				}
			}
		}

		for i := range pending {
			entry, err := w.store.FetchTxLogEntry(ns, pending[i].ID)
			if err != nil {
				return err
			}
			if entry.Confirmed || entry.Type.Cancelled() {
				continue
			}
			if height, found := kernelHeight[entry.ID]; found {
				if err := w.store.ConfirmTxLogEntry(ns, entry); err != nil {
					return err
				}
				settled++
				log.Debugf("Transaction %d confirmed by kernel at "+
					"height %d", entry.ID, height)
				continue
			}
			if entry.KernelExcess != nil {
				continue
			}

			// Entries with no kernel to poll, received transactions
			// awaiting the counterparty's finalization among them,
			// confirm once every output they created has confirmed.
			entryOuts, err := w.store.Outputs(ns, &entry.ID)
			if err != nil {
				return err
			}
			if len(entryOuts) == 0 {
				continue
			}
			waiting := false
			for j := range entryOuts {
				if entryOuts[j].Status == mwtxmgr.StatusUnconfirmed {
					waiting = true
					break
				}
			}
			if !waiting {
				if err := w.store.ConfirmTxLogEntry(ns, entry); err != nil {
					return err
				}
				settled++
			}
		}

		return w.store.PutLastConfirmedHeight(ns, tip.Height)
	})
	if err != nil {
		log.Errorf("Unable to apply node state to the ledger: %v", err)
		return false
	}

	if confirmed+spent+moved+settled > 0 {
		log.Infof("Reconciled ledger at height %d: %d outputs confirmed, "+
			"%d spent, %d repositioned, %d %s settled", tip.Height,
			confirmed, spent, moved, settled,
			pickNoun(settled, "transaction", "transactions"))
	} else {
		log.Debugf("Ledger consistent with node at height %d", tip.Height)
	}
	return refreshed
}
