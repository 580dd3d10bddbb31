// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/google/uuid"

	"github.com/mwsuite/mwwallet/mwtxmgr"
	"github.com/mwsuite/mwwallet/slate"
	"github.com/mwsuite/mwwallet/walletdb"
)

// NodeHeightResult is the chain height view returned by NodeHeight.
type NodeHeightResult struct {
	// Height is the chain height.
	Height uint64 `json:"height,string"`

	// HeaderHash is the hash of the chain tip header, when the node
	// supplied one.
	HeaderHash string `json:"header_hash"`

	// UpdatedFromNode reports whether the height came from a live node
	// query.  When false the height is the wallet's last confirmed
	// height and may be stale.
	UpdatedFromNode bool `json:"updated_from_node"`
}

// NodeHeight returns the chain height, preferring a live node query
// and falling back to the last height the wallet confirmed against
// when the node cannot be reached.
func (w *Wallet) NodeHeight(ctx context.Context) (*NodeHeightResult, error) {
	tip, err := w.chainTip(ctx)
	if err == nil {
		return &NodeHeightResult{
			Height:          tip.Height,
			HeaderHash:      tip.LastBlockPushed,
			UpdatedFromNode: true,
		}, nil
	}
	log.Warnf("Node height query failed, falling back to last "+
		"confirmed height: %v", err)

	var height uint64
	verr := w.view(func(ns walletdb.ReadBucket) error {
		height = w.store.LastConfirmedHeight(ns)
		return nil
	})
	if verr != nil {
		return nil, verr
	}
	return &NodeHeightResult{Height: height}, nil
}

// RetrieveOutputs returns the wallet's output records.  With refresh
// set the ledger is first reconciled against the node; the returned
// flag reports whether that reconciliation succeeded.  Spent outputs
// are omitted unless includeSpent is set, and a non-nil txID restricts
// the result to outputs tied to that transaction log entry.
func (w *Wallet) RetrieveOutputs(ctx context.Context, includeSpent,
	refresh bool, txID *uint32) (bool, []mwtxmgr.Output, error) {

	refreshed := true
	if refresh {
		refreshed = w.refreshOutputs(ctx)
	}

	var outs []mwtxmgr.Output
	err := w.view(func(ns walletdb.ReadBucket) error {
		all, err := w.store.Outputs(ns, txID)
		if err != nil {
			return err
		}
		for _, out := range all {
			if !includeSpent && out.Status == mwtxmgr.StatusSpent {
				continue
			}
			outs = append(outs, out)
		}
		return nil
	})
	if err != nil {
		return refreshed, nil, err
	}
	return refreshed, outs, nil
}

// RetrieveTxs returns transaction log entries, optionally restricted
// to one entry id or one slate id.  With refresh set the ledger is
// first reconciled against the node; the returned flag reports whether
// that reconciliation succeeded.
func (w *Wallet) RetrieveTxs(ctx context.Context, refresh bool,
	txID *uint32, slateID *uuid.UUID) (bool, []mwtxmgr.TxLogEntry, error) {

	refreshed := true
	if refresh {
		refreshed = w.refreshOutputs(ctx)
	}

	var entries []mwtxmgr.TxLogEntry
	err := w.view(func(ns walletdb.ReadBucket) error {
		all, err := w.store.TxLogEntries(ns)
		if err != nil {
			return err
		}
		for _, entry := range all {
			if txID != nil && entry.ID != *txID {
				continue
			}
			if slateID != nil && (entry.SlateID == nil ||
				*entry.SlateID != *slateID) {

				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return refreshed, nil, err
	}
	return refreshed, entries, nil
}

// RetrieveSummaryInfo returns the aggregated balance view at the
// wallet's last confirmed height.  With refresh set the ledger is
// first reconciled against the node; the returned flag reports whether
// that reconciliation succeeded.
func (w *Wallet) RetrieveSummaryInfo(ctx context.Context, refresh bool,
	minConf uint64) (bool, *mwtxmgr.BalanceSummary, error) {

	refreshed := true
	if refresh {
		refreshed = w.refreshOutputs(ctx)
	}

	var summary *mwtxmgr.BalanceSummary
	err := w.view(func(ns walletdb.ReadBucket) error {
		var err error
		summary, err = w.store.BalanceSummary(ns,
			w.store.LastConfirmedHeight(ns), minConf)
		return err
	})
	if err != nil {
		return refreshed, nil, err
	}
	return refreshed, summary, nil
}

// VerifySlateMessages checks the participant message signatures of a
// slate without touching any wallet state.
func (w *Wallet) VerifySlateMessages(s *slate.Slate) error {
	if err := s.VerifyMessages(); err != nil {
		return convertSlateError(err)
	}
	return nil
}
