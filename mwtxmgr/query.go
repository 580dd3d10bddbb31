// Copyright (c) 2015 The btcsuite developers
// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mwtxmgr

import (
	"sort"

	"github.com/google/uuid"

	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/walletdb"
)

// ForEachOutput calls fn for every output record in the store.
func (s *Store) ForEachOutput(ns walletdb.ReadBucket,
	fn func(*Output) error) error {

	return forEachOutput(ns, fn)
}

// Outputs returns every output record, sorted by derivation
// identifier.  When txID is non-nil only outputs tied to that
// transaction log entry are returned.
func (s *Store) Outputs(ns walletdb.ReadBucket, txID *uint32) (
	[]Output, error) {

	var outs []Output
	err := forEachOutput(ns, func(out *Output) error {
		if txID != nil && (out.TxLogID == nil || *out.TxLogID != *txID) {
			return nil
		}
		outs = append(outs, *out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outs, nil
}

// UnspentOutputs returns all outputs currently available for spending.
func (s *Store) UnspentOutputs(ns walletdb.ReadBucket) ([]Output, error) {
	var outs []Output
	err := forEachOutput(ns, func(out *Output) error {
		if out.Status == StatusUnspent {
			outs = append(outs, *out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outs, nil
}

// TxLogEntries returns every transaction log entry in id order.
func (s *Store) TxLogEntries(ns walletdb.ReadBucket) ([]TxLogEntry, error) {
	var entries []TxLogEntry
	err := forEachTxLogEntry(ns, func(entry *TxLogEntry) error {
		entries = append(entries, *entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// TxLogEntriesBySlateID returns the transaction log entries associated
// with a slate.  A wallet that both sent and received within the same
// negotiation holds more than one entry per slate.
func (s *Store) TxLogEntriesBySlateID(ns walletdb.ReadBucket,
	slateID uuid.UUID) ([]TxLogEntry, error) {

	var entries []TxLogEntry
	err := forEachTxLogEntry(ns, func(entry *TxLogEntry) error {
		if entry.SlateID != nil && *entry.SlateID == slateID {
			entries = append(entries, *entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, storeError(ErrNoExists, "no tx log entry for slate "+
			slateID.String(), nil)
	}
	return entries, nil
}

// UnconfirmedTxLogEntries returns entries that have not been confirmed
// or cancelled, in id order.  These are the entries confirmation
// polling needs to revisit.
func (s *Store) UnconfirmedTxLogEntries(ns walletdb.ReadBucket) (
	[]TxLogEntry, error) {

	var entries []TxLogEntry
	err := forEachTxLogEntry(ns, func(entry *TxLogEntry) error {
		if !entry.Confirmed && !entry.Type.Cancelled() {
			entries = append(entries, *entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// BalanceSummary is the aggregated balance view of the output set at a
// chain height.  Amounts and heights serialize as decimal strings.
type BalanceSummary struct {
	// LastConfirmedHeight is the chain height the summary was computed
	// against.
	LastConfirmedHeight uint64 `json:"last_confirmed_height,string"`

	// MinimumConfirmations is the confirmation threshold used to decide
	// spendability.
	MinimumConfirmations uint64 `json:"minimum_confirmations,string"`

	// Total is the sum of confirmed amounts and amounts on their way to
	// confirmation.  Locked amounts and amounts still awaiting
	// finalization are excluded.
	Total mwutil.Amount `json:"total"`

	// AmountAwaitingFinalization is the value of outputs attached to
	// negotiations that have not completed their signing rounds.
	AmountAwaitingFinalization mwutil.Amount `json:"amount_awaiting_finalization"`

	// AmountAwaitingConfirmation is the value of confirmed outputs still
	// below the minimum confirmation threshold.
	AmountAwaitingConfirmation mwutil.Amount `json:"amount_awaiting_confirmation"`

	// AmountImmature is the value of coinbase outputs still subject to
	// the maturity rule.
	AmountImmature mwutil.Amount `json:"amount_immature"`

	// AmountCurrentlySpendable is the value available for selection
	// right now.
	AmountCurrentlySpendable mwutil.Amount `json:"amount_currently_spendable"`

	// AmountLocked is the value reserved by transactions under
	// negotiation.
	AmountLocked mwutil.Amount `json:"amount_locked"`
}

// BalanceSummary computes the aggregated balance view from the current
// output set.  It is a pure read over the store.
func (s *Store) BalanceSummary(ns walletdb.ReadBucket, chainHeight,
	minConf uint64) (*BalanceSummary, error) {

	var unspent, unconfirmed, awaitConf, awaitFin, immature,
		locked mwutil.Amount

	err := forEachOutput(ns, func(out *Output) error {
		switch out.Status {
		case StatusUnspent:
			switch {
			case out.IsCoinbase && !out.IsMature(chainHeight):
				immature += out.Value
			case out.NumConfirmations(chainHeight) < minConf:
				awaitConf += out.Value
			default:
				unspent += out.Value
			}
		case StatusUnconfirmed:
			if !out.IsCoinbase {
				if minConf == 0 {
					unconfirmed += out.Value
				} else {
					awaitFin += out.Value
				}
			}
		case StatusLocked:
			locked += out.Value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &BalanceSummary{
		LastConfirmedHeight:        chainHeight,
		MinimumConfirmations:       minConf,
		Total:                      unspent + unconfirmed + awaitConf + immature,
		AmountAwaitingFinalization: awaitFin,
		AmountAwaitingConfirmation: awaitConf,
		AmountImmature:             immature,
		AmountCurrentlySpendable:   unspent,
		AmountLocked:               locked,
	}, nil
}

// SortOutputsByValue sorts outputs by ascending value, breaking ties by
// derivation identifier so the order is reproducible.
func SortOutputsByValue(outs []Output) {
	sort.Slice(outs, func(i, j int) bool {
		if outs[i].Value != outs[j].Value {
			return outs[i].Value < outs[j].Value
		}
		return outs[i].KeyID.String() < outs[j].KeyID.String()
	})
}
