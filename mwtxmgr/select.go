// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mwtxmgr

import (
	"fmt"

	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/walletdb"
)

// SelectionStrategy controls how inputs are chosen for an outgoing
// transaction.
type SelectionStrategy uint8

const (
	// StrategySmallest selects the fewest outputs that cover the target
	// amount, preferring larger outputs so small change accumulates in
	// as few records as possible.
	StrategySmallest SelectionStrategy = iota

	// StrategyUseAll spends every eligible output, consolidating the
	// wallet's output set into the transaction's change output.
	StrategyUseAll
)

// String returns the strategy as a human-readable name.
func (s SelectionStrategy) String() string {
	switch s {
	case StrategySmallest:
		return "smallest"
	case StrategyUseAll:
		return "all"
	}
	return "unknown"
}

// EligibleOutputs returns the outputs available for selection at the
// given chain height: unspent, mature, and confirmed at least minConf
// times.  The result is sorted by ascending value with a deterministic
// tie-break.
func (s *Store) EligibleOutputs(ns walletdb.ReadBucket, chainHeight,
	minConf uint64) ([]Output, error) {

	var outs []Output
	err := forEachOutput(ns, func(out *Output) error {
		if out.Status != StatusUnspent {
			return nil
		}
		if !out.IsMature(chainHeight) {
			return nil
		}
		if out.NumConfirmations(chainHeight) < minConf {
			return nil
		}
		outs = append(outs, *out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortOutputsByValue(outs)
	return outs, nil
}

// SelectCoins chooses eligible outputs whose values sum to at least the
// target amount under the given strategy.  The choice is deterministic
// for a given store snapshot.  An ErrInsufficientFunds error reports
// the total that was available.
func (s *Store) SelectCoins(ns walletdb.ReadBucket, target mwutil.Amount,
	chainHeight, minConf uint64, strategy SelectionStrategy) (
	[]Output, error) {

	eligible, err := s.EligibleOutputs(ns, chainHeight, minConf)
	if err != nil {
		return nil, err
	}

	var total mwutil.Amount
	for _, out := range eligible {
		total += out.Value
	}
	if total < target {
		str := fmt.Sprintf("insufficient funds: need %s, have %s "+
			"spendable", target, total)
		return nil, storeError(ErrInsufficientFunds, str, nil)
	}

	if strategy == StrategyUseAll {
		return eligible, nil
	}

	// Take the largest outputs first until the target is covered,
	// which minimizes the input count.
	var (
		selected []Output
		sum      mwutil.Amount
	)
	for i := len(eligible) - 1; i >= 0; i-- {
		selected = append(selected, eligible[i])
		sum += eligible[i].Value
		if sum >= target {
			break
		}
	}
	return selected, nil
}
