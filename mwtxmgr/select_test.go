// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mwtxmgr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/walletdb"
)

// populateOutputs stores one output per value at height 1.
func populateOutputs(t *testing.T, s *Store, db walletdb.DB,
	values ...mwutil.Amount) {

	t.Helper()
	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		for i, v := range values {
			require.NoError(t, s.PutOutput(ns, testOutput(t, v,
				uint32(i))))
		}
		return nil
	})
}

func TestEligibleOutputs(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)

	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		ok := testOutput(t, 1000, 0)
		require.NoError(t, s.PutOutput(ns, ok))

		immature := testOutput(t, 2000, 1)
		immature.IsCoinbase = true
		immature.Height = 9
		immature.LockHeight = 12
		require.NoError(t, s.PutOutput(ns, immature))

		fresh := testOutput(t, 4000, 2)
		fresh.Height = 10
		require.NoError(t, s.PutOutput(ns, fresh))

		locked := testOutput(t, 8000, 3)
		locked.Status = StatusLocked
		require.NoError(t, s.PutOutput(ns, locked))
		return nil
	})

	view(t, db, func(ns walletdb.ReadBucket) error {
		// At height 10 with 5 confirmations required only the first
		// output qualifies.
		outs, err := s.EligibleOutputs(ns, 10, 5)
		require.NoError(t, err)
		require.Len(t, outs, 1)
		require.Equal(t, mwutil.Amount(1000), outs[0].Value)

		// At height 12 the coinbase matures and the fresh output has
		// aged past the threshold.
		outs, err = s.EligibleOutputs(ns, 12, 3)
		require.NoError(t, err)
		require.Len(t, outs, 3)

		// Ascending by value.
		require.Equal(t, mwutil.Amount(1000), outs[0].Value)
		require.Equal(t, mwutil.Amount(2000), outs[1].Value)
		require.Equal(t, mwutil.Amount(4000), outs[2].Value)
		return nil
	})
}

func TestSelectCoinsSmallest(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)
	populateOutputs(t, s, db, 1000, 2000, 3000, 4000, 5000)

	view(t, db, func(ns walletdb.ReadBucket) error {
		// A single large output covers the target.
		outs, err := s.SelectCoins(ns, 4500, 1, 1, StrategySmallest)
		require.NoError(t, err)
		require.Len(t, outs, 1)
		require.Equal(t, mwutil.Amount(5000), outs[0].Value)

		// Two outputs needed, largest first.
		outs, err = s.SelectCoins(ns, 8000, 1, 1, StrategySmallest)
		require.NoError(t, err)
		require.Len(t, outs, 2)
		require.Equal(t, mwutil.Amount(5000), outs[0].Value)
		require.Equal(t, mwutil.Amount(4000), outs[1].Value)
		return nil
	})
}

func TestSelectCoinsUseAll(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)
	populateOutputs(t, s, db, 1000, 2000, 3000)

	view(t, db, func(ns walletdb.ReadBucket) error {
		outs, err := s.SelectCoins(ns, 1500, 1, 1, StrategyUseAll)
		require.NoError(t, err)
		require.Len(t, outs, 3)
		return nil
	})
}

func TestSelectCoinsInsufficient(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)
	populateOutputs(t, s, db, 1000, 2000)

	view(t, db, func(ns walletdb.ReadBucket) error {
		_, err := s.SelectCoins(ns, 5000, 1, 1, StrategySmallest)
		require.True(t, IsCode(err, ErrInsufficientFunds))
		require.Contains(t, err.Error(), "have 0.000003")
		return nil
	})
}

func TestSelectCoinsDeterministic(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)
	// Equal values force the identifier tie-break.
	populateOutputs(t, s, db, 1000, 1000, 1000)

	view(t, db, func(ns walletdb.ReadBucket) error {
		first, err := s.SelectCoins(ns, 2000, 1, 1, StrategySmallest)
		require.NoError(t, err)
		second, err := s.SelectCoins(ns, 2000, 1, 1, StrategySmallest)
		require.NoError(t, err)
		require.Equal(t, first, second)
		return nil
	})
}
