// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwsuite/mwwallet/chain"
	"github.com/mwsuite/mwwallet/mwtxmgr"
	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/walletdb"
)

// TestScanRestoresCoinbase rebuilds a wallet from nothing but its seed
// and the chain, recovering unspent coinbases with their maturity.
func TestScanRestoresCoinbase(t *testing.T) {
	node := chain.NewMockNode()
	a := testWallet(t, node, 0x01)
	fundWallet(t, a, node, 300000000, 400000000)

	// A second wallet on a fresh database, derived from the same seed.
	restored := testWallet(t, node, 0x01)
	require.NoError(t, restored.Scan(context.Background(), 0, false))

	outs := allOutputs(t, restored)
	require.Len(t, outs, 2)
	for _, out := range outs {
		require.Equal(t, mwtxmgr.StatusUnspent, out.Status)
		require.True(t, out.IsCoinbase)
		require.Equal(t, out.Height+restored.params.CoinbaseMaturity,
			out.LockHeight)
		require.NotZero(t, out.MMRIndex)
	}

	entries := allEntries(t, restored)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		require.Equal(t, mwtxmgr.TxConfirmedCoinbase, entry.Type)
		require.True(t, entry.Confirmed)
	}

	require.Equal(t, walletSummary(t, a, 1).AmountCurrentlySpendable,
		walletSummary(t, restored, 1).AmountCurrentlySpendable)

	// Restored derivation paths must never be handed out again.
	err := restored.view(func(ns walletdb.ReadBucket) error {
		require.Equal(t, uint32(2), restored.store.PeekNextChild(ns))
		return nil
	})
	require.NoError(t, err)
}

// TestScanRestoresAfterSpend rebuilds a wallet whose history includes
// a completed payment.  Only the surviving change is recovered; the
// spent coinbases never reappear.
func TestScanRestoresAfterSpend(t *testing.T) {
	node := chain.NewMockNode()
	a := testWallet(t, node, 0x01)
	b := testWallet(t, node, 0x02)
	fundWallet(t, a, node, 300000000, 400000000)

	completeSend(t, a, b, node, 600000000)

	restored := testWallet(t, node, 0x01)
	require.NoError(t, restored.Scan(context.Background(), 0, false))

	outs := allOutputs(t, restored)
	require.Len(t, outs, 1, "only the change survives")
	require.Equal(t, mwutil.Amount(99300000), outs[0].Value)
	require.False(t, outs[0].IsCoinbase)

	require.Equal(t, mwutil.Amount(99300000),
		walletSummary(t, restored, 1).AmountCurrentlySpendable)

	// The change was derived after the two coinbase children.
	err := restored.view(func(ns walletdb.ReadBucket) error {
		require.Equal(t, uint32(3), restored.store.PeekNextChild(ns))
		return nil
	})
	require.NoError(t, err)
}

// TestScanReconcilesExisting runs a scan over a wallet whose ledger
// lags the chain: the posted spend is noticed without any refresh.
func TestScanReconcilesExisting(t *testing.T) {
	node := chain.NewMockNode()
	a := testWallet(t, node, 0x01)
	b := testWallet(t, node, 0x02)
	fundWallet(t, a, node, 300000000, 400000000)
	ctx := context.Background()

	s, err := a.InitSendTx(ctx, InitTxArgs{
		Amount:               600000000,
		MinimumConfirmations: 1,
	})
	require.NoError(t, err)
	require.NoError(t, a.TxLockOutputs(s, senderParticipantID))
	resp, err := b.ReceiveTx(passSlate(t, s), "")
	require.NoError(t, err)
	final, err := a.FinalizeTx(passSlate(t, resp))
	require.NoError(t, err)
	require.NoError(t, a.PostTx(ctx, final.Tx, false))
	node.MineBlock()

	// No refresh: the ledger still believes the inputs are locked.
	require.NoError(t, a.Scan(ctx, 0, false))

	var spent, unspent int
	for _, out := range allOutputs(t, a) {
		switch out.Status {
		case mwtxmgr.StatusSpent:
			spent++
		case mwtxmgr.StatusUnspent:
			unspent++
			require.Equal(t, mwutil.Amount(99300000), out.Value)
		default:
			t.Fatalf("unexpected status %v", out.Status)
		}
	}
	require.Equal(t, 2, spent)
	require.Equal(t, 1, unspent)
	require.Equal(t, mwutil.Amount(99300000),
		walletSummary(t, a, 1).AmountCurrentlySpendable)

	// Settling the log entry is the refresh pipeline's job; the scan
	// leaves it for the kernel lookup.
	refreshWallet(t, a)
	_, entries, err := a.RetrieveTxs(ctx, false, nil, &s.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].Confirmed)
}

// TestScanDropUnconfirmed checks the grace window on abandoned
// negotiations: young ones are spared, stale ones are swept.
func TestScanDropUnconfirmed(t *testing.T) {
	node := chain.NewMockNode()
	w := testWallet(t, node, 0x01)
	fundWallet(t, w, node, 300000000, 400000000)
	ctx := context.Background()

	s, err := w.InitSendTx(ctx, InitTxArgs{
		Amount:               600000000,
		MinimumConfirmations: 1,
	})
	require.NoError(t, err)
	require.NoError(t, w.TxLockOutputs(s, senderParticipantID))

	// Inside the grace window the negotiation survives a sweeping
	// scan.
	require.NoError(t, w.Scan(ctx, 0, true))
	summary := walletSummary(t, w, 1)
	require.Equal(t, mwutil.Amount(700000000), summary.AmountLocked)
	require.Equal(t, mwutil.Amount(99300000),
		summary.AmountAwaitingFinalization)

	// Once the chain outruns the window, the sweep cancels the
	// negotiation and frees its coins.
	node.MineBlocks(int(w.params.UnconfirmedGraceWindow) + 1)
	require.NoError(t, w.Scan(ctx, 0, true))

	summary = walletSummary(t, w, 1)
	require.Zero(t, summary.AmountLocked)
	require.Zero(t, summary.AmountAwaitingFinalization)
	require.Equal(t, mwutil.Amount(700000000),
		summary.AmountCurrentlySpendable)

	var cancelled int
	for _, entry := range allEntries(t, w) {
		if entry.Type == mwtxmgr.TxSentCancelled {
			cancelled++
		}
	}
	require.Equal(t, 1, cancelled)

	// A plain scan never sweeps, no matter how stale.
	s2, err := w.InitSendTx(ctx, InitTxArgs{
		Amount:               600000000,
		MinimumConfirmations: 1,
	})
	require.NoError(t, err)
	require.NoError(t, w.TxLockOutputs(s2, senderParticipantID))
	node.MineBlocks(int(w.params.UnconfirmedGraceWindow) + 1)
	require.NoError(t, w.Scan(ctx, 0, false))
	require.Equal(t, mwutil.Amount(700000000),
		walletSummary(t, w, 1).AmountLocked)
}

// TestScanStartHeight checks that a windowed scan leaves outputs below
// the start height alone.
func TestScanStartHeight(t *testing.T) {
	node := chain.NewMockNode()
	w := testWallet(t, node, 0x01)
	fundWallet(t, w, node, 300000000, 400000000)

	before := walletSummary(t, w, 1)

	// Both coinbases sit below the start height, so the scan must not
	// touch them even though it finds nothing in its range.
	require.NoError(t, w.Scan(context.Background(), 3, false))

	after := walletSummary(t, w, 1)
	require.Equal(t, before.AmountCurrentlySpendable,
		after.AmountCurrentlySpendable)
	require.Len(t, allOutputs(t, w), 2)
	for _, out := range allOutputs(t, w) {
		require.Equal(t, mwtxmgr.StatusUnspent, out.Status)
	}
}
