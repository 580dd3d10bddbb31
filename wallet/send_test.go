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

// TestInitSendTx checks the shape of a freshly initiated slate and the
// fee computed for it.  Two coins of 300m and 400m force a two input
// selection for a 600m send, which prices the transaction at a weight
// of seven.
func TestInitSendTx(t *testing.T) {
	node := chain.NewMockNode()
	w := testWallet(t, node, 0x01)
	fundWallet(t, w, node, 300000000, 400000000)

	s, err := w.InitSendTx(context.Background(), InitTxArgs{
		Amount:               600000000,
		MinimumConfirmations: 1,
		Message:              "rent",
	})
	require.NoError(t, err)

	require.Equal(t, uint64(2), s.NumParticipants)
	require.Equal(t, mwutil.Amount(600000000), s.Amount)
	require.Equal(t, mwutil.Amount(700000), s.Fee)
	require.Equal(t, node.Height(), s.Height)
	require.Zero(t, s.LockHeight)

	require.Len(t, s.Tx.Body.Inputs, 2)
	require.Len(t, s.Tx.Body.Outputs, 1, "one change output")
	require.Len(t, s.Tx.Body.Kernels, 1)

	// Only the sender's round one entry is present, unsigned.
	require.Len(t, s.ParticipantData, 1)
	pd := s.Participant(senderParticipantID)
	require.NotNil(t, pd)
	require.Nil(t, pd.PartSig)
	require.NotNil(t, pd.Message)
	require.Equal(t, "rent", *pd.Message)
	require.NotNil(t, pd.MessageSig)
	require.NoError(t, w.VerifySlateMessages(s))

	// A context was recorded, but nothing is locked yet.
	err = w.view(func(ns walletdb.ReadBucket) error {
		sctx, err := w.store.FetchContext(ns, s.ID)
		if err != nil {
			return err
		}
		defer sctx.Zero()
		require.Equal(t, senderParticipantID, sctx.ParticipantID)
		require.Len(t, sctx.InputIDs, 2)
		require.Len(t, sctx.Outputs, 1)
		require.Equal(t, mwutil.Amount(99300000), sctx.Outputs[0].Value)
		return nil
	})
	require.NoError(t, err)

	require.Empty(t, allEntries(t, w))
	summary := walletSummary(t, w, 1)
	require.Equal(t, mwutil.Amount(700000000),
		summary.AmountCurrentlySpendable)
	require.Zero(t, summary.AmountLocked)
}

// TestInitSendTxEstimateOnly checks that estimation prices the
// transaction without touching any wallet state.
func TestInitSendTxEstimateOnly(t *testing.T) {
	node := chain.NewMockNode()
	w := testWallet(t, node, 0x01)
	fundWallet(t, w, node, 300000000, 400000000)

	s, err := w.InitSendTx(context.Background(), InitTxArgs{
		Amount:               600000000,
		MinimumConfirmations: 1,
		EstimateOnly:         true,
	})
	require.NoError(t, err)
	require.Equal(t, mwutil.Amount(600000000), s.Amount)
	require.Equal(t, mwutil.Amount(700000), s.Fee)
	require.Equal(t, node.Height(), s.Height)
	require.Empty(t, s.ParticipantData)

	// No context, no log entry, no derivation consumed.
	err = w.view(func(ns walletdb.ReadBucket) error {
		_, err := w.store.FetchContext(ns, s.ID)
		require.True(t, mwtxmgr.IsNoExists(err))
		require.Equal(t, uint32(2), w.store.PeekNextChild(ns))
		return nil
	})
	require.NoError(t, err)
	require.Empty(t, allEntries(t, w))
}

// TestInitSendTxValidation covers the argument and funding guards.
func TestInitSendTxValidation(t *testing.T) {
	node := chain.NewMockNode()
	w := testWallet(t, node, 0x01)
	fundWallet(t, w, node, 300000000, 400000000)
	ctx := context.Background()

	_, err := w.InitSendTx(ctx, InitTxArgs{})
	require.True(t, IsError(err, ErrData), "zero amount: %v", err)

	_, err = w.InitSendTx(ctx, InitTxArgs{
		Amount:               5000000000,
		MinimumConfirmations: 1,
	})
	require.True(t, IsError(err, ErrInsufficientFunds), "got %v", err)

	// Two inputs are needed but only one is allowed.
	_, err = w.InitSendTx(ctx, InitTxArgs{
		Amount:               600000000,
		MinimumConfirmations: 1,
		MaxOutputs:           1,
	})
	require.True(t, IsError(err, ErrInsufficientFunds), "got %v", err)

	// A confirmation floor deeper than the chain disqualifies every
	// coin.
	_, err = w.InitSendTx(ctx, InitTxArgs{
		Amount:               600000000,
		MinimumConfirmations: 100,
	})
	require.True(t, IsError(err, ErrInsufficientFunds), "got %v", err)
}

// TestInitSendTxTargetVersion covers version negotiation: unsupported
// versions are rejected, and features a downlevel schema cannot carry
// refuse to downgrade.
func TestInitSendTxTargetVersion(t *testing.T) {
	node := chain.NewMockNode()
	w := testWallet(t, node, 0x01)
	fundWallet(t, w, node, 300000000, 400000000)
	ctx := context.Background()

	bad := uint16(99)
	_, err := w.InitSendTx(ctx, InitTxArgs{
		Amount:               600000000,
		MinimumConfirmations: 1,
		TargetSlateVersion:   &bad,
	})
	require.True(t, IsError(err, ErrSlateVersionMismatch), "got %v", err)

	v2 := uint16(2)
	_, err = w.InitSendTx(ctx, InitTxArgs{
		Amount:               600000000,
		MinimumConfirmations: 1,
		TargetSlateVersion:   &v2,
		TTLBlocks:            10,
	})
	require.True(t, IsError(err, ErrSlateVersionMismatch),
		"ttl cannot ride a v2 slate: %v", err)

	s, err := w.InitSendTx(ctx, InitTxArgs{
		Amount:               600000000,
		MinimumConfirmations: 1,
		TargetSlateVersion:   &v2,
	})
	require.NoError(t, err)
	require.Equal(t, uint16(2), s.VersionInfo.Version)

	// The downlevel slate still survives its wire hop.
	parsed := passSlate(t, s)
	require.Equal(t, uint16(2), parsed.VersionInfo.Version)
	require.Equal(t, s.Amount, parsed.Amount)
}

// TestInitSendTxTTL checks that a requested TTL is anchored at the
// creation height.
func TestInitSendTxTTL(t *testing.T) {
	node := chain.NewMockNode()
	w := testWallet(t, node, 0x01)
	fundWallet(t, w, node, 300000000, 400000000)

	s, err := w.InitSendTx(context.Background(), InitTxArgs{
		Amount:               600000000,
		MinimumConfirmations: 1,
		TTLBlocks:            10,
	})
	require.NoError(t, err)
	require.Equal(t, node.Height()+10, s.TTLCutoffHeight)
}

// TestInitSendTxUseAll checks the consolidating strategy: every
// eligible coin becomes an input even when a subset would cover the
// amount.
func TestInitSendTxUseAll(t *testing.T) {
	node := chain.NewMockNode()
	w := testWallet(t, node, 0x01)
	fundWallet(t, w, node, 300000000, 400000000)

	s, err := w.InitSendTx(context.Background(), InitTxArgs{
		Amount:                    100000000,
		MinimumConfirmations:      1,
		SelectionStrategyIsUseAll: true,
	})
	require.NoError(t, err)
	require.Len(t, s.Tx.Body.Inputs, 2)
	require.Equal(t, mwutil.Amount(700000), s.Fee)
}

// TestInitSendTxChangeSplit checks that the change value is spread
// over the requested number of outputs and that the fee prices them.
func TestInitSendTxChangeSplit(t *testing.T) {
	node := chain.NewMockNode()
	w := testWallet(t, node, 0x01)
	fundWallet(t, w, node, 300000000, 400000000)

	s, err := w.InitSendTx(context.Background(), InitTxArgs{
		Amount:               600000000,
		MinimumConfirmations: 1,
		NumChangeOutputs:     3,
	})
	require.NoError(t, err)
	require.Equal(t, mwutil.Amount(1500000), s.Fee)
	require.Len(t, s.Tx.Body.Outputs, 3)

	err = w.view(func(ns walletdb.ReadBucket) error {
		sctx, err := w.store.FetchContext(ns, s.ID)
		if err != nil {
			return err
		}
		defer sctx.Zero()
		var change mwutil.Amount
		for _, co := range sctx.Outputs {
			require.NotZero(t, co.Value)
			change += co.Value
		}
		require.Equal(t, mwutil.Amount(98500000), change)
		return nil
	})
	require.NoError(t, err)
}

// TestSplitChange pins down the change splitting rules directly.
func TestSplitChange(t *testing.T) {
	tests := []struct {
		name   string
		change mwutil.Amount
		n      int
		want   []mwutil.Amount
	}{
		{"zero change", 0, 5, nil},
		{"single", 99300000, 1, []mwutil.Amount{99300000}},
		{"remainder on last", 10, 3, []mwutil.Amount{3, 3, 4}},
		{"clamped to value", 2, 5, []mwutil.Amount{1, 1}},
		{"zero count defaults to one", 7, 0, []mwutil.Amount{7}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.want, splitChange(test.change, test.n))
		})
	}
}
