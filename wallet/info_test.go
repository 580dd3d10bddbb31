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
)

// TestRetrieveOutputs checks the spent and transaction filters over a
// wallet with a completed payment behind it.
func TestRetrieveOutputs(t *testing.T) {
	node := chain.NewMockNode()
	a := testWallet(t, node, 0x01)
	b := testWallet(t, node, 0x02)
	fundWallet(t, a, node, 300000000, 400000000)
	ctx := context.Background()

	completeSend(t, a, b, node, 600000000)

	_, live, err := a.RetrieveOutputs(ctx, false, false, nil)
	require.NoError(t, err)
	require.Len(t, live, 1, "only the change is live")
	require.Equal(t, mwutil.Amount(99300000), live[0].Value)

	_, all, err := a.RetrieveOutputs(ctx, true, false, nil)
	require.NoError(t, err)
	require.Len(t, all, 3, "both spent coinbases plus the change")

	// Restricting to the send entry returns its inputs and change.
	var sendID uint32
	for _, entry := range allEntries(t, a) {
		if entry.Type == mwtxmgr.TxSent {
			sendID = entry.ID
		}
	}
	_, tied, err := a.RetrieveOutputs(ctx, true, false, &sendID)
	require.NoError(t, err)
	require.Len(t, tied, 3)

	_, receiverOuts, err := b.RetrieveOutputs(ctx, false, false, nil)
	require.NoError(t, err)
	require.Len(t, receiverOuts, 1)
	require.Equal(t, mwutil.Amount(600000000), receiverOuts[0].Value)
}

// TestRetrieveTxsFilters checks the id and slate filters.
func TestRetrieveTxsFilters(t *testing.T) {
	node := chain.NewMockNode()
	a := testWallet(t, node, 0x01)
	b := testWallet(t, node, 0x02)
	fundWallet(t, a, node, 300000000, 400000000)
	ctx := context.Background()

	final := completeSend(t, a, b, node, 600000000)

	_, entries, err := a.RetrieveTxs(ctx, false, nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, 3, "two coinbases and the send")

	_, bySlate, err := a.RetrieveTxs(ctx, false, nil, &final.ID)
	require.NoError(t, err)
	require.Len(t, bySlate, 1)
	require.Equal(t, mwtxmgr.TxSent, bySlate[0].Type)

	id := bySlate[0].ID
	_, byID, err := a.RetrieveTxs(ctx, false, &id, nil)
	require.NoError(t, err)
	require.Len(t, byID, 1)
	require.Equal(t, id, byID[0].ID)

	// An id that matches nothing yields an empty set, not an error.
	missing := uint32(9999)
	_, none, err := a.RetrieveTxs(ctx, false, &missing, nil)
	require.NoError(t, err)
	require.Empty(t, none)
}

// TestBalanceBuckets checks the minimum confirmation knob against one
// wallet observed at two thresholds.
func TestBalanceBuckets(t *testing.T) {
	node := chain.NewMockNode()
	a := testWallet(t, node, 0x01)
	b := testWallet(t, node, 0x02)
	fundWallet(t, a, node, 300000000, 400000000)

	completeSend(t, a, b, node, 600000000)

	// One confirmation: everything the chain holds is spendable.
	atOne := walletSummary(t, a, 1)
	require.Equal(t, mwutil.Amount(99300000),
		atOne.AmountCurrentlySpendable)

	// A deep threshold parks the young change as awaiting
	// confirmation.
	atTen := walletSummary(t, a, 10)
	require.Zero(t, atTen.AmountCurrentlySpendable)
	require.Equal(t, mwutil.Amount(99300000),
		atTen.AmountAwaitingConfirmation)
	require.Equal(t, atOne.Total, atTen.Total)
}
