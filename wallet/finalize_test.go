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
	"github.com/mwsuite/mwwallet/slate"
	"github.com/mwsuite/mwwallet/wire"
)

// TestSendReceiveFinalize walks a complete payment between two
// wallets, from initiation through confirmation, checking the ledger
// of both parties at every stage.
func TestSendReceiveFinalize(t *testing.T) {
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
	require.Equal(t, mwutil.Amount(700000), s.Fee)

	require.NoError(t, a.TxLockOutputs(s, senderParticipantID))

	// The sender's coins are now reserved and the planned change is
	// tracked as unconfirmed.
	summary := walletSummary(t, a, 1)
	require.Zero(t, summary.AmountCurrentlySpendable)
	require.Equal(t, mwutil.Amount(700000000), summary.AmountLocked)
	require.Equal(t, mwutil.Amount(99300000),
		summary.AmountAwaitingFinalization)

	entries := allEntries(t, a)
	require.Len(t, entries, 3, "two coinbases and the send")
	var sent *mwtxmgr.TxLogEntry
	for i := range entries {
		if entries[i].Type == mwtxmgr.TxSent {
			sent = &entries[i]
		}
	}
	require.NotNil(t, sent)
	require.False(t, sent.Confirmed)
	require.Equal(t, mwutil.Amount(700000000), sent.AmountDebited)
	require.Equal(t, mwutil.Amount(99300000), sent.AmountCredited)
	require.Equal(t, uint32(2), sent.NumInputs)
	require.Equal(t, uint32(1), sent.NumOutputs)

	resp, err := b.ReceiveTx(passSlate(t, s), "")
	require.NoError(t, err)

	final, err := a.FinalizeTx(passSlate(t, resp))
	require.NoError(t, err)

	// The kernel carries the negotiated fee and verifies as a whole.
	require.Len(t, final.Tx.Body.Kernels, 1)
	kernel := final.Tx.Body.Kernels[0]
	require.Equal(t, wire.PlainKernel, kernel.Features)
	require.Equal(t, mwutil.Amount(700000), kernel.Fee)
	require.Zero(t, kernel.LockHeight)
	require.NoError(t, final.Tx.Validate())

	// The finalized transaction is retained for rebroadcast and the
	// log entry now knows its kernel.
	stored, err := a.GetStoredTx(s.ID)
	require.NoError(t, err)
	require.Equal(t, final.Tx, stored)

	_, sentEntries, err := a.RetrieveTxs(ctx, false, nil, &s.ID)
	require.NoError(t, err)
	require.Len(t, sentEntries, 1)
	require.True(t, sentEntries[0].StoredTx)
	require.NotNil(t, sentEntries[0].KernelExcess)
	require.Equal(t, kernel.Excess, *sentEntries[0].KernelExcess)

	require.NoError(t, a.PostTx(ctx, final.Tx, false))
	node.MineBlock()

	refreshWallet(t, a)
	refreshWallet(t, b)

	// Sender: inputs spent, change matured into spendable funds, the
	// entry confirmed by its kernel.
	summary = walletSummary(t, a, 1)
	require.Equal(t, mwutil.Amount(99300000),
		summary.AmountCurrentlySpendable)
	require.Zero(t, summary.AmountLocked)
	require.Zero(t, summary.AmountAwaitingFinalization)

	_, confirmedSent, err := a.RetrieveTxs(ctx, false, nil, &s.ID)
	require.NoError(t, err)
	require.Len(t, confirmedSent, 1)
	require.True(t, confirmedSent[0].Confirmed)

	// Receiver: the credit confirmed by the output's appearance.
	summary = walletSummary(t, b, 1)
	require.Equal(t, mwutil.Amount(600000000),
		summary.AmountCurrentlySpendable)

	_, confirmedRecv, err := b.RetrieveTxs(ctx, false, nil, &s.ID)
	require.NoError(t, err)
	require.Len(t, confirmedRecv, 1)
	require.True(t, confirmedRecv[0].Confirmed)

	// A settled transaction can no longer be cancelled by either side.
	err = a.CancelTx(confirmedSent[0].ID)
	require.True(t, IsError(err, ErrInvalidState), "got %v", err)
	err = b.CancelTx(confirmedRecv[0].ID)
	require.True(t, IsError(err, ErrInvalidState), "got %v", err)
}

// TestFinalizeTxValidation covers the guards protecting finalization:
// unknown slates, skipped locking, and tampered amounts or fees.
func TestFinalizeTxValidation(t *testing.T) {
	node := chain.NewMockNode()
	a := testWallet(t, node, 0x01)
	b := testWallet(t, node, 0x02)
	fundWallet(t, a, node, 300000000, 400000000)
	ctx := context.Background()

	// A slate this wallet never initiated has no context.
	stranger := slate.New(2, 600000000, 700000, node.Height(), 0,
		a.params.BlockHeaderVersion)
	_, err := a.FinalizeTx(stranger)
	require.True(t, IsError(err, ErrNotFound), "got %v", err)

	s, err := a.InitSendTx(ctx, InitTxArgs{
		Amount:               600000000,
		MinimumConfirmations: 1,
	})
	require.NoError(t, err)

	resp, err := b.ReceiveTx(passSlate(t, s), "")
	require.NoError(t, err)

	// Finalizing without having locked leaves no log entry to settle.
	_, err = a.FinalizeTx(passSlate(t, resp))
	require.True(t, IsError(err, ErrNotFound), "got %v", err)

	require.NoError(t, a.TxLockOutputs(s, senderParticipantID))

	tampered := passSlate(t, resp)
	tampered.Amount++
	_, err = a.FinalizeTx(tampered)
	require.True(t, IsError(err, ErrInvalidSlate), "got %v", err)

	tampered = passSlate(t, resp)
	tampered.Fee = 1
	_, err = a.FinalizeTx(tampered)
	require.True(t, IsError(err, ErrInvalidSlate), "got %v", err)

	// The untampered slate still finalizes after the failed attempts.
	final, err := a.FinalizeTx(passSlate(t, resp))
	require.NoError(t, err)
	require.NoError(t, final.Tx.Validate())
}
