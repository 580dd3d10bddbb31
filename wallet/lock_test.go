// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwsuite/mwwallet/chain"
	"github.com/mwsuite/mwwallet/mwtxmgr"
	"github.com/mwsuite/mwwallet/slate"
)

// TestTxLockOutputsValidation covers the guards around committing to a
// slate: wrong participant, tampered terms, and repeated locking.
func TestTxLockOutputsValidation(t *testing.T) {
	node := chain.NewMockNode()
	w := testWallet(t, node, 0x01)
	fundWallet(t, w, node, 300000000, 400000000)

	s, err := w.InitSendTx(context.Background(), InitTxArgs{
		Amount:               600000000,
		MinimumConfirmations: 1,
	})
	require.NoError(t, err)

	err = w.TxLockOutputs(s, receiverParticipantID)
	require.True(t, IsError(err, ErrInvalidState),
		"wrong participant: %v", err)

	tampered := passSlate(t, s)
	tampered.Amount++
	err = w.TxLockOutputs(tampered, senderParticipantID)
	require.True(t, IsError(err, ErrInvalidSlate), "got %v", err)

	tampered = passSlate(t, s)
	tampered.Fee++
	err = w.TxLockOutputs(tampered, senderParticipantID)
	require.True(t, IsError(err, ErrInvalidSlate), "got %v", err)

	require.NoError(t, w.TxLockOutputs(s, senderParticipantID))

	err = w.TxLockOutputs(s, senderParticipantID)
	require.True(t, IsError(err, ErrInvalidState), "double lock: %v", err)

	// A slate this wallet never initiated has no context to lock.
	stranger := slate.New(2, 1000, 700000, node.Height(), 0,
		w.params.BlockHeaderVersion)
	err = w.TxLockOutputs(stranger, senderParticipantID)
	require.True(t, IsError(err, ErrNotFound), "got %v", err)
}

// TestTxLockOutputsContention pits two negotiations over the same coin
// against each other.  Exactly one may win; the loser's ledger stays
// untouched.
func TestTxLockOutputsContention(t *testing.T) {
	node := chain.NewMockNode()
	w := testWallet(t, node, 0x01)
	fundWallet(t, w, node, 1000000000)
	ctx := context.Background()

	s1, err := w.InitSendTx(ctx, InitTxArgs{
		Amount:               600000000,
		MinimumConfirmations: 1,
	})
	require.NoError(t, err)
	s2, err := w.InitSendTx(ctx, InitTxArgs{
		Amount:               500000000,
		MinimumConfirmations: 1,
	})
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = w.TxLockOutputs(s1, senderParticipantID)
	}()
	go func() {
		defer wg.Done()
		errs[1] = w.TxLockOutputs(s2, senderParticipantID)
	}()
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case IsError(err, ErrOutputAlreadyLocked):
			lost++
		default:
			t.Fatalf("unexpected lock error: %v", err)
		}
	}
	require.Equal(t, 1, won)
	require.Equal(t, 1, lost)

	// One winner: the coin is locked once and exactly one send entry
	// with its change output exists.
	var locked, unconfirmed int
	for _, out := range allOutputs(t, w) {
		switch out.Status {
		case mwtxmgr.StatusLocked:
			locked++
		case mwtxmgr.StatusUnconfirmed:
			unconfirmed++
		}
	}
	require.Equal(t, 1, locked)
	require.Equal(t, 1, unconfirmed)

	var sent int
	for _, entry := range allEntries(t, w) {
		if entry.Type == mwtxmgr.TxSent {
			sent++
		}
	}
	require.Equal(t, 1, sent)
}
