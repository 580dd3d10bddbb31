// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwsuite/mwwallet/chain"
)

// TestProofAddress checks that the payment proof address is a stable
// function of the seed.
func TestProofAddress(t *testing.T) {
	node := chain.NewMockNode()
	w := testWallet(t, node, 0x01)

	addr, err := w.ProofAddress()
	require.NoError(t, err)
	require.Len(t, addr, 64, "hex encoded ed25519 public key")

	again, err := w.ProofAddress()
	require.NoError(t, err)
	require.Equal(t, addr, again)

	sameSeed := testWallet(t, node, 0x01)
	sameAddr, err := sameSeed.ProofAddress()
	require.NoError(t, err)
	require.Equal(t, addr, sameAddr)

	otherSeed := testWallet(t, node, 0x02)
	otherAddr, err := otherSeed.ProofAddress()
	require.NoError(t, err)
	require.NotEqual(t, addr, otherAddr)
}

// TestPaymentProofFlow runs a proven payment end to end: the sender
// requests a proof, the receiver signs it, and finalization verifies
// it before accepting the transaction.
func TestPaymentProofFlow(t *testing.T) {
	node := chain.NewMockNode()
	a := testWallet(t, node, 0x01)
	b := testWallet(t, node, 0x02)
	fundWallet(t, a, node, 300000000, 400000000)
	ctx := context.Background()

	recvAddr, err := b.ProofAddress()
	require.NoError(t, err)
	sendAddr, err := a.ProofAddress()
	require.NoError(t, err)

	s, err := a.InitSendTx(ctx, InitTxArgs{
		Amount:                       600000000,
		MinimumConfirmations:         1,
		PaymentProofRecipientAddress: recvAddr,
	})
	require.NoError(t, err)
	require.NotNil(t, s.PaymentProof)
	require.Equal(t, sendAddr, s.PaymentProof.SenderAddress)
	require.Equal(t, recvAddr, s.PaymentProof.ReceiverAddress)
	require.Nil(t, s.PaymentProof.ReceiverSignature)

	require.NoError(t, a.TxLockOutputs(s, senderParticipantID))

	resp, err := b.ReceiveTx(passSlate(t, s), "")
	require.NoError(t, err)
	require.NotNil(t, resp.PaymentProof)
	require.NotNil(t, resp.PaymentProof.ReceiverSignature,
		"receiver signs the proof when responding")

	final, err := a.FinalizeTx(passSlate(t, resp))
	require.NoError(t, err)
	require.NoError(t, final.Tx.Validate())
}

// TestPaymentProofWrongReceiver checks that a wallet refuses to sign a
// proof addressed to someone else, leaving its ledger untouched.
func TestPaymentProofWrongReceiver(t *testing.T) {
	node := chain.NewMockNode()
	a := testWallet(t, node, 0x01)
	b := testWallet(t, node, 0x02)
	c := testWallet(t, node, 0x03)
	fundWallet(t, a, node, 300000000, 400000000)

	elsewhere, err := c.ProofAddress()
	require.NoError(t, err)

	s, err := a.InitSendTx(context.Background(), InitTxArgs{
		Amount:                       600000000,
		MinimumConfirmations:         1,
		PaymentProofRecipientAddress: elsewhere,
	})
	require.NoError(t, err)

	_, err = b.ReceiveTx(passSlate(t, s), "")
	require.True(t, IsError(err, ErrInvalidSlate), "got %v", err)
	require.Empty(t, allOutputs(t, b))
	require.Empty(t, allEntries(t, b))
}

// TestPaymentProofTampered checks that finalization rejects missing or
// forged receiver signatures.
func TestPaymentProofTampered(t *testing.T) {
	node := chain.NewMockNode()
	a := testWallet(t, node, 0x01)
	b := testWallet(t, node, 0x02)
	fundWallet(t, a, node, 300000000, 400000000)
	ctx := context.Background()

	recvAddr, err := b.ProofAddress()
	require.NoError(t, err)

	s, err := a.InitSendTx(ctx, InitTxArgs{
		Amount:                       600000000,
		MinimumConfirmations:         1,
		PaymentProofRecipientAddress: recvAddr,
	})
	require.NoError(t, err)
	require.NoError(t, a.TxLockOutputs(s, senderParticipantID))

	resp, err := b.ReceiveTx(passSlate(t, s), "")
	require.NoError(t, err)

	stripped := passSlate(t, resp)
	stripped.PaymentProof.ReceiverSignature = nil
	_, err = a.FinalizeTx(stripped)
	require.True(t, IsError(err, ErrSignatureVerification), "got %v", err)

	forged := passSlate(t, resp)
	sig := []byte(*forged.PaymentProof.ReceiverSignature)
	if sig[0] == '0' {
		sig[0] = '1'
	} else {
		sig[0] = '0'
	}
	forgedSig := string(sig)
	forged.PaymentProof.ReceiverSignature = &forgedSig
	_, err = a.FinalizeTx(forged)
	require.True(t, IsError(err, ErrSignatureVerification), "got %v", err)

	// The honest slate still finalizes.
	final, err := a.FinalizeTx(passSlate(t, resp))
	require.NoError(t, err)
	require.NoError(t, final.Tx.Validate())
}

// TestPaymentProofVersionConflict checks that a proof request cannot
// ride a slate version that has no field for it.
func TestPaymentProofVersionConflict(t *testing.T) {
	node := chain.NewMockNode()
	a := testWallet(t, node, 0x01)
	b := testWallet(t, node, 0x02)
	fundWallet(t, a, node, 300000000, 400000000)

	recvAddr, err := b.ProofAddress()
	require.NoError(t, err)

	v2 := uint16(2)
	_, err = a.InitSendTx(context.Background(), InitTxArgs{
		Amount:                       600000000,
		MinimumConfirmations:         1,
		TargetSlateVersion:           &v2,
		PaymentProofRecipientAddress: recvAddr,
	})
	require.True(t, IsError(err, ErrSlateVersionMismatch), "got %v", err)
}
