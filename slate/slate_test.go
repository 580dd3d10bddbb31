// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package slate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/wire"
)

func mustKey(t *testing.T) *commit.SecretKey {
	t.Helper()
	sk, err := commit.NewSecretKey()
	require.NoError(t, err)
	return sk
}

func mustCommit(t *testing.T, value uint64, blind *commit.SecretKey) commit.Commitment {
	t.Helper()
	c, err := commit.Commit(value, blind)
	require.NoError(t, err)
	return c
}

// negotiation holds both parties' secrets while a test drives a slate
// through its rounds.  The sender spends a 10 unit input into a 2 unit
// change output, transferring 7 with a fee of 1.
type negotiation struct {
	slate *Slate

	senderKey   *commit.SecretKey
	senderNonce *commit.SecretKey
	recvKey     *commit.SecretKey
	recvNonce   *commit.SecretKey
}

// startNegotiation builds a slate with the sender's transaction
// elements, offset and round one contribution recorded.
func startNegotiation(t *testing.T) *negotiation {
	t.Helper()

	inputBlind := mustKey(t)
	changeBlind := mustKey(t)

	s := New(2, 7, 1, 100, 0, 6)
	s.AddTransactionElements(
		[]wire.Input{{
			Features: wire.PlainOutput,
			Commit:   mustCommit(t, 10, inputBlind),
		}},
		[]wire.Output{{
			Features: wire.PlainOutput,
			Commit:   mustCommit(t, 2, changeBlind),
			Proof:    make(wire.RangeProof, 100),
		}},
	)

	rawExcess, err := commit.BlindSum(
		[]*commit.SecretKey{changeBlind},
		[]*commit.SecretKey{inputBlind},
	)
	require.NoError(t, err)

	senderKey, err := s.GenerateOffset(rawExcess)
	require.NoError(t, err)

	senderNonce := mustKey(t)
	msg := "have fun with it"
	require.NoError(t, s.FillRound1(senderKey, senderNonce, 0, &msg))

	return &negotiation{
		slate:       s,
		senderKey:   senderKey,
		senderNonce: senderNonce,
		recvKey:     mustKey(t),
		recvNonce:   mustKey(t),
	}
}

// receiverRespond plays the counterparty: it adds the 7 unit receiving
// output and completes rounds one and two for participant 1.
func receiverRespond(t *testing.T, n *negotiation) {
	t.Helper()

	n.slate.AddTransactionElements(nil, []wire.Output{{
		Features: wire.PlainOutput,
		Commit:   mustCommit(t, 7, n.recvKey),
		Proof:    make(wire.RangeProof, 100),
	}})
	require.NoError(t, n.slate.FillRound1(n.recvKey, n.recvNonce, 1, nil))
	require.NoError(t, n.slate.FillRound2(n.recvKey, n.recvNonce, 1))
}

// senderFinish completes the sender's round two and finalizes.
func senderFinish(t *testing.T, n *negotiation) *wire.Transaction {
	t.Helper()

	require.NoError(t, n.slate.FillRound2(n.senderKey, n.senderNonce, 0))
	tx, err := n.slate.Finalize()
	require.NoError(t, err)
	return tx
}

func TestTwoPartyNegotiation(t *testing.T) {
	t.Parallel()

	n := startNegotiation(t)
	require.Equal(t, StateAwaitingCounterparty, n.slate.State())

	receiverRespond(t, n)
	require.Equal(t, StateCounterpartySigned, n.slate.State())

	require.NoError(t, n.slate.FillRound2(n.senderKey, n.senderNonce, 0))
	require.Equal(t, StateSigned, n.slate.State())

	tx, err := n.slate.Finalize()
	require.NoError(t, err)
	require.Equal(t, StateFinalized, n.slate.State())

	require.NoError(t, tx.Validate())
	require.Equal(t, mwutil.Amount(1), tx.Fee())
	require.False(t, tx.Body.Kernels[0].Excess.IsZero())
	require.NoError(t, tx.Body.Kernels[0].Verify())
	require.NoError(t, tx.VerifyKernelSums(tx.Fee()))
}

func TestNewSlateState(t *testing.T) {
	t.Parallel()

	s := New(2, 7, 1, 100, 0, 6)
	require.Equal(t, StateCreated, s.State())
	require.Len(t, s.Tx.Body.Kernels, 1)
	require.True(t, s.Tx.Body.Kernels[0].Excess.IsZero())

	// Fewer than two participants is raised to the minimum.
	require.Equal(t, uint64(2), New(0, 7, 1, 100, 0, 6).NumParticipants)
}

func TestFillRound1Limits(t *testing.T) {
	t.Parallel()

	n := startNegotiation(t)
	receiverRespond(t, n)

	// The slate is full; a third party cannot join.
	extra := mustKey(t)
	err := n.slate.FillRound1(extra, mustKey(t), 2, nil)
	require.ErrorIs(t, err, ErrParticipantCountExceeded)

	// A duplicate id is rejected even while seats remain.
	s := startNegotiation(t).slate
	err = s.FillRound1(extra, mustKey(t), 0, nil)
	require.ErrorIs(t, err, ErrParticipantExists)
}

func TestFillRound2Errors(t *testing.T) {
	t.Parallel()

	n := startNegotiation(t)
	receiverRespond(t, n)

	// Round two for an id that never joined.
	err := n.slate.FillRound2(n.senderKey, n.senderNonce, 7)
	require.ErrorIs(t, err, ErrParticipantNotFound)

	// The receiver already signed; signing again is rejected.
	err = n.slate.FillRound2(n.recvKey, n.recvNonce, 1)
	require.ErrorIs(t, err, ErrAlreadySigned)
}

func TestFinalizeIncomplete(t *testing.T) {
	t.Parallel()

	n := startNegotiation(t)
	_, err := n.slate.Finalize()
	require.ErrorIs(t, err, ErrIncompleteParticipantData)

	receiverRespond(t, n)
	_, err = n.slate.Finalize()
	require.ErrorIs(t, err, ErrIncompleteParticipantData)
}

func TestTamperedPartialSigDetected(t *testing.T) {
	t.Parallel()

	n := startNegotiation(t)
	receiverRespond(t, n)

	// Corrupt the receiver's recorded partial signature.  The sender
	// verifies existing signatures before producing their own, so the
	// tamper surfaces in round two rather than at finalization.
	n.slate.ParticipantData[1].PartSig[40] ^= 0x01
	err := n.slate.FillRound2(n.senderKey, n.senderNonce, 0)
	require.Error(t, err)
}

func TestVerifyMessages(t *testing.T) {
	t.Parallel()

	n := startNegotiation(t)
	receiverRespond(t, n)
	require.NoError(t, n.slate.VerifyMessages())

	// Replacing the message after signing breaks authentication.
	tampered := "pay to someone else"
	n.slate.ParticipantData[0].Message = &tampered
	require.Error(t, n.slate.VerifyMessages())

	// A message without its signature is rejected outright.
	n.slate.ParticipantData[0].MessageSig = nil
	require.ErrorIs(t, n.slate.VerifyMessages(), ErrMissingMessageSig)
}

func TestGenerateOffsetSplitsExcess(t *testing.T) {
	t.Parallel()

	raw := mustKey(t)
	rawPub := raw.PubKey()

	s := New(2, 7, 1, 100, 0, 6)
	adjusted, err := s.GenerateOffset(raw)
	require.NoError(t, err)
	require.False(t, s.Tx.Offset.IsZero())

	// adjusted + offset must reassemble the original excess.
	offsetKey, err := s.Tx.Offset.SecretKey()
	require.NoError(t, err)
	sum, err := commit.BlindSum(
		[]*commit.SecretKey{adjusted, offsetKey}, nil,
	)
	require.NoError(t, err)
	require.Equal(t, rawPub.SerializeCompressed(),
		sum.PubKey().SerializeCompressed())
}

func TestHeightLockedKernelMsg(t *testing.T) {
	t.Parallel()

	plain := New(2, 7, 1, 100, 0, 6)
	locked := New(2, 7, 1, 100, 250, 6)
	require.Equal(t, wire.HeightLockedKernel, locked.Tx.Body.Kernels[0].Features)

	m1, err := plain.KernelMsg()
	require.NoError(t, err)
	m2, err := locked.KernelMsg()
	require.NoError(t, err)
	require.NotEqual(t, m1, m2)
}

func TestTTLExpired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cutoff      uint64
		chainHeight uint64
		want        bool
	}{
		{name: "no cutoff", cutoff: 0, chainHeight: 1 << 40, want: false},
		{name: "before cutoff", cutoff: 100, chainHeight: 99, want: false},
		{name: "at cutoff", cutoff: 100, chainHeight: 100, want: false},
		{name: "past cutoff", cutoff: 100, chainHeight: 101, want: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := New(2, 7, 1, 50, 0, 6)
			s.TTLCutoffHeight = test.cutoff
			require.Equal(t, test.want, s.TTLExpired(test.chainHeight))
		})
	}
}

func TestPaymentProofMessage(t *testing.T) {
	t.Parallel()

	excess := mustCommit(t, 0, mustKey(t))
	sender := "7e011ba7b5b6058aee5ab1e68bcd756646f36b38c6262aa20ff9c194d2e3e155"

	msg, err := PaymentProofMessage(600000000, excess, sender)
	require.NoError(t, err)
	require.Len(t, msg, 8+commit.CommitmentSize+32)
	require.Equal(t, []byte{0, 0, 0, 0, 0x23, 0xc3, 0x46, 0x00}, msg[:8])
	require.Equal(t, excess.Bytes(), msg[8:8+commit.CommitmentSize])

	_, err = PaymentProofMessage(1, excess, "not hex")
	require.Error(t, err)
}
