// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package aggsig

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/mwsuite/mwwallet/commit"
)

func testMsg(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

func mustKey(t *testing.T) *commit.SecretKey {
	t.Helper()
	sk, err := commit.NewSecretKey()
	require.NoError(t, err)
	return sk
}

func TestSignVerifySingle(t *testing.T) {
	t.Parallel()

	sk := mustKey(t)
	msg := testMsg("participant message")

	sig, err := Sign(sk, msg)
	require.NoError(t, err)
	require.NoError(t, Verify(sig, sk.PubKey(), msg))

	// Wrong message fails.
	require.ErrorIs(t, Verify(sig, sk.PubKey(), testMsg("other")),
		ErrSignatureMismatch)

	// Wrong key fails.
	other := mustKey(t)
	require.ErrorIs(t, Verify(sig, other.PubKey(), msg),
		ErrSignatureMismatch)

	// Tampered scalar fails.
	bad := sig
	bad[63] ^= 0x01
	require.Error(t, Verify(bad, sk.PubKey(), msg))
}

// twoPartySign runs the full two round protocol and returns the
// completed signature along with the aggregate keys.
func twoPartySign(t *testing.T, msg []byte) (Signature, *btcec.PublicKey) {
	t.Helper()

	x1, x2 := mustKey(t), mustKey(t)
	k1, k2 := mustKey(t), mustKey(t)

	nonceSum, err := commit.SumPubKeys(k1.PubKey(), k2.PubKey())
	require.NoError(t, err)
	pubSum, err := commit.SumPubKeys(x1.PubKey(), x2.PubKey())
	require.NoError(t, err)

	part1, err := CalculatePartialSig(x1, k1, nonceSum, pubSum, msg)
	require.NoError(t, err)
	part2, err := CalculatePartialSig(x2, k2, nonceSum, pubSum, msg)
	require.NoError(t, err)

	require.NoError(t, VerifyPartialSig(part1, k1.PubKey(), x1.PubKey(),
		nonceSum, pubSum, msg))
	require.NoError(t, VerifyPartialSig(part2, k2.PubKey(), x2.PubKey(),
		nonceSum, pubSum, msg))

	// Swapped participant attribution must fail.
	require.ErrorIs(t, VerifyPartialSig(part1, k2.PubKey(), x2.PubKey(),
		nonceSum, pubSum, msg), ErrSignatureMismatch)

	final, err := AddSignatures([]Signature{part1, part2}, nonceSum)
	require.NoError(t, err)
	return final, pubSum
}

func TestTwoPartyAggregation(t *testing.T) {
	t.Parallel()

	msg := testMsg("kernel")

	// Run the protocol repeatedly so that both parities of the
	// aggregate nonce are exercised.
	for i := 0; i < 8; i++ {
		final, pubSum := twoPartySign(t, msg)
		require.NoError(t, Verify(final, pubSum, msg))
	}
}

func TestPartialSigRejectsForeignNonce(t *testing.T) {
	t.Parallel()

	msg := testMsg("kernel")
	x1, k1 := mustKey(t), mustKey(t)

	nonceSum, err := commit.SumPubKeys(k1.PubKey(), mustKey(t).PubKey())
	require.NoError(t, err)
	pubSum := x1.PubKey()

	sig, err := CalculatePartialSig(x1, k1, nonceSum, pubSum, msg)
	require.NoError(t, err)

	// A different aggregate nonce must be detected before any curve
	// math happens.
	otherSum, err := commit.SumPubKeys(mustKey(t).PubKey(),
		mustKey(t).PubKey())
	require.NoError(t, err)
	require.ErrorIs(t, VerifyPartialSig(sig, k1.PubKey(), x1.PubKey(),
		otherSum, pubSum, msg), ErrNonceMismatch)

	_, err = AddSignatures([]Signature{sig}, otherSum)
	require.ErrorIs(t, err, ErrNonceMismatch)
}

func TestZeroNonceRejected(t *testing.T) {
	t.Parallel()

	sk := mustKey(t)
	var zero commit.SecretKey
	_, err := CalculatePartialSig(sk, &zero, sk.PubKey(), sk.PubKey(),
		testMsg("m"))
	require.ErrorIs(t, err, ErrZeroNonce)
}

func TestSignatureSerialization(t *testing.T) {
	t.Parallel()

	sk := mustKey(t)
	sig, err := Sign(sk, testMsg("m"))
	require.NoError(t, err)

	parsed, err := NewSignatureFromString(sig.String())
	require.NoError(t, err)
	require.Equal(t, sig, parsed)

	_, err = NewSignatureFromString("abcd")
	require.ErrorIs(t, err, ErrInvalidSignature)
}
