// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package commit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustKey(t *testing.T) *SecretKey {
	t.Helper()
	sk, err := NewSecretKey()
	require.NoError(t, err)
	return sk
}

// TestCommitHomomorphism exercises the additive property commitments
// are used for: C(v1,r1) + C(v2,r2) == C(v1+v2, r1+r2).
func TestCommitHomomorphism(t *testing.T) {
	t.Parallel()

	r1 := mustKey(t)
	r2 := mustKey(t)

	c1, err := Commit(5, r1)
	require.NoError(t, err)
	c2, err := Commit(3, r2)
	require.NoError(t, err)

	rSum, err := BlindSum([]*SecretKey{r1, r2}, nil)
	require.NoError(t, err)
	want, err := Commit(8, rSum)
	require.NoError(t, err)

	got, err := Sum([]Commitment{c1, c2}, nil)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

// TestCommitBalancedSum verifies that a fully balanced set of
// commitments cancels to the identity, which has no serialization.
func TestCommitBalancedSum(t *testing.T) {
	t.Parallel()

	r := mustKey(t)
	c, err := Commit(42, r)
	require.NoError(t, err)

	_, err = Sum([]Commitment{c}, []Commitment{c})
	require.ErrorIs(t, err, ErrCommitToZero)
}

func TestCommitZeroValueZeroBlind(t *testing.T) {
	t.Parallel()

	var zero SecretKey
	_, err := Commit(0, &zero)
	require.ErrorIs(t, err, ErrCommitToZero)
}

func TestCommitValueDeterministic(t *testing.T) {
	t.Parallel()

	a, err := CommitValue(700000)
	require.NoError(t, err)
	b, err := CommitValue(700000)
	require.NoError(t, err)
	c, err := CommitValue(700001)
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

// TestCommitValueUsesDistinctGenerator checks that value commitments
// land on H rather than G: 1*H must differ from 1*G.
func TestCommitValueUsesDistinctGenerator(t *testing.T) {
	t.Parallel()

	one, err := SecretKeyFromBytes(append(make([]byte, 31), 1))
	require.NoError(t, err)

	oneG, err := Commit(0, one)
	require.NoError(t, err)
	oneH, err := CommitValue(1)
	require.NoError(t, err)
	require.NotEqual(t, oneG, oneH)
}

func TestCommitmentSerialization(t *testing.T) {
	t.Parallel()

	r := mustKey(t)
	c, err := Commit(600000000, r)
	require.NoError(t, err)

	parsed, err := NewCommitmentFromString(c.String())
	require.NoError(t, err)
	require.Equal(t, c, parsed)

	// Commitment prefixes are 0x08/0x09, not the compressed pubkey
	// prefixes.
	require.Contains(t, []byte{0x08, 0x09}, c[0])

	bad := c
	bad[0] = 0x02
	_, err = NewCommitmentFromBytes(bad[:])
	require.ErrorIs(t, err, ErrInvalidCommitment)

	_, err = NewCommitmentFromString("0871")
	require.ErrorIs(t, err, ErrInvalidCommitment)
}

func TestCommitmentJSON(t *testing.T) {
	t.Parallel()

	r := mustKey(t)
	c, err := Commit(9, r)
	require.NoError(t, err)

	b, err := json.Marshal(c)
	require.NoError(t, err)

	var back Commitment
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, c, back)
}

// TestCommitmentPubKeyRoundTrip covers the excess path where a kernel
// commitment is reinterpreted as the signature verification key.
func TestCommitmentPubKeyRoundTrip(t *testing.T) {
	t.Parallel()

	sk := mustKey(t)
	c, err := Commit(0, sk)
	require.NoError(t, err)

	pk, err := c.PubKey()
	require.NoError(t, err)
	require.Equal(t, sk.PubKey().SerializeCompressed(),
		pk.SerializeCompressed())

	require.Equal(t, c, NewCommitmentFromPubKey(pk))
}

func TestBlindSum(t *testing.T) {
	t.Parallel()

	r1 := mustKey(t)
	r2 := mustKey(t)

	// (r1 + r2) - r2 == r1
	sum, err := BlindSum([]*SecretKey{r1, r2}, nil)
	require.NoError(t, err)
	back, err := BlindSum([]*SecretKey{sum}, []*SecretKey{r2})
	require.NoError(t, err)
	require.Equal(t, r1.Bytes(), back.Bytes())

	// r1 - r1 == 0, which is representable for blind sums.
	zero, err := BlindSum([]*SecretKey{r1}, []*SecretKey{r1})
	require.NoError(t, err)
	require.True(t, zero.IsZero())
}

func TestBlindingFactorRoundTrip(t *testing.T) {
	t.Parallel()

	sk := mustKey(t)
	bf := BlindingFactorFromSecretKey(sk)
	back, err := bf.SecretKey()
	require.NoError(t, err)
	require.Equal(t, sk.Bytes(), back.Bytes())

	var zero BlindingFactor
	require.True(t, zero.IsZero())
	require.False(t, bf.IsZero())
}

func TestSecretKeyFromBytesRejectsOverflow(t *testing.T) {
	t.Parallel()

	var max [32]byte
	for i := range max {
		max[i] = 0xff
	}
	_, err := SecretKeyFromBytes(max[:])
	require.ErrorIs(t, err, ErrInvalidSecretKey)

	_, err = SecretKeyFromBytes([]byte{0x01})
	require.ErrorIs(t, err, ErrInvalidSecretKey)
}
