// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rangeproof

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwsuite/mwwallet/keychain"
	"github.com/mwsuite/mwwallet/wire"
)

func testKeychain(t *testing.T, fill byte) *keychain.ExtKeychain {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = fill
	}
	kc, err := keychain.NewExtKeychain(seed)
	require.NoError(t, err)
	return kc
}

func TestBuildRewindRoundTrip(t *testing.T) {
	t.Parallel()

	kc := testKeychain(t, 1)
	keyID := keychain.NewIdentifier(0, 0, 9)
	const value = 600000000

	com, err := kc.Commit(value, keyID)
	require.NoError(t, err)

	proof, err := Build(kc.RewindHash(), value, keyID, com)
	require.NoError(t, err)
	require.Len(t, []byte(proof), ProofSize)
	require.NoError(t, proof.Validate())

	gotValue, gotID, err := Rewind(kc.RewindHash(), com, proof)
	require.NoError(t, err)
	require.Equal(t, uint64(value), gotValue)
	require.Equal(t, keyID, gotID)
}

func TestBuildIsDeterministic(t *testing.T) {
	t.Parallel()

	kc := testKeychain(t, 2)
	keyID := keychain.NewIdentifier(0, 0, 1)
	com, err := kc.Commit(42, keyID)
	require.NoError(t, err)

	p1, err := Build(kc.RewindHash(), 42, keyID, com)
	require.NoError(t, err)
	p2, err := Build(kc.RewindHash(), 42, keyID, com)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
}

// TestRewindForeignProof is the ownership test the chain scanner
// relies on: only the wallet that built a proof can rewind it.
func TestRewindForeignProof(t *testing.T) {
	t.Parallel()

	owner := testKeychain(t, 3)
	stranger := testKeychain(t, 4)

	keyID := keychain.NewIdentifier(0, 0, 1)
	com, err := owner.Commit(1000, keyID)
	require.NoError(t, err)
	proof, err := Build(owner.RewindHash(), 1000, keyID, com)
	require.NoError(t, err)

	_, _, err = Rewind(stranger.RewindHash(), com, proof)
	require.ErrorIs(t, err, ErrRewind)
}

// TestRewindWrongCommitment verifies a proof cannot be replayed onto a
// different output.
func TestRewindWrongCommitment(t *testing.T) {
	t.Parallel()

	kc := testKeychain(t, 5)
	keyID := keychain.NewIdentifier(0, 0, 1)
	com, err := kc.Commit(1000, keyID)
	require.NoError(t, err)
	proof, err := Build(kc.RewindHash(), 1000, keyID, com)
	require.NoError(t, err)

	otherID := keychain.NewIdentifier(0, 0, 2)
	otherCom, err := kc.Commit(1000, otherID)
	require.NoError(t, err)

	_, _, err = Rewind(kc.RewindHash(), otherCom, proof)
	require.ErrorIs(t, err, ErrRewind)
}

func TestRewindMalformedProof(t *testing.T) {
	t.Parallel()

	kc := testKeychain(t, 6)
	keyID := keychain.NewIdentifier(0, 0, 1)
	com, err := kc.Commit(7, keyID)
	require.NoError(t, err)
	proof, err := Build(kc.RewindHash(), 7, keyID, com)
	require.NoError(t, err)

	// Truncated.
	_, _, err = Rewind(kc.RewindHash(), com, proof[:ProofSize-1])
	require.ErrorIs(t, err, ErrRewind)

	// Sealed region tampered.
	tampered := make(wire.RangeProof, ProofSize)
	copy(tampered, proof)
	tampered[3] ^= 0xff
	_, _, err = Rewind(kc.RewindHash(), com, tampered)
	require.ErrorIs(t, err, ErrRewind)
}

func TestBadRewindHash(t *testing.T) {
	t.Parallel()

	kc := testKeychain(t, 7)
	keyID := keychain.NewIdentifier(0, 0, 1)
	com, err := kc.Commit(7, keyID)
	require.NoError(t, err)

	_, err = Build(nil, 7, keyID, com)
	require.ErrorIs(t, err, ErrBadRewindHash)

	_, err = Build(make([]byte, 65), 7, keyID, com)
	require.ErrorIs(t, err, ErrBadRewindHash)
}
