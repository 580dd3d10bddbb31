// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keychain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentifierLayout(t *testing.T) {
	t.Parallel()

	// Depth 3 path m/0/0/1.
	id := NewIdentifier(0, 0, 1)
	require.Equal(t, "0300000000000000000000000100000000", id.String())
	require.Equal(t, uint8(3), id.Depth())
	require.Equal(t, []uint32{0, 0, 1}, id.Path())

	parsed, err := ParseIdentifier(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	root := RootIdentifier()
	require.Equal(t, uint8(0), root.Depth())
	require.Empty(t, root.Path())
}

func TestIdentifierChildParent(t *testing.T) {
	t.Parallel()

	parent := NewIdentifier(0, 0)
	child, err := parent.Child(7)
	require.NoError(t, err)
	require.Equal(t, NewIdentifier(0, 0, 7), child)
	require.Equal(t, parent, child.Parent())

	// Depth is capped.
	deep := NewIdentifier(1, 2, 3, 4)
	_, err = deep.Child(5)
	require.ErrorIs(t, err, ErrPathTooDeep)

	// Root is its own parent.
	require.Equal(t, RootIdentifier(), RootIdentifier().Parent())
}

func TestIdentifierParseErrors(t *testing.T) {
	t.Parallel()

	_, err := ParseIdentifier("02ab")
	require.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = ParseIdentifier("zz00000000000000000000000000000000")
	require.ErrorIs(t, err, ErrInvalidIdentifier)

	// Depth byte beyond MaxDepth.
	_, err = ParseIdentifier("0500000000000000000000000000000000")
	require.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestIdentifierJSON(t *testing.T) {
	t.Parallel()

	id := NewIdentifier(0, 0, 42)
	b, err := json.Marshal(id)
	require.NoError(t, err)

	var back Identifier
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, id, back)
}

func TestExtKeychainDeterminism(t *testing.T) {
	t.Parallel()

	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}

	kc1, err := NewExtKeychain(seed)
	require.NoError(t, err)
	kc2, err := NewExtKeychain(seed)
	require.NoError(t, err)

	id, err := kc1.RootKeyID().Child(3)
	require.NoError(t, err)

	k1, err := kc1.DeriveKey(id)
	require.NoError(t, err)
	k2, err := kc2.DeriveKey(id)
	require.NoError(t, err)
	require.Equal(t, k1.Bytes(), k2.Bytes())

	// Same seed, same rewind hash.
	require.Equal(t, kc1.RewindHash(), kc2.RewindHash())

	// A different seed diverges everywhere.
	seed[0] ^= 0xff
	kc3, err := NewExtKeychain(seed)
	require.NoError(t, err)
	k3, err := kc3.DeriveKey(id)
	require.NoError(t, err)
	require.NotEqual(t, k1.Bytes(), k3.Bytes())
	require.NotEqual(t, kc1.RewindHash(), kc3.RewindHash())
}

func TestExtKeychainPathSeparation(t *testing.T) {
	t.Parallel()

	seed := make([]byte, 32)
	kc, err := NewExtKeychain(seed)
	require.NoError(t, err)

	// Sibling keys differ.
	a, err := kc.DeriveKey(NewIdentifier(0, 0, 1))
	require.NoError(t, err)
	b, err := kc.DeriveKey(NewIdentifier(0, 0, 2))
	require.NoError(t, err)
	require.NotEqual(t, a.Bytes(), b.Bytes())

	// A path and its zero-extended child differ even though their
	// serialized forms differ only in the depth byte.
	shallow, err := kc.DeriveKey(NewIdentifier(5))
	require.NoError(t, err)
	deep, err := kc.DeriveKey(NewIdentifier(5, 0))
	require.NoError(t, err)
	require.NotEqual(t, shallow.Bytes(), deep.Bytes())
}

func TestExtKeychainCommit(t *testing.T) {
	t.Parallel()

	seed := make([]byte, 32)
	kc, err := NewExtKeychain(seed)
	require.NoError(t, err)

	id := NewIdentifier(0, 0, 1)
	c1, err := kc.Commit(600000000, id)
	require.NoError(t, err)
	c2, err := kc.Commit(600000000, id)
	require.NoError(t, err)
	require.Equal(t, c1, c2)

	// Commitments bind the value.
	c3, err := kc.Commit(600000001, id)
	require.NoError(t, err)
	require.NotEqual(t, c1, c3)
}

func TestNewExtKeychainSeedBounds(t *testing.T) {
	t.Parallel()

	_, err := NewExtKeychain(make([]byte, 15))
	require.ErrorIs(t, err, ErrInvalidSeed)

	_, err = NewExtKeychain(make([]byte, 65))
	require.ErrorIs(t, err, ErrInvalidSeed)

	_, err = NewExtKeychain(make([]byte, 16))
	require.NoError(t, err)
}
