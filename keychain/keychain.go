// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keychain implements deterministic key derivation for output
// blinding factors.  Keys are named by path Identifiers so that the
// wallet can rebuild any blinding factor from the master seed and the
// path recorded next to the output, including during chain scans where
// the path is recovered from the output's range proof.
package keychain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/internal/zero"
)

const (
	// MinSeedSize and MaxSeedSize bound the accepted master seed
	// length.  16 bytes corresponds to a 12 word recovery phrase and
	// 64 bytes to the largest supported entropy.
	MinSeedSize = 16
	MaxSeedSize = 64
)

// ErrInvalidSeed describes a master seed with an unusable length.
var ErrInvalidSeed = errors.New("invalid master seed length")

// rootDomain keys the seed hash so that keychain roots cannot collide
// with other blake2b uses of the same seed.
var rootDomain = []byte("mwwallet/keychain/root")

// Keychain derives the secret keys behind output commitments.  The
// software implementation is ExtKeychain; hardware backed
// implementations can satisfy the same interface.
type Keychain interface {
	// RootKeyID returns the parent identifier new output keys are
	// allocated under.
	RootKeyID() Identifier

	// DeriveKey returns the secret key for the given path.
	DeriveKey(id Identifier) (*commit.SecretKey, error)

	// Commit builds the Pedersen commitment to value under the key
	// at the given path.
	Commit(value uint64, id Identifier) (commit.Commitment, error)

	// RewindHash returns the secret hash used to build and rewind
	// output range proofs.  It is derived from the root public key,
	// so a wallet can always recognize its own outputs on chain.
	RewindHash() []byte
}

// ExtKeychain is the software keychain.  Child keys are derived by
// chaining keyed blake2b hashes along the identifier path, so any key
// is recomputable from the seed alone.
type ExtKeychain struct {
	root       [32]byte
	rewindHash [32]byte
}

// A compile time check to ensure ExtKeychain satisfies Keychain.
var _ Keychain = (*ExtKeychain)(nil)

// NewExtKeychain builds a keychain from a master seed.
func NewExtKeychain(seed []byte) (*ExtKeychain, error) {
	if len(seed) < MinSeedSize || len(seed) > MaxSeedSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSeed, len(seed))
	}

	k := &ExtKeychain{}

	h, err := blake2b.New256(rootDomain)
	if err != nil {
		return nil, err
	}
	h.Write(seed)
	copy(k.root[:], h.Sum(nil))

	rootKey, err := keyFromHash(k.root)
	if err != nil {
		return nil, err
	}
	rewind := blake2b.Sum256(rootKey.PubKey().SerializeCompressed())
	k.rewindHash = rewind
	rootKey.Zero()

	return k, nil
}

// keyFromHash reduces hash output to a usable scalar, rehashing on the
// negligible chance the bytes land at zero or beyond the group order.
func keyFromHash(b [32]byte) (*commit.SecretKey, error) {
	for i := 0; i < 128; i++ {
		sk, err := commit.SecretKeyFromBytes(b[:])
		if err == nil && !sk.IsZero() {
			return sk, nil
		}
		b = blake2b.Sum256(b[:])
	}
	return nil, errors.New("keychain: derivation failed to produce a key")
}

// RootKeyID returns the fixed depth two parent path outputs are
// derived under.
func (k *ExtKeychain) RootKeyID() Identifier {
	return NewIdentifier(0, 0)
}

// DeriveKey returns the secret key at the given path.
func (k *ExtKeychain) DeriveKey(id Identifier) (*commit.SecretKey, error) {
	cur := k.root
	for _, child := range id.Path() {
		h, err := blake2b.New256(cur[:])
		if err != nil {
			return nil, err
		}
		var cb [4]byte
		binary.BigEndian.PutUint32(cb[:], child)
		h.Write(cb[:])
		copy(cur[:], h.Sum(nil))
	}

	sk, err := keyFromHash(cur)
	zero.Bytea32(&cur)
	return sk, err
}

// Commit builds the commitment to value under the key at id.
func (k *ExtKeychain) Commit(value uint64, id Identifier) (
	commit.Commitment, error) {

	sk, err := k.DeriveKey(id)
	if err != nil {
		return commit.Commitment{}, err
	}
	defer sk.Zero()
	return commit.Commit(value, sk)
}

// RewindHash returns the rewind secret for range proofs.
func (k *ExtKeychain) RewindHash() []byte {
	h := make([]byte, len(k.rewindHash))
	copy(h, k.rewindHash[:])
	return h
}

// Zero clears the keychain's secret material.
func (k *ExtKeychain) Zero() {
	zero.Bytea32(&k.root)
	zero.Bytea32(&k.rewindHash)
}
