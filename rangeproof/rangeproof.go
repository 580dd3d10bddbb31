// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rangeproof builds and rewinds output range proofs.
//
// A proof is an opaque envelope attached to every output.  The wallet
// embeds the output's value and key derivation path inside it, sealed
// under a secret derived from the keychain's rewind hash and bound to
// the output commitment.  During chain scans the wallet attempts to
// rewind every proof it sees; the ones that open are its own outputs
// and carry everything needed to restore them.  Proof of the range
// property itself is enforced by consensus on the node side.
package rangeproof

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/keychain"
	"github.com/mwsuite/mwwallet/wire"
)

// ProofSize is the fixed serialized size of wallet built proofs.
const ProofSize = wire.MaxRangeProofSize

const (
	// The sealed payload is a version byte, the 64 bit value and the
	// output's key identifier, plus the AEAD tag.
	payloadVersion = 0
	payloadSize    = 1 + 8 + keychain.IdentifierSize
	sealedSize     = payloadSize + chacha20poly1305.Overhead
)

var (
	// ErrRewind is returned when a proof does not rewind under the
	// wallet's hash, meaning the output belongs to someone else.
	ErrRewind = errors.New("range proof does not rewind")

	// ErrBadRewindHash describes an unusable rewind hash.
	ErrBadRewindHash = errors.New("invalid rewind hash")
)

var (
	keyDomain   = []byte("mwwallet/rangeproof/key")
	nonceDomain = []byte("mwwallet/rangeproof/nonce")
	padDomain   = []byte("mwwallet/rangeproof/pad")
)

func proofKey(rewindHash []byte) ([]byte, error) {
	if len(rewindHash) == 0 || len(rewindHash) > 64 {
		return nil, ErrBadRewindHash
	}
	h, err := blake2b.New256(rewindHash)
	if err != nil {
		return nil, ErrBadRewindHash
	}
	h.Write(keyDomain)
	return h.Sum(nil), nil
}

func proofNonce(rewindHash []byte, com commit.Commitment) ([]byte, error) {
	h, err := blake2b.New256(rewindHash)
	if err != nil {
		return nil, ErrBadRewindHash
	}
	h.Write(nonceDomain)
	h.Write(com.Bytes())
	return h.Sum(nil)[:chacha20poly1305.NonceSizeX], nil
}

// pad extends the sealed payload to ProofSize with a deterministic
// stream so rebuilt proofs are byte identical.
func pad(seed []byte, n int) []byte {
	out := make([]byte, 0, n)
	block := blake2b.Sum256(append(padDomain, seed...))
	for len(out) < n {
		out = append(out, block[:]...)
		block = blake2b.Sum256(block[:])
	}
	return out[:n]
}

// Build creates the proof for an output committing to value under the
// key at keyID.
func Build(rewindHash []byte, value uint64, keyID keychain.Identifier,
	com commit.Commitment) (wire.RangeProof, error) {

	key, err := proofKey(rewindHash)
	if err != nil {
		return nil, err
	}
	nonce, err := proofNonce(rewindHash, com)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, payloadSize)
	payload[0] = payloadVersion
	binary.BigEndian.PutUint64(payload[1:9], value)
	copy(payload[9:], keyID.Bytes())

	// The commitment rides along as associated data so a proof cannot
	// be replayed onto a different output.
	sealed := aead.Seal(nil, nonce, payload, com.Bytes())

	proof := make(wire.RangeProof, 0, ProofSize)
	proof = append(proof, sealed...)
	proof = append(proof, pad(sealed, ProofSize-len(sealed))...)
	return proof, nil
}

// Rewind attempts to open the proof under the wallet's rewind hash.
// On success it returns the committed value and the key path the
// output was derived with.  ErrRewind means the output is foreign.
func Rewind(rewindHash []byte, com commit.Commitment,
	proof wire.RangeProof) (uint64, keychain.Identifier, error) {

	if len(proof) != ProofSize {
		return 0, keychain.Identifier{}, ErrRewind
	}

	key, err := proofKey(rewindHash)
	if err != nil {
		return 0, keychain.Identifier{}, err
	}
	nonce, err := proofNonce(rewindHash, com)
	if err != nil {
		return 0, keychain.Identifier{}, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return 0, keychain.Identifier{}, err
	}

	payload, err := aead.Open(nil, nonce, proof[:sealedSize], com.Bytes())
	if err != nil {
		return 0, keychain.Identifier{}, ErrRewind
	}
	if payload[0] != payloadVersion {
		return 0, keychain.Identifier{}, ErrRewind
	}

	value := binary.BigEndian.Uint64(payload[1:9])
	keyID, err := keychain.NewIdentifierFromBytes(payload[9:])
	if err != nil {
		return 0, keychain.Identifier{}, ErrRewind
	}
	return value, keyID, nil
}
