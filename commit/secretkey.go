// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package commit

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ErrInvalidSecretKey describes key material that does not reduce to a
// usable scalar.
var ErrInvalidSecretKey = errors.New("invalid secret key")

// SecretKey is a scalar mod the curve order.  Blinding factors, signing
// keys and nonces are all SecretKeys.  Unlike signing keys, sums of
// blinding factors may legitimately be zero, so zero scalars are
// representable and callers that require non-zero keys must check.
type SecretKey struct {
	k secp.ModNScalar
}

// NewSecretKey generates a cryptographically random non-zero key.
func NewSecretKey() (*SecretKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	sk := &SecretKey{k: priv.Key}
	priv.Zero()
	return sk, nil
}

// SecretKeyFromBytes loads a key from a 32 byte big-endian scalar.
// Values at or above the curve order are rejected rather than silently
// reduced so that corrupted stored keys surface as errors.
func SecretKeyFromBytes(b []byte) (*SecretKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: wrong length %d", ErrInvalidSecretKey,
			len(b))
	}
	sk := &SecretKey{}
	if overflow := sk.k.SetByteSlice(b); overflow {
		return nil, fmt.Errorf("%w: scalar overflows group order",
			ErrInvalidSecretKey)
	}
	return sk, nil
}

// Bytes returns the 32 byte big-endian scalar.
func (sk *SecretKey) Bytes() [32]byte {
	return sk.k.Bytes()
}

// IsZero reports whether the scalar is zero.
func (sk *SecretKey) IsZero() bool {
	return sk.k.IsZero()
}

// PubKey returns the public point k*G.
func (sk *SecretKey) PubKey() *btcec.PublicKey {
	var result btcec.JacobianPoint
	k := sk.k
	btcec.ScalarBaseMultNonConst(&k, &result)
	result.ToAffine()
	k.Zero()
	return btcec.NewPublicKey(&result.X, &result.Y)
}

// Scalar returns a copy of the underlying scalar.  Mutating the copy
// does not affect the key.
func (sk *SecretKey) Scalar() *secp.ModNScalar {
	s := new(secp.ModNScalar)
	s.Set(&sk.k)
	return s
}

// Clone returns an independent copy of the key.
func (sk *SecretKey) Clone() *SecretKey {
	c := &SecretKey{}
	c.k.Set(&sk.k)
	return c
}

// Zero clears the key material.  The key must not be used afterwards.
func (sk *SecretKey) Zero() {
	sk.k.Zero()
}

// BlindingFactorSize is the serialized size of a blinding factor.
const BlindingFactorSize = 32

// BlindingFactor is the serialized form a scalar takes when it travels
// inside a transaction, such as the kernel offset.  A zero blinding
// factor is valid and means "no offset".
type BlindingFactor [BlindingFactorSize]byte

// NewBlindingFactorFromString parses the hex form.
func NewBlindingFactorFromString(s string) (BlindingFactor, error) {
	var bf BlindingFactor
	b, err := hex.DecodeString(s)
	if err != nil {
		return bf, fmt.Errorf("%w: %v", ErrInvalidSecretKey, err)
	}
	if len(b) != BlindingFactorSize {
		return bf, fmt.Errorf("%w: wrong length %d", ErrInvalidSecretKey,
			len(b))
	}
	copy(bf[:], b)
	return bf, nil
}

// BlindingFactorFromSecretKey serializes a key as a blinding factor.
func BlindingFactorFromSecretKey(sk *SecretKey) BlindingFactor {
	var bf BlindingFactor
	b := sk.Bytes()
	copy(bf[:], b[:])
	return bf
}

// SecretKey deserializes the blinding factor back into scalar form.
func (bf BlindingFactor) SecretKey() (*SecretKey, error) {
	return SecretKeyFromBytes(bf[:])
}

// IsZero reports whether the factor is the zero scalar.
func (bf BlindingFactor) IsZero() bool {
	return bf == BlindingFactor{}
}

// String returns the hex encoding.
func (bf BlindingFactor) String() string {
	return hex.EncodeToString(bf[:])
}

// MarshalJSON implements json.Marshaler using the hex encoding.
func (bf BlindingFactor) MarshalJSON() ([]byte, error) {
	return []byte(`"` + bf.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (bf *BlindingFactor) UnmarshalJSON(data []byte) error {
	parsed, err := NewBlindingFactorFromString(string(bytes.Trim(data, `"`)))
	if err != nil {
		return err
	}
	*bf = parsed
	return nil
}
