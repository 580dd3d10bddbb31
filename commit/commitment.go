// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package commit implements Pedersen commitments over secp256k1 along
// with the blinding factor arithmetic the transaction building and
// signing code is written in terms of.  A commitment has the form
// r*G + v*H where G is the curve's base point, H is a second generator
// with unknown discrete log relative to G, r is the blinding factor and
// v is the committed value.
package commit

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

const (
	// CommitmentSize is the serialized size of a Pedersen commitment.
	// The encoding is one parity prefix byte followed by the 32 byte
	// x coordinate of the commitment point.
	CommitmentSize = 33

	// Commitment points with an even y coordinate are tagged with
	// prefixEven, odd ones with prefixOdd.  The scheme mirrors
	// compressed public key encoding but uses a distinct prefix pair
	// so that commitments and public keys cannot be confused on the
	// wire.
	prefixEven = 0x08
	prefixOdd  = 0x09
)

var (
	// ErrInvalidCommitment describes a commitment that failed to
	// deserialize into a curve point.
	ErrInvalidCommitment = errors.New("invalid commitment encoding")

	// ErrCommitToZero is returned when a commitment operation would
	// produce the point at infinity, which has no serialization.
	ErrCommitToZero = errors.New("commitment to zero value and zero blind")
)

// Commitment is a serialized Pedersen commitment.
type Commitment [CommitmentSize]byte

// NewCommitmentFromBytes constructs a commitment from its serialized
// form, verifying that the bytes describe a valid curve point.  The
// all zero encoding is accepted as the zero commitment, which kernels
// carry until their excess is assembled.
func NewCommitmentFromBytes(b []byte) (Commitment, error) {
	var c Commitment
	if len(b) != CommitmentSize {
		return c, fmt.Errorf("%w: wrong length %d", ErrInvalidCommitment,
			len(b))
	}
	copy(c[:], b)
	if c.IsZero() {
		return c, nil
	}
	if _, err := c.PubKey(); err != nil {
		return c, err
	}
	return c, nil
}

// NewCommitmentFromString constructs a commitment from its hex form.
func NewCommitmentFromString(s string) (Commitment, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Commitment{}, fmt.Errorf("%w: %v", ErrInvalidCommitment, err)
	}
	return NewCommitmentFromBytes(b)
}

// Bytes returns the serialized commitment.
func (c Commitment) Bytes() []byte {
	return c[:]
}

// String returns the hex encoding of the commitment.
func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// IsZero reports whether the commitment is entirely unset.
func (c Commitment) IsZero() bool {
	return c == Commitment{}
}

// PubKey reinterprets the commitment point as a public key.  This is
// how kernel excess commitments are fed to signature verification: the
// excess commits to a zero value, so the point is x*G for the excess
// blinding factor x.
func (c Commitment) PubKey() (*btcec.PublicKey, error) {
	var compressed [CommitmentSize]byte
	copy(compressed[:], c[:])
	switch c[0] {
	case prefixEven:
		compressed[0] = 0x02
	case prefixOdd:
		compressed[0] = 0x03
	default:
		return nil, fmt.Errorf("%w: unknown prefix %#x",
			ErrInvalidCommitment, c[0])
	}
	pk, err := btcec.ParsePubKey(compressed[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommitment, err)
	}
	return pk, nil
}

// asJacobian loads the commitment point into j with Z=1.
func (c Commitment) asJacobian(j *btcec.JacobianPoint) error {
	pk, err := c.PubKey()
	if err != nil {
		return err
	}
	pk.AsJacobian(j)
	return nil
}

// commitmentFromJacobian serializes an affine point as a commitment.
// The point must already be normalized via ToAffine.
func commitmentFromJacobian(j *btcec.JacobianPoint) (Commitment, error) {
	if (j.X.IsZero() && j.Y.IsZero()) || j.Z.IsZero() {
		return Commitment{}, ErrCommitToZero
	}
	var c Commitment
	if j.Y.IsOdd() {
		c[0] = prefixOdd
	} else {
		c[0] = prefixEven
	}
	xb := j.X.Bytes()
	copy(c[1:], xb[:])
	return c, nil
}

// NewCommitmentFromPubKey encodes a public key point in commitment
// form.  It is the inverse of PubKey and is used when a kernel excess
// is assembled from summed participant keys.
func NewCommitmentFromPubKey(pk *btcec.PublicKey) Commitment {
	var c Commitment
	compressed := pk.SerializeCompressed()
	if compressed[0] == 0x03 {
		c[0] = prefixOdd
	} else {
		c[0] = prefixEven
	}
	copy(c[1:], compressed[1:])
	return c
}

// MarshalJSON implements json.Marshaler using the hex encoding.
func (c Commitment) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Commitment) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	parsed, err := NewCommitmentFromString(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
