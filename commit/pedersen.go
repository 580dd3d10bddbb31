// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package commit

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// The value generator H is the standard NUMS point used by libsecp256k1
// style Pedersen commitments: the hash-to-curve of G's encoding, so no
// party knows its discrete log with respect to G.
const (
	generatorHx = "50929b74c1a04954b78b4b6035e97a5e078a5a0f28ec96d547bfee9ace803ac0"
	generatorHy = "31d3c6863973926e049e637cb1b5f40a36dac28af1766968c30c2313f3a38904"
)

var generatorH btcec.JacobianPoint

func init() {
	xb, err := hex.DecodeString(generatorHx)
	if err != nil {
		panic(err)
	}
	yb, err := hex.DecodeString(generatorHy)
	if err != nil {
		panic(err)
	}
	generatorH.X.SetByteSlice(xb)
	generatorH.Y.SetByteSlice(yb)
	generatorH.Z.SetInt(1)
}

// valueScalar converts a 64 bit value into a scalar.
func valueScalar(v uint64) secp.ModNScalar {
	var vb [8]byte
	binary.BigEndian.PutUint64(vb[:], v)
	var s secp.ModNScalar
	s.SetByteSlice(vb[:])
	return s
}

// Commit computes the Pedersen commitment blind*G + value*H.
func Commit(value uint64, blind *SecretKey) (Commitment, error) {
	var result btcec.JacobianPoint

	if !blind.IsZero() {
		k := blind.k
		btcec.ScalarBaseMultNonConst(&k, &result)
		k.Zero()
	}
	if value != 0 {
		vs := valueScalar(value)
		var vh btcec.JacobianPoint
		btcec.ScalarMultNonConst(&vs, &generatorH, &vh)
		btcec.AddNonConst(&result, &vh, &result)
	}

	result.ToAffine()
	return commitmentFromJacobian(&result)
}

// CommitValue commits to a value with a zero blinding factor.  This is
// how the fee term enters kernel sum verification.
func CommitValue(value uint64) (Commitment, error) {
	var zero SecretKey
	return Commit(value, &zero)
}

// Sum adds the positive commitments and subtracts the negative ones,
// returning the commitment to the combined point.  ErrCommitToZero is
// returned when the terms cancel exactly, since the identity point has
// no commitment form.
func Sum(positive, negative []Commitment) (Commitment, error) {
	var acc btcec.JacobianPoint

	for _, c := range positive {
		var p btcec.JacobianPoint
		if err := c.asJacobian(&p); err != nil {
			return Commitment{}, err
		}
		btcec.AddNonConst(&acc, &p, &acc)
	}
	for _, c := range negative {
		var p btcec.JacobianPoint
		if err := c.asJacobian(&p); err != nil {
			return Commitment{}, err
		}
		p.Y.Negate(1)
		p.Y.Normalize()
		btcec.AddNonConst(&acc, &p, &acc)
	}

	acc.ToAffine()
	return commitmentFromJacobian(&acc)
}

// BlindSum adds the positive keys and subtracts the negative ones mod
// the curve order.  The result may be the zero scalar.
func BlindSum(positive, negative []*SecretKey) (*SecretKey, error) {
	var acc secp.ModNScalar
	for _, sk := range positive {
		if sk == nil {
			return nil, ErrInvalidSecretKey
		}
		acc.Add(&sk.k)
	}
	for _, sk := range negative {
		if sk == nil {
			return nil, ErrInvalidSecretKey
		}
		neg := sk.k
		neg.Negate()
		acc.Add(&neg)
		neg.Zero()
	}
	return &SecretKey{k: acc}, nil
}

// SumPubKeys adds the given public key points.  An error is returned
// if the keys cancel to the point at infinity.
func SumPubKeys(keys ...*btcec.PublicKey) (*btcec.PublicKey, error) {
	var acc btcec.JacobianPoint
	for _, pk := range keys {
		var p btcec.JacobianPoint
		pk.AsJacobian(&p)
		btcec.AddNonConst(&acc, &p, &acc)
	}
	if (acc.X.IsZero() && acc.Y.IsZero()) || acc.Z.IsZero() {
		return nil, ErrCommitToZero
	}
	acc.ToAffine()
	return btcec.NewPublicKey(&acc.X, &acc.Y), nil
}
