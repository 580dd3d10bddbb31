// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package aggsig implements the two round interactive Schnorr
// aggregate signature scheme transaction kernels are signed with.
//
// Every participant contributes a secret nonce k_i and a secret
// blinding excess x_i.  With R = sum(k_i*G) and P = sum(x_i*G), the
// challenge is e = SHA256(R.x || P || msg) and each partial signature
// is s_i = k_i + e*x_i.  The completed signature (R.x, sum(s_i))
// verifies as an ordinary Schnorr signature under P.  Signers negate
// their nonce when R has an odd y coordinate so that the completed
// signature always refers to the even-y point with R's x coordinate.
package aggsig

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/mwsuite/mwwallet/commit"
)

var (
	// ErrSignatureMismatch is returned when a signature fails to
	// verify against the given key and message.
	ErrSignatureMismatch = errors.New("signature verification failed")

	// ErrNonceMismatch is returned when a partial signature does not
	// carry the expected aggregate nonce.
	ErrNonceMismatch = errors.New("partial signature nonce mismatch")

	// ErrZeroNonce is returned when signing is attempted with an
	// unset nonce, which would leak the secret key.
	ErrZeroNonce = errors.New("secret nonce is zero")
)

// NewSecNonce generates a fresh signing nonce.  A nonce must never be
// used for more than one partial signature.
func NewSecNonce() (*commit.SecretKey, error) {
	return commit.NewSecretKey()
}

// computeChallenge derives the signature challenge
// e = SHA256(R.x || P || msg) as a scalar.
func computeChallenge(nonceSumX []byte, pubKeySum *btcec.PublicKey,
	msg []byte) secp.ModNScalar {

	h := sha256.New()
	h.Write(nonceSumX)
	h.Write(pubKeySum.SerializeCompressed())
	h.Write(msg)

	var e secp.ModNScalar
	e.SetByteSlice(h.Sum(nil))
	return e
}

// pubKeyX returns the 32 byte x coordinate of a public key.
func pubKeyX(pk *btcec.PublicKey) []byte {
	return pk.SerializeCompressed()[1:]
}

// pubKeyHasOddY reports whether the compressed encoding carries the
// odd-y prefix.
func pubKeyHasOddY(pk *btcec.PublicKey) bool {
	return pk.SerializeCompressed()[0] == 0x03
}

// negatePubKey returns the point with the same x coordinate and the
// opposite y parity.
func negatePubKey(pk *btcec.PublicKey) *btcec.PublicKey {
	var p btcec.JacobianPoint
	pk.AsJacobian(&p)
	p.Y.Negate(1)
	p.Y.Normalize()
	p.ToAffine()
	return btcec.NewPublicKey(&p.X, &p.Y)
}

// CalculatePartialSig computes this participant's share of the kernel
// signature: s_i = k_i + e*x_i with k_i negated when the aggregate
// nonce R = nonceSum has an odd y coordinate.
func CalculatePartialSig(secKey, secNonce *commit.SecretKey,
	nonceSum, pubKeySum *btcec.PublicKey, msg []byte) (Signature, error) {

	if secNonce == nil || secNonce.IsZero() {
		return Signature{}, ErrZeroNonce
	}

	k := secNonce.Scalar()
	if pubKeyHasOddY(nonceSum) {
		k.Negate()
	}

	e := computeChallenge(pubKeyX(nonceSum), pubKeySum, msg)
	x := secKey.Scalar()
	e.Mul(x)

	var s secp.ModNScalar
	s.Set(k)
	s.Add(&e)

	var sig Signature
	copy(sig[:32], pubKeyX(nonceSum))
	sb := s.Bytes()
	copy(sig[32:], sb[:])

	k.Zero()
	x.Zero()
	s.Zero()

	return sig, nil
}

// VerifyPartialSig checks one participant's share against their public
// nonce and public blinding excess: s_i*G must equal R_i + e*P_i, with
// R_i negated when the aggregate nonce has an odd y coordinate.
func VerifyPartialSig(sig Signature, pubNonce, pubBlindExcess,
	nonceSum, pubKeySum *btcec.PublicKey, msg []byte) error {

	if !bytes.Equal(sig[:32], pubKeyX(nonceSum)) {
		return ErrNonceMismatch
	}

	var s secp.ModNScalar
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return fmt.Errorf("%w: scalar overflows group order",
			ErrInvalidSignature)
	}

	e := computeChallenge(pubKeyX(nonceSum), pubKeySum, msg)

	// s*G - e*P_i
	var sG, eP btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&s, &sG)
	var pJ btcec.JacobianPoint
	pubBlindExcess.AsJacobian(&pJ)
	btcec.ScalarMultNonConst(&e, &pJ, &eP)
	eP.Y.Negate(1)
	eP.Y.Normalize()

	var got btcec.JacobianPoint
	btcec.AddNonConst(&sG, &eP, &got)
	if (got.X.IsZero() && got.Y.IsZero()) || got.Z.IsZero() {
		return ErrSignatureMismatch
	}
	got.ToAffine()
	gotKey := btcec.NewPublicKey(&got.X, &got.Y)

	want := pubNonce
	if pubKeyHasOddY(nonceSum) {
		want = negatePubKey(pubNonce)
	}

	if !gotKey.IsEqual(want) {
		return ErrSignatureMismatch
	}
	return nil
}

// AddSignatures combines verified partial signatures into the
// completed kernel signature (R.x, sum(s_i)).
func AddSignatures(partSigs []Signature, nonceSum *btcec.PublicKey) (
	Signature, error) {

	if len(partSigs) == 0 {
		return Signature{}, fmt.Errorf("%w: no partial signatures",
			ErrInvalidSignature)
	}

	rx := pubKeyX(nonceSum)
	var sum secp.ModNScalar
	for _, ps := range partSigs {
		if !bytes.Equal(ps[:32], rx) {
			return Signature{}, ErrNonceMismatch
		}
		var s secp.ModNScalar
		if overflow := s.SetByteSlice(ps[32:]); overflow {
			return Signature{}, fmt.Errorf(
				"%w: scalar overflows group order", ErrInvalidSignature)
		}
		sum.Add(&s)
	}

	var sig Signature
	copy(sig[:32], rx)
	sb := sum.Bytes()
	copy(sig[32:], sb[:])
	return sig, nil
}

// Sign produces a completed single-signer signature over msg.  It is
// the one participant special case of the aggregate scheme and is used
// for participant message signatures.
func Sign(secKey *commit.SecretKey, msg []byte) (Signature, error) {
	nonce, err := NewSecNonce()
	if err != nil {
		return Signature{}, err
	}
	defer nonce.Zero()

	return CalculatePartialSig(secKey, nonce, nonce.PubKey(),
		secKey.PubKey(), msg)
}

// Verify checks a completed signature against the given public key,
// which for kernels is the excess commitment reinterpreted as a key.
func Verify(sig Signature, pubKey *btcec.PublicKey, msg []byte) error {
	// Reconstruct R as the even-y point with the signature's x
	// coordinate.  Parsing also rejects x coordinates not on the
	// curve.
	rBytes := make([]byte, 33)
	rBytes[0] = 0x02
	copy(rBytes[1:], sig[:32])
	r, err := btcec.ParsePubKey(rBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var s secp.ModNScalar
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return fmt.Errorf("%w: scalar overflows group order",
			ErrInvalidSignature)
	}

	e := computeChallenge(sig[:32], pubKey, msg)

	// s*G - e*P must equal R.
	var sG, eP btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&s, &sG)
	var pJ btcec.JacobianPoint
	pubKey.AsJacobian(&pJ)
	btcec.ScalarMultNonConst(&e, &pJ, &eP)
	eP.Y.Negate(1)
	eP.Y.Normalize()

	var got btcec.JacobianPoint
	btcec.AddNonConst(&sG, &eP, &got)
	if (got.X.IsZero() && got.Y.IsZero()) || got.Z.IsZero() {
		return ErrSignatureMismatch
	}
	got.ToAffine()

	if !btcec.NewPublicKey(&got.X, &got.Y).IsEqual(r) {
		return ErrSignatureMismatch
	}
	return nil
}
